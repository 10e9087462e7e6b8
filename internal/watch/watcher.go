// Package watch turns file-system changes in the workspace into debounced
// sync triggers.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/schaermu/sitesync/internal/workspace"
)

// Watcher watches a directory tree and calls OnChange once per burst of
// matching changes.
type Watcher struct {
	logger   *slog.Logger
	root     string
	matcher  *Matcher
	debounce *Debouncer
	onChange func()

	fsw       *fsnotify.Watcher
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Watcher for root. onChange runs on a timer goroutine.
func New(logger *slog.Logger, root string, matcher *Matcher, delay time.Duration, onChange func()) *Watcher {
	return &Watcher{
		logger:   logger,
		root:     root,
		matcher:  matcher,
		debounce: NewDebouncer(delay),
		onChange: onChange,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Watching stops when ctx is cancelled or Close is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := w.addTree(fsw, w.root); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch workspace: %w", err)
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("watching workspace", "root", w.root, "directories", len(fsw.WatchList()))
	return nil
}

// Close stops the watcher and cancels any pending debounced trigger. It is
// safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.debounce.Stop()
		close(w.done)
		if w.fsw != nil {
			err = w.fsw.Close()
		}
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	dirs, err := workspace.DiscoverDirs(dir, func(path string) bool {
		rel, err := workspace.RelativePath(w.root, path)
		return err == nil && w.matcher.Excluded(rel)
	})
	if err != nil {
		return err
	}

	for _, d := range dirs {
		if err := fsw.Add(d); err != nil {
			return fmt.Errorf("failed to watch %s: %w", d, err)
		}
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			w.debounce.Stop()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}

	rel, err := workspace.RelativePath(w.root, event.Name)
	if err != nil {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !w.matcher.Excluded(rel) {
			if err := w.addTree(w.fsw, event.Name); err != nil && !errors.Is(err, os.ErrNotExist) {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
		}
	}

	if !w.matcher.Match(rel) {
		return
	}

	w.logger.Debug("change detected", "path", rel, "op", event.Op.String())
	w.debounce.Trigger(w.onChange)
}
