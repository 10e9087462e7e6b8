package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	gosync "sync"

	"github.com/schaermu/sitesync/internal/app"
	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/control"
	"github.com/schaermu/sitesync/internal/watch"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: control API, workspace watcher and config reload",
	Long: `Serve starts a long-running daemon that owns the sync session. It listens
for editor save and open events and CLI requests on serve.listen_addr (or a
systemd-activated socket), uploads the workspace when files matching
watch_globs change, and reloads the configuration file when it is edited.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	env, err := newRuntime(logger, os.Stderr)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := setupSignalHandler(func() { env.app.Kill() })
	defer cancel()

	server, err := control.NewServer(env.app, env.cfg.Serve, logger)
	if err != nil {
		return fmt.Errorf("failed to create control server: %w", err)
	}

	d := &daemon{logger: logger, app: env.app}
	env.app.OnSelectionChange(func(*config.Site) { d.selectionChanged(ctx) })
	if err := d.restartWatcher(ctx); err != nil {
		return err
	}
	defer d.stopWatcher()

	path, err := configPath()
	if err != nil {
		return err
	}
	go func() {
		if err := watch.WatchFile(ctx, logger, path, watch.DefaultDelay, func() { d.reload(ctx, path) }); err != nil {
			logger.Warn("configuration reload disabled", "error", err)
		}
	}()

	logger.Info("sitesync daemon started",
		"workspace", env.cfg.Workspace,
		"site", config.DisplayName(env.app.Current()),
		"watch_globs", env.cfg.WatchGlobs)

	return server.Start(ctx)
}

// daemon owns the workspace watcher of "serve" and rebuilds it on reload.
type daemon struct {
	logger *slog.Logger
	app    *app.App

	mu       gosync.Mutex
	watcher  *watch.Watcher
	excludes []string
}

func (d *daemon) restartWatcher(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closeWatcherLocked()

	cfg := d.app.Config()
	if len(cfg.WatchGlobs) == 0 {
		d.logger.Debug("no watch globs configured, workspace watcher disabled")
		return nil
	}

	excludes := watchExcludes(d.app.Current())
	m, err := watch.NewMatcher(cfg.WatchGlobs, excludes)
	if err != nil {
		return err
	}

	w := watch.New(d.logger, cfg.Workspace, m, watch.DefaultDelay, func() { d.onWatch(ctx) })
	if err := w.Start(ctx); err != nil {
		return err
	}
	d.watcher = w
	d.excludes = excludes
	d.logger.Debug("workspace watcher started", "globs", cfg.WatchGlobs, "excludes", excludes)
	return nil
}

// watchedExcludes returns the exclude patterns of the running watcher.
func (d *daemon) watchedExcludes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.excludes
}

// selectionChanged rebuilds the watcher so it follows the new site's
// exclude patterns.
func (d *daemon) selectionChanged(ctx context.Context) {
	if err := d.restartWatcher(ctx); err != nil {
		d.logger.Error("failed to restart workspace watcher", "error", err)
	}
}

func (d *daemon) stopWatcher() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeWatcherLocked()
}

func (d *daemon) closeWatcherLocked() {
	if d.watcher == nil {
		return
	}
	if err := d.watcher.Close(); err != nil {
		d.logger.Warn("failed to close workspace watcher", "error", err)
	}
	d.watcher = nil
	d.excludes = nil
}

func (d *daemon) onWatch(ctx context.Context) {
	if _, err := d.app.OnWatch(ctx); err != nil {
		d.logger.Warn("watch trigger ignored", "error", err)
	}
}

func (d *daemon) reload(ctx context.Context, path string) {
	cfg, err := config.Load(path)
	if err != nil {
		d.logger.Error("failed to reload configuration, keeping the previous one", "error", err)
		return
	}

	d.app.Reload(cfg)
	if err := d.restartWatcher(ctx); err != nil {
		d.logger.Error("failed to restart workspace watcher", "error", err)
	}
}

// watchExcludes returns the patterns whose changes never trigger a sync.
func watchExcludes(current *config.Site) []string {
	if current != nil && current.Exclude != nil {
		return current.Exclude
	}
	return config.DefaultExclude
}
