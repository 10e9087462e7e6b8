// Package app implements the command surface: it reads the current
// configuration and site selection at trigger time and hands requests to the
// sync session.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/site"
	"github.com/schaermu/sitesync/internal/sync"
	"github.com/schaermu/sitesync/internal/workspace"
)

// App owns the selector and the session of one process.
type App struct {
	logger   *slog.Logger
	provider *config.Provider
	selector *site.Selector
	store    *site.Store
	session  *sync.Session

	onSelect func(*config.Site)
}

// New creates an App. store may be nil, in which case the selection is not
// persisted.
func New(logger *slog.Logger, provider *config.Provider, selector *site.Selector, store *site.Store, session *sync.Session) *App {
	return &App{
		logger:   logger,
		provider: provider,
		selector: selector,
		store:    store,
		session:  session,
	}
}

// OnSelectionChange registers fn to be called with the new site (nil when
// deselected) after Select or Deselect. It must be set before the App is
// shared between goroutines.
func (a *App) OnSelectionChange(fn func(*config.Site)) {
	a.onSelect = fn
}

// Config returns the current configuration snapshot.
func (a *App) Config() *config.Config {
	return a.provider.Current()
}

// Start runs req against the selected site. Command triggers get ErrBusy
// while another sync runs.
func (a *App) Start(ctx context.Context, req sync.Request) (<-chan sync.Outcome, error) {
	cfg := a.provider.Current()
	if len(cfg.Sites) == 0 {
		return nil, sync.ErrNoSitesConfigured
	}

	current := a.selector.Current()
	if current == nil {
		return nil, sync.ErrNoSiteSelected
	}

	return a.session.Start(ctx, current, cfg, req)
}

// Run is Start followed by waiting for the outcome.
func (a *App) Run(ctx context.Context, req sync.Request) (sync.Outcome, error) {
	done, err := a.Start(ctx, req)
	if err != nil {
		return sync.Outcome{}, err
	}
	return <-done, nil
}

// SyncUp uploads the workspace to the selected site.
func (a *App) SyncUp(ctx context.Context) (sync.Outcome, error) {
	return a.Run(ctx, sync.Request{Direction: sync.Up, Trigger: sync.TriggerCommand})
}

// SyncDown downloads the selected site into the workspace.
func (a *App) SyncDown(ctx context.Context) (sync.Outcome, error) {
	return a.Run(ctx, sync.Request{Direction: sync.Down, Trigger: sync.TriggerCommand})
}

// CompareUp is a dry-run SyncUp.
func (a *App) CompareUp(ctx context.Context) (sync.Outcome, error) {
	return a.Run(ctx, sync.Request{Direction: sync.Up, DryRun: true, Trigger: sync.TriggerCommand})
}

// CompareDown is a dry-run SyncDown.
func (a *App) CompareDown(ctx context.Context) (sync.Outcome, error) {
	return a.Run(ctx, sync.Request{Direction: sync.Down, DryRun: true, Trigger: sync.TriggerCommand})
}

// SyncSite syncs the site with the given key without changing the selection.
func (a *App) SyncSite(ctx context.Context, key string, dir sync.Direction) (sync.Outcome, error) {
	cfg := a.provider.Current()
	if len(cfg.Sites) == 0 {
		return sync.Outcome{}, sync.ErrNoSitesConfigured
	}

	s := cfg.Site(key)
	if s == nil {
		return sync.Outcome{}, &sync.ConfigurationError{Reason: fmt.Sprintf("unknown site %q", key)}
	}

	return a.session.Run(ctx, s, cfg, sync.Request{Direction: dir, Trigger: sync.TriggerCommand})
}

// OnSave handles a saved document. Depending on on_file_save and
// on_file_save_individual it uploads the whole site, the single file, or
// nothing. The returned channel is nil when no sync was started.
func (a *App) OnSave(ctx context.Context, path string) (<-chan sync.Outcome, error) {
	cfg := a.provider.Current()

	switch {
	case cfg.OnFileSave:
		return a.background(ctx, sync.Request{Direction: sync.Up, Trigger: sync.TriggerSave})
	case cfg.OnFileSaveIndividual:
		rel, err := workspace.RelativePath(cfg.Workspace, path)
		if err != nil {
			return nil, err
		}
		return a.background(ctx, sync.Request{Direction: sync.Up, File: rel, Trigger: sync.TriggerSave})
	default:
		a.logger.Debug("save trigger disabled", "path", path)
		return nil, nil
	}
}

// OnOpen handles an opened document. With on_file_load_individual the file
// is downloaded from the selected site first.
func (a *App) OnOpen(ctx context.Context, path string) (<-chan sync.Outcome, error) {
	cfg := a.provider.Current()
	if !cfg.OnFileLoadIndividual {
		a.logger.Debug("open trigger disabled", "path", path)
		return nil, nil
	}

	rel, err := workspace.RelativePath(cfg.Workspace, path)
	if err != nil {
		return nil, err
	}
	return a.background(ctx, sync.Request{Direction: sync.Down, File: rel, Trigger: sync.TriggerOpen})
}

// OnWatch handles a debounced file-system change with a full upload.
func (a *App) OnWatch(ctx context.Context) (<-chan sync.Outcome, error) {
	return a.background(ctx, sync.Request{Direction: sync.Up, Trigger: sync.TriggerWatch})
}

// background starts an event-triggered sync. A running sync drops the
// request.
func (a *App) background(ctx context.Context, req sync.Request) (<-chan sync.Outcome, error) {
	done, err := a.Start(ctx, req)
	if errors.Is(err, sync.ErrBusy) {
		a.logger.Debug("sync already running, dropping trigger", "trigger", req.Trigger, "file", req.File)
		return nil, nil
	}
	return done, err
}

// Kill terminates the running sync and reports whether one was running.
func (a *App) Kill() bool {
	return a.session.Kill()
}

// Busy reports whether a sync is running.
func (a *App) Busy() bool {
	return a.session.Busy()
}

// Last returns the outcome of the most recent finished sync.
func (a *App) Last() sync.Outcome {
	return a.session.Last()
}

// Sites returns the configured sites.
func (a *App) Sites() []*config.Site {
	return a.provider.Current().Sites
}

// Current returns the selected site, or nil.
func (a *App) Current() *config.Site {
	return a.selector.Current()
}

// Select makes the site with the given key the active one.
func (a *App) Select(key string) (*config.Site, error) {
	cfg := a.provider.Current()
	if len(cfg.Sites) == 0 {
		return nil, sync.ErrNoSitesConfigured
	}

	s, err := a.selector.SelectKey(cfg, key)
	if err != nil {
		return nil, &sync.ConfigurationError{Reason: err.Error()}
	}

	a.logger.Info("site selected", "site", config.DisplayName(s))
	err = a.persist()
	a.selectionChanged(s)
	return s, err
}

// Deselect clears the active site.
func (a *App) Deselect() error {
	a.selector.Deselect()
	a.logger.Info("site deselected")
	err := a.persist()
	a.selectionChanged(nil)
	return err
}

func (a *App) selectionChanged(s *config.Site) {
	if a.onSelect != nil {
		a.onSelect(s)
	}
}

// Restore loads the persisted selection.
func (a *App) Restore() error {
	if a.store == nil {
		return nil
	}
	s, err := a.store.Restore(a.selector, a.provider.Current())
	if err != nil {
		return err
	}
	if s != nil {
		a.logger.Debug("restored site selection", "site", config.DisplayName(s))
	}
	return nil
}

// Reload publishes a new configuration. The selection moves to the site with
// the same key in cfg; a running sync keeps the site it started with.
func (a *App) Reload(cfg *config.Config) {
	prev := a.selector.Current()
	a.provider.Store(cfg)
	cur := a.selector.Adopt(cfg)

	if prev != nil && cur == nil {
		a.logger.Warn("selected site no longer configured", "site", config.DisplayName(prev))
	}
	a.logger.Info("configuration reloaded", "sites", len(cfg.Sites), "selected", config.DisplayName(cur))
}

func (a *App) persist() error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Persist(a.selector); err != nil {
		return fmt.Errorf("failed to persist selection: %w", err)
	}
	return nil
}
