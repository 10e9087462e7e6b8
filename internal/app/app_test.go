package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	gosync "sync"
	"testing"

	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/runner"
	"github.com/schaermu/sitesync/internal/site"
	"github.com/schaermu/sitesync/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor records commands and optionally blocks until killed.
type mockExecutor struct {
	mu      gosync.Mutex
	calls   []runner.Command
	block   bool
	started chan struct{}
	release chan struct{}
	once    gosync.Once
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (m *mockExecutor) Run(ctx context.Context, _ runner.Platform, c runner.Command, _ io.Writer) runner.Outcome {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	block := m.block
	m.mu.Unlock()

	m.started <- struct{}{}
	if block {
		select {
		case <-m.release:
		case <-ctx.Done():
		}
	}
	return runner.Outcome{Success: true}
}

func (m *mockExecutor) Kill() {
	m.once.Do(func() { close(m.release) })
}

func (m *mockExecutor) commands() []runner.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]runner.Command(nil), m.calls...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Workspace: "/work",
		StateDir:  "/state",
		Sites: []*config.Site{
			{Name: "web", LocalPath: "/work", RemotePath: "host:/srv/web", Executable: "rsync"},
			{Name: "api", LocalPath: "/work/api", RemotePath: "host:/srv/api", Executable: "rsync", DownOnly: config.Bool(true)},
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *mockExecutor) {
	t.Helper()
	exec := newMockExecutor()
	session := sync.NewSession(exec, io.Discard, nil, testLogger())
	store := site.NewStore(filepath.Join(t.TempDir(), "state.json"))
	return New(testLogger(), config.NewProvider(cfg), site.NewSelector(), store, session), exec
}

func TestSyncUp_NoSiteSelected(t *testing.T) {
	a, exec := newTestApp(t, testConfig())

	_, err := a.Select("web")
	require.NoError(t, err)
	require.NoError(t, a.Deselect())

	_, err = a.SyncUp(context.Background())
	assert.ErrorIs(t, err, sync.ErrNoSiteSelected)
	assert.True(t, sync.IsConfigurationError(err))
	assert.Empty(t, exec.commands())
}

func TestSyncUp_NoSitesConfigured(t *testing.T) {
	a, exec := newTestApp(t, &config.Config{Workspace: "/work", StateDir: "/state"})

	_, err := a.SyncDown(context.Background())
	assert.ErrorIs(t, err, sync.ErrNoSitesConfigured)
	assert.Empty(t, exec.commands())

	_, err = a.Select("web")
	assert.ErrorIs(t, err, sync.ErrNoSitesConfigured)
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		run      func(*App) (sync.Outcome, error)
		wantArgs []string
	}{
		{"sync up", func(a *App) (sync.Outcome, error) { return a.SyncUp(context.Background()) }, []string{"/work", "host:/srv/web"}},
		{"sync down", func(a *App) (sync.Outcome, error) { return a.SyncDown(context.Background()) }, []string{"host:/srv/web", "/work"}},
		{"compare up", func(a *App) (sync.Outcome, error) { return a.CompareUp(context.Background()) }, []string{"-n", "/work", "host:/srv/web"}},
		{"compare down", func(a *App) (sync.Outcome, error) { return a.CompareDown(context.Background()) }, []string{"-n", "host:/srv/web", "/work"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, exec := newTestApp(t, testConfig())
			_, err := a.Select("web")
			require.NoError(t, err)

			out, err := tt.run(a)
			require.NoError(t, err)
			assert.Equal(t, sync.StateSucceeded, out.State)

			cmds := exec.commands()
			require.Len(t, cmds, 1)
			assert.Equal(t, tt.wantArgs, cmds[0].Args)
		})
	}
}

func TestSyncSite_KeepsSelection(t *testing.T) {
	a, exec := newTestApp(t, testConfig())
	_, err := a.Select("web")
	require.NoError(t, err)

	out, err := a.SyncSite(context.Background(), "api", sync.Up)
	require.NoError(t, err)
	assert.True(t, out.Skipped, "api is down only")
	assert.Empty(t, exec.commands())
	assert.Equal(t, "web", config.DisplayName(a.Current()))

	_, err = a.SyncSite(context.Background(), "missing", sync.Up)
	assert.True(t, sync.IsConfigurationError(err))
}

func TestOnSave(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		a, exec := newTestApp(t, testConfig())
		_, _ = a.Select("web")

		done, err := a.OnSave(context.Background(), "/work/index.php")
		require.NoError(t, err)
		assert.Nil(t, done)
		assert.Empty(t, exec.commands())
	})

	t.Run("full sync", func(t *testing.T) {
		cfg := testConfig()
		cfg.OnFileSave = true
		cfg.OnFileSaveIndividual = true
		a, exec := newTestApp(t, cfg)
		_, _ = a.Select("web")

		done, err := a.OnSave(context.Background(), "/work/index.php")
		require.NoError(t, err)
		require.NotNil(t, done)
		<-done
		assert.Equal(t, []string{"/work", "host:/srv/web"}, exec.commands()[0].Args)
	})

	t.Run("single file", func(t *testing.T) {
		cfg := testConfig()
		cfg.OnFileSaveIndividual = true
		a, exec := newTestApp(t, cfg)
		_, _ = a.Select("web")

		done, err := a.OnSave(context.Background(), "/work/lib/index.php")
		require.NoError(t, err)
		require.NotNil(t, done)
		out := <-done
		assert.Equal(t, sync.StateSucceeded, out.State)
		assert.Equal(t, []string{"/work/lib/index.php", "host:/srv/web/lib/index.php"}, exec.commands()[0].Args)
	})

	t.Run("outside workspace", func(t *testing.T) {
		cfg := testConfig()
		cfg.OnFileSaveIndividual = true
		a, _ := newTestApp(t, cfg)
		_, _ = a.Select("web")

		_, err := a.OnSave(context.Background(), "/elsewhere/index.php")
		assert.Error(t, err)
	})
}

func TestOnOpen(t *testing.T) {
	cfg := testConfig()
	cfg.OnFileLoadIndividual = true
	a, exec := newTestApp(t, cfg)
	_, _ = a.Select("web")

	done, err := a.OnOpen(context.Background(), "/work/a.txt")
	require.NoError(t, err)
	require.NotNil(t, done)
	<-done
	assert.Equal(t, []string{"host:/srv/web/a.txt", "/work/a.txt"}, exec.commands()[0].Args)

	cfg2 := testConfig()
	a2, exec2 := newTestApp(t, cfg2)
	_, _ = a2.Select("web")
	done, err = a2.OnOpen(context.Background(), "/work/a.txt")
	require.NoError(t, err)
	assert.Nil(t, done)
	assert.Empty(t, exec2.commands())
}

func TestBusyPolicy(t *testing.T) {
	a, exec := newTestApp(t, testConfig())
	exec.block = true
	_, _ = a.Select("web")

	done, err := a.Start(context.Background(), sync.Request{Direction: sync.Up})
	require.NoError(t, err)
	<-exec.started
	assert.True(t, a.Busy())

	_, err = a.SyncDown(context.Background())
	assert.ErrorIs(t, err, sync.ErrBusy, "commands surface busy")

	watchDone, err := a.OnWatch(context.Background())
	assert.NoError(t, err, "watch triggers are dropped silently")
	assert.Nil(t, watchDone)

	assert.True(t, a.Kill())
	out := <-done
	assert.Equal(t, sync.StateKilled, out.State)
	assert.Len(t, exec.commands(), 1)
	assert.Equal(t, sync.StateKilled, a.Last().State)
}

func TestSelect_PersistsAndRestores(t *testing.T) {
	cfg := testConfig()
	a, _ := newTestApp(t, cfg)

	_, err := a.Select("missing")
	assert.True(t, sync.IsConfigurationError(err))

	s, err := a.Select("api")
	require.NoError(t, err)
	assert.Equal(t, "api", s.Name)

	b := New(testLogger(), config.NewProvider(testConfig()), site.NewSelector(), a.store, a.session)
	require.NoError(t, b.Restore())
	assert.Equal(t, "api", config.DisplayName(b.Current()))
}

func TestReload(t *testing.T) {
	a, exec := newTestApp(t, testConfig())
	_, _ = a.Select("web")

	next := testConfig()
	next.Sites[0].RemotePath = "host:/srv/web2"
	a.Reload(next)

	assert.Same(t, next.Sites[0], a.Current())
	assert.Same(t, next, a.Config())

	_, err := a.SyncUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/work", "host:/srv/web2"}, exec.commands()[0].Args)

	a.Reload(&config.Config{Workspace: "/work", StateDir: "/state", Sites: []*config.Site{{Name: "other"}}})
	assert.Nil(t, a.Current())
	assert.Len(t, a.Sites(), 1)
}

func TestOnSelectionChange(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	var got []string
	a.OnSelectionChange(func(s *config.Site) {
		got = append(got, config.DisplayName(s))
	})

	_, err := a.Select("api")
	require.NoError(t, err)
	require.NoError(t, a.Deselect())

	_, err = a.Select("missing")
	require.Error(t, err)

	assert.Equal(t, []string{"api", config.NoSiteLabel}, got, "a failed selection must not notify")
}
