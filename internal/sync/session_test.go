package sync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	gosync "sync"
	"testing"
	"time"

	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecutor implements Executor for testing.
type mockExecutor struct {
	mu       gosync.Mutex
	calls    []runner.Command
	outcomes map[string]runner.Outcome // by command name; default success
	block    map[string]bool           // commands that run until killed
	started  chan string
	killCh   chan struct{}
	killOnce gosync.Once
	live     int
	maxLive  int
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{
		outcomes: make(map[string]runner.Outcome),
		block:    make(map[string]bool),
		started:  make(chan string, 16),
		killCh:   make(chan struct{}),
	}
}

func (m *mockExecutor) Run(ctx context.Context, _ runner.Platform, c runner.Command, sink io.Writer) runner.Outcome {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.live++
	if m.live > m.maxLive {
		m.maxLive = m.live
	}
	out, ok := m.outcomes[c.Name]
	if !ok {
		out = runner.Outcome{Success: true}
	}
	blocking := m.block[c.Name]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.live--
		m.mu.Unlock()
	}()

	_, _ = io.WriteString(sink, "output of "+c.Name+"\n")
	m.started <- c.Name

	if blocking {
		select {
		case <-m.killCh:
		case <-ctx.Done():
		}
	}
	return out
}

func (m *mockExecutor) Kill() {
	m.killOnce.Do(func() { close(m.killCh) })
}

func (m *mockExecutor) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		names = append(names, c.Name)
	}
	return names
}

// recorder collects session events.
type recorder struct {
	mu     gosync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{Workspace: "/work", StateDir: "/state"}
}

func testSite() *config.Site {
	return &config.Site{
		Name:       "test",
		LocalPath:  "/a",
		RemotePath: "/b",
		Executable: "rsync",
		Flags:      "rlptzv",
	}
}

func newTestSession(exec Executor) (*Session, *recorder, *bytes.Buffer) {
	rec := &recorder{}
	var sink bytes.Buffer
	s := NewSession(exec, &sink, rec, testLogger())
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, rec, &sink
}

func TestRun_FullSyncUp(t *testing.T) {
	exec := newMockExecutor()
	s, rec, sink := newTestSession(exec)

	site := testSite()
	site.PreSyncUp = config.Command{"pre", "x"}
	site.PostSyncUp = config.Command{"post"}
	site.PreSyncDown = config.Command{"never"}

	out, err := s.Run(context.Background(), site, testConfig(), Request{Direction: Up})
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, out.State)
	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, []string{"pre", "rsync", "post"}, exec.names())
	assert.Equal(t, []string{StagePreSyncUp, StageTransfer, StagePostSyncUp}, out.Completed)
	assert.Equal(t, []EventKind{EventStarted, EventSucceeded}, rec.kinds())
	assert.Contains(t, sink.String(), "2024-01-02 03:04:05 syncing\nrsync -rlptzv /a /b\n")
	assert.False(t, s.Busy())
	assert.Equal(t, out, s.Last())
}

func TestRun_CompareDown(t *testing.T) {
	exec := newMockExecutor()
	s, _, sink := newTestSession(exec)

	site := testSite()
	site.PreSyncDown = config.Command{"pre-down"}
	site.PostSyncDown = config.Command{"post-down"}
	site.PostSyncUp = config.Command{"never"}

	out, err := s.Run(context.Background(), site, testConfig(), Request{Direction: Down, DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, []string{"pre-down", "rsync", "post-down"}, exec.names())
	assert.Contains(t, sink.String(), "comparing\nrsync -n -rlptzv /b /a\n")
}

func TestRun_UpOnlyBlocksDown(t *testing.T) {
	for _, tc := range []struct {
		name      string
		site      func(*config.Site)
		direction Direction
	}{
		{name: "up only", site: func(s *config.Site) { s.UpOnly = config.Bool(true) }, direction: Down},
		{name: "down only", site: func(s *config.Site) { s.DownOnly = config.Bool(true) }, direction: Up},
	} {
		t.Run(tc.name, func(t *testing.T) {
			exec := newMockExecutor()
			s, rec, _ := newTestSession(exec)

			site := testSite()
			tc.site(site)
			site.PreSyncUp = config.Command{"pre"}
			site.PreSyncDown = config.Command{"pre"}

			out, err := s.Run(context.Background(), site, testConfig(), Request{Direction: tc.direction})
			require.NoError(t, err)

			assert.Equal(t, StateSucceeded, out.State)
			assert.True(t, out.Skipped)
			assert.NoError(t, out.Err)
			assert.Empty(t, exec.names())
			assert.Equal(t, []EventKind{EventStarted, EventSkipped}, rec.kinds())
		})
	}
}

func TestRun_MissingPaths(t *testing.T) {
	exec := newMockExecutor()
	s, rec, _ := newTestSession(exec)

	site := testSite()
	site.RemotePath = ""

	out, err := s.Run(context.Background(), site, testConfig(), Request{Direction: Up})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.True(t, IsConfigurationError(out.Err))
	assert.Empty(t, exec.names())
	assert.Equal(t, []EventKind{EventStarted, EventFailed}, rec.kinds())
}

func TestRun_NilSite(t *testing.T) {
	s, rec, _ := newTestSession(newMockExecutor())

	_, err := s.Run(context.Background(), nil, testConfig(), Request{Direction: Up})
	assert.ErrorIs(t, err, ErrNoSiteSelected)
	assert.Empty(t, rec.kinds())
	assert.False(t, s.Busy())
}

func TestRun_InvalidDirection(t *testing.T) {
	s, _, _ := newTestSession(newMockExecutor())
	_, err := s.Run(context.Background(), testSite(), testConfig(), Request{Direction: "sideways"})
	assert.Error(t, err)
}

func TestRun_PreHookFailure(t *testing.T) {
	exec := newMockExecutor()
	exec.outcomes["pre"] = runner.Outcome{Success: false, ExitCode: 4}
	s, rec, _ := newTestSession(exec)

	site := testSite()
	site.PreSyncUp = config.Command{"pre"}
	site.PostSyncUp = config.Command{"post"}

	out, err := s.Run(context.Background(), site, testConfig(), Request{Direction: Up})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, StagePreSyncUp, out.Stage)
	assert.Equal(t, 4, out.ExitCode)
	assert.Equal(t, []string{"pre"}, exec.names())

	var hookErr *HookFailure
	require.ErrorAs(t, out.Err, &hookErr)
	assert.Equal(t, StagePreSyncUp, hookErr.Stage)
	assert.Equal(t, 4, hookErr.ExitCode)
	assert.Equal(t, []EventKind{EventStarted, EventFailed}, rec.kinds())
}

func TestRun_TransferFailure(t *testing.T) {
	exec := newMockExecutor()
	exec.outcomes["rsync"] = runner.Outcome{Success: false, ExitCode: 23}
	s, _, _ := newTestSession(exec)

	site := testSite()
	site.PreSyncUp = config.Command{"pre"}
	site.PostSyncUp = config.Command{"post"}
	site.AfterSync = config.Command{"after"}

	out, err := s.Run(context.Background(), site, testConfig(), Request{Direction: Up})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, StageTransfer, out.Stage)
	assert.Equal(t, []string{"pre", "rsync"}, exec.names())
	assert.Equal(t, []string{StagePreSyncUp}, out.Completed)

	var transferErr *TransferFailure
	require.ErrorAs(t, out.Err, &transferErr)
	assert.Equal(t, 23, transferErr.ExitCode)
}

func TestRun_PostHookFailure(t *testing.T) {
	exec := newMockExecutor()
	exec.outcomes["post"] = runner.Outcome{Success: false, ExitCode: 2}
	s, rec, _ := newTestSession(exec)

	site := testSite()
	site.PostSyncUp = config.Command{"post"}
	site.AfterSync = config.Command{"after"}

	out, err := s.Run(context.Background(), site, testConfig(), Request{Direction: Up})
	require.NoError(t, err)

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, StagePostSyncUp, out.Stage)
	assert.Equal(t, []string{"rsync", "post"}, exec.names())
	assert.Zero(t, rec.count(EventDeprecated))
}

func TestRun_AfterSyncOrderAndDeprecation(t *testing.T) {
	exec := newMockExecutor()
	s, rec, _ := newTestSession(exec)

	site := testSite()
	site.PostSyncUp = config.Command{"post"}
	site.AfterSync = config.Command{"after"}

	out, err := s.Run(context.Background(), site, testConfig(), Request{Direction: Up})
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, []string{"rsync", "post", "after"}, exec.names())
	assert.Equal(t, 1, rec.count(EventDeprecated))
	assert.Equal(t, []EventKind{EventStarted, EventDeprecated, EventSucceeded}, rec.kinds())
}

func TestRun_AfterSyncIgnoredOnDown(t *testing.T) {
	exec := newMockExecutor()
	s, rec, _ := newTestSession(exec)

	site := testSite()
	site.AfterSync = config.Command{"after"}

	_, err := s.Run(context.Background(), site, testConfig(), Request{Direction: Down})
	require.NoError(t, err)

	assert.Equal(t, []string{"rsync"}, exec.names())
	assert.Zero(t, rec.count(EventDeprecated))
}

func TestRun_SingleFile(t *testing.T) {
	exec := newMockExecutor()
	s, _, _ := newTestSession(exec)

	site := testSite()
	site.PreSyncDown = config.Command{"pre"}
	site.PostSyncDown = config.Command{"post"}

	out, err := s.Run(context.Background(), site, testConfig(), Request{Direction: Down, File: "x.txt"})
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, out.State)
	require.Equal(t, []string{"rsync"}, exec.names())
	args := exec.calls[0].Args
	assert.Equal(t, []string{"/b/x.txt", "/a/x.txt"}, args[len(args)-2:])
}

func TestKill_MidTransfer(t *testing.T) {
	exec := newMockExecutor()
	exec.block["rsync"] = true
	// the killed process reports success; the kill must still win
	exec.outcomes["rsync"] = runner.Outcome{Success: true}
	s, rec, _ := newTestSession(exec)

	site := testSite()
	site.PostSyncUp = config.Command{"post"}

	done, err := s.Start(context.Background(), site, testConfig(), Request{Direction: Up})
	require.NoError(t, err)

	require.Equal(t, "rsync", <-exec.started)
	assert.True(t, s.Busy())
	assert.True(t, s.Kill())

	out := <-done
	assert.Equal(t, StateKilled, out.State)
	assert.ErrorIs(t, out.Err, ErrKilled)
	assert.Equal(t, []string{"rsync"}, exec.names(), "post hook must not run after a kill")
	assert.Equal(t, []EventKind{EventStarted, EventKilled}, rec.kinds())
	assert.False(t, s.Busy())
}

func TestKill_BetweenStages(t *testing.T) {
	exec := newMockExecutor()
	exec.block["pre"] = true
	exec.outcomes["pre"] = runner.Outcome{Success: false, ExitCode: 15}
	s, _, _ := newTestSession(exec)

	site := testSite()
	site.PreSyncUp = config.Command{"pre"}

	done, err := s.Start(context.Background(), site, testConfig(), Request{Direction: Up})
	require.NoError(t, err)
	require.Equal(t, "pre", <-exec.started)
	s.Kill()

	out := <-done
	assert.Equal(t, StateKilled, out.State, "a kill is not a hook failure")
	assert.Equal(t, []string{"pre"}, exec.names())
}

func TestKill_WhileReporting(t *testing.T) {
	exec := newMockExecutor()
	reached := make(chan struct{})
	release := make(chan struct{})
	observer := ObserverFunc(func(e Event) {
		if e.Kind == EventSucceeded {
			close(reached)
			<-release
		}
	})
	s := NewSession(exec, io.Discard, observer, testLogger())

	done, err := s.Start(context.Background(), testSite(), testConfig(), Request{Direction: Up})
	require.NoError(t, err)

	<-reached
	assert.True(t, s.Busy(), "the slot is held until the terminal event is delivered")
	assert.False(t, s.Kill(), "a recorded outcome cannot be killed")
	close(release)

	out := <-done
	assert.Equal(t, StateSucceeded, out.State)
	assert.False(t, s.Busy())
	assert.Equal(t, StateSucceeded, s.Last().State)
}

func TestKilledOutcome(t *testing.T) {
	out := killedOutcome(Outcome{
		RunID:     "run",
		State:     StateFailed,
		Stage:     StageTransfer,
		ExitCode:  23,
		Completed: []string{StagePreSyncUp},
		Err:       &TransferFailure{ExitCode: 23},
	})

	assert.Equal(t, StateKilled, out.State)
	assert.ErrorIs(t, out.Err, ErrKilled)
	assert.Empty(t, out.Stage)
	assert.Zero(t, out.ExitCode)
	assert.Equal(t, "run", out.RunID)
	assert.Equal(t, []string{StagePreSyncUp}, out.Completed)
}

func TestKill_Idle(t *testing.T) {
	s, _, _ := newTestSession(newMockExecutor())
	assert.False(t, s.Kill())
	assert.Equal(t, StateIdle, s.State())
}

func TestStart_Busy(t *testing.T) {
	exec := newMockExecutor()
	exec.block["rsync"] = true
	s, rec, _ := newTestSession(exec)

	done, err := s.Start(context.Background(), testSite(), testConfig(), Request{Direction: Up})
	require.NoError(t, err)
	<-exec.started
	assert.Equal(t, StateRunning, s.State())

	_, err = s.Start(context.Background(), testSite(), testConfig(), Request{Direction: Down})
	assert.True(t, errors.Is(err, ErrBusy))

	s.Kill()
	<-done

	exec.mu.Lock()
	assert.Equal(t, 1, exec.maxLive)
	assert.Len(t, exec.calls, 1)
	exec.mu.Unlock()
	assert.Equal(t, 1, rec.count(EventStarted))
}

func TestStart_NewSessionAfterKill(t *testing.T) {
	exec := newMockExecutor()
	exec.block["rsync"] = true
	s, _, _ := newTestSession(exec)

	done, err := s.Start(context.Background(), testSite(), testConfig(), Request{Direction: Up})
	require.NoError(t, err)
	<-exec.started
	s.Kill()
	<-done

	delete(exec.block, "rsync")
	out, err := s.Run(context.Background(), testSite(), testConfig(), Request{Direction: Up})
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, out.State, "kill flag must not leak into the next session")
}

func TestRequest(t *testing.T) {
	assert.Equal(t, "syncing", Request{}.Verb())
	assert.Equal(t, "comparing", Request{DryRun: true}.Verb())
	assert.True(t, Request{File: "a"}.SingleFile())
	assert.False(t, Request{}.SingleFile())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "killed", StateKilled.String())
	assert.Equal(t, "unknown", State(99).String())
}
