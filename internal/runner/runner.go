// Package runner spawns external commands and streams their output.
//
// A Runner owns at most one live subprocess. Run never returns an error:
// spawn failures and stream errors are folded into an Outcome with exit code 1
// and reported to the output sink with an "ERROR > " prefix.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"
)

// ErrorPrefix marks runner diagnostics written to the output sink.
const ErrorPrefix = "ERROR > "

// killGrace is how long a terminated process may keep its pipes open before
// it is killed outright.
const killGrace = 5 * time.Second

// Outcome is the terminal result of one Run.
type Outcome struct {
	Success  bool
	ExitCode int
}

var errBusy = errors.New("another command is already running")

// Runner runs one external command at a time.
type Runner struct {
	logger *slog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// New creates a Runner.
func New(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Run spawns c according to platform, copies its combined output to sink in
// arrival order, and waits for it to exit. Cancelling ctx terminates the
// process.
func (r *Runner) Run(ctx context.Context, platform Platform, c Command, sink io.Writer) Outcome {
	w := newSyncWriter(sink)

	name, args := platform.Resolve(c)
	//#nosec G204 -- the command comes from the user's site configuration
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.Dir
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.Cancel = func() error {
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = killGrace

	r.mu.Lock()
	if r.cmd != nil {
		r.mu.Unlock()
		return fail(w, errBusy)
	}
	if err := cmd.Start(); err != nil {
		r.mu.Unlock()
		r.logger.Debug("failed to spawn command", "command", name, "error", err)
		return fail(w, err)
	}
	r.cmd = cmd
	r.mu.Unlock()

	r.logger.Debug("command started", "command", name, "pid", cmd.Process.Pid)

	err := cmd.Wait()

	r.mu.Lock()
	r.cmd = nil
	r.mu.Unlock()

	if err == nil {
		return Outcome{Success: true, ExitCode: 0}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// terminated by a signal
			code = 1
		}
		r.logger.Debug("command exited", "command", name, "exit_code", code)
		return Outcome{Success: false, ExitCode: code}
	}

	return fail(w, err)
}

// Kill sends a termination signal to the live process, if any. It is safe to
// call at any time and more than once.
func (r *Runner) Kill() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil || r.cmd.Process == nil {
		return
	}
	if err := terminate(r.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.logger.Warn("failed to terminate command", "pid", r.cmd.Process.Pid, "error", err)
	}
}

// Running reports whether a subprocess is live.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil
}

func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	return p.Signal(syscall.SIGTERM)
}

func fail(w io.Writer, err error) Outcome {
	_, _ = fmt.Fprintf(w, "%s%v\n", ErrorPrefix, err)
	return Outcome{Success: false, ExitCode: 1}
}

// syncWriter serializes writes from the stdout and stderr copiers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSyncWriter(w io.Writer) *syncWriter {
	if w == nil {
		w = io.Discard
	}
	return &syncWriter{w: w}
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
