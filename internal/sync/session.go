// Package sync runs one site synchronization at a time: the pre-hook, the
// transfer and the post-hooks, with a kill switch and a busy guard shared by
// every trigger.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/runner"
)

// Session owns the single sync slot of the process.
type Session struct {
	exec     Executor
	sink     io.Writer
	observer Observer
	logger   *slog.Logger
	now      func() time.Time

	mu        gosync.Mutex
	running   bool
	killed    bool
	finishing bool // outcome recorded, terminal event pending
	cancel    context.CancelFunc
	last      Outcome
}

// NewSession creates a Session. observer may be nil.
func NewSession(exec Executor, sink io.Writer, observer Observer, logger *slog.Logger) *Session {
	if sink == nil {
		sink = io.Discard
	}
	return &Session{
		exec:     exec,
		sink:     sink,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// Start takes the sync slot and runs req against site in the background.
// It returns ErrBusy without side effects when a sync is already running.
// The returned channel delivers exactly one Outcome.
//
// site and cfg are the snapshot the whole run uses; later configuration or
// selection changes do not affect it.
func (s *Session) Start(ctx context.Context, site *config.Site, cfg *config.Config, req Request) (<-chan Outcome, error) {
	if site == nil {
		return nil, ErrNoSiteSelected
	}
	if req.Direction != Up && req.Direction != Down {
		return nil, fmt.Errorf("invalid sync direction %q", req.Direction)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.killed = false
	s.finishing = false
	s.cancel = cancel
	s.mu.Unlock()

	runID := uuid.NewString()
	s.emit(Event{Kind: EventStarted, RunID: runID, Site: site, Request: req})

	done := make(chan Outcome, 1)
	go func() {
		defer close(done)
		defer cancel()

		out := s.run(runCtx, runID, site, cfg, req)

		s.mu.Lock()
		s.finishing = true
		if s.killed && out.State != StateKilled {
			out = killedOutcome(out)
		}
		s.mu.Unlock()

		s.report(out, site, req)

		s.mu.Lock()
		s.running = false
		s.finishing = false
		s.cancel = nil
		s.last = out
		s.mu.Unlock()

		done <- out
	}()

	return done, nil
}

// Run is Start followed by waiting for the outcome.
func (s *Session) Run(ctx context.Context, site *config.Site, cfg *config.Config, req Request) (Outcome, error) {
	done, err := s.Start(ctx, site, cfg, req)
	if err != nil {
		return Outcome{}, err
	}
	return <-done, nil
}

// Kill terminates the running sync. The session then ends as killed whatever
// the exit code of the terminated process. It reports whether a sync was
// running; a sync whose outcome is already recorded can no longer be killed.
func (s *Session) Kill() bool {
	s.mu.Lock()
	if !s.running || s.finishing {
		s.mu.Unlock()
		return false
	}
	s.killed = true
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("killing current sync")
	s.exec.Kill()
	if cancel != nil {
		cancel()
	}
	return true
}

// Busy reports whether a sync is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// State returns StateRunning while a sync runs and StateIdle otherwise.
func (s *Session) State() State {
	if s.Busy() {
		return StateRunning
	}
	return StateIdle
}

// Last returns the outcome of the most recent finished session.
func (s *Session) Last() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Session) killRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killed
}

func (s *Session) run(ctx context.Context, runID string, site *config.Site, cfg *config.Config, req Request) Outcome {
	out := Outcome{RunID: runID}
	logger := s.logger.With("run_id", runID, "site", config.DisplayName(site), "direction", req.Direction)

	if (req.Direction == Down && site.IsUpOnly()) || (req.Direction == Up && site.IsDownOnly()) {
		logger.Info("direction not allowed by site, skipping")
		out.State = StateSucceeded
		out.Skipped = true
		return out
	}

	if site.LocalPath == "" || site.RemotePath == "" {
		out.State = StateFailed
		out.ExitCode = 1
		out.Err = &ConfigurationError{Reason: fmt.Sprintf("site %s is missing local_path or remote_path", config.DisplayName(site))}
		return out
	}

	platform := runner.HostPlatform(cfg.UseWSL)
	seq := &Sequencer{
		exec:     s.exec,
		sink:     s.sink,
		platform: platform,
		now:      s.now,
		killed:   s.killRequested,
	}

	transfer := transferStage(site, cfg, req, platform)

	if req.SingleFile() {
		logger.Info("syncing single file", "file", req.File, "dry_run", req.DryRun)
		res := seq.Run(ctx, transfer)
		out.Completed = res.Completed
		return s.finish(out, res, func(r SequenceResult) error {
			return &TransferFailure{ExitCode: r.ExitCode}
		})
	}

	logger.Info("starting sync", "dry_run", req.DryRun, "trigger", req.Trigger)

	var pre Stage
	var post []Stage
	if req.Direction == Up {
		pre = hookStage(StagePreSyncUp, site.PreSyncUp, site)
		post = []Stage{hookStage(StagePostSyncUp, site.PostSyncUp, site)}
		if !site.AfterSync.IsZero() {
			after := hookStage(StageAfterSync, site.AfterSync, site)
			after.Before = func() {
				logger.Warn("after_sync is deprecated, use post_sync_up instead")
				s.emit(Event{
					Kind:    EventDeprecated,
					RunID:   runID,
					Site:    site,
					Request: req,
					Stage:   StageAfterSync,
					Message: "after_sync is deprecated, use post_sync_up instead",
				})
			}
			post = append(post, after)
		}
	} else {
		pre = hookStage(StagePreSyncDown, site.PreSyncDown, site)
		post = []Stage{hookStage(StagePostSyncDown, site.PostSyncDown, site)}
	}

	res := seq.Run(ctx, pre)
	out.Completed = append(out.Completed, res.Completed...)
	if !res.OK() {
		return s.finish(out, res, hookFailure)
	}

	res = seq.Run(ctx, transfer)
	out.Completed = append(out.Completed, res.Completed...)
	if !res.OK() {
		return s.finish(out, res, func(r SequenceResult) error {
			return &TransferFailure{ExitCode: r.ExitCode}
		})
	}

	res = seq.Run(ctx, post...)
	out.Completed = append(out.Completed, res.Completed...)
	return s.finish(out, res, hookFailure)
}

func hookFailure(r SequenceResult) error {
	return &HookFailure{Stage: r.Failed, ExitCode: r.ExitCode}
}

// finish sets the terminal state from the last sequence result. A kill
// request always wins over the reported exit status.
func (s *Session) finish(out Outcome, res SequenceResult, failure func(SequenceResult) error) Outcome {
	switch {
	case res.Killed || s.killRequested():
		return killedOutcome(out)
	case res.Failed != "":
		out.State = StateFailed
		out.Stage = res.Failed
		out.ExitCode = res.ExitCode
		out.Err = failure(res)
	default:
		out.State = StateSucceeded
	}
	return out
}

func killedOutcome(out Outcome) Outcome {
	out.State = StateKilled
	out.Skipped = false
	out.Stage = ""
	out.ExitCode = 0
	out.Err = ErrKilled
	return out
}

// report logs the outcome and emits the terminal event.
func (s *Session) report(out Outcome, site *config.Site, req Request) {
	logger := s.logger.With("run_id", out.RunID, "site", config.DisplayName(site), "direction", req.Direction)
	ev := Event{
		RunID:    out.RunID,
		Site:     site,
		Request:  req,
		Stage:    out.Stage,
		ExitCode: out.ExitCode,
		Err:      out.Err,
	}

	switch {
	case out.State == StateKilled:
		logger.Warn("sync killed")
		ev.Kind = EventKilled
	case out.Skipped:
		ev.Kind = EventSkipped
	case out.State == StateSucceeded:
		logger.Info("sync completed successfully", "stages", out.Completed)
		ev.Kind = EventSucceeded
	default:
		logger.Error("sync failed", "stage", out.Stage, "exit_code", out.ExitCode, "error", out.Err)
		ev.Kind = EventFailed
	}

	s.emit(ev)
}

func (s *Session) emit(e Event) {
	if s.observer == nil {
		return
	}
	e.Time = s.now()
	s.observer.OnEvent(e)
}
