package sync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/runner"
)

// Stage tags, named after the configuration keys they come from.
const (
	StagePreSyncUp    = "pre_sync_up"
	StagePreSyncDown  = "pre_sync_down"
	StageTransfer     = "transfer"
	StagePostSyncUp   = "post_sync_up"
	StagePostSyncDown = "post_sync_down"
	StageAfterSync    = "after_sync"
)

const timestampLayout = "2006-01-02 15:04:05"

// Executor runs one external command at a time.
type Executor interface {
	Run(ctx context.Context, platform runner.Platform, c runner.Command, sink io.Writer) runner.Outcome
	Kill()
}

// Stage is one step of a sync. A stage without a command is absent and
// counts as an automatic success.
type Stage struct {
	Tag     string
	Command runner.Command
	// Header is written to the sink before the command line; empty means
	// the stage tag is used.
	Header string
	// Before runs right before the stage is spawned.
	Before func()
}

// Present reports whether the stage has a command to run.
func (s Stage) Present() bool {
	return s.Command.Name != ""
}

// hookStage builds a stage from an optional hook command.
func hookStage(tag string, cmd config.Command, site *config.Site) Stage {
	if cmd.IsZero() {
		return Stage{Tag: tag}
	}
	return Stage{
		Tag: tag,
		Command: runner.Command{
			Name:  cmd.Name(),
			Args:  cmd.Args(),
			Shell: site.ExecutableShell,
			Dir:   site.Cwd,
		},
	}
}

// SequenceResult is the result of running a list of stages.
type SequenceResult struct {
	Completed []string
	Failed    string
	ExitCode  int
	Killed    bool
}

// OK reports whether every present stage succeeded.
func (r SequenceResult) OK() bool {
	return r.Failed == "" && !r.Killed
}

// Sequencer runs stages in order and stops at the first failure.
type Sequencer struct {
	exec     Executor
	sink     io.Writer
	platform runner.Platform
	now      func() time.Time
	// killed is consulted before each stage and after each stage exits.
	killed func() bool
}

// Run executes the present stages of stages in order.
func (q *Sequencer) Run(ctx context.Context, stages ...Stage) SequenceResult {
	var res SequenceResult

	for _, st := range stages {
		if !st.Present() {
			continue
		}

		if q.killed() {
			res.Killed = true
			return res
		}

		if st.Before != nil {
			st.Before()
		}

		header := st.Header
		if header == "" {
			header = st.Tag
		}
		_, _ = fmt.Fprintf(q.sink, "%s %s\n%s\n", q.now().Format(timestampLayout), header, q.platform.CommandLine(st.Command))

		out := q.exec.Run(ctx, q.platform, st.Command, q.sink)

		if q.killed() {
			res.Killed = true
			return res
		}

		if !out.Success {
			res.Failed = st.Tag
			res.ExitCode = out.ExitCode
			return res
		}

		res.Completed = append(res.Completed, st.Tag)
	}

	return res
}
