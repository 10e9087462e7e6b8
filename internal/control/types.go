package control

import "github.com/schaermu/sitesync/internal/sync"

// EventRequest is the body of a save or open event.
type EventRequest struct {
	Path string `json:"path"`
}

// SelectRequest is the body of a site selection.
type SelectRequest struct {
	Name string `json:"name"`
}

// TriggerResponse answers a sync trigger.
type TriggerResponse struct {
	Started bool     `json:"started"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

// KillResponse answers a kill request.
type KillResponse struct {
	Killed bool `json:"killed"`
}

// StatusResponse describes the daemon state.
type StatusResponse struct {
	Site string   `json:"site"`
	Busy bool     `json:"busy"`
	Last *Outcome `json:"last,omitempty"`
}

// ErrorResponse carries an error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Outcome is the wire form of a finished sync.
type Outcome struct {
	RunID     string   `json:"run_id"`
	State     string   `json:"state"`
	Skipped   bool     `json:"skipped,omitempty"`
	Completed []string `json:"completed,omitempty"`
	Stage     string   `json:"stage,omitempty"`
	ExitCode  int      `json:"exit_code"`
	Error     string   `json:"error,omitempty"`
}

func newOutcome(o sync.Outcome) Outcome {
	out := Outcome{
		RunID:     o.RunID,
		State:     o.State.String(),
		Skipped:   o.Skipped,
		Completed: o.Completed,
		Stage:     o.Stage,
		ExitCode:  o.ExitCode,
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return out
}
