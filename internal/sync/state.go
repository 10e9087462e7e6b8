package sync

import (
	"time"

	"github.com/schaermu/sitesync/internal/config"
)

// Direction is the transfer direction of a sync.
type Direction string

const (
	Up   Direction = "up"   // local -> remote
	Down Direction = "down" // remote -> local
)

// Trigger identifies what asked for a sync.
type Trigger string

const (
	TriggerCommand Trigger = "command"
	TriggerSave    Trigger = "save"
	TriggerOpen    Trigger = "open"
	TriggerWatch   Trigger = "watch"
)

// Request is one sync request. It is created per trigger and never persisted.
type Request struct {
	Direction Direction
	DryRun    bool
	// File is the workspace-relative, slash-separated path of a single
	// document. When set, only that file is transferred and hooks are skipped.
	File    string
	Trigger Trigger
}

// SingleFile reports whether the request transfers a single document.
func (r Request) SingleFile() bool {
	return r.File != ""
}

// Verb describes the transfer in output headers.
func (r Request) Verb() string {
	if r.DryRun {
		return "comparing"
	}
	return "syncing"
}

// State is a session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one session.
type Outcome struct {
	RunID string
	State State
	// Skipped is set when the site's direction policy turned the request
	// into a no-op; State is then StateSucceeded.
	Skipped bool
	// Completed lists the stage tags that finished successfully, in order.
	Completed []string
	// Stage is the tag of the failing stage, if any.
	Stage    string
	ExitCode int
	Err      error
}

// EventKind classifies session events.
type EventKind string

const (
	EventStarted    EventKind = "started"
	EventSkipped    EventKind = "skipped"
	EventSucceeded  EventKind = "succeeded"
	EventFailed     EventKind = "failed"
	EventKilled     EventKind = "killed"
	EventDeprecated EventKind = "deprecated"
)

// Terminal reports whether the event ends a session.
func (k EventKind) Terminal() bool {
	switch k {
	case EventSkipped, EventSucceeded, EventFailed, EventKilled:
		return true
	}
	return false
}

// Event is emitted on every session state transition.
type Event struct {
	Kind     EventKind
	RunID    string
	Site     *config.Site
	Request  Request
	Stage    string
	ExitCode int
	Err      error
	Message  string
	Time     time.Time
}

// Observer receives session events. Events of one session are delivered in
// order from the goroutine running it.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}
