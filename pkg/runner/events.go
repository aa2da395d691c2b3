package runner

import (
	"time"

	"github.com/google/uuid"
)

// EventKind tells what happened to a command.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventOutput   EventKind = "output"
	EventFinished EventKind = "finished"
)

// Channel names the output stream of a process.
type Channel string

const (
	Stdout Channel = "stdout"
	Stderr Channel = "stderr"
)

// Event is delivered to a Sink for every state change of a command.
// Channel and Text are set for output events, ExitCode and Error for
// finished events.
type Event struct {
	Kind     EventKind `json:"kind"`
	RunID    uuid.UUID `json:"runId"`
	Command  string    `json:"command"`
	Channel  Channel   `json:"channel,omitempty"`
	Text     string    `json:"text,omitempty"`
	ExitCode int       `json:"exitCode"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Failed reports a finished event with a non-zero exit code.
func (e Event) Failed() bool {
	return e.Kind == EventFinished && e.ExitCode != 0
}

// Sink consumes runner events. Emit is always called from the runner's
// dispatch goroutine, one event at a time, in delivery order. A Sink may
// call Enqueue, Cancel, Clear or Abort, but not Close or WaitIdle, which
// wait on the dispatch goroutine. Emit should return quickly: process output
// is not read while it runs.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

type discardSink struct{}

func (discardSink) Emit(Event) {}

// Discard drops every event.
var Discard Sink = discardSink{}
