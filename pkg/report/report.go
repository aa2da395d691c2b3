// Package report records what a run did, command by command, and writes the
// record to disk.
package report

import (
	"sync"
	"time"

	"github.com/andrej220/synctity/pkg/runner"
	"github.com/google/uuid"
)

// Entry is the outcome of one command.
type Entry struct {
	RunID       uuid.UUID `json:"runId" yaml:"runId"`
	Command     string    `json:"command" yaml:"command"`
	ExitCode    int       `json:"exitCode" yaml:"exitCode"`
	Error       string    `json:"error,omitempty" yaml:"error,omitempty"`
	Started     time.Time `json:"started" yaml:"started"`
	Finished    time.Time `json:"finished" yaml:"finished"`
	StdoutBytes int       `json:"stdoutBytes" yaml:"stdoutBytes"`
	StderrBytes int       `json:"stderrBytes" yaml:"stderrBytes"`
	Done        bool      `json:"done" yaml:"done"`
}

func (e Entry) Duration() time.Duration {
	if !e.Done {
		return 0
	}
	return e.Finished.Sub(e.Started)
}

// Report lists the commands of one or more runs in launch order.
type Report struct {
	Profile string  `json:"profile,omitempty" yaml:"profile,omitempty"`
	Reverse bool    `json:"reverse" yaml:"reverse"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// Failed reports whether any command finished with a non-zero code or never
// finished at all.
func (r Report) Failed() bool {
	for _, e := range r.Entries {
		if !e.Done || e.ExitCode != 0 {
			return true
		}
	}
	return false
}

// Recorder is a runner.Sink that builds a Report from the event stream.
type Recorder struct {
	mu      sync.Mutex
	profile string
	reverse bool
	entries []Entry
}

func NewRecorder(profile string, reverse bool) *Recorder {
	return &Recorder{profile: profile, reverse: reverse}
}

func (r *Recorder) Emit(ev runner.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Kind == runner.EventStarted {
		r.entries = append(r.entries, Entry{RunID: ev.RunID, Command: ev.Command, Started: ev.Time})
		return
	}
	// commands run one at a time, so anything else belongs to the last one
	if len(r.entries) == 0 {
		return
	}
	e := &r.entries[len(r.entries)-1]
	switch ev.Kind {
	case runner.EventOutput:
		if ev.Channel == runner.Stderr {
			e.StderrBytes += len(ev.Text)
		} else {
			e.StdoutBytes += len(ev.Text)
		}
	case runner.EventFinished:
		e.ExitCode = ev.ExitCode
		e.Error = ev.Error
		e.Finished = ev.Time
		e.Done = true
	}
}

// Report returns a snapshot of what has been recorded so far.
func (r *Recorder) Report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Report{
		Profile: r.profile,
		Reverse: r.reverse,
		Entries: append([]Entry(nil), r.entries...),
	}
}
