// Package sink holds the runner.Sink implementations: a terminal console, a
// structured log, a Kafka event stream and a fan-out over several of them.
package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andrej220/synctity/pkg/runner"
)

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"

	failureNote = "There may have been an error with the transfer."
)

// Console prints a run the way a terminal user reads it: each command line,
// the raw process output, then the exit code. Stderr is shown in red when
// Color is set.
type Console struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	inLine bool
}

func NewConsole(out io.Writer, color bool) *Console {
	return &Console{out: out, color: color}
}

func (c *Console) Emit(ev runner.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case runner.EventStarted:
		c.endLine()
		fmt.Fprintf(c.out, "%s\n", ev.Command)
	case runner.EventOutput:
		if ev.Text == "" {
			return
		}
		if ev.Channel == runner.Stderr && c.color {
			fmt.Fprint(c.out, ansiRed, ev.Text, ansiReset)
		} else {
			io.WriteString(c.out, ev.Text)
		}
		c.inLine = !strings.HasSuffix(ev.Text, "\n")
	case runner.EventFinished:
		c.endLine()
		fmt.Fprintf(c.out, "Finished (%d)\n", ev.ExitCode)
		if ev.Failed() {
			fmt.Fprintln(c.out, failureNote)
		}
	}
}

func (c *Console) endLine() {
	if c.inLine {
		io.WriteString(c.out, "\n")
		c.inLine = false
	}
}
