package runner

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recorder is a Sink that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// started lists started commands in order.
func (r *recorder) started() []string {
	var out []string
	for _, ev := range r.all() {
		if ev.Kind == EventStarted {
			out = append(out, ev.Command)
		}
	}
	return out
}

// finished maps command to exit code, in order of completion.
func (r *recorder) finished() []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Kind == EventFinished {
			out = append(out, ev)
		}
	}
	return out
}

// output concatenates the text a command wrote on ch.
func (r *recorder) output(command string, ch Channel) string {
	var b strings.Builder
	for _, ev := range r.all() {
		if ev.Kind == EventOutput && ev.Command == command && ev.Channel == ch {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

// fakeProc is a scripted process.
type fakeProc struct {
	stdout io.Reader
	stderr io.Reader
	code   int

	// release, when not nil, holds Wait until it is closed or the process
	// is killed.
	release chan struct{}
	killed  chan struct{}
	once    sync.Once
	onExit  func()
}

func newFakeProc(stdout, stderr string, code int) *fakeProc {
	return &fakeProc{
		stdout: strings.NewReader(stdout),
		stderr: strings.NewReader(stderr),
		code:   code,
		killed: make(chan struct{}),
	}
}

func (p *fakeProc) Stdout() io.Reader { return p.stdout }
func (p *fakeProc) Stderr() io.Reader { return p.stderr }

func (p *fakeProc) Wait() (int, error) {
	defer func() {
		if p.onExit != nil {
			p.onExit()
		}
	}()
	if p.release == nil {
		return p.code, nil
	}
	select {
	case <-p.release:
		return p.code, nil
	case <-p.killed:
		return ExitUnknown, nil
	}
}

func (p *fakeProc) Kill() error {
	p.once.Do(func() { close(p.killed) })
	return nil
}

// fakeLauncher hands out scripted processes and tracks how many are alive.
type fakeLauncher struct {
	mu        sync.Mutex
	script    map[string]func() (*fakeProc, error)
	launched  []string
	alive     int
	maxAlive  int
	lastProcs map[string]*fakeProc
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		script:    make(map[string]func() (*fakeProc, error)),
		lastProcs: make(map[string]*fakeProc),
	}
}

func (l *fakeLauncher) on(command string, fn func() (*fakeProc, error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.script[command] = fn
}

func (l *fakeLauncher) Launch(_ context.Context, command string) (Process, error) {
	l.mu.Lock()
	fn, ok := l.script[command]
	l.launched = append(l.launched, command)
	l.mu.Unlock()

	var proc *fakeProc
	if ok {
		var err error
		if proc, err = fn(); err != nil {
			return nil, err
		}
	} else {
		proc = newFakeProc("", "", 0)
	}

	l.mu.Lock()
	l.alive++
	if l.alive > l.maxAlive {
		l.maxAlive = l.alive
	}
	l.lastProcs[command] = proc
	l.mu.Unlock()

	proc.onExit = func() {
		l.mu.Lock()
		l.alive--
		l.mu.Unlock()
	}
	return proc, nil
}

func (l *fakeLauncher) proc(command string) *fakeProc {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastProcs[command]
}

func (l *fakeLauncher) max() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxAlive
}

var errNoShell = errors.New("no such file or directory")

func waitIdle(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.WaitIdle(ctx))
}

func newTestRunner(t *testing.T, l Launcher) (*Runner, *recorder) {
	t.Helper()
	rec := &recorder{}
	r := New(l, rec)
	t.Cleanup(func() { _ = r.Close() })
	return r, rec
}
