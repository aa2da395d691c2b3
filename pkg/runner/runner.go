// Package runner executes queued shell commands strictly one at a time.
//
// Commands are enqueued in runs. The runner launches the head of the queue
// when no process is active, streams the process output to a Sink as it is
// read, reports the exit code, then launches the next command whether or
// not the previous one succeeded.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/andrej220/synctity/pkg/lg"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by WaitIdle once the runner is closed.
var ErrClosed = errors.New("runner closed")

const (
	readBufferSize = 32 * 1024

	// DefaultDrainTimeout bounds how long output is still read after the
	// process exited. A detached child can hold the pipes open forever.
	DefaultDrainTimeout = 500 * time.Millisecond
)

// State of the runner.
type State string

const (
	Idle    State = "idle"
	Running State = "running"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for dispatch records.
func WithLogger(l lg.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithDrainTimeout sets how long the output of an exited process is still
// read before its pipes are closed.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Runner) { r.drain = d }
}

// active is the command currently handed to the launcher. proc is nil while
// the launch is in progress.
type active struct {
	item      Item
	proc      Process
	cancelled bool
}

// procEvent is how watcher goroutines report back to the dispatch loop.
type procEvent struct {
	item     Item
	finished bool
	channel  Channel
	text     string
	code     int
	err      error
}

// Runner is a sequential process runner. The zero value is not usable; build
// one with New and release it with Close.
type Runner struct {
	launcher Launcher
	sink     Sink
	logger   lg.Logger
	now      func() time.Time
	drain    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   Queue
	current *active
	busy    bool
	idle    chan struct{}
	closed  bool

	wake   chan struct{}
	events chan procEvent
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// New builds a Runner and starts its dispatch loop.
func New(launcher Launcher, sink Sink, opts ...Option) *Runner {
	if sink == nil {
		sink = Discard
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		launcher: launcher,
		sink:     sink,
		logger:   lg.Discard,
		now:      time.Now,
		drain:    DefaultDrainTimeout,
		ctx:      ctx,
		cancel:   cancel,
		idle:     make(chan struct{}),
		wake:     make(chan struct{}, 1),
		events:   make(chan procEvent),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	close(r.idle)
	for _, opt := range opts {
		opt(r)
	}
	go r.loop()
	return r
}

// Enqueue adds one run to the queue: prepend (if not empty), every command
// in order, then appendCmd (if not empty). Draining starts right away when
// no process is active; otherwise the commands wait behind the ones already
// queued. It returns the run ID stamped on the run's events, or uuid.Nil
// when there is nothing to run.
func (r *Runner) Enqueue(commands []string, prepend, appendCmd string) uuid.UUID {
	runID := uuid.New()
	items := compose(runID, commands, prepend, appendCmd)
	if len(items) == 0 {
		return uuid.Nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("Run rejected, runner is closed", lg.String("run", runID.String()))
		return uuid.Nil
	}
	r.queue.Push(items...)
	r.setBusyLocked()
	r.mu.Unlock()

	r.logger.Info("Run queued", lg.String("run", runID.String()), lg.Int("commands", len(items)))
	r.notify()
	return runID
}

// Cancel kills the active process, if any. Its finish is reported like any
// other, with a non-zero code, and the queue keeps draining.
func (r *Runner) Cancel() {
	r.mu.Lock()
	cur := r.current
	var proc Process
	if cur != nil {
		cur.cancelled = true
		proc = cur.proc
	}
	r.mu.Unlock()

	if cur == nil {
		return
	}
	r.logger.Info("Cancelling command", lg.String("command", cur.item.Command))
	if proc != nil {
		if err := proc.Kill(); err != nil {
			r.logger.Error("Failed to kill process", lg.String("command", cur.item.Command), lg.Err(err))
		}
	}
}

// Clear drops every queued command that has not been launched yet and
// returns how many were dropped. The active process is left alone.
func (r *Runner) Clear() int {
	r.mu.Lock()
	n := r.queue.Clear()
	if r.current == nil {
		r.setIdleLocked()
	}
	r.mu.Unlock()
	if n > 0 {
		r.logger.Info("Queue cleared", lg.Int("dropped", n))
	}
	return n
}

// Abort stops the whole run: it clears the queue, then cancels the active
// process.
func (r *Runner) Abort() int {
	n := r.Clear()
	r.Cancel()
	return n
}

// State is Running from the first Enqueue until the queue is drained, also
// in the gap between a finish and the launch of the next command.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy || r.current != nil {
		return Running
	}
	return Idle
}

// Active returns the command being executed.
func (r *Runner) Active() (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Item{}, false
	}
	return r.current.item, true
}

// Pending returns the commands waiting behind the active one.
func (r *Runner) Pending() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Items()
}

// WaitIdle blocks until the queue is drained and no process is active.
func (r *Runner) WaitIdle(ctx context.Context) error {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops the queue, kills the active process and stops the dispatch
// loop. Events of the killed process are not delivered.
func (r *Runner) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.queue.Clear()
		cur := r.current
		var proc Process
		if cur != nil {
			cur.cancelled = true
			proc = cur.proc
		}
		r.mu.Unlock()

		close(r.quit)
		r.cancel()
		if proc != nil {
			_ = proc.Kill()
		}
		<-r.done
	})
	return nil
}

func (r *Runner) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) setBusyLocked() {
	if !r.busy {
		r.busy = true
		r.idle = make(chan struct{})
	}
}

func (r *Runner) setIdleLocked() {
	if r.busy {
		r.busy = false
		close(r.idle)
	}
}

func (r *Runner) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.quit:
			return
		case <-r.wake:
			r.dispatch()
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

func (r *Runner) handle(ev procEvent) {
	if !ev.finished {
		r.emit(Event{Kind: EventOutput, RunID: ev.item.RunID, Command: ev.item.Command, Channel: ev.channel, Text: ev.text})
		return
	}
	r.finish(ev.item, ev.code, ev.err)
	r.dispatch()
}

// dispatch launches queued commands until one is running or the queue is
// empty.
func (r *Runner) dispatch() {
	for {
		r.mu.Lock()
		if r.current != nil || r.closed {
			r.mu.Unlock()
			return
		}
		item, ok := r.queue.Pop()
		if !ok {
			r.setIdleLocked()
			r.mu.Unlock()
			return
		}
		cur := &active{item: item}
		r.current = cur
		r.mu.Unlock()

		r.emit(Event{Kind: EventStarted, RunID: item.RunID, Command: item.Command})
		r.logger.Debug("Launching command", lg.String("run", item.RunID.String()), lg.String("command", item.Command))

		proc, err := r.launcher.Launch(r.ctx, item.Command)
		if err != nil {
			r.logger.Error("Failed to launch command", lg.String("command", item.Command), lg.Err(err))
			r.finish(item, ExitLaunchFailed, fmt.Errorf("launch: %w", err))
			continue
		}

		r.mu.Lock()
		cur.proc = proc
		cancelled := cur.cancelled || r.closed
		r.mu.Unlock()
		if cancelled {
			_ = proc.Kill()
		}

		go r.watch(item, proc)
		return
	}
}

func (r *Runner) finish(item Item, code int, err error) {
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()

	ev := Event{Kind: EventFinished, RunID: item.RunID, Command: item.Command, ExitCode: code}
	if err != nil {
		ev.Error = err.Error()
	}
	if code != 0 {
		r.logger.Warn("Command finished with error", lg.String("command", item.Command), lg.Int("exitCode", code), lg.String("error", ev.Error))
	} else {
		r.logger.Debug("Command finished", lg.String("command", item.Command))
	}
	r.emit(ev)
}

// watch reads both output pipes while it waits for the process to exit. Once
// it exited, the output left in the pipes is read for at most the drain
// timeout before the readers are closed, then the exit is reported.
func (r *Runner) watch(item Item, proc Process) {
	stdout, stderr := proc.Stdout(), proc.Stderr()
	var g errgroup.Group
	g.Go(func() error { return r.pump(item, Stdout, stdout) })
	g.Go(func() error { return r.pump(item, Stderr, stderr) })
	drained := make(chan error, 1)
	go func() { drained <- g.Wait() }()

	code, err := proc.Wait()

	var readErr error
	timer := time.NewTimer(r.drain)
	select {
	case readErr = <-drained:
	case <-timer.C:
		r.logger.Debug("Output still open after exit", lg.String("command", item.Command), lg.Duration("drain", r.drain))
		closeReader(stdout)
		closeReader(stderr)
		readErr = <-drained
	}
	timer.Stop()
	closeReader(stdout)
	closeReader(stderr)

	if err == nil && readErr != nil && !errors.Is(readErr, errQuit) {
		err = readErr
	}
	select {
	case r.events <- procEvent{item: item, finished: true, code: code, err: err}:
	case <-r.quit:
	}
}

func closeReader(src io.Reader) {
	if c, ok := src.(io.Closer); ok {
		_ = c.Close()
	}
}

var errQuit = errors.New("runner quit")

// pump forwards src to the loop chunk by chunk. A multi-byte character split
// across two reads is held back until it is complete.
func (r *Runner) pump(item Item, ch Channel, src io.Reader) error {
	if src == nil {
		return nil
	}
	buf := make([]byte, readBufferSize)
	var partial []byte
	for {
		n, err := src.Read(buf)
		chunk := buf[:n]
		if len(partial) > 0 {
			chunk = append(partial, chunk...)
			partial = nil
		}
		if err == nil {
			var rest []byte
			chunk, rest = splitRune(chunk)
			partial = bytes.Clone(rest)
		}
		if len(chunk) > 0 {
			select {
			case r.events <- procEvent{item: item, channel: ch, text: string(chunk)}:
			case <-r.quit:
				// keep reading so the process is not blocked on a full pipe
				_, _ = io.Copy(io.Discard, src)
				return errQuit
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("read %s: %w", ch, err)
		}
	}
}

// splitRune cuts b before a trailing incomplete UTF-8 sequence. Invalid
// bytes are not held back.
func splitRune(b []byte) (complete, rest []byte) {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if !utf8.RuneStart(b[start]) {
			continue
		}
		if !utf8.FullRune(b[start:]) {
			return b[:start], b[start:]
		}
		break
	}
	return b, nil
}

func (r *Runner) emit(ev Event) {
	ev.Time = r.now()
	r.sink.Emit(ev)
}
