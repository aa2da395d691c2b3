package runner

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunsCommandsInOrderOneAtATime(t *testing.T) {
	l := newFakeLauncher()
	r, rec := newTestRunner(t, l)

	cmds := []string{"one", "two", "three", "four"}
	runID := r.Enqueue(cmds, "", "")
	require.NotEqual(t, uuid.Nil, runID)
	waitIdle(t, r)

	assert.Equal(t, cmds, rec.started())
	assert.Equal(t, 1, l.max())
	for _, ev := range rec.all() {
		assert.Equal(t, runID, ev.RunID)
		assert.False(t, ev.Time.IsZero())
	}
	assert.Equal(t, Idle, r.State())
}

func TestEventSequencePerCommand(t *testing.T) {
	l := newFakeLauncher()
	l.on("a", func() (*fakeProc, error) { return newFakeProc("out\n", "", 0), nil })
	l.on("b", func() (*fakeProc, error) { return newFakeProc("", "", 3), nil })
	r, rec := newTestRunner(t, l)

	r.Enqueue([]string{"a", "b"}, "", "")
	waitIdle(t, r)

	events := rec.all()
	require.Len(t, events, 5)
	assert.Equal(t, EventStarted, events[0].Kind)
	assert.Equal(t, "a", events[0].Command)
	assert.Equal(t, EventOutput, events[1].Kind)
	assert.Equal(t, Stdout, events[1].Channel)
	assert.Equal(t, "out\n", events[1].Text)
	assert.Equal(t, EventFinished, events[2].Kind)
	assert.Equal(t, 0, events[2].ExitCode)
	assert.False(t, events[2].Failed())
	assert.Equal(t, EventStarted, events[3].Kind)
	assert.Equal(t, "b", events[3].Command)
	assert.Equal(t, EventFinished, events[4].Kind)
	assert.Equal(t, 3, events[4].ExitCode)
	assert.True(t, events[4].Failed())
}

func TestPrependAndAppend(t *testing.T) {
	tests := []struct {
		name      string
		commands  []string
		prepend   string
		appendCmd string
		want      []string
	}{
		{name: "both", commands: []string{"a", "b"}, prepend: "pre", appendCmd: "post", want: []string{"pre", "a", "b", "post"}},
		{name: "prepend only", commands: []string{"a"}, prepend: "pre", want: []string{"pre", "a"}},
		{name: "append only", commands: []string{"a"}, appendCmd: "post", want: []string{"a", "post"}},
		{name: "neither", commands: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "hooks without commands", prepend: "pre", appendCmd: "post", want: []string{"pre", "post"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rec := newTestRunner(t, newFakeLauncher())
			r.Enqueue(tt.commands, tt.prepend, tt.appendCmd)
			waitIdle(t, r)
			assert.Equal(t, tt.want, rec.started())
		})
	}
}

func TestEnqueueNothing(t *testing.T) {
	l := newFakeLauncher()
	r, rec := newTestRunner(t, l)

	assert.Equal(t, uuid.Nil, r.Enqueue(nil, "", ""))
	assert.Equal(t, uuid.Nil, r.Enqueue([]string{}, "", ""))
	waitIdle(t, r)

	assert.Empty(t, rec.all())
	assert.Empty(t, l.launched)
	assert.Equal(t, Idle, r.State())
}

func TestFailureDoesNotHaltQueue(t *testing.T) {
	l := newFakeLauncher()
	l.on("A", func() (*fakeProc, error) { return newFakeProc("", "boom\n", 1), nil })
	l.on("B", func() (*fakeProc, error) { return newFakeProc("ok\n", "", 0), nil })
	r, rec := newTestRunner(t, l)

	r.Enqueue([]string{"A", "B"}, "", "")
	waitIdle(t, r)

	assert.Equal(t, []string{"A", "B"}, rec.started())
	fin := rec.finished()
	require.Len(t, fin, 2)
	assert.Equal(t, 1, fin[0].ExitCode)
	assert.Equal(t, 0, fin[1].ExitCode)
	assert.Equal(t, "boom\n", rec.output("A", Stderr))
}

func TestIntraChannelOrder(t *testing.T) {
	pr, pw := io.Pipe()
	exited := make(chan struct{})
	l := newFakeLauncher()
	l.on("chunks", func() (*fakeProc, error) {
		p := newFakeProc("", "", 0)
		p.stdout = pr
		p.release = exited
		return p, nil
	})
	r, rec := newTestRunner(t, l)

	r.Enqueue([]string{"chunks"}, "", "")
	go func() {
		_, _ = pw.Write([]byte("a"))
		_, _ = pw.Write([]byte("b"))
		_ = pw.Close()
		close(exited)
	}()
	waitIdle(t, r)

	var texts []string
	for _, ev := range rec.all() {
		if ev.Kind == EventOutput {
			texts = append(texts, ev.Text)
		}
	}
	assert.Equal(t, []string{"a", "b"}, texts)
}

func TestMultibyteSplitAcrossReads(t *testing.T) {
	pr, pw := io.Pipe()
	exited := make(chan struct{})
	l := newFakeLauncher()
	l.on("utf8", func() (*fakeProc, error) {
		p := newFakeProc("", "", 0)
		p.stdout = pr
		p.release = exited
		return p, nil
	})
	r, rec := newTestRunner(t, l)

	r.Enqueue([]string{"utf8"}, "", "")
	go func() {
		_, _ = pw.Write([]byte("caf\xc3"))
		_, _ = pw.Write([]byte("\xa9 \xe2\x82"))
		_, _ = pw.Write([]byte("\xac"))
		_ = pw.Close()
		close(exited)
	}()
	waitIdle(t, r)

	var texts []string
	for _, ev := range rec.all() {
		if ev.Kind == EventOutput {
			assert.True(t, utf8.ValidString(ev.Text), "%q", ev.Text)
			texts = append(texts, ev.Text)
		}
	}
	assert.Equal(t, []string{"caf", "\u00e9 ", "\u20ac"}, texts)
}

func TestSplitRune(t *testing.T) {
	tests := []struct {
		in, complete, rest string
	}{
		{"", "", ""},
		{"abc", "abc", ""},
		{"caf\xc3", "caf", "\xc3"},
		{"caf\xc3\xa9", "caf\xc3\xa9", ""},
		{"x\xe2\x82", "x", "\xe2\x82"},
		{"x\xf0\x9f\x98", "x", "\xf0\x9f\x98"},
		{"x\xff", "x\xff", ""},
		{"\x80\x80\x80", "\x80\x80\x80", ""},
	}
	for _, tt := range tests {
		complete, rest := splitRune([]byte(tt.in))
		assert.Equal(t, tt.complete, string(complete), "%q", tt.in)
		assert.Equal(t, tt.rest, string(rest), "%q", tt.in)
	}
}

func TestFinishNotHeldByOpenOutput(t *testing.T) {
	pr, pw := io.Pipe()
	l := newFakeLauncher()
	l.on("daemon", func() (*fakeProc, error) {
		p := newFakeProc("", "", 0)
		p.stdout = pr
		return p, nil
	})
	rec := &recorder{}
	r := New(l, rec, WithDrainTimeout(20*time.Millisecond))
	defer r.Close()

	go func() { _, _ = pw.Write([]byte("up\n")) }()
	r.Enqueue([]string{"daemon", "next"}, "", "")
	waitIdle(t, r)

	assert.Equal(t, []string{"daemon", "next"}, rec.started())
	fin := rec.finished()
	require.Len(t, fin, 2)
	assert.Equal(t, 0, fin[0].ExitCode)
	assert.Empty(t, fin[0].Error)
	_, err := pw.Write([]byte("late"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestStateRunningBetweenCommands(t *testing.T) {
	l := newFakeLauncher()
	var r *Runner
	var mu sync.Mutex
	var seen []State
	sink := SinkFunc(func(ev Event) {
		if ev.Kind == EventFinished && ev.Command == "first" {
			s := r.State()
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		}
	})
	r = New(l, sink)
	defer r.Close()

	r.Enqueue([]string{"first", "second"}, "", "")
	waitIdle(t, r)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Running}, seen)
	assert.Equal(t, Idle, r.State())
}

func TestEnqueueWhileRunningAppends(t *testing.T) {
	release := make(chan struct{})
	l := newFakeLauncher()
	l.on("slow", func() (*fakeProc, error) {
		p := newFakeProc("", "", 0)
		p.release = release
		return p, nil
	})
	r, rec := newTestRunner(t, l)

	first := r.Enqueue([]string{"slow", "x"}, "", "")
	require.Eventually(t, func() bool {
		_, ok := r.Active()
		return ok
	}, time.Second, time.Millisecond)

	second := r.Enqueue([]string{"y"}, "pre2", "")
	assert.NotEqual(t, first, second)

	pending := r.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, Item{RunID: first, Command: "x"}, pending[0])
	assert.Equal(t, Item{RunID: second, Command: "pre2"}, pending[1])
	assert.Equal(t, Item{RunID: second, Command: "y"}, pending[2])

	item, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, "slow", item.Command)

	close(release)
	waitIdle(t, r)

	assert.Equal(t, []string{"slow", "x", "pre2", "y"}, rec.started())
	assert.Equal(t, 1, l.max())
}

func TestCancelKillsActiveAndContinues(t *testing.T) {
	l := newFakeLauncher()
	l.on("hang", func() (*fakeProc, error) {
		p := newFakeProc("", "", 0)
		p.release = make(chan struct{})
		return p, nil
	})
	r, rec := newTestRunner(t, l)

	r.Enqueue([]string{"hang", "next"}, "", "")
	require.Eventually(t, func() bool { return l.proc("hang") != nil }, time.Second, time.Millisecond)

	r.Cancel()
	waitIdle(t, r)

	assert.Equal(t, []string{"hang", "next"}, rec.started())
	fin := rec.finished()
	require.Len(t, fin, 2)
	assert.Equal(t, "hang", fin[0].Command)
	assert.NotEqual(t, 0, fin[0].ExitCode)
	assert.Equal(t, 0, fin[1].ExitCode)
}

func TestCancelWhenIdle(t *testing.T) {
	r, rec := newTestRunner(t, newFakeLauncher())
	r.Cancel()
	assert.Empty(t, rec.all())
	assert.Equal(t, Idle, r.State())
}

func TestAbortStopsTheRun(t *testing.T) {
	l := newFakeLauncher()
	l.on("hang", func() (*fakeProc, error) {
		p := newFakeProc("", "", 0)
		p.release = make(chan struct{})
		return p, nil
	})
	r, rec := newTestRunner(t, l)

	r.Enqueue([]string{"hang", "a", "b"}, "", "")
	require.Eventually(t, func() bool { return l.proc("hang") != nil }, time.Second, time.Millisecond)

	assert.Equal(t, 2, r.Abort())
	waitIdle(t, r)

	assert.Equal(t, []string{"hang"}, rec.started())
	require.Len(t, rec.finished(), 1)
	assert.Empty(t, r.Pending())
}

func TestLaunchFailureIsReportedAndSkipped(t *testing.T) {
	l := newFakeLauncher()
	l.on("missing", func() (*fakeProc, error) { return nil, errNoShell })
	r, rec := newTestRunner(t, l)

	r.Enqueue([]string{"missing", "after"}, "", "")
	waitIdle(t, r)

	assert.Equal(t, []string{"missing", "after"}, rec.started())
	fin := rec.finished()
	require.Len(t, fin, 2)
	assert.Equal(t, ExitLaunchFailed, fin[0].ExitCode)
	assert.Contains(t, fin[0].Error, errNoShell.Error())
	assert.Equal(t, 0, fin[1].ExitCode)
}

func TestSinkMayEnqueueFromEmit(t *testing.T) {
	l := newFakeLauncher()
	var r *Runner
	chained := false
	sink := SinkFunc(func(ev Event) {
		if ev.Kind == EventFinished && ev.Command == "first" && !chained {
			chained = true
			r.Enqueue([]string{"second"}, "", "")
		}
	})
	r = New(l, sink)
	defer r.Close()

	r.Enqueue([]string{"first"}, "", "")
	require.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.launched) == 2
	}, 2*time.Second, time.Millisecond)
	waitIdle(t, r)
}

func TestCloseStopsRunner(t *testing.T) {
	l := newFakeLauncher()
	l.on("hang", func() (*fakeProc, error) {
		p := newFakeProc("", "", 0)
		p.release = make(chan struct{})
		return p, nil
	})
	r := New(l, nil)

	r.Enqueue([]string{"hang", "never"}, "", "")
	require.Eventually(t, func() bool { return l.proc("hang") != nil }, time.Second, time.Millisecond)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.ErrorIs(t, r.WaitIdle(context.Background()), ErrClosed)
	assert.Equal(t, uuid.Nil, r.Enqueue([]string{"late"}, "", ""))
	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Equal(t, []string{"hang"}, l.launched)
}

func TestClock(t *testing.T) {
	at := time.Date(2010, 8, 6, 12, 0, 0, 0, time.UTC)
	rec := &recorder{}
	r := New(newFakeLauncher(), rec, WithClock(func() time.Time { return at }))
	defer r.Close()

	r.Enqueue([]string{"x"}, "", "")
	waitIdle(t, r)
	for _, ev := range rec.all() {
		assert.Equal(t, at, ev.Time)
	}
}
