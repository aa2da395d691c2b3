package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/andrej220/synctity/pkg/lg"
	"github.com/andrej220/synctity/pkg/report"
	"github.com/andrej220/synctity/pkg/runner"
	"github.com/andrej220/synctity/pkg/sink"
	"github.com/google/uuid"
)

func runProfile(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("run", stderr)
	logCfg := lg.RegisterFlags(fs, serviceName)
	var sf storeFlags
	sf.register(fs)
	name := fs.String("profile", "", "profile name")
	reverse := fs.Bool("reverse", false, "sync destination back to source")
	shell := fs.String("shell", "", "shell used to run commands (default /bin/sh)")
	dir := fs.String("dir", "", "working directory of the commands")
	reportPath := fs.String("report", "", "write a run report to this file (.json or .yaml)")
	color := fs.Bool("color", true, "show stderr in red")
	if code := parse(fs, args); code >= 0 {
		return code
	}

	// records only when asked for, stdout belongs to the processes
	logger := lg.Discard
	if logCfg.Debug {
		logger = lg.New(logCfg)
		defer logger.Sync()
	}

	_, set, err := sf.load()
	if err != nil {
		return fail(stderr, err)
	}
	p, err := set.Find(*name)
	if err != nil {
		return fail(stderr, fmt.Errorf("%w: %q", err, *name))
	}
	cmds, pre, post := p.Plan(*reverse)

	rec := report.NewRecorder(p.Name, *reverse)
	sinks := sink.Fanout{sink.NewConsole(stdout, *color), rec}
	if logCfg.Debug {
		sinks = append(sinks, sink.NewLog(logger))
	}
	r := runner.New(&runner.LocalLauncher{Shell: *shell, Dir: *dir}, sinks, runner.WithLogger(logger))
	defer r.Close()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	done := make(chan struct{})
	defer close(done)
	var aborted atomic.Bool
	go func() {
		select {
		case <-sigc:
			aborted.Store(true)
			r.Abort()
		case <-done:
		}
	}()

	if r.Enqueue(cmds, pre, post) == uuid.Nil {
		fmt.Fprintf(stdout, "profile %s has nothing to run\n", p.Name)
		return 0
	}
	if err := r.WaitIdle(context.Background()); err != nil {
		return fail(stderr, err)
	}

	rep := rec.Report()
	if *reportPath != "" {
		if err := report.Write(rep, *reportPath); err != nil {
			return fail(stderr, err)
		}
	}
	if aborted.Load() {
		fmt.Fprintln(stderr, "synctity: run aborted")
		return 130
	}
	if rep.Failed() {
		return 1
	}
	return 0
}
