package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync/atomic"

	"github.com/andrej220/synctity/pkg/lg"
	"github.com/andrej220/synctity/pkg/profile"
	"github.com/andrej220/synctity/pkg/runner"
	"github.com/andrej220/synctity/pkg/serverutil"
	dm "github.com/andrej220/synctity/pkg/shared-models"
	"github.com/google/uuid"
)

var errNothingToRun = errors.New("profile has nothing to run")

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }

// daemon feeds profile runs from HTTP and Kafka into one runner.
type daemon struct {
	runner   *runner.Runner
	profiles atomic.Pointer[profile.Set]
	logger   lg.Logger
}

func newDaemon(r *runner.Runner, set *profile.Set, logger lg.Logger) *daemon {
	d := &daemon{runner: r, logger: logger}
	d.setProfiles(set)
	return d
}

func (d *daemon) setProfiles(set *profile.Set) {
	if set == nil {
		set = profile.NewSet()
	}
	d.profiles.Store(set)
}

// startRun queues the plan of the named profile.
func (d *daemon) startRun(req dm.RunRequest) (uuid.UUID, error) {
	p, err := d.profiles.Load().Find(req.Profile)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", err, req.Profile)
	}
	cmds, pre, post := p.Plan(req.Reverse)
	runID := d.runner.Enqueue(cmds, pre, post)
	if runID == uuid.Nil {
		return uuid.Nil, errNothingToRun
	}
	d.logger.Info("Profile run queued",
		lg.String("profile", p.Name),
		lg.Bool("reverse", req.Reverse),
		lg.String("run", runID.String()),
		lg.String("request", req.RequestUID.String()))
	return runID, nil
}

func (d *daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /runs", serverutil.NewValidationHandler[dm.RunRequest](http.HandlerFunc(d.handleRun)))
	mux.HandleFunc("POST /cancel", d.handleCancel)
	mux.HandleFunc("GET /status", d.handleStatus)
	mux.HandleFunc("GET /profiles", d.handleProfiles)
	return mux
}

func (d *daemon) handleRun(rw http.ResponseWriter, r *http.Request) {
	req, ok := serverutil.RequestFromContext[dm.RunRequest](r.Context())
	if !ok {
		http.Error(rw, "Internal server error", http.StatusInternalServerError)
		return
	}
	if req.RequestUID == uuid.Nil {
		req.RequestUID = uuid.New()
	}
	runID, err := d.startRun(req)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		http.Error(rw, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, errNothingToRun):
		http.Error(rw, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		d.logger.Error("Failed to queue run", lg.Err(err))
		http.Error(rw, "Failed to process request", http.StatusInternalServerError)
		return
	}
	serverutil.WriteJSON(rw, http.StatusAccepted, dm.RunResponse{RunID: runID}, d.logger)
}

// handleCancel kills the active command; with abort=true it also drops
// everything still queued.
func (d *daemon) handleCancel(rw http.ResponseWriter, r *http.Request) {
	resp := dm.CancelResponse{}
	if r.URL.Query().Get("abort") == "true" {
		resp.Dropped = d.runner.Abort()
		resp.Aborted = true
	} else {
		d.runner.Cancel()
	}
	d.logger.Info("Cancel requested", lg.Bool("abort", resp.Aborted), lg.Int("dropped", resp.Dropped))
	serverutil.WriteJSON(rw, http.StatusOK, resp, d.logger)
}

func (d *daemon) handleStatus(rw http.ResponseWriter, _ *http.Request) {
	st := dm.Status{State: string(d.runner.State()), Pending: []dm.QueuedCommand{}}
	if item, ok := d.runner.Active(); ok {
		st.Active = &dm.QueuedCommand{RunID: item.RunID, Command: item.Command}
	}
	for _, item := range d.runner.Pending() {
		st.Pending = append(st.Pending, dm.QueuedCommand{RunID: item.RunID, Command: item.Command})
	}
	serverutil.WriteJSON(rw, http.StatusOK, st, d.logger)
}

func (d *daemon) handleProfiles(rw http.ResponseWriter, _ *http.Request) {
	set := d.profiles.Load()
	out := make([]dm.ProfileSummary, 0, set.Len())
	for _, p := range set.Profiles {
		out = append(out, dm.ProfileSummary{ID: p.ID, Name: p.Name, Commands: p.Descriptions()})
	}
	serverutil.WriteJSON(rw, http.StatusOK, out, d.logger)
}
