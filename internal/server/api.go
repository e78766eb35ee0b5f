package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/efebarandurmaz/riskmap/internal/match"
	"github.com/efebarandurmaz/riskmap/internal/observability"
	"github.com/efebarandurmaz/riskmap/internal/scenario"
	"github.com/efebarandurmaz/riskmap/internal/store"
	"github.com/efebarandurmaz/riskmap/internal/workflow"
)

// Scenarios is the scenario service behind the API.
type Scenarios interface {
	Create(ctx context.Context, in workflow.Input) (string, error)
	Run(ctx context.Context, id string, in workflow.Input) workflow.Result
	Result(ctx context.Context, id string) (workflow.Result, error)
	Recent(ctx context.Context, limit int) ([]store.ScenarioSummary, error)
}

// Matcher exposes the matcher session controls.
type Matcher interface {
	Status(ctx context.Context) match.Status
	Resync(ctx context.Context) match.Status
}

// Dispatcher hands a created scenario to a durable executor. When set,
// POST /api/scenarios returns 202 and clients poll for the result.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string, in workflow.Input) error
}

// Options wires the API server. Health, Metrics and Dispatcher are optional.
type Options struct {
	Scenarios  Scenarios
	Matcher    Matcher
	Dispatcher Dispatcher
	Health     *HealthServer
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// API is the HTTP surface.
type API struct {
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewAPI builds the route table.
func NewAPI(opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{opts: opts, logger: logger, mux: http.NewServeMux()}
	a.mux.HandleFunc("POST /api/scenarios", a.handleCreate)
	a.mux.HandleFunc("GET /api/scenarios", a.handleRecent)
	a.mux.HandleFunc("GET /api/scenarios/{id}/result", a.handleResult)
	a.mux.HandleFunc("GET /api/matcher/status", a.handleStatus)
	a.mux.HandleFunc("POST /api/matcher/resync", a.handleResync)
	if opts.Metrics != nil {
		a.mux.Handle("GET /metrics", opts.Metrics.Handler())
	}
	if opts.Health != nil {
		opts.Health.Mount(a.mux)
	}
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

type errorBody struct {
	Error string `json:"error"`
}

type acceptedBody struct {
	ScenarioID string `json:"scenario_id"`
	Status     string `json:"status"`
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in workflow.Input
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return
	}
	ctx := r.Context()
	id, err := a.opts.Scenarios.Create(ctx, in)
	if err != nil {
		a.logger.ErrorContext(ctx, "creating scenario failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "could not save scenario"})
		return
	}

	if a.opts.Dispatcher != nil {
		err := a.opts.Dispatcher.Dispatch(ctx, id, in)
		if err == nil {
			writeJSON(w, http.StatusAccepted, acceptedBody{ScenarioID: id, Status: "pending"})
			return
		}
		a.logger.WarnContext(ctx, "dispatch failed, running inline", "scenario_id", id, "err", err)
	}
	writeJSON(w, http.StatusOK, a.opts.Scenarios.Run(ctx, id, in))
}

func (a *API) handleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := a.opts.Scenarios.Result(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, scenario.ErrPending):
		writeJSON(w, http.StatusAccepted, acceptedBody{ScenarioID: id, Status: "pending"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("scenario %s not found", id)})
	default:
		a.logger.ErrorContext(r.Context(), "loading result failed", "scenario_id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "could not load result"})
	}
}

func (a *API) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be between 1 and 200"})
			return
		}
		limit = n
	}
	list, err := a.opts.Scenarios.Recent(r.Context(), limit)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "listing scenarios failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "could not list scenarios"})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Matcher.Status(r.Context()))
}

func (a *API) handleResync(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.Matcher.Resync(r.Context()))
}

// Serve runs the API on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
