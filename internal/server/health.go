// Package server exposes the scenario API, matcher controls, health checks
// and Prometheus metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/riskmap/internal/match"
)

// HealthStatus is the state of one component or of the whole process.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// worse reports whether a outranks b in severity.
func (a HealthStatus) worse(b HealthStatus) bool {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	return rank[a] > rank[b]
}

type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker inspects one dependency.
type HealthChecker func(ctx context.Context) HealthCheck

const checkTimeout = 5 * time.Second

// HealthServer serves /health (aggregated checks) plus the readiness and
// liveness endpoints.
type HealthServer struct {
	version string
	ready   atomic.Bool
	live    atomic.Bool

	mu     sync.RWMutex
	checks map[string]HealthChecker
}

// NewHealthServer returns a server that is live but not yet ready.
func NewHealthServer(version string) *HealthServer {
	s := &HealthServer{version: version, checks: map[string]HealthChecker{}}
	s.live.Store(true)
	return s
}

// RegisterCheck adds or replaces the check called name.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	s.checks[name] = checker
	s.mu.Unlock()
}

func (s *HealthServer) SetReady(ready bool) { s.ready.Store(ready) }
func (s *HealthServer) SetLive(live bool)   { s.live.Store(live) }

// Mount registers the health routes on mux, including the short
// Kubernetes-style aliases.
func (s *HealthServer) Mount(mux *http.ServeMux) {
	ready := s.flagHandler(&s.ready)
	live := s.flagHandler(&s.live)
	for _, p := range []string{"/health", "/healthz"} {
		mux.HandleFunc("GET "+p, s.handleHealth)
	}
	for _, p := range []string{"/health/ready", "/readyz"} {
		mux.HandleFunc("GET "+p, ready)
	}
	for _, p := range []string{"/health/live", "/livez"} {
		mux.HandleFunc("GET "+p, live)
	}
}

// Report runs every registered check concurrently. Checks are sorted by
// name; the overall status is the worst individual one.
func (s *HealthServer) Report(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make([]HealthChecker, len(names))
	for i, name := range names {
		checkers[i] = s.checks[name]
	}
	s.mu.RUnlock()

	results := make([]HealthCheck, len(names))
	var g errgroup.Group
	for i := range checkers {
		g.Go(func() error {
			c := checkers[i](ctx)
			c.Name = names[i]
			results[i] = c
			return nil
		})
	}
	_ = g.Wait()

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Checks:    results,
	}
	for _, c := range results {
		if c.Status.worse(resp.Status) {
			resp.Status = c.Status
		}
	}
	return resp
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.Report(r.Context())
	code := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *HealthServer) flagHandler(flag *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
		code := http.StatusOK
		if !flag.Load() {
			resp.Status = HealthStatusUnhealthy
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// MatcherHealthChecker reports the active retrieval tier. The lexical tier
// over a non-empty corpus is degraded; an empty corpus is unhealthy.
func MatcherHealthChecker(status func(ctx context.Context) match.Status) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		st := status(ctx)
		c := HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "matcher OK",
			Details: map[string]string{"tier": st.Tier, "provider": st.Provider},
		}
		switch {
		case st.Tier == match.TierUninitialized:
			c.Message = "matcher not built yet"
		case st.Documents == 0:
			c.Status, c.Message = HealthStatusUnhealthy, "matcher corpus is empty"
		case st.Tier == match.TierLexical:
			c.Status, c.Message = HealthStatusDegraded, "matcher using lexical fallback"
		}
		return c
	}
}

// pingChecker turns a ping function into a check that reports onFail when
// the ping errors.
func pingChecker(component string, onFail HealthStatus, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := ping(ctx); err != nil {
			return HealthCheck{Status: onFail, Message: component + " unreachable: " + err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: component + " OK"}
	}
}

// DatabaseHealthChecker fails hard: without the store no scenario can be
// saved.
func DatabaseHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return pingChecker("database", HealthStatusUnhealthy, ping)
}

// TemporalHealthChecker only degrades; the API runs scenarios inline when
// dispatch fails.
func TemporalHealthChecker(ping func(ctx context.Context) error) HealthChecker {
	return pingChecker("temporal", HealthStatusDegraded, ping)
}

// LLMHealthChecker reports whether recommendations are enabled.
func LLMHealthChecker(providerName string) HealthChecker {
	return func(context.Context) HealthCheck {
		if providerName == "" {
			return HealthCheck{Status: HealthStatusDegraded, Message: "no LLM provider configured, recommendations disabled"}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "LLM provider: " + providerName,
			Details: map[string]string{"provider": providerName},
		}
	}
}
