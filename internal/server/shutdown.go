package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"
)

// Hook priorities. Lower values run first.
const (
	PriorityHTTP     = 10
	PriorityWorker   = 20
	PriorityTracing  = 80
	PriorityDatabase = 90
	PriorityAudit    = 95
)

const defaultShutdownTimeout = 30 * time.Second

type ShutdownHook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

type ShutdownConfig struct {
	// Timeout bounds the whole hook run. Defaults to 30s.
	Timeout time.Duration
	// Signals defaults to SIGTERM and SIGINT.
	Signals []os.Signal
	Logger  *slog.Logger
}

// ShutdownHandler runs registered hooks once, in priority order, when a
// signal arrives or Shutdown is called after Start.
type ShutdownHandler struct {
	cfg ShutdownConfig

	mu      sync.Mutex
	hooks   []ShutdownHook
	started bool

	trigger     chan struct{}
	triggerOnce sync.Once
	done        chan struct{}
}

func NewShutdownHandler(cfg ShutdownConfig) *ShutdownHandler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultShutdownTimeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ShutdownHandler{cfg: cfg, trigger: make(chan struct{}), done: make(chan struct{})}
}

// RegisterHook adds fn. Hooks with equal priority keep registration order.
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, ShutdownHook{Name: name, Priority: priority, Fn: fn})
	slices.SortStableFunc(s.hooks, func(a, b ShutdownHook) int { return a.Priority - b.Priority })
}

// Start installs the signal handler. Calling it twice is a no-op.
func (s *ShutdownHandler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	ctx, stop := signal.NotifyContext(context.Background(), s.cfg.Signals...)
	go func() {
		defer stop()
		select {
		case <-ctx.Done():
			s.cfg.Logger.Info("shutdown signal received")
		case <-s.trigger:
		}
		s.runHooks()
	}()
}

// Shutdown requests shutdown without a signal. Before Start it does nothing.
func (s *ShutdownHandler) Shutdown() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		s.triggerOnce.Do(func() { close(s.trigger) })
	}
}

// Wait blocks until every hook has returned.
func (s *ShutdownHandler) Wait() { <-s.done }

func (s *ShutdownHandler) Done() <-chan struct{} { return s.done }

func (s *ShutdownHandler) runHooks() {
	defer close(s.done)
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	s.mu.Lock()
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()

	for _, h := range hooks {
		start := time.Now()
		if err := h.Fn(ctx); err != nil {
			s.cfg.Logger.Warn("shutdown hook failed", "hook", h.Name, "err", err)
			continue
		}
		s.cfg.Logger.Debug("shutdown hook done", "hook", h.Name, "took", time.Since(start))
	}
}
