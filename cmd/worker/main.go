package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/riskmap/internal/app"
	"github.com/efebarandurmaz/riskmap/internal/config"
	"github.com/efebarandurmaz/riskmap/internal/server"
	temporalmod "github.com/efebarandurmaz/riskmap/internal/temporal"
)

func main() {
	configPath := flag.String("config", "", "Config file path (default "+config.DefaultPath+")")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)
	if cfg.Temporal.Host == "" {
		return fmt.Errorf("temporal.host is not configured")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	temporalmod.SetDependencies(&temporalmod.Dependencies{Scenarios: a.Scenarios})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		a.Close(ctx)
		return fmt.Errorf("temporal client: %w", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		c.Close()
		a.Close(ctx)
		return fmt.Errorf("worker: %w", err)
	}
	a.Engine.Preload(ctx)
	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue, "tier", a.Engine.Status(ctx).Tier)

	shutdown := server.NewShutdownHandler(server.ShutdownConfig{Logger: logger})
	shutdown.RegisterHook("temporal-worker", server.PriorityWorker, func(context.Context) error {
		w.Stop()
		return nil
	})
	shutdown.RegisterHook("temporal-client", server.PriorityWorker+1, func(context.Context) error {
		c.Close()
		return nil
	})
	shutdown.RegisterHook("app", server.PriorityDatabase, a.Close)
	shutdown.Start()
	shutdown.Wait()

	logger.Info("worker stopped")
	return nil
}
