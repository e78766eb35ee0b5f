package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/riskmap/internal/app"
	"github.com/efebarandurmaz/riskmap/internal/config"
	"github.com/efebarandurmaz/riskmap/internal/llm"
	"github.com/efebarandurmaz/riskmap/internal/match"
	"github.com/efebarandurmaz/riskmap/internal/server"
	temporalmod "github.com/efebarandurmaz/riskmap/internal/temporal"
	"github.com/efebarandurmaz/riskmap/internal/workflow"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "riskmap",
		Short:        "Match risk scenarios to historical cases and recommend mitigations",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default "+config.DefaultPath+")")

	var topK int
	matchCmd := &cobra.Command{
		Use:   "match <query>",
		Short: "Find the historical cases most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
				results := a.Engine.FindSimilar(ctx, strings.Join(args, " "), topK)
				st := a.Engine.Status(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "tier: %s (%s)\n", st.Tier, st.Provider)
				for i, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "%2d. %-8s %5s  %s\n", i+1, r.ID, r.Similarity, r.Name)
				}
				return nil
			})
		},
	}
	matchCmd.Flags().IntVarP(&topK, "top", "k", match.DefaultTopK, "Number of cases to return")

	var in workflow.Input
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario through the workflow and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
				res, err := a.Scenarios.Submit(ctx, in)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
	}
	runCmd.Flags().StringVar(&in.Name, "name", "", "Scenario name")
	runCmd.Flags().StringVar(&in.Description, "description", "", "Scenario description")
	runCmd.Flags().StringVar(&in.RiskType, "risk-type", "", "Risk type (default "+workflow.DefaultRiskType+")")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Build the matcher session and report the selected tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
				return printStatus(cmd.OutOrStdout(), a.Engine.Preload(ctx))
			})
		},
	}

	resyncCmd := &cobra.Command{
		Use:   "resync",
		Short: "Reload the corpus and re-run tier selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
				return printStatus(cmd.OutOrStdout(), a.Engine.Resync(ctx))
			})
		},
	}

	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, addr, cmd.ErrOrStderr())
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available LLM providers:")
			fmt.Fprintln(out)
			for name, url := range llm.KnownProviders {
				fmt.Fprintf(out, "  %-14s %s\n", name, url)
			}
			fmt.Fprintln(out, "  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Fprintln(out, "  none           (no cloud embeddings, no recommendations)")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Configure in riskmap.yaml or via environment:")
			fmt.Fprintln(out, "  RISKMAP_LLM_PROVIDER=groq")
			fmt.Fprintln(out, "  GROQ_API_KEY=gsk_...")
		},
	}

	rootCmd.AddCommand(matchCmd, runCmd, statusCmd, resyncCmd, serveCmd, providersCmd)
	return rootCmd
}

func printStatus(w io.Writer, st match.Status) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func withApp(ctx context.Context, configPath string, stderr io.Writer, fn func(context.Context, *app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, stderr)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	return fn(ctx, a)
}

func serve(ctx context.Context, configPath, addr string, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, configPath, stderr, func(ctx context.Context, a *app.App) error {
		cfg := a.Config
		if addr == "" {
			addr = cfg.Server.Addr
		}

		health := server.NewHealthServer(version)
		health.RegisterCheck("matcher", server.MatcherHealthChecker(a.Engine.Status))
		health.RegisterCheck("database", server.DatabaseHealthChecker(a.Store.Ping))
		health.RegisterCheck("llm", server.LLMHealthChecker(a.ProviderName()))

		opts := server.Options{
			Scenarios: a.Scenarios,
			Matcher:   a.Engine,
			Health:    health,
			Metrics:   a.Metrics,
			Logger:    a.Logger,
		}
		if cfg.Temporal.Host != "" {
			c, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.Temporal.Host, Namespace: cfg.Temporal.Namespace})
			if err != nil {
				a.Logger.Warn("temporal unavailable, running scenarios inline", "host", cfg.Temporal.Host, "err", err)
			} else {
				defer c.Close()
				opts.Dispatcher = &temporalmod.Dispatcher{Client: c, TaskQueue: cfg.Temporal.TaskQueue}
				health.RegisterCheck("temporal", server.TemporalHealthChecker(func(ctx context.Context) error {
					_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
					return err
				}))
			}
		}

		go a.Engine.Preload(ctx)
		health.SetReady(true)
		a.Logger.Info("serving", "addr", addr, "version", version)
		err := server.Serve(ctx, addr, server.NewAPI(opts))
		health.SetReady(false)
		return err
	})
}
