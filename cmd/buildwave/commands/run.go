package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildwave/buildwave/pkg/config"
	"github.com/buildwave/buildwave/pkg/graph"
	"github.com/buildwave/buildwave/pkg/policy"
	"github.com/buildwave/buildwave/pkg/runner"
	"github.com/buildwave/buildwave/pkg/stores"
	"github.com/buildwave/buildwave/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		dryRun        bool
		packages      []string
		stopOnFailure bool
		parallelism   int
		noResume      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the build plan wave by wave",
		Long: `Execute the build plan produced by the graph command.

Each wave runs its packages through a bounded worker pool. A package whose
dependency failed is skipped, failed builds are retried with backoff, and
every terminal result is persisted before the next dispatch, so an
interrupted run resumes where it stopped.`,
		Example: `  # Run the full plan
  buildwave run --config buildwave.yaml

  # Rehearse the schedule without building
  buildwave run --dry-run

  # Build a subset, stopping at the first failure
  buildwave run --package sys-devel/gcc --package sys-libs/glibc --stop-on-failure`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Runner.DryRun = true
			}
			if stopOnFailure {
				cfg.Runner.StopOnFailure = true
			}
			if parallelism > 0 {
				cfg.Runner.Parallelism = parallelism
			}
			if noResume {
				cfg.Runner.Resume = false
			}

			logger, err := newCLILogger()
			if err != nil {
				return err
			}
			return executeRun(cmd.Context(), cfg, logger, packages)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "synthesize successes without running containers")
	cmd.Flags().StringArrayVar(&packages, "package", nil, "restrict the run to these packages (repeatable)")
	cmd.Flags().BoolVar(&stopOnFailure, "stop-on-failure", false, "abort after the first non-success result")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "override configured parallelism")
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "ignore the existing state file")

	return cmd
}

// executeRun wires the full run pipeline: artifact validation, policy gate,
// telemetry, history, and the runner itself.
func executeRun(ctx context.Context, cfg *config.Config, logger *telemetry.Logger, selected []string) error {
	sr := config.NewSchemaRegistry()
	if err := sr.ValidateGraphArtifact(ctx, cfg.Paths.Graph); err != nil {
		return fmt.Errorf("graph artifact rejected: %w", err)
	}
	// The waves artifact is optional; a run without one degrades to a
	// single dependency-gated wave.
	if _, err := os.Stat(cfg.Paths.BuildWaves); err == nil {
		if err := sr.ValidateWavesArtifact(ctx, cfg.Paths.BuildWaves); err != nil {
			return fmt.Errorf("waves artifact rejected: %w", err)
		}
	}

	inputs, err := runner.LoadInputs(cfg.Paths)
	if err != nil {
		return err
	}
	if len(selected) > 0 {
		inputs, err = inputs.Filter(selected)
		if err != nil {
			return err
		}
	}

	if err := runPolicyGate(ctx, cfg, logger, inputs); err != nil {
		return err
	}

	state, err := runner.LoadState(cfg.Paths.StateFile, cfg.Runner.Resume)
	if err != nil {
		return err
	}

	var exec runner.Executor
	if cfg.Runner.DryRun {
		exec = &runner.DryRunExecutor{Mode: cfg.Runner.Mode}
	} else {
		exec = runner.NewDockerExecutor(cfg.Runner, cfg.Paths, logger)
	}

	r := runner.New(cfg.Runner, inputs, exec, state, logger)

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:       cfg.Telemetry.MetricsListen != "",
		Namespace:     "buildwave",
		ListenAddress: cfg.Telemetry.MetricsListen,
	})
	if err != nil {
		return err
	}
	metrics.Serve(func(err error) {
		logger.WithError(err).Warn("metrics listener failed")
	})
	r.SetMetrics(metrics)

	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:       cfg.Telemetry.TraceExporter != "none",
		Exporter:      cfg.Telemetry.TraceExporter,
		Endpoint:      cfg.Telemetry.TraceEndpoint,
		Insecure:      true,
		SamplingRate:  cfg.Telemetry.TraceSampling,
		ExportTimeout: 30 * time.Second,
	}, "buildwave", "dev")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracer shutdown failed")
		}
	}()
	r.SetTracer(tracer)

	var history *stores.SQLiteStore
	if cfg.HistoryDB != "" {
		history, err = openHistory(ctx, cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer history.Close()
		if err := history.CreateRun(ctx, &stores.Run{
			ID:        state.RunID(),
			Mode:      cfg.Runner.Mode,
			Status:    stores.RunStatusRunning,
			StartedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		r.SetHistory(history)
	}

	summary, runErr := r.Run(ctx)

	if history != nil && summary != nil {
		status := stores.RunStatusCompleted
		switch {
		case summary.Stopped:
			status = stores.RunStatusStopped
		case runErr != nil:
			status = stores.RunStatusFailed
		}
		if err := history.FinishRun(ctx, state.RunID(), status, summary); err != nil {
			logger.WithError(err).Warn("failed to close history record")
		}
	}

	if summary != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	}
	return runErr
}

// runPolicyGate evaluates admission policies over the selected packages and
// refuses the run on any error-severity violation.
func runPolicyGate(ctx context.Context, cfg *config.Config, logger *telemetry.Logger, inputs *runner.Inputs) error {
	engine, err := policy.NewEngine(logger)
	if err != nil {
		return err
	}

	loader := policy.NewLoader(logger)
	userPolicies, err := loader.LoadDir(ctx, cfg.Policy.Dir)
	if err != nil {
		return err
	}
	if err := engine.AddPolicies(userPolicies); err != nil {
		return err
	}
	if cfg.Policy.Watch && cfg.Policy.Dir != "" {
		if err := loader.Watch(ctx, cfg.Policy.Dir, engine.ReplacePolicies); err != nil {
			logger.WithError(err).Warn("policy watch unavailable")
		}
	}

	result, err := engine.EvaluatePackages(ctx, policyInputs(cfg, inputs, logger))
	if err != nil {
		return err
	}
	for _, v := range result.Violations {
		if v.Severity == policy.SeverityError {
			logger.Errorf("policy %s: %s", v.Policy, v.Message)
		} else {
			logger.Warnf("policy %s: %s", v.Policy, v.Message)
		}
	}
	if !result.Allowed {
		return fmt.Errorf("policy gate denied the run: %d violations", len(result.Denied()))
	}
	return nil
}

// policyInputs assembles per-package policy inputs, enriched with tier data
// from the graph artifact when available.
func policyInputs(cfg *config.Config, inputs *runner.Inputs, logger *telemetry.Logger) []policy.PackageInput {
	tiers := make(map[string]string)
	if doc, err := graph.LoadDocument(cfg.Paths.Graph); err == nil {
		for _, node := range doc.Nodes {
			tiers[node.Atom] = node.Tier
		}
	} else {
		logger.WithError(err).Warn("graph artifact unavailable for policy tiers")
	}

	var out []policy.PackageInput
	for wave, atoms := range inputs.Waves {
		for _, atom := range atoms {
			out = append(out, policy.PackageInput{
				Atom:     atom,
				Tier:     tiers[atom],
				Wave:     wave,
				WaveSize: len(atoms),
			})
		}
	}
	return out
}

// openHistory opens and migrates the history database.
func openHistory(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
