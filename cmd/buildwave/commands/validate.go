package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildwave/buildwave/pkg/config"
	"github.com/buildwave/buildwave/pkg/graph"
	"github.com/buildwave/buildwave/pkg/policy"
	"github.com/buildwave/buildwave/pkg/runner"
)

func newValidateCommand() *cobra.Command {
	var skipPolicy bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the graph artifacts and policy gate",
		Long: `Validate the generated artifacts against their CUE schemas and run the
admission policies without starting any build.

This command checks:
  - Graph and waves artifacts conform to their schemas
  - The configuration file parses and validates
  - Policy compliance over the full package set`,
		Example: `  # Validate everything named by the config
  buildwave validate --config buildwave.yaml

  # Schema checks only
  buildwave validate --skip-policy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := newCLILogger()
			if err != nil {
				return err
			}

			sr := config.NewSchemaRegistry()
			if err := sr.ValidateGraphArtifact(ctx, cfg.Paths.Graph); err != nil {
				return fmt.Errorf("graph artifact rejected: %w", err)
			}
			if err := sr.ValidateWavesArtifact(ctx, cfg.Paths.BuildWaves); err != nil {
				return fmt.Errorf("waves artifact rejected: %w", err)
			}
			logger.Info("artifacts conform to their schemas")

			doc, err := graph.LoadDocument(cfg.Paths.Graph)
			if err != nil {
				return err
			}
			if doc.Metrics.CycleCount > 0 {
				logger.Warnf("%d dependency cycles recorded in the artifact", doc.Metrics.CycleCount)
			}

			if skipPolicy {
				return nil
			}

			inputs, err := runner.LoadInputs(cfg.Paths)
			if err != nil {
				return err
			}
			engine, err := policy.NewEngine(logger)
			if err != nil {
				return err
			}
			userPolicies, err := policy.NewLoader(logger).LoadDir(ctx, cfg.Policy.Dir)
			if err != nil {
				return err
			}
			if err := engine.AddPolicies(userPolicies); err != nil {
				return err
			}

			result, err := engine.EvaluatePackages(ctx, policyInputs(cfg, inputs, logger))
			if err != nil {
				return err
			}
			for _, v := range result.Violations {
				logger.Warnf("policy %s (%s): %s", v.Policy, v.Severity, v.Message)
			}
			if !result.Allowed {
				return fmt.Errorf("policy gate would deny the run: %d violations", len(result.Denied()))
			}
			logger.Infof("policy gate passed: %d packages admitted", len(inputs.Order))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "skip the policy evaluation")

	return cmd
}
