package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/buildwave/buildwave/pkg/config"
	"github.com/buildwave/buildwave/pkg/graph"
	"github.com/buildwave/buildwave/pkg/telemetry"
)

func newGraphCommand() *cobra.Command {
	var (
		packagesPath   string
		edgesPath      string
		tiersPath      string
		outDir         string
		estimateScript string
		watch          bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Build the dependency graph and wave schedule artifacts",
		Long: `Build the dependency graph from a package list and an edge document,
then write the graph, build-order, and wave artifacts.

Cycles are never an error: every strongly connected component of two or
more packages is reported in the graph artifact, and its members are
flushed into the final wave.`,
		Example: `  # Generate artifacts into ./artifacts
  buildwave graph --packages packages.txt --edges edges.json --out-dir artifacts

  # Attach tier metadata and a Starlark estimate hook
  buildwave graph --packages packages.txt --edges edges.json \
    --tiers tiers.json --estimate-script estimate.star --out-dir artifacts

  # Rebuild whenever an input changes
  buildwave graph --packages packages.txt --edges edges.json --out-dir artifacts --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newCLILogger()
			if err != nil {
				return err
			}

			generate := func() error {
				return generateArtifacts(logger, packagesPath, edgesPath, tiersPath, estimateScript, outDir)
			}
			if err := generate(); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchInputs(cmd.Context(), logger, []string{packagesPath, edgesPath, tiersPath}, generate)
		},
	}

	cmd.Flags().StringVar(&packagesPath, "packages", "packages.txt", "package list, one atom per line")
	cmd.Flags().StringVar(&edgesPath, "edges", "edges.json", "dependency edge document")
	cmd.Flags().StringVar(&tiersPath, "tiers", "", "tier metadata document (optional)")
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory for the generated artifacts")
	cmd.Flags().StringVar(&estimateScript, "estimate-script", "", "Starlark build-time estimate hook (optional)")
	cmd.Flags().BoolVar(&watch, "watch", false, "regenerate artifacts when inputs change")

	return cmd
}

// generateArtifacts runs one full graph build and writes the artifacts.
func generateArtifacts(logger *telemetry.Logger, packagesPath, edgesPath, tiersPath, estimateScript, outDir string) error {
	atoms, err := graph.LoadPackageList(packagesPath)
	if err != nil {
		return err
	}
	edges, err := graph.LoadEdges(edgesPath)
	if err != nil {
		return err
	}

	var tiers map[string]string
	if tiersPath != "" {
		tiers, err = graph.LoadTierMap(tiersPath)
		if err != nil {
			return err
		}
	}

	builder, err := graph.NewBuilder(atoms)
	if err != nil {
		return err
	}
	if err := builder.AddEdges(edges); err != nil {
		return err
	}

	if estimateScript != "" {
		script, err := os.ReadFile(estimateScript)
		if err != nil {
			return fmt.Errorf("failed to read estimate script: %w", err)
		}
		se := config.NewStarlarkEvaluator(0)
		builder.SetEstimator(se.EstimateHook(string(script), graph.DefaultEstimator))
	}

	g, err := builder.Build(tiers)
	if err != nil {
		return err
	}

	if g.CycleCount > 0 {
		logger.Warnf("%d dependency cycles detected, members flushed to the final wave", g.CycleCount)
		for _, cycle := range g.Cycles() {
			logger.Warnf("cycle: %v", cycle)
		}
	}

	sources := graph.Sources{
		PackageList:  packagesPath,
		EdgeList:     edgesPath,
		PackageTiers: tiersPath,
	}
	if err := graph.WriteArtifacts(g, outDir, sources, time.Now().UTC()); err != nil {
		return err
	}

	logger.Infof("wrote artifacts to %s: %d packages, %d edges, %d waves",
		outDir, len(g.Atoms), len(g.Edges), len(g.Waves))
	return nil
}

// watchInputs regenerates artifacts whenever one of the input files changes,
// until the context is cancelled.
func watchInputs(ctx context.Context, logger *telemetry.Logger, paths []string, generate func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	logger.Info("watching inputs, press Ctrl-C to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logger.Infof("input changed: %s", event.Name)
			if err := generate(); err != nil {
				logger.WithError(err).Error("regeneration failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("watcher error")
		}
	}
}
