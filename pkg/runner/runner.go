package runner

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buildwave/buildwave/pkg/config"
	"github.com/buildwave/buildwave/pkg/graph"
	"github.com/buildwave/buildwave/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Inputs is the scheduling material a run consumes: the wave partition and
// the direct-dependency map derived from the graph artifact.
type Inputs struct {
	// Order is the flattened build order, wave by wave.
	Order []string

	// Waves is the wave partition; every atom appears in exactly one wave.
	Waves [][]string

	// Dependencies maps an atom to its direct dependencies.
	Dependencies map[string][]string
}

// LoadInputs reads the graph artifacts named by the paths configuration.
func LoadInputs(paths config.PathsConfig) (*Inputs, error) {
	order, err := graph.LoadPackageList(paths.BuildOrder)
	if err != nil {
		return nil, NewConstructionError("failed to load build order", err)
	}
	// A missing waves artifact degrades to one wave over the full order;
	// dependency gating still holds the real constraints.
	var waves [][]string
	if _, statErr := os.Stat(paths.BuildWaves); statErr == nil {
		waves, err = graph.LoadWaves(paths.BuildWaves)
		if err != nil {
			return nil, NewConstructionError("failed to load build waves", err)
		}
	} else if len(order) > 0 {
		waves = [][]string{order}
	}
	edges, err := graph.LoadEdges(paths.Graph)
	if err != nil {
		return nil, NewConstructionError("failed to load dependency graph", err)
	}

	deps := make(map[string][]string)
	for _, e := range edges {
		deps[e.To] = append(deps[e.To], e.From)
	}
	for atom := range deps {
		sort.Strings(deps[atom])
		deps[atom] = dedupe(deps[atom])
	}

	return &Inputs{Order: order, Waves: waves, Dependencies: deps}, nil
}

// Filter restricts the inputs to the selected atoms. Waves keep their
// relative order, and dependency edges leaving the selection are dropped, so
// a filtered run treats out-of-selection dependencies as satisfied.
func (in *Inputs) Filter(selected []string) (*Inputs, error) {
	keep := make(map[string]struct{}, len(selected))
	for _, atom := range selected {
		keep[atom] = struct{}{}
	}

	known := make(map[string]struct{}, len(in.Order))
	for _, atom := range in.Order {
		known[atom] = struct{}{}
	}
	for atom := range keep {
		if _, ok := known[atom]; !ok {
			return nil, NewConstructionError("unknown package in filter", fmt.Errorf("%q is not in the build order", atom))
		}
	}

	out := &Inputs{Dependencies: make(map[string][]string)}
	for _, atom := range in.Order {
		if _, ok := keep[atom]; ok {
			out.Order = append(out.Order, atom)
		}
	}
	for _, wave := range in.Waves {
		var filtered []string
		for _, atom := range wave {
			if _, ok := keep[atom]; ok {
				filtered = append(filtered, atom)
			}
		}
		if len(filtered) > 0 {
			out.Waves = append(out.Waves, filtered)
		}
	}
	for atom, deps := range in.Dependencies {
		if _, ok := keep[atom]; !ok {
			continue
		}
		for _, dep := range deps {
			if _, ok := keep[dep]; ok {
				out.Dependencies[atom] = append(out.Dependencies[atom], dep)
			}
		}
	}
	return out, nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// HistoryRecorder persists per-package results for later inspection. The
// SQLite store implements it; a nil recorder disables history.
type HistoryRecorder interface {
	RecordPackageResult(ctx context.Context, runID string, res PackageResult) error
}

// Runner drives a full build: wave by wave, dependency-gated, with retries,
// resumable state, and optional stop-on-failure.
type Runner struct {
	cfg     config.RunnerConfig
	inputs  *Inputs
	exec    Executor
	state   *State
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	history HistoryRecorder

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error

	stopped atomic.Bool
}

// New creates a runner over the given inputs and executor.
func New(cfg config.RunnerConfig, inputs *Inputs, exec Executor, state *State, logger *telemetry.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		inputs: inputs,
		exec:   exec,
		state:  state,
		logger: logger.NewComponentLogger("runner"),
		sleep:  sleepContext,
	}
}

// SetMetrics attaches a metrics collector. Optional.
func (r *Runner) SetMetrics(m *telemetry.Metrics) { r.metrics = m }

// SetTracer attaches a tracer. Optional.
func (r *Runner) SetTracer(t *telemetry.Tracer) { r.tracer = t }

// SetHistory attaches a history recorder. Optional.
func (r *Runner) SetHistory(h HistoryRecorder) { r.history = h }

// Run executes every wave in order and returns the final summary. When
// stop-on-failure aborts the run, the partial summary is returned together
// with ErrStoppedOnFailure.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	log := r.logger.WithRunID(r.state.RunID())
	log.Infof("starting run: %d packages across %d waves, parallelism %d",
		len(r.inputs.Order), len(r.inputs.Waves), r.cfg.Parallelism)

	if r.tracer != nil {
		runCtx, runSpan := r.tracer.StartRunSpan(ctx, r.state.RunID())
		defer runSpan.End()
		ctx = runCtx
	}

	for i, wave := range r.inputs.Waves {
		if err := ctx.Err(); err != nil {
			return r.finishSummary(), err
		}
		if r.stopped.Load() {
			break
		}
		if err := r.runWave(ctx, i, wave); err != nil {
			return r.finishSummary(), err
		}
	}

	summary := r.finishSummary()
	if r.stopped.Load() {
		log.Warn("run stopped on failure")
		return summary, ErrStoppedOnFailure
	}
	log.Infof("run complete: %d packages recorded", summary.TotalPackages)
	return summary, nil
}

func (r *Runner) finishSummary() *Summary {
	s := r.state.Summary()
	s.Stopped = r.stopped.Load()
	return s
}

// runWave partitions one wave into already-done, blocked, and buildable
// atoms, records skips for the blocked, and drains the buildable through a
// bounded worker pool.
func (r *Runner) runWave(ctx context.Context, index int, wave []string) error {
	log := r.logger.WithWave(index)
	started := time.Now()

	if r.tracer != nil {
		waveCtx, span := r.tracer.StartWaveSpan(ctx, index, len(wave))
		defer span.End()
		ctx = waveCtx
	}

	var buildable []string
	for _, atom := range wave {
		// Any recorded result is terminal; a resumed run never re-attempts
		// a package that already reached a verdict.
		if prev, ok := r.state.Get(atom); ok {
			log.WithPackage(atom).Debugf("already recorded %s, skipping", prev.Result)
			continue
		}
		if !r.state.DependenciesSatisfied(atom, r.inputs.Dependencies) {
			res := PackageResult{
				Package:   atom,
				Result:    ResultSkipped,
				Mode:      r.cfg.Mode,
				Timestamp: utcNow(),
				Reason:    "dependency_failed",
			}
			if err := r.record(ctx, res); err != nil {
				return err
			}
			log.WithPackage(atom).Warn("skipped: dependency failed")
			continue
		}
		buildable = append(buildable, atom)
	}

	if len(buildable) == 0 {
		log.Debug("wave has no buildable packages")
		return nil
	}

	workers := r.cfg.Parallelism
	if workers > len(buildable) {
		workers = len(buildable)
	}
	log.Infof("wave %d: building %d packages with %d workers", index, len(buildable), workers)

	queue := make(chan string)
	errCh := make(chan error, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for atom := range queue {
				// Leave queued work unrecorded once stopping; a resumed
				// run picks it up.
				if r.stopped.Load() || ctx.Err() != nil {
					continue
				}
				res := r.buildWithRetries(ctx, atom)
				if err := r.record(ctx, res); err != nil {
					select {
					case errCh <- err:
					default:
					}
					continue
				}
				if res.Result != ResultSuccess && r.cfg.StopOnFailure {
					r.stopped.Store(true)
				}
			}
		}()
	}

	for _, atom := range buildable {
		queue <- atom
	}
	close(queue)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}

	if r.metrics != nil {
		r.metrics.RecordWave(time.Since(started))
	}
	return ctx.Err()
}

// buildWithRetries drives up to max_retries+1 attempts of one package and
// returns the terminal result.
func (r *Runner) buildWithRetries(ctx context.Context, atom string) PackageResult {
	log := r.logger.WithPackage(atom)
	maxAttempts := r.cfg.MaxRetries + 1

	if r.metrics != nil {
		r.metrics.WorkerStarted()
		defer r.metrics.WorkerFinished()
	}

	var res PackageResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if r.tracer != nil {
			spanCtx, buildSpan := r.tracer.StartBuildSpan(ctx, atom, attempt)
			res = r.exec.ExecuteAttempt(spanCtx, atom, attempt)
			buildSpan.SetAttributes(attribute.String("package.result", string(res.Result)))
			buildSpan.End()
		} else {
			res = r.exec.ExecuteAttempt(ctx, atom, attempt)
		}
		res.Attempts = attempt

		if r.metrics != nil {
			r.metrics.RecordBuild(string(res.Result), time.Duration(res.BuildTimeSeconds)*time.Second)
		}

		if res.Result == ResultSuccess {
			log.WithAttempt(attempt).Info("build succeeded")
			return res
		}
		if !res.Result.Retryable() || attempt == maxAttempts {
			break
		}

		log.WithAttempt(attempt).Warnf("build %s, retrying", res.Result)
		if r.metrics != nil {
			r.metrics.RecordRetry(string(res.Result))
		}
		if err := r.sleep(ctx, backoff(attempt)); err != nil {
			break
		}
	}

	log.WithAttempt(res.Attempts).Errorf("build failed terminally: %s", res.Result)
	return res
}

// record persists the result to state and, when configured, to history.
func (r *Runner) record(ctx context.Context, res PackageResult) error {
	if err := r.state.Record(res); err != nil {
		return NewPermanentError("failed to persist state", err).WithPackage(res.Package)
	}
	if r.history != nil {
		if err := r.history.RecordPackageResult(ctx, r.state.RunID(), res); err != nil {
			// History is advisory; the state file remains authoritative.
			r.logger.WithPackage(res.Package).WithError(err).Warn("failed to record history")
		}
	}
	return nil
}

// backoff grows linearly with the attempt number, capped at five seconds.
func backoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	return time.Duration(attempt) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
