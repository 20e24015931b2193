package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/buildwave/buildwave/pkg/config"
	"github.com/buildwave/buildwave/pkg/telemetry"
)

// timeoutExitCode is what coreutils timeout(1) and our builder entrypoint
// return when the build exceeds its budget.
const timeoutExitCode = 124

// Executor runs a single build attempt for a package and returns its result.
// Implementations must classify failures; the runner only decides retries.
type Executor interface {
	ExecuteAttempt(ctx context.Context, atom string, attempt int) PackageResult
}

// attemptMetadata is the optional metadata.json the builder image writes into
// its results mount. Fields it reports override what the executor inferred.
type attemptMetadata struct {
	Version        string `json:"version"`
	HealingActions int    `json:"healing_actions"`
	BinaryPackage  string `json:"binary_package"`
	RuntimeLog     string `json:"runtime_log"`
}

// DockerExecutor builds packages inside a container image via the docker CLI.
type DockerExecutor struct {
	runner config.RunnerConfig
	paths  config.PathsConfig
	logger *telemetry.Logger
}

// NewDockerExecutor creates an executor from the run configuration.
func NewDockerExecutor(runner config.RunnerConfig, paths config.PathsConfig, logger *telemetry.Logger) *DockerExecutor {
	return &DockerExecutor{
		runner: runner,
		paths:  paths,
		logger: logger.NewComponentLogger("executor"),
	}
}

// ExecuteAttempt runs one containerized build of atom. The attempt's log and
// any metadata the builder writes land in a per-attempt directory under the
// results tree.
func (d *DockerExecutor) ExecuteAttempt(ctx context.Context, atom string, attempt int) PackageResult {
	res := PackageResult{
		Package:   atom,
		Mode:      d.runner.Mode,
		Attempts:  attempt,
		Timestamp: utcNow(),
	}

	attemptDir, err := d.attemptDir(atom, attempt)
	if err != nil {
		res.Result = ResultFailed
		res.Reason = fmt.Sprintf("failed to create attempt dir: %v", err)
		return res
	}
	logFile := filepath.Join(attemptDir, "container.log")
	res.LogFile = logFile

	timeout := time.Duration(d.runner.TimeoutSeconds) * time.Second
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"run", "--rm",
		"-e", fmt.Sprintf("BUILDWAVE_MODE=%s", d.runner.Mode),
		"-e", fmt.Sprintf("BUILDWAVE_TIMEOUT_SECONDS=%d", d.runner.TimeoutSeconds),
		"-v", fmt.Sprintf("%s:/workspace", d.paths.Workspace),
		"-v", fmt.Sprintf("%s:/results", attemptDir),
	}
	if d.paths.BinpkgCache != "" {
		args = append(args, "-v", fmt.Sprintf("%s:/var/cache/binpkgs", d.paths.BinpkgCache))
	}
	if d.paths.DistfilesCache != "" {
		args = append(args, "-v", fmt.Sprintf("%s:/var/cache/distfiles", d.paths.DistfilesCache))
	}
	args = append(args,
		d.runner.Image,
		"bash", "-lc", fmt.Sprintf("build-package.sh %s /results", atom),
	)

	d.logger.WithPackage(atom).WithAttempt(attempt).Debugf("docker %s", strings.Join(args, " "))

	started := time.Now()
	cmd := exec.CommandContext(attemptCtx, "docker", args...)
	output, runErr := cmd.CombinedOutput()
	res.BuildTimeSeconds = int(time.Since(started).Seconds())

	if writeErr := os.WriteFile(logFile, output, 0o644); writeErr != nil {
		d.logger.WithPackage(atom).WithError(writeErr).Warn("failed to write container log")
	}

	res.ExitCode = exitCode(runErr)
	res.Result, res.Reason = classifyFailure(res.ExitCode, attemptCtx.Err(), runErr, string(output))

	d.readMetadata(attemptDir, &res)
	return res
}

// attemptDir creates and returns results/packages/<atom>/attempt-N.
func (d *DockerExecutor) attemptDir(atom string, attempt int) (string, error) {
	dir := filepath.Join(d.paths.ResultsDir, "packages", sanitizeAtom(atom), fmt.Sprintf("attempt-%d", attempt))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// readMetadata folds the builder-reported metadata.json into the result.
func (d *DockerExecutor) readMetadata(attemptDir string, res *PackageResult) {
	data, err := os.ReadFile(filepath.Join(attemptDir, "metadata.json"))
	if err != nil {
		return
	}
	var meta attemptMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		d.logger.WithPackage(res.Package).WithError(err).Warn("failed to parse build metadata")
		return
	}
	res.Version = meta.Version
	res.HealingActions = meta.HealingActions
	res.BinaryPackage = meta.BinaryPackage
	res.RuntimeLog = meta.RuntimeLog
}

// exitCode extracts the process exit code, or -1 when the command never ran.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// oomSignatures and transientSignatures are matched case-insensitively
// against the build log to refine a plain failure.
var (
	oomSignatures       = []string{"cannot allocate memory", "out of memory", "oom"}
	transientSignatures = []string{"connection timed out", "temporary failure"}
)

// classifyFailure maps an attempt's exit code, context state, and log text to
// a terminal result kind. Timeout wins over log signatures; OOM wins over
// transient.
func classifyFailure(code int, ctxErr, runErr error, logText string) (ResultKind, string) {
	if runErr == nil && code == 0 {
		return ResultSuccess, ""
	}

	if code == timeoutExitCode || errors.Is(ctxErr, context.DeadlineExceeded) {
		return ResultTimeout, "build exceeded timeout"
	}

	lower := strings.ToLower(logText)
	for _, sig := range oomSignatures {
		if strings.Contains(lower, sig) {
			return ResultOOM, fmt.Sprintf("log matched %q", sig)
		}
	}
	for _, sig := range transientSignatures {
		if strings.Contains(lower, sig) {
			return ResultTransient, fmt.Sprintf("log matched %q", sig)
		}
	}

	if code == -1 && runErr != nil {
		return ResultFailed, fmt.Sprintf("container runtime error: %v", runErr)
	}
	return ResultFailed, fmt.Sprintf("exit code %d", code)
}

// DryRunExecutor synthesizes successful results without touching a container
// runtime. Useful for rehearsing wave order and state handling.
type DryRunExecutor struct {
	Mode string
}

// ExecuteAttempt returns a synthetic success after a nominal delay, so wave
// pacing and worker accounting still exercise their real paths.
func (d *DryRunExecutor) ExecuteAttempt(ctx context.Context, atom string, attempt int) PackageResult {
	timer := time.NewTimer(50 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return PackageResult{
		Package:   atom,
		Result:    ResultSuccess,
		Mode:      d.Mode,
		Attempts:  attempt,
		Timestamp: utcNow(),
		Reason:    "dry run",
	}
}
