package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RunnerConfig controls build execution.
type RunnerConfig struct {
	// Image is the builder container image every package build runs in.
	Image string `yaml:"image" validate:"required"`

	// Parallelism caps the number of concurrent builds within a wave.
	Parallelism int `yaml:"parallelism" validate:"gte=1"`

	// MaxRetries is the number of extra attempts after the first failure.
	MaxRetries int `yaml:"max_retries" validate:"gte=0"`

	// TimeoutSeconds is the wall-clock budget for a single attempt.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gte=1"`

	// Mode is passed to the builder as BUILDWAVE_MODE.
	Mode string `yaml:"mode" validate:"required"`

	// Resume re-reads the state file and skips packages already recorded
	// as success.
	Resume bool `yaml:"resume"`

	// StopOnFailure aborts the run after the first non-success result.
	StopOnFailure bool `yaml:"stop_on_failure"`

	// DryRun synthesizes successes without invoking the container runtime.
	DryRun bool `yaml:"dry_run"`
}

// PathsConfig locates the graph artifacts and run outputs. Relative paths are
// resolved against the config file's directory.
type PathsConfig struct {
	BuildOrder     string `yaml:"build_order"`
	BuildWaves     string `yaml:"build_waves"`
	Graph          string `yaml:"graph"`
	ResultsDir     string `yaml:"results_dir"`
	StateFile      string `yaml:"state_file"`
	Workspace      string `yaml:"workspace"`
	BinpkgCache    string `yaml:"binpkg_cache"`
	DistfilesCache string `yaml:"distfiles_cache"`
}

// TelemetryConfig controls logging, tracing, and metrics.
type TelemetryConfig struct {
	LogLevel      string  `yaml:"log_level"`
	TraceExporter string  `yaml:"trace_exporter" validate:"oneof=otlp stdout none"`
	TraceEndpoint string  `yaml:"trace_endpoint"`
	TraceSampling float64 `yaml:"trace_sampling" validate:"gte=0,lte=1"`
	MetricsListen string  `yaml:"metrics_listen"`
}

// PolicyConfig locates the admission policy bundle.
type PolicyConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// Config is the root buildwave configuration.
type Config struct {
	Runner    RunnerConfig    `yaml:"runner"`
	Paths     PathsConfig     `yaml:"paths"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Policy    PolicyConfig    `yaml:"policy"`

	// HistoryDB is the SQLite database recording past runs. Empty disables
	// history.
	HistoryDB string `yaml:"history_db"`
}

// Default returns a configuration with every tunable at its documented
// default.
func Default() *Config {
	return &Config{
		Runner: RunnerConfig{
			Image:          "buildwave/gentoo-builder:latest",
			Parallelism:    4,
			MaxRetries:     3,
			TimeoutSeconds: 7200,
			Mode:           "hardened",
			Resume:         true,
		},
		Paths: PathsConfig{
			BuildOrder:     "build-order.txt",
			BuildWaves:     "build-waves.json",
			Graph:          "dependency-graph.json",
			ResultsDir:     "results",
			StateFile:      "results/state.json",
			Workspace:      ".",
			BinpkgCache:    "/var/cache/binpkgs",
			DistfilesCache: "/var/cache/distfiles",
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			TraceSampling: 1.0,
		},
	}
}

// Load reads a YAML config file, applies defaults for anything unset,
// resolves relative paths against the config directory, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	root := filepath.Dir(path)
	cfg.Paths.BuildOrder = resolvePath(root, cfg.Paths.BuildOrder)
	cfg.Paths.BuildWaves = resolvePath(root, cfg.Paths.BuildWaves)
	cfg.Paths.Graph = resolvePath(root, cfg.Paths.Graph)
	cfg.Paths.ResultsDir = resolvePath(root, cfg.Paths.ResultsDir)
	cfg.Paths.StateFile = resolvePath(root, cfg.Paths.StateFile)
	cfg.Paths.Workspace = resolvePath(root, cfg.Paths.Workspace)
	cfg.Paths.BinpkgCache = resolvePath(root, cfg.Paths.BinpkgCache)
	cfg.Paths.DistfilesCache = resolvePath(root, cfg.Paths.DistfilesCache)
	cfg.Policy.Dir = resolvePath(root, cfg.Policy.Dir)
	cfg.HistoryDB = resolvePath(root, cfg.HistoryDB)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
