package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/buildwave/buildwave/pkg/telemetry"
)

// Loader reads policy files from disk. It accepts raw .rego modules and
// .json policy definitions.
type Loader struct {
	logger  *telemetry.Logger
	watcher *fsnotify.Watcher
}

// NewLoader creates a new policy loader.
func NewLoader(logger *telemetry.Logger) *Loader {
	return &Loader{
		logger: logger.NewComponentLogger("policy-loader"),
	}
}

// LoadDir loads every .rego and .json policy under dir. A missing directory
// yields no policies; a file that fails to parse is skipped with a warning.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]Policy, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var policies []Policy
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".rego") && !strings.HasSuffix(path, ".json") {
			return nil
		}

		policy, err := l.loadFile(path)
		if err != nil {
			l.logger.WithError(err).Warnf("skipping policy file %s", path)
			return nil
		}
		policies = append(policies, *policy)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk policy dir: %w", err)
	}

	l.logger.Infof("loaded %d policies from %s", len(policies), dir)
	return policies, nil
}

// loadFile loads a single policy file.
func (l *Loader) loadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	switch {
	case strings.HasSuffix(path, ".rego"):
		return l.parseRego(path, data), nil
	case strings.HasSuffix(path, ".json"):
		return l.parseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
}

// parseRego wraps a raw Rego module into a Policy named after the file.
func (l *Loader) parseRego(path string, data []byte) *Policy {
	name := strings.TrimSuffix(filepath.Base(path), ".rego")
	return &Policy{
		Name:        name,
		Description: extractDescription(string(data)),
		Rego:        string(data),
		Severity:    SeverityWarning,
		Enabled:     true,
		CreatedAt:   time.Now(),
	}
}

// parseJSON parses a JSON policy definition.
func (l *Loader) parseJSON(data []byte) (*Policy, error) {
	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if policy.Severity == "" {
		policy.Severity = SeverityWarning
	}
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = time.Now()
	}
	return &policy, nil
}

// extractDescription collects the leading comment block of a Rego module.
func extractDescription(content string) string {
	var description strings.Builder
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			if comment != "" {
				if description.Len() > 0 {
					description.WriteString(" ")
				}
				description.WriteString(comment)
			}
		} else if trimmed != "" {
			break
		}
	}
	return description.String()
}

// Watch reloads the directory into reloadFn whenever a policy file changes.
// It returns once the watcher is installed; events are processed until ctx
// is cancelled.
func (l *Loader) Watch(ctx context.Context, dir string, reloadFn func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	l.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				policies, err := l.LoadDir(ctx, dir)
				if err != nil {
					l.logger.WithError(err).Warn("policy reload failed")
					continue
				}
				if err := reloadFn(policies); err != nil {
					l.logger.WithError(err).Warn("policy reload rejected")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.WithError(err).Warn("policy watcher error")
			}
		}
	}()

	l.logger.Infof("watching %s for policy changes", dir)
	return nil
}
