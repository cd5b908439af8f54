// Package health provides environment health checks for stagetrail. It
// verifies that the sessions directory is usable, the manifest is valid and
// the stage index can be opened, returning structured reports used by the
// 'stagetrail doctor' command.
package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ariel-frischer/stagetrail/internal/artifact"
	"github.com/ariel-frischer/stagetrail/internal/config"
	"github.com/ariel-frischer/stagetrail/internal/manifest"
)

// CheckResult represents the result of a single health check
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// HealthReport contains all health check results
type HealthReport struct {
	Checks []CheckResult `json:"checks"`
	Passed bool          `json:"passed"`
}

func (r *HealthReport) add(c CheckResult) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunHealthChecks runs every check against cfg, using manifestPath as the
// manifest to validate.
func RunHealthChecks(ctx context.Context, cfg *config.Configuration, manifestPath string) *HealthReport {
	report := &HealthReport{Passed: true}
	report.add(CheckSessionsDir(cfg.SessionsDir))
	report.add(CheckSymlinks(cfg.SessionsDir))
	report.add(CheckManifest(manifestPath))
	report.add(CheckIndex(ctx, cfg))
	return report
}

// CheckSessionsDir checks that the sessions directory exists or can be
// created, and is writable.
func CheckSessionsDir(dir string) CheckResult {
	const name = "Sessions directory"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{Name: name, Message: fmt.Sprintf("cannot create %s: %v", dir, err)}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return CheckResult{Name: name, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	f.Close()
	os.Remove(f.Name())
	return CheckResult{Name: name, Passed: true, Message: dir}
}

// CheckSymlinks checks that relative symlinks can be created in dir. Join
// directories are linked into every parent's subtree.
func CheckSymlinks(dir string) CheckResult {
	const name = "Symlinks"
	probe, err := os.MkdirTemp(dir, ".doctor-link-*")
	if err != nil {
		return CheckResult{Name: name, Message: fmt.Sprintf("cannot create probe directory: %v", err)}
	}
	defer os.RemoveAll(probe)

	if err := os.Mkdir(filepath.Join(probe, "target"), 0o755); err != nil {
		return CheckResult{Name: name, Message: err.Error()}
	}
	if err := os.Symlink("target", filepath.Join(probe, "link")); err != nil {
		return CheckResult{Name: name, Message: fmt.Sprintf("symlinks unsupported in %s: %v", dir, err)}
	}
	return CheckResult{Name: name, Passed: true, Message: "relative symlinks supported"}
}

// CheckManifest parses and validates the manifest.
func CheckManifest(path string) CheckResult {
	const name = "Manifest"
	res, err := manifest.LoadFile(path)
	if err != nil {
		var invalid *manifest.InvalidManifestError
		if errors.As(err, &invalid) {
			msgs := make([]string, 0, len(invalid.Errs))
			for _, e := range invalid.Errs {
				msgs = append(msgs, e.Error())
			}
			return CheckResult{Name: name, Message: fmt.Sprintf("%s: %s", path, strings.Join(msgs, "; "))}
		}
		return CheckResult{Name: name, Message: err.Error()}
	}
	return CheckResult{Name: name, Passed: true, Message: fmt.Sprintf("%s (%d stages)", path, res.Graph.Len())}
}

// CheckIndex checks that the configured stage index backend is usable.
func CheckIndex(ctx context.Context, cfg *config.Configuration) CheckResult {
	const name = "Stage index"
	if cfg.Index.Backend != "sqlite" {
		return CheckResult{Name: name, Passed: true, Message: "memory (rebuilt from disk on each run)"}
	}
	idx, err := artifact.OpenSQLiteIndex(ctx, cfg.IndexPath())
	if err != nil {
		return CheckResult{Name: name, Message: err.Error()}
	}
	if err := idx.Close(); err != nil {
		return CheckResult{Name: name, Message: err.Error()}
	}
	return CheckResult{Name: name, Passed: true, Message: "sqlite " + cfg.IndexPath()}
}

// FormatReport formats the health report for console output
func FormatReport(report *HealthReport) string {
	var sb strings.Builder
	for _, check := range report.Checks {
		mark := "✓"
		if !check.Passed {
			mark = "✗"
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", mark, check.Name, check.Message)
	}
	return sb.String()
}
