package preflight

import (
	"context"

	"vigil/internal/config"
)

// Result reports the outcome of a single preflight check. Optional results
// describe dependencies the daemon can start without.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// HealthChecker is any collaborator that can report its own liveness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries the collaborators preflight can exercise. Nil fields skip
// their checks, so callers without an open store or gateway client still get
// the filesystem and binary checks.
type Deps struct {
	PipelineStore HealthChecker
	ReviewStore   HealthChecker
	Gateway       HealthChecker
}

// RunAll executes every applicable preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config, deps Deps) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Artifact directory", cfg.Storage.ArtifactDir),
		CheckDiskSpace("Staging disk space", cfg.Paths.StagingDir, cfg.Validation.MaxFileSizeBytes),
	}

	for _, req := range SystemRequirements(cfg) {
		results = append(results, CheckBinary(req))
	}

	if deps.PipelineStore != nil {
		results = append(results, CheckStore(ctx, "Pipeline store", deps.PipelineStore))
	}
	if deps.ReviewStore != nil {
		results = append(results, CheckStore(ctx, "Review store", deps.ReviewStore))
	}
	if deps.Gateway != nil {
		results = append(results, CheckGateway(ctx, deps.Gateway))
	}

	return results
}

// Failures returns the non-optional failed results. The daemon refuses to
// start while this is non-empty; optional failures only warn.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}
