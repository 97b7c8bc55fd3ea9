package stages

import (
	"context"
	"encoding/json"
	"os"

	"vigil/internal/logging"
	"vigil/internal/pipeline"
	"vigil/internal/services"
)

// CompileReport persists the combined detection set and synthesizes the
// moderation report. The report is compiled from the trigger table, not from
// the in-memory detections, so adjudicated triggers stay excluded from any
// later compilation. Trigger rows are append-only, so a retried compile skips
// the save once this run has appended its set.
func (r *Runner) CompileReport(ctx context.Context, st *State) error {
	saved := 0
	if !st.DetectionsSaved {
		n, err := r.store.SaveDetections(ctx, st.Video.ID, st.Detections())
		if err != nil {
			return services.Wrap(services.ErrTransient, pipeline.StageCompileReport, "persist detections",
				"could not persist the detection set", err)
		}
		saved = n
		st.DetectionsSaved = true
	}

	report, err := r.store.CompileReport(ctx, st.Video.ID, r.catalog)
	if err != nil {
		return services.Wrap(services.ErrTransient, pipeline.StageCompileReport, "compile report",
			"could not compile the moderation report", err)
	}
	st.Report = report

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrFatal, pipeline.StageCompileReport, "encode report",
			"could not encode the moderation report", err)
	}
	if err := os.WriteFile(st.Workspace.ReportPath(), encoded, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, pipeline.StageCompileReport, "persist report",
			"could not persist the report artifact", err)
	}
	if err := r.uploadArtifact(ctx, pipeline.StageCompileReport, st.Workspace.ReportPath(), artifactKey(st.Video.ID, "report.json")); err != nil {
		return err
	}

	logging.WithContext(ctx, r.logger).Info("moderation report compiled",
		logging.Int("detections_saved", saved),
		logging.Int("total_triggers", report.TotalTriggers),
		logging.Int("pending_triggers", report.PendingTriggers),
	)
	return nil
}
