package stages

import (
	"context"

	"vigil/internal/logging"
	"vigil/internal/media"
	"vigil/internal/pipeline"
	"vigil/internal/services"
)

// Preprocess prepares the staging workspace and records authoritative media
// metadata on the video row. Submission metadata may be partial; the probe
// here is what the rest of the pipeline trusts.
func (r *Runner) Preprocess(ctx context.Context, st *State) error {
	if err := st.Workspace.Ensure(); err != nil {
		return services.Wrap(services.ErrTransient, pipeline.StagePreprocess, "prepare workspace",
			"could not create the staging workspace", err)
	}

	probe, err := media.Inspect(ctx, r.cfg.FFprobeBinary(), st.Video.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, pipeline.StagePreprocess, "probe source",
			"ffprobe could not inspect the source file", err)
	}

	if !probe.HasAudioStream() {
		logging.WithContext(ctx, r.logger).Warn("source carries no audio stream",
			logging.String(logging.FieldEventType, "missing_audio_stream"),
			logging.String(logging.FieldImpact, "audio extraction will fail and the execution will not complete"),
			logging.String(logging.FieldErrorHint, "remux the source with an audio track or reject the submission"),
		)
	}

	st.Video.DurationSeconds = probe.DurationSeconds()
	if size := probe.SizeBytes(); size > 0 {
		st.Video.SizeBytes = size
	}
	if st.Video.Format == "" {
		st.Video.Format = media.NormalizeFormat(st.Video.SourcePath)
	}
	if err := r.store.UpdateVideo(ctx, st.Video); err != nil {
		return services.Wrap(services.ErrTransient, pipeline.StagePreprocess, "persist metadata",
			"could not persist probed media metadata", err)
	}

	logging.WithContext(ctx, r.logger).Info("source preprocessed",
		logging.Float64("duration_seconds", st.Video.DurationSeconds),
		logging.Int64("size_bytes", st.Video.SizeBytes),
		logging.String("format", st.Video.Format),
	)
	return nil
}
