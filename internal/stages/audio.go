package stages

import (
	"context"
	"os"

	"vigil/internal/logging"
	"vigil/internal/media"
	"vigil/internal/pipeline"
	"vigil/internal/services"
)

// ExtractAudio renders the source's audio track into the mono 16 kHz wav the
// transcription model expects.
func (r *Runner) ExtractAudio(ctx context.Context, st *State) error {
	dest := st.Workspace.AudioPath()
	if err := media.ExtractAudio(ctx, r.cfg.FFmpegBinary(), st.Video.SourcePath, dest); err != nil {
		return services.Wrap(services.ErrExternalTool, pipeline.StageExtractAudio, "extract audio",
			"ffmpeg could not produce the audio track", err)
	}
	st.Audio.AudioPath = dest

	if err := r.uploadArtifact(ctx, pipeline.StageExtractAudio, dest, artifactKey(st.Video.ID, "audio.wav")); err != nil {
		return err
	}

	logging.WithContext(ctx, r.logger).Info("audio track extracted",
		logging.String("audio_path", dest),
	)
	return nil
}

// Transcribe sends the extracted audio to the inference gateway and persists
// the transcript into the workspace so a resumed run can skip this call.
func (r *Runner) Transcribe(ctx context.Context, st *State) error {
	audioPath := st.Audio.AudioPath
	if audioPath == "" {
		audioPath = st.Workspace.AudioPath()
	}
	if _, err := os.Stat(audioPath); err != nil {
		return services.Wrap(services.ErrValidation, pipeline.StageTranscribe, "locate audio",
			"audio track unavailable; extraction has not produced one", err)
	}

	transcript, err := r.gateway.Transcribe(ctx, audioPath)
	if err != nil {
		return wrapGatewayError(pipeline.StageTranscribe, "transcribe audio",
			"inference gateway could not transcribe the audio track", err)
	}
	st.Audio.Transcript = transcript
	st.Audio.APICalls++

	if err := saveTranscript(st.Workspace.TranscriptPath(), transcript); err != nil {
		return services.Wrap(services.ErrTransient, pipeline.StageTranscribe, "persist transcript",
			"could not persist the transcript artifact", err)
	}
	if err := r.uploadArtifact(ctx, pipeline.StageTranscribe, st.Workspace.TranscriptPath(), artifactKey(st.Video.ID, "transcript.json")); err != nil {
		return err
	}

	logging.WithContext(ctx, r.logger).Info("transcription complete",
		logging.String("language", transcript.Language),
		logging.Int("segments", len(transcript.Segments)),
	)
	return nil
}
