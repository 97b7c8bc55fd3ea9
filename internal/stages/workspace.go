package stages

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is the per-video staging directory where stages leave their
// intermediate artifacts. Artifacts survive process restarts so a resumed
// execution can skip completed stages without re-running them.
type Workspace struct {
	dir string
}

// NewWorkspace returns the workspace rooted under the staging directory.
func NewWorkspace(stagingDir, videoID string) Workspace {
	return Workspace{dir: filepath.Join(stagingDir, videoID)}
}

// Dir returns the workspace root for this video.
func (w Workspace) Dir() string {
	return w.dir
}

// Ensure creates the workspace directory tree.
func (w Workspace) Ensure() error {
	if err := os.MkdirAll(w.FramesDir(), 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	return nil
}

// AudioPath returns the location of the extracted mono wav track.
func (w Workspace) AudioPath() string {
	return filepath.Join(w.dir, "audio.wav")
}

// FramesDir returns the directory holding sampled frames.
func (w Workspace) FramesDir() string {
	return filepath.Join(w.dir, "frames")
}

// TranscriptPath returns the location of the persisted transcript.
func (w Workspace) TranscriptPath() string {
	return filepath.Join(w.dir, "transcript.json")
}

// LexicalDetectionsPath returns the location of the persisted lexical scan
// detections.
func (w Workspace) LexicalDetectionsPath() string {
	return filepath.Join(w.dir, "lexical_detections.json")
}

// FrameDetectionsPath returns the location of the persisted visual branch
// detections.
func (w Workspace) FrameDetectionsPath() string {
	return filepath.Join(w.dir, "frame_detections.json")
}

// ReportPath returns the location of the compiled moderation report.
func (w Workspace) ReportPath() string {
	return filepath.Join(w.dir, "report.json")
}

// Remove deletes the workspace and everything in it.
func (w Workspace) Remove() error {
	if w.dir == "" {
		return nil
	}
	return os.RemoveAll(w.dir)
}
