package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// FramePattern names frame files inside a frames directory. ffmpeg expands
// the %04d counter starting at 1.
const FramePattern = "frame_%04d.jpg"

// ExtractAudio extracts the source's audio into a mono 16kHz PCM WAV file
// suitable for speech transcription.
func ExtractAudio(ctx context.Context, ffmpegBinary, source, dest string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("extract audio: empty source")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ExtractFrames samples the source at the given rate into destDir as JPEG
// stills named by FramePattern. A rate of 1 yields one frame per second.
func ExtractFrames(ctx context.Context, ffmpegBinary, source, destDir string, fps float64) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("extract frames: empty source")
	}
	if fps <= 0 {
		fps = 1
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("extract frames: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vf", fmt.Sprintf("fps=%g", fps),
		"-q:v", "2",
		filepath.Join(destDir, FramePattern),
	}
	cmd := exec.CommandContext(ctx, ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract frames: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// ListFrames returns the frame files under dir in counter order.
func ListFrames(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}
