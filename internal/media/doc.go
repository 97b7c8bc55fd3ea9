// Package media wraps the ffmpeg and ffprobe binaries for submission
// validation, audio extraction, and frame sampling.
package media
