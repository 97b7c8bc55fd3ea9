package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vigil/internal/services"
)

// Limits bounds what a submitted video may look like. Zero fields disable
// their check.
type Limits struct {
	MaxSizeBytes       int64
	MaxDurationSeconds int
	AllowedFormats     []string
}

// SourceInfo is what validation learned about an accepted submission.
type SourceInfo struct {
	SizeBytes       int64
	DurationSeconds float64
	Format          string
}

// ValidateSource checks a submitted file against the configured limits and
// probes it for basic sanity. Any failure is a validation error: the
// submission is rejected outright rather than retried.
func ValidateSource(ctx context.Context, ffprobeBinary, path string, limits Limits) (*SourceInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "validate source",
			fmt.Sprintf("source file %s is not readable", path), err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "", "validate source",
			fmt.Sprintf("source %s is a directory", path), nil)
	}
	if limits.MaxSizeBytes > 0 && info.Size() > limits.MaxSizeBytes {
		return nil, services.Wrap(services.ErrValidation, "", "validate source",
			fmt.Sprintf("file size %d exceeds limit %d bytes", info.Size(), limits.MaxSizeBytes), nil)
	}

	format := NormalizeFormat(path)
	if len(limits.AllowedFormats) > 0 && !formatAllowed(format, limits.AllowedFormats) {
		return nil, services.Wrap(services.ErrValidation, "", "validate source",
			fmt.Sprintf("format %q is not allowed (accepted: %s)", format, strings.Join(limits.AllowedFormats, ", ")), nil)
	}

	probe, err := Inspect(ctx, ffprobeBinary, path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "validate source", "source is not probeable media", err)
	}
	if !probe.HasVideoStream() {
		return nil, services.Wrap(services.ErrValidation, "", "validate source", "source carries no video stream", nil)
	}
	duration := probe.DurationSeconds()
	if limits.MaxDurationSeconds > 0 && duration > float64(limits.MaxDurationSeconds) {
		return nil, services.Wrap(services.ErrValidation, "", "validate source",
			fmt.Sprintf("duration %.1fs exceeds limit %ds", duration, limits.MaxDurationSeconds), nil)
	}

	size := probe.SizeBytes()
	if size == 0 {
		size = info.Size()
	}
	return &SourceInfo{
		SizeBytes:       size,
		DurationSeconds: duration,
		Format:          format,
	}, nil
}

// NormalizeFormat derives the container format from the file extension,
// lowercased without the leading dot.
func NormalizeFormat(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func formatAllowed(format string, allowed []string) bool {
	for _, candidate := range allowed {
		if strings.EqualFold(strings.TrimSpace(candidate), format) {
			return true
		}
	}
	return false
}
