package preflight

import (
	"fmt"
	"os/exec"

	"vigil/internal/config"
)

// Requirement names an external binary the pipeline shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
}

// SystemRequirements lists the binaries a configured pipeline needs. The
// commands come from config so operators can point at custom builds.
func SystemRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "required for audio and frame extraction",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "required for source media inspection",
		},
	}
}

// CheckBinary resolves a requirement on PATH, or as an absolute path when
// the configured command contains a separator.
func CheckBinary(req Requirement) Result {
	result := Result{Name: req.Name}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		result.Detail = fmt.Sprintf("%s not found (%s)", req.Command, req.Description)
		return result
	}

	result.Passed = true
	result.Detail = path
	return result
}
