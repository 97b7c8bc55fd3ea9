// Package testsupport centralizes test constructors so suites share one way
// of building configs, stores, and fixture files.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vigil/internal/config"
)

// ConfigOption customizes the config built by NewConfig.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig returns a validated config rooted in a per-test temp directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	baseDir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(baseDir, "data")
	cfg.Paths.StagingDir = filepath.Join(baseDir, "staging")
	cfg.Paths.LogDir = filepath.Join(baseDir, "logs")
	cfg.Storage.ArtifactDir = filepath.Join(baseDir, "artifacts")

	builder := &configBuilder{t: t, baseDir: baseDir, cfg: &cfg}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithValues applies arbitrary mutations to the config under construction.
func WithValues(mutate func(cfg *config.Config)) ConfigOption {
	return func(b *configBuilder) {
		mutate(b.cfg)
	}
}

// WithStubbedBinaries places executable stubs for the named binaries on PATH
// for the duration of the test. With no names it stubs ffmpeg and ffprobe.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("create stub bin dir: %v", err)
		}
		for _, name := range names {
			script := []byte("#!/bin/sh\nexit 0\n")
			if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
				b.t.Fatalf("write stub binary %s: %v", name, err)
			}
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("prepend stub bin dir to PATH: %v", err)
		}
		b.t.Cleanup(func() {
			if err := os.Setenv("PATH", oldPath); err != nil {
				b.t.Errorf("restore PATH: %v", err)
			}
		})
	}
}

// WithBinaryScript places one executable stub with the given shell body on
// PATH for the duration of the test. Used where a stub needs to emit output,
// such as a canned ffprobe JSON document.
func WithBinaryScript(name, script string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("create stub bin dir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(binDir, name), []byte(script), 0o755); err != nil {
			b.t.Fatalf("write stub binary %s: %v", name, err)
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("prepend stub bin dir to PATH: %v", err)
		}
		b.t.Cleanup(func() {
			if err := os.Setenv("PATH", oldPath); err != nil {
				b.t.Errorf("restore PATH: %v", err)
			}
		})
	}
}

// MustEnsureDirectories creates the config's directories or fails the test.
func MustEnsureDirectories(t testing.TB, cfg *config.Config) {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
}
