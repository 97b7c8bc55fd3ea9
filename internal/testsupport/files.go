package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates a file of the given size filled with a repeating byte,
// creating parent directories as needed.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent directory: %v", err)
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			t.Fatalf("close file: %v", err)
		}
	}()

	const chunkSize = 32 * 1024
	chunk := make([]byte, chunkSize)
	for i := range chunk {
		chunk[i] = 0x42
	}
	remaining := size
	for remaining > 0 {
		n := int64(chunkSize)
		if remaining < n {
			n = remaining
		}
		if _, err := file.Write(chunk[:n]); err != nil {
			t.Fatalf("write file contents: %v", err)
		}
		remaining -= n
	}
}

// SampleVideo creates a placeholder video file under dir and returns its
// path. The content is inert; tests stub the binaries that would read it.
func SampleVideo(t testing.TB, dir, name string, size int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	WriteFile(t, path, size)
	return path
}
