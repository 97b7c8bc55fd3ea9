// Package storage persists pipeline artifacts (extracted audio, frame
// stills, compiled reports) behind a small interface with a local
// filesystem implementation and a signed-URL cache.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vigil/internal/fileutil"
)

// Store describes artifact persistence. Keys use forward slashes and are
// relative to the store's root.
type Store interface {
	// Upload persists localPath under remoteKey and returns an access URL.
	Upload(ctx context.Context, localPath, remoteKey string) (string, error)
	// SignedURL returns a time-limited access URL for an existing artifact.
	SignedURL(ctx context.Context, remoteKey string, ttl time.Duration) (string, error)
}

// Local stores artifacts under a root directory on the local filesystem.
// URLs are file:// URLs carrying an expires query parameter so callers see
// the same shape a remote object store would give them.
type Local struct {
	root string
}

var _ Store = (*Local)(nil)

// NewLocal creates the root directory if needed and returns a local store.
func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("artifact root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Local{root: root}, nil
}

// Root returns the artifact root directory.
func (l *Local) Root() string {
	return l.root
}

// Upload copies localPath under the key with integrity verification.
func (l *Local) Upload(ctx context.Context, localPath, remoteKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest, err := l.resolve(remoteKey)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if err := fileutil.CopyFileVerified(localPath, dest); err != nil {
		return "", fmt.Errorf("upload artifact %s: %w", remoteKey, err)
	}
	return signURL(dest, time.Now().Add(24*time.Hour)), nil
}

// SignedURL returns a fresh URL for an existing artifact.
func (l *Local) SignedURL(ctx context.Context, remoteKey string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dest, err := l.resolve(remoteKey)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dest); err != nil {
		return "", fmt.Errorf("sign artifact %s: %w", remoteKey, err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return signURL(dest, time.Now().Add(ttl)), nil
}

// resolve maps a key onto the root, rejecting keys that would escape it.
func (l *Local) resolve(remoteKey string) (string, error) {
	key := strings.TrimSpace(remoteKey)
	if key == "" {
		return "", errors.New("artifact key is required")
	}
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("artifact key %q is empty after cleaning", remoteKey)
	}
	relative := strings.TrimPrefix(cleaned, "/")
	if strings.HasPrefix(relative, "..") {
		return "", fmt.Errorf("artifact key %q escapes the store root", remoteKey)
	}
	return filepath.Join(l.root, filepath.FromSlash(relative)), nil
}

func signURL(dest string, expires time.Time) string {
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(dest),
		RawQuery: "expires=" + strconv.FormatInt(expires.Unix(), 10),
	}
	return u.String()
}
