// Package localfs implements storage.Provider on the local filesystem.
// Objects written under <dataRoot>/media/<key> are served by the HTTP layer
// at <publicBaseURL>/media/<key>.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Provider stores media files below a local data root.
type Provider struct {
	dataRoot      string
	publicBaseURL string
}

// New creates a filesystem storage provider. dataRoot is the directory that
// holds the media tree; publicBaseURL is the externally reachable base URL.
func New(dataRoot, publicBaseURL string) (*Provider, error) {
	abs, err := filepath.Abs(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve data root: %w", err)
	}
	return &Provider{
		dataRoot:      abs,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// MediaDir returns the directory the HTTP layer serves as /media.
func (p *Provider) MediaDir() string {
	return filepath.Join(p.dataRoot, "media")
}

// Put writes data under the media root.
func (p *Provider) Put(_ context.Context, key string, reader io.Reader) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Open reads a stored object.
func (p *Provider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	dest, err := p.hostPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Delete removes a stored object.
func (p *Provider) Delete(_ context.Context, key string) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// AccessPath returns the public URL for a storage key.
func (p *Provider) AccessPath(key string) string {
	return p.publicBaseURL + "/media/" + strings.TrimLeft(filepath.ToSlash(key), "/")
}

// hostPath converts a storage key into the on-disk file path, rejecting
// traversal outside the data root.
func (p *Provider) hostPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute key is forbidden: %s", key)
	}
	if strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", fmt.Errorf("path traversal is forbidden: %s", key)
	}
	joined := filepath.Join(p.dataRoot, "media", clean)
	if !strings.HasPrefix(joined, p.dataRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes data root: %s", key)
	}
	return joined, nil
}
