// Package blob implements ports.BlobStore on the local filesystem and on S3.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sufield/popc/internal/ports"
)

// ErrInvalidKey is returned for keys that are empty or would escape the
// store's namespace.
var ErrInvalidKey = errors.New("blob: invalid key")

func checkKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// FS stores blobs as files in one directory.
type FS struct {
	dir     string
	baseURL string
}

// NewFS creates dir if needed. URLs returned by Put are baseURL joined with
// the key, or file URLs when baseURL is empty.
func NewFS(dir, baseURL string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("blob dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("blob dir: %w", err)
	}
	return &FS{dir: abs, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Put writes data under key. An existing blob with the same key is replaced.
func (s *FS) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+".*")
	if err != nil {
		return "", fmt.Errorf("blob %s: %w", key, err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blob %s: %w", key, err)
	}
	dst := filepath.Join(s.dir, key)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("blob %s: %w", key, err)
	}

	if s.baseURL != "" {
		return s.baseURL + "/" + url.PathEscape(key), nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(dst)}).String(), nil
}

var _ ports.BlobStore = (*FS)(nil)
