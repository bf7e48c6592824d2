// Package blob is the opaque upload capability consumed by maintenance logs
// and document attachments: bytes in, URL out.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists an opaque payload and returns a URL for it.
type Store interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
}

// Filesystem keeps uploads under a workspace directory and returns file URLs.
type Filesystem struct {
	Root string
}

func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		return nil, fmt.Errorf("blob root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{Root: root}, nil
}

func (f *Filesystem) Store(ctx context.Context, name string, data []byte) (string, error) {
	name = sanitize(name)
	if name == "" {
		return "", fmt.Errorf("blob name is required")
	}
	path := filepath.Join(f.Root, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func sanitize(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}
