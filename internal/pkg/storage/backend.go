package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pmbdev/intake/internal/pkg/env"
)

// Backend persists artifact bytes under canonical paths.
type Backend interface {
	Put(ctx context.Context, canonicalPath string, body io.ReadSeeker, size int64, contentType string) error
	URL(canonicalPath string) string
	// Delete treats a missing object as success.
	Delete(ctx context.Context, canonicalPath string) error
	Ping(ctx context.Context) error
	Name() string
}

// NewBackendFromEnv builds the backend selected by STORAGE_DRIVER.
func NewBackendFromEnv(ctx context.Context) (Backend, error) {
	switch strings.ToLower(env.GetEnv("STORAGE_DRIVER", "local")) {
	case "s3":
		cfg, err := LoadS3Config()
		if err != nil {
			return nil, err
		}
		return NewS3Backend(ctx, cfg)
	default:
		base := strings.TrimSpace(env.GetEnv("STORAGE_PUBLIC_URL", ""))
		if base == "" {
			base = strings.TrimRight(env.GetEnv("APP_URL", ""), "/") + "/storage"
		}
		return NewLocalBackend(env.GetEnv("STORAGE_ROOT", "./storage/app/public"), base), nil
	}
}

// LocalBackend writes artifacts below a root directory served as static files.
type LocalBackend struct {
	root    string
	baseURL string
}

func NewLocalBackend(root, baseURL string) *LocalBackend {
	return &LocalBackend{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) Root() string { return b.root }

func (b *LocalBackend) fullPath(canonicalPath string) string {
	return filepath.Join(b.root, filepath.FromSlash(canonicalPath))
}

// Put writes to a temp file in the target directory and renames it into place.
func (b *LocalBackend) Put(ctx context.Context, canonicalPath string, body io.ReadSeeker, size int64, contentType string) error {
	_ = ctx
	_ = contentType
	fullPath := b.fullPath(canonicalPath)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("short write: %d of %d bytes", written, size)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file %s: %w", canonicalPath, err)
	}

	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move file into %s: %w", canonicalPath, err)
	}
	log.Debugf("[Artifact] Saved %s (%d bytes)", canonicalPath, written)
	return nil
}

func (b *LocalBackend) URL(canonicalPath string) string {
	if b.baseURL == "" {
		return "/storage/" + canonicalPath
	}
	u, err := url.JoinPath(b.baseURL, canonicalPath)
	if err != nil {
		return b.baseURL + "/" + canonicalPath
	}
	return u
}

func (b *LocalBackend) Delete(ctx context.Context, canonicalPath string) error {
	_ = ctx
	if err := os.Remove(b.fullPath(canonicalPath)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file %s: %w", canonicalPath, err)
	}
	return nil
}

func (b *LocalBackend) Ping(ctx context.Context) error {
	_ = ctx
	info, err := os.Stat(b.root)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(b.root, 0755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", b.root)
	}
	return nil
}
