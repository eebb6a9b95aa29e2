package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/metrics"
	"github.com/pmbdev/intake/internal/pkg/upload"
)

const (
	defaultDeleteTimeout = 30 * time.Second
	sniffLen             = 512
)

// Upload is one incoming file.
type Upload struct {
	Class    upload.Class
	Filename string
	Size     int64
	Content  io.Reader
}

// Artifact is a stored file.
type Artifact struct {
	Path string `json:"path"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	MIME string `json:"mime"`
}

// DeleteReport is the outcome of a best-effort bulk delete.
type DeleteReport struct {
	Deleted []string
	Failed  map[string]error
}

func (r DeleteReport) OK() bool { return len(r.Failed) == 0 }

// Coordinator owns the artifact lifecycle on top of a Backend.
type Coordinator struct {
	backend       Backend
	dispatch      func(func())
	deleteTimeout time.Duration
}

func NewCoordinator(backend Backend) *Coordinator {
	return &Coordinator{
		backend:       backend,
		dispatch:      func(fn func()) { go fn() },
		deleteTimeout: defaultDeleteTimeout,
	}
}

// WithSyncDeletes runs background deletes inline.
func (c *Coordinator) WithSyncDeletes() *Coordinator {
	c.dispatch = func(fn func()) { fn() }
	return c
}

func (c *Coordinator) Backend() Backend { return c.backend }

// URL derives the public URL of a stored path. Unusable input yields "".
func (c *Coordinator) URL(stored string) string {
	p, ok := NormalizePath(stored)
	if !ok {
		return ""
	}
	return c.backend.URL(p)
}

// Store validates and persists one upload under scope with a fresh name.
func (c *Coordinator) Store(ctx context.Context, scope string, up Upload) (Artifact, error) {
	rule, err := upload.ValidateMeta(up.Class, up.Filename, up.Size)
	if err != nil {
		metrics.ObserveArtifact("store", err)
		return Artifact{}, err
	}
	if up.Content == nil {
		err := apperr.Validation("File tidak ditemukan")
		metrics.ObserveArtifact("store", err)
		return Artifact{}, err
	}

	// Read one byte past the ceiling so an understated size is caught.
	buf, err := io.ReadAll(io.LimitReader(up.Content, rule.MaxBytes+1))
	if err != nil {
		err = apperr.Wrap(err, apperr.CodeStorage, "Gagal membaca file")
		metrics.ObserveArtifact("store", err)
		return Artifact{}, err
	}
	if _, err := upload.ValidateMeta(up.Class, up.Filename, int64(len(buf))); err != nil {
		metrics.ObserveArtifact("store", err)
		return Artifact{}, err
	}

	head := buf
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	mime, err := upload.ValidateContent(rule, head)
	if err != nil {
		metrics.ObserveArtifact("store", err)
		return Artifact{}, err
	}

	scope = strings.Trim(path.Clean("/"+strings.ReplaceAll(scope, "\\", "/")), "/")
	name := uuid.New().String() + strings.ToLower(filepath.Ext(up.Filename))
	canonical := name
	if scope != "" {
		canonical = path.Join(scope, name)
	}

	if err := c.backend.Put(ctx, canonical, bytes.NewReader(buf), int64(len(buf)), mime); err != nil {
		log.Errorf("[Artifact] Failed to store %s: %v", canonical, err)
		err = apperr.Wrap(err, apperr.CodeStorage, "Gagal menyimpan file")
		metrics.ObserveArtifact("store", err)
		return Artifact{}, err
	}
	metrics.ObserveArtifact("store", nil)

	return Artifact{
		Path: canonical,
		Name: path.Base(up.Filename),
		URL:  c.backend.URL(canonical),
		Size: int64(len(buf)),
		MIME: mime,
	}, nil
}

// Delete removes one stored file. Unusable paths are ignored.
func (c *Coordinator) Delete(ctx context.Context, stored string) error {
	p, ok := NormalizePath(stored)
	if !ok {
		return nil
	}
	err := c.backend.Delete(ctx, p)
	metrics.ObserveArtifact("delete", err)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeStorage, "Gagal menghapus file")
	}
	return nil
}

// DeleteAll attempts every path and never stops at the first failure.
func (c *Coordinator) DeleteAll(ctx context.Context, paths []string) DeleteReport {
	report := DeleteReport{Failed: make(map[string]error)}
	seen := make(map[string]struct{}, len(paths))
	for _, raw := range paths {
		p, ok := NormalizePath(raw)
		if !ok {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		if err := c.Delete(ctx, p); err != nil {
			report.Failed[p] = err
			continue
		}
		report.Deleted = append(report.Deleted, p)
	}
	return report
}

// DeleteAllAsync deletes paths detached from any request context and logs
// whatever could not be removed.
func (c *Coordinator) DeleteAllAsync(paths []string, reason string) {
	if len(paths) == 0 {
		return
	}
	toDelete := append([]string(nil), paths...)
	c.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.deleteTimeout)
		defer cancel()
		report := c.DeleteAll(ctx, toDelete)
		for p, err := range report.Failed {
			log.Warnf("[Artifact] Orphaned file after %s: %s: %v", reason, p, err)
		}
		if len(report.Deleted) > 0 {
			log.Debugf("[Artifact] Deleted %d file(s) after %s", len(report.Deleted), reason)
		}
	})
}

// Replace stores up, runs persist with the new artifact and only then
// retires oldPath. When persist fails the new file is removed and the old
// one is left untouched.
func (c *Coordinator) Replace(ctx context.Context, scope, oldPath string, up Upload, persist func(context.Context, Artifact) error) (Artifact, error) {
	cs := c.Begin()
	a, err := cs.Store(ctx, scope, up)
	if err != nil {
		return Artifact{}, err
	}
	cs.Retire(oldPath)
	if err := cs.Commit(ctx, func(ctx context.Context) error { return persist(ctx, a) }); err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// Begin starts a multi-file change.
func (c *Coordinator) Begin() *Changeset {
	return &Changeset{c: c}
}

// Changeset tracks files stored and retired by one record mutation so the
// record and the storage never disagree about which files are live.
type Changeset struct {
	c       *Coordinator
	mu      sync.Mutex
	stored  []string
	retired []string
	done    bool
}

func (cs *Changeset) Store(ctx context.Context, scope string, up Upload) (Artifact, error) {
	a, err := cs.c.Store(ctx, scope, up)
	if err != nil {
		return Artifact{}, err
	}
	cs.mu.Lock()
	cs.stored = append(cs.stored, a.Path)
	cs.mu.Unlock()
	return a, nil
}

// Retire schedules a path for deletion once the change commits.
func (cs *Changeset) Retire(paths ...string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, raw := range paths {
		if p, ok := NormalizePath(raw); ok {
			cs.retired = append(cs.retired, p)
		}
	}
}

// Stored lists the paths written so far.
func (cs *Changeset) Stored() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.stored...)
}

// Rollback removes every file stored through the changeset.
func (cs *Changeset) Rollback(ctx context.Context) {
	cs.mu.Lock()
	if cs.done {
		cs.mu.Unlock()
		return
	}
	cs.done = true
	stored := cs.stored
	cs.mu.Unlock()

	report := cs.c.DeleteAll(ctx, stored)
	for p, err := range report.Failed {
		log.Warnf("[Artifact] Rollback left orphan %s: %v", p, err)
	}
}

// Commit runs persist. On error the new files are rolled back, on success
// the retired files are deleted in the background.
func (cs *Changeset) Commit(ctx context.Context, persist func(context.Context) error) error {
	if err := persist(ctx); err != nil {
		cs.Rollback(context.WithoutCancel(ctx))
		return err
	}

	cs.mu.Lock()
	if cs.done {
		cs.mu.Unlock()
		return fmt.Errorf("changeset already finished")
	}
	cs.done = true
	live := make(map[string]struct{}, len(cs.stored))
	for _, p := range cs.stored {
		live[p] = struct{}{}
	}
	retired := make([]string, 0, len(cs.retired))
	for _, p := range cs.retired {
		if _, keep := live[p]; !keep {
			retired = append(retired, p)
		}
	}
	cs.mu.Unlock()

	cs.c.DeleteAllAsync(retired, "replace")
	return nil
}
