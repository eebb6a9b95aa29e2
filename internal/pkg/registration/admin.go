package registration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pmbdev/intake/app/repository"
	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/phone"
	"github.com/pmbdev/intake/internal/pkg/projector"
	"github.com/pmbdev/intake/internal/pkg/schema"
	"github.com/pmbdev/intake/internal/pkg/storage"
	"github.com/pmbdev/intake/internal/pkg/upload"
)

// Change is an admin edit of one registration.
type Change struct {
	Fields map[string]any
	// RemoveFiles names slots whose file is cleared, e.g. "foto" or "kip_ktp".
	RemoveFiles []string
	// Files replaces slot files and appends to file lists, keyed by slot
	// name, form field or list field.
	Files map[string][]storage.Upload
}

func (s *Service) load(ctx context.Context, d *schema.Descriptor, id uint64) (projector.Row, error) {
	row, err := s.repo.GetByID(ctx, d, id)
	if err != nil {
		if errors.Is(err, repository.ErrRegistrationNotFound) {
			return nil, apperr.Wrap(err, apperr.CodeNotFound, "Data pendaftaran tidak ditemukan.")
		}
		return nil, err
	}
	return row, nil
}

func (s *Service) Show(ctx context.Context, v schema.Variant, id uint64) (*projector.View, error) {
	d := schema.For(v)
	row, err := s.load(ctx, d, id)
	if err != nil {
		return nil, err
	}
	view := s.projector.ForRead(d, row)
	return &view, nil
}

// Update applies an admin edit. Replaced and removed files are deleted in
// the background once the row is saved; new files are removed again when
// saving fails.
func (s *Service) Update(ctx context.Context, v schema.Variant, id uint64, ch Change) (*projector.View, error) {
	d := schema.For(v)
	row, err := s.load(ctx, d, id)
	if err != nil {
		return nil, err
	}

	ws, dropped := projector.ForWrite(d, ch.Fields)
	if len(dropped) > 0 {
		log.Debugf("[Registration] %s #%d update ignored fields %v", v, id, dropped)
	}
	values := map[string]any(ws)

	if col := d.Column("nomor_hp"); values[col] != nil {
		normalized := phone.Normalize(projector.AsString(values[col]), s.countryCode)
		if normalized == "" {
			return nil, apperr.Validation("Nomor HP tidak valid")
		}
		values[col] = normalized
	}
	for _, unique := range []string{"alamat_email", "username"} {
		col := d.Column(unique)
		if col == "" || values[col] == nil {
			continue
		}
		taken, err := s.repo.Exists(ctx, d, col, projector.AsString(values[col]), id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict(fmt.Sprintf("%s sudah digunakan.", unique))
		}
	}

	slotUploads, listUploads, err := splitUploads(d, ch.Files)
	if err != nil {
		return nil, err
	}

	cs := s.artifacts.Begin()
	for _, name := range ch.RemoveFiles {
		slot, ok := d.Slot(strings.TrimSpace(name))
		if !ok {
			log.Debugf("[Registration] %s #%d has no file slot %q", v, id, name)
			continue
		}
		cs.Retire(storedPath(d, slot, row))
		setSlot(d, slot, values, nil)
	}

	scope := fmt.Sprintf("pmb/%s/%d", v, id)
	for _, slot := range d.Slots() {
		up, ok := slotUploads[slot.Name]
		if !ok {
			continue
		}
		up.Class = slot.Class
		a, err := cs.Store(ctx, scope+"/"+slot.Name, up)
		if err != nil {
			cs.Rollback(context.WithoutCancel(ctx))
			return nil, err
		}
		cs.Retire(storedPath(d, slot, row))
		setSlot(d, slot, values, &a)
	}
	for _, l := range d.FileLists() {
		ups := listUploads[l.Field]
		if len(ups) == 0 {
			continue
		}
		paths := make([]string, 0, len(ups))
		for _, up := range ups {
			up.Class = l.Class
			a, err := cs.Store(ctx, scope+"/"+l.FormField, up)
			if err != nil {
				cs.Rollback(context.WithoutCancel(ctx))
				return nil, err
			}
			paths = append(paths, a.Path)
		}
		merged, err := storage.MergeAppend(row[d.Column(l.Field)], paths)
		if err != nil {
			cs.Rollback(context.WithoutCancel(ctx))
			return nil, err
		}
		values[d.Column(l.Field)] = merged
		values[d.Column("berkas_terunggah")] = true
	}

	if len(values) == 0 {
		view := s.projector.ForRead(d, row)
		return &view, nil
	}
	values[d.Column("updated_at")] = s.now()

	err = cs.Commit(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, d, id, values)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateRegistration) {
			return nil, apperr.Wrap(err, apperr.CodeConflict, "Email atau username sudah digunakan.")
		}
		return nil, err
	}

	log.Infof("[Registration] %s #%d updated (%s)", v, id, strings.Join(projector.WriteSet(values).Canonical(d), ", "))
	return s.Show(ctx, v, id)
}

// Delete removes the row first and its files afterwards, in the background.
// A storage outage never fails the delete.
func (s *Service) Delete(ctx context.Context, v schema.Variant, id uint64) error {
	d := schema.For(v)
	row, err := s.load(ctx, d, id)
	if err != nil {
		return err
	}
	paths := projector.Paths(d, row)

	if err := s.repo.Delete(ctx, d, id); err != nil {
		if errors.Is(err, repository.ErrRegistrationNotFound) {
			return apperr.Wrap(err, apperr.CodeNotFound, "Data pendaftaran tidak ditemukan.")
		}
		return err
	}

	log.Infof("[Registration] %s #%d deleted, releasing %d file(s)", v, id, len(paths))
	s.artifacts.DeleteAllAsync(paths, fmt.Sprintf("%s #%d deleted", v, id))
	return nil
}

// storedPath returns the live path of a slot, falling back to its URL column.
func storedPath(d *schema.Descriptor, slot schema.Slot, row projector.Row) string {
	if p := projector.AsString(row[d.Column(slot.PathField)]); strings.TrimSpace(p) != "" {
		return p
	}
	if slot.URLField != "" {
		return projector.AsString(row[d.Column(slot.URLField)])
	}
	return ""
}

// splitUploads sorts edit uploads into slot replacements and list appends,
// validating each before anything is stored.
func splitUploads(d *schema.Descriptor, files map[string][]storage.Upload) (map[string]storage.Upload, map[string][]storage.Upload, error) {
	slots := make(map[string]storage.Upload)
	lists := make(map[string][]storage.Upload)

	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []string
	for _, key := range keys {
		ups := files[key]
		if len(ups) == 0 {
			continue
		}
		if slot, ok := d.Slot(key); ok {
			if _, err := upload.ValidateMeta(slot.Class, ups[0].Filename, ups[0].Size); err != nil {
				problems = append(problems, key+": "+apperr.MessageOf(err))
				continue
			}
			slots[slot.Name] = ups[0]
			continue
		}
		if l, ok := d.FileList(key); ok {
			for _, up := range ups {
				if _, err := upload.ValidateMeta(l.Class, up.Filename, up.Size); err != nil {
					problems = append(problems, key+": "+apperr.MessageOf(err))
					break
				}
			}
			lists[l.Field] = append(lists[l.Field], ups...)
			continue
		}
		problems = append(problems, key+": unknown file field")
	}
	if len(problems) > 0 {
		return nil, nil, invalid(problems)
	}
	return slots, lists, nil
}
