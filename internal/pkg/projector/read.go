// Package projector maps registration rows between their physical column
// shape and the canonical shape shared by all variants.
package projector

import (
	"strings"
	"time"

	"github.com/pmbdev/intake/internal/pkg/schema"
	"github.com/pmbdev/intake/internal/pkg/storage"
)

// Row is a registration row keyed by physical column.
type Row map[string]any

// URLResolver derives the public URL of a stored path.
type URLResolver interface {
	URL(stored string) string
}

// View is the canonical read shape of any registration variant.
type View struct {
	Source            schema.Variant            `json:"source"`
	ID                uint64                    `json:"id"`
	Name              string                    `json:"nama"`
	Email             string                    `json:"email"`
	Phone             string                    `json:"phone"`
	PaymentStatus     string                    `json:"status_pembayaran"`
	OTPVerified       bool                      `json:"otp_terverifikasi"`
	DocumentsUploaded bool                      `json:"berkas_terunggah"`
	CreatedAt         *time.Time                `json:"created_at"`
	Fields            map[string]any            `json:"fields"`
	URLs              map[string]string         `json:"urls"`
	Files             map[string][]storage.File `json:"files"`
}

// String returns a canonical text field, or "".
func (v View) String(canonical string) string {
	s, _ := v.Fields[canonical].(string)
	return s
}

type Projector struct {
	urls URLResolver
}

func New(urls URLResolver) *Projector {
	return &Projector{urls: urls}
}

// ForRead remaps a physical row into a View. Columns missing from row are
// left out of Fields, so partial selects project cleanly.
func (p *Projector) ForRead(d *schema.Descriptor, row Row) View {
	v := View{
		Source: d.Variant,
		Fields: make(map[string]any, len(row)),
		URLs:   make(map[string]string),
		Files:  make(map[string][]storage.File),
	}

	for _, f := range d.Fields() {
		raw, present := row[f.Physical]
		if !present || f.Kind == schema.KindSecret {
			continue
		}
		switch f.Kind {
		case schema.KindBool:
			b, _ := ParseBool(raw)
			v.Fields[f.Canonical] = b
		case schema.KindInt:
			if n, ok := ParseInt(raw); ok {
				v.Fields[f.Canonical] = n
			} else {
				v.Fields[f.Canonical] = nil
			}
		case schema.KindDate:
			if s, ok := ParseDate(raw); ok {
				v.Fields[f.Canonical] = s
			} else {
				v.Fields[f.Canonical] = nil
			}
		case schema.KindTimestamp:
			if t, ok := ParseTime(raw); ok {
				v.Fields[f.Canonical] = t
			} else {
				v.Fields[f.Canonical] = nil
			}
		case schema.KindJSON:
			v.Fields[f.Canonical] = JSONValue(raw)
		case schema.KindFileList:
			files := storage.DecodeFileList(raw)
			for i := range files {
				files[i].URL = p.url(files[i].Path)
			}
			v.Files[f.Canonical] = files
		case schema.KindPath:
			if path, ok := storage.NormalizePath(AsString(raw)); ok {
				v.Fields[f.Canonical] = path
			} else {
				v.Fields[f.Canonical] = nil
			}
		default:
			if raw == nil {
				v.Fields[f.Canonical] = nil
			} else {
				v.Fields[f.Canonical] = AsString(raw)
			}
		}
	}

	for _, s := range d.Slots() {
		path := v.String(s.PathField)
		if path == "" {
			continue
		}
		url := ""
		if s.URLField != "" {
			url = strings.TrimSpace(v.String(s.URLField))
		}
		if url == "" {
			url = p.url(path)
			if s.URLField != "" {
				v.Fields[s.URLField] = url
			}
		}
		v.URLs[s.Name] = url
	}

	if n, ok := ParseInt(row[d.Column("id")]); ok && n > 0 {
		v.ID = uint64(n)
	}
	v.Name = v.String("nama_lengkap")
	if v.Name == "" {
		v.Name = v.String("username")
	}
	v.Email = v.String("alamat_email")
	v.Phone = v.String("nomor_hp")
	v.PaymentStatus = v.String("status_pembayaran")
	v.OTPVerified, _ = v.Fields["otp_terverifikasi"].(bool)
	v.DocumentsUploaded, _ = v.Fields["berkas_terunggah"].(bool)
	if t, ok := v.Fields["created_at"].(time.Time); ok {
		v.CreatedAt = &t
	}
	return v
}

// Paths collects every stored path of a row, single slots and file lists.
func Paths(d *schema.Descriptor, row Row) []string {
	var singles []string
	for _, s := range d.Slots() {
		singles = append(singles, AsString(row[d.Column(s.PathField)]))
	}
	var lists []any
	for _, l := range d.FileLists() {
		lists = append(lists, row[d.Column(l.Field)])
	}
	return storage.CollectPaths(singles, lists...)
}

func (p *Projector) url(path string) string {
	if p.urls == nil {
		return ""
	}
	return p.urls.URL(path)
}
