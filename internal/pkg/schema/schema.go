// Package schema holds the static field descriptors of the three
// registration tables. Every read and write of a registration row goes
// through a Descriptor; nothing asks the database which columns exist.
package schema

import (
	"fmt"
	"strings"

	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/upload"
)

type Variant string

const (
	Mandiri Variant = "mandiri"
	Kip     Variant = "kip"
	Yayasan Variant = "yayasan"
)

// Variants lists every variant in listing priority order.
var Variants = []Variant{Mandiri, Kip, Yayasan}

func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case Mandiri, Kip, Yayasan:
		return v, nil
	}
	return "", apperr.Validation(fmt.Sprintf("Jalur pendaftaran tidak dikenal: %q", s))
}

// Priority orders variants when timestamps tie. Lower sorts first.
func (v Variant) Priority() int {
	for i, candidate := range Variants {
		if candidate == v {
			return i
		}
	}
	return len(Variants)
}

func (v Variant) String() string { return string(v) }

type Kind string

const (
	KindText      Kind = "text"
	KindBool      Kind = "bool"
	KindDate      Kind = "date"
	KindInt       Kind = "int"
	KindJSON      Kind = "json"
	KindPath      Kind = "path"
	KindURL       Kind = "url"
	KindName      Kind = "name"
	KindFileList  Kind = "filelist"
	KindSecret    Kind = "secret"
	KindTimestamp Kind = "timestamp"
)

// Protected kinds are only ever written by the artifact coordinator or the
// credential flow.
func (k Kind) Protected() bool {
	switch k {
	case KindPath, KindURL, KindName, KindFileList, KindSecret, KindTimestamp:
		return true
	}
	return false
}

// Field maps one canonical field onto a physical column.
type Field struct {
	Canonical string
	Physical  string
	Kind      Kind
	Writable  bool
	// Rule is the validator tag applied on registration. Empty means unchecked.
	Rule string
}

// Slot is a single-file artifact stored in path/url/name columns.
type Slot struct {
	Name      string
	FormField string
	Class     upload.Class
	Required  bool
	PathField string
	URLField  string
	NameField string
}

// FileList is a JSON array column of stored paths.
type FileList struct {
	Field     string
	FormField string
	Class     upload.Class
	Required  bool
}

type Descriptor struct {
	Variant Variant
	Table   string
	Version int

	fields      []Field
	byCanonical map[string]int
	byPhysical  map[string]int
	slots       []Slot
	lists       []FileList
}

func newDescriptor(v Variant, table string, version int, fields []Field, slots []Slot, lists []FileList) *Descriptor {
	d := &Descriptor{
		Variant:     v,
		Table:       table,
		Version:     version,
		fields:      fields,
		byCanonical: make(map[string]int, len(fields)),
		byPhysical:  make(map[string]int, len(fields)),
		slots:       slots,
		lists:       lists,
	}
	for i, f := range fields {
		if _, dup := d.byCanonical[f.Canonical]; dup {
			panic(fmt.Sprintf("schema: %s: duplicate canonical field %s", table, f.Canonical))
		}
		if _, dup := d.byPhysical[f.Physical]; dup {
			panic(fmt.Sprintf("schema: %s: duplicate column %s", table, f.Physical))
		}
		d.byCanonical[f.Canonical] = i
		d.byPhysical[f.Physical] = i
	}
	for _, s := range slots {
		for _, name := range []string{s.PathField, s.URLField, s.NameField} {
			if name != "" && !d.Has(name) {
				panic(fmt.Sprintf("schema: %s: slot %s references unknown field %s", table, s.Name, name))
			}
		}
	}
	for _, l := range lists {
		if f, ok := d.Field(l.Field); !ok || f.Kind != KindFileList {
			panic(fmt.Sprintf("schema: %s: file list %s is not a filelist field", table, l.Field))
		}
	}
	return d
}

// Field looks up a field by canonical name.
func (d *Descriptor) Field(canonical string) (Field, bool) {
	i, ok := d.byCanonical[canonical]
	if !ok {
		return Field{}, false
	}
	return d.fields[i], true
}

// Resolve accepts either a canonical name or a physical column name.
func (d *Descriptor) Resolve(key string) (Field, bool) {
	if f, ok := d.Field(key); ok {
		return f, true
	}
	i, ok := d.byPhysical[key]
	if !ok {
		return Field{}, false
	}
	return d.fields[i], true
}

func (d *Descriptor) Has(canonical string) bool {
	_, ok := d.byCanonical[canonical]
	return ok
}

// Column returns the physical column of a canonical field, or "".
func (d *Descriptor) Column(canonical string) string {
	f, ok := d.Field(canonical)
	if !ok {
		return ""
	}
	return f.Physical
}

func (d *Descriptor) Fields() []Field {
	return append([]Field(nil), d.fields...)
}

// Columns lists every physical column in declaration order.
func (d *Descriptor) Columns() []string {
	out := make([]string, len(d.fields))
	for i, f := range d.fields {
		out[i] = f.Physical
	}
	return out
}

func (d *Descriptor) Slots() []Slot {
	return append([]Slot(nil), d.slots...)
}

func (d *Descriptor) Slot(name string) (Slot, bool) {
	for _, s := range d.slots {
		if s.Name == name || s.FormField == name {
			return s, true
		}
	}
	return Slot{}, false
}

func (d *Descriptor) FileLists() []FileList {
	return append([]FileList(nil), d.lists...)
}

func (d *Descriptor) FileList(name string) (FileList, bool) {
	for _, l := range d.lists {
		if l.Field == name || l.FormField == name {
			return l, true
		}
	}
	return FileList{}, false
}

// For returns the descriptor of a variant. It panics on unknown variants;
// callers parse untrusted input with ParseVariant first.
func For(v Variant) *Descriptor {
	d, ok := descriptors[v]
	if !ok {
		panic(fmt.Sprintf("schema: unknown variant %q", v))
	}
	return d
}

// All returns the descriptors in priority order.
func All() []*Descriptor {
	out := make([]*Descriptor, 0, len(Variants))
	for _, v := range Variants {
		out = append(out, descriptors[v])
	}
	return out
}
