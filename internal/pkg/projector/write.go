package projector

import (
	"sort"
	"strings"

	"github.com/pmbdev/intake/internal/pkg/schema"
)

// writable is the set of canonical fields an admin edit may touch. A field
// also needs to exist and be writable in the variant's descriptor.
var writable = map[string]bool{
	"nama_lengkap":          true,
	"alamat_email":          true,
	"nomor_hp":              true,
	"username":              true,
	"jalur_pendaftaran":     true,
	"jenis_kelamin":         true,
	"tempat_lahir":          true,
	"tanggal_lahir":         true,
	"kewarganegaraan":       true,
	"nik":                   true,
	"nomor_kk":              true,
	"program_studi":         true,
	"program_studi_1":       true,
	"program_studi_2":       true,
	"jenis_beasiswa":        true,
	"kategori_prestasi":     true,
	"deskripsi_prestasi":    true,
	"nama_sekolah":          true,
	"npsn_sekolah":          true,
	"nisn":                  true,
	"jenis_sekolah":         true,
	"jurusan_sekolah":       true,
	"kabkota_sekolah":       true,
	"provinsi_sekolah":      true,
	"tahun_lulus":           true,
	"otp_terverifikasi":     true,
	"berkas_terunggah":      true,
	"status_pembayaran":     true,
	"metode_pembayaran":     true,
	"setuju_syarat":         true,
	"setuju_kebenaran_data": true,
	"setuju_biaya_formulir": true,
}

// WriteSet maps physical columns to normalized values ready for an update.
type WriteSet map[string]any

// Canonical reports the canonical field names present in the set.
func (w WriteSet) Canonical(d *schema.Descriptor) []string {
	out := make([]string, 0, len(w))
	for col := range w {
		if f, ok := d.Resolve(col); ok {
			out = append(out, f.Canonical)
		}
	}
	sort.Strings(out)
	return out
}

// ForWrite restricts in to the admin-writable fields of d and normalizes
// each value. Keys may be canonical or physical; when both spellings of one
// field are sent the canonical one wins. dropped lists the keys that did
// not make it into the set, sorted.
func ForWrite(d *schema.Descriptor, in map[string]any) (WriteSet, []string) {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(WriteSet)
	source := make(map[string]string)
	var dropped []string

	for _, key := range keys {
		f, ok := d.Resolve(strings.TrimSpace(key))
		if !ok || !writable[f.Canonical] || !f.Writable || f.Kind.Protected() {
			dropped = append(dropped, key)
			continue
		}
		isCanonical := key == f.Canonical
		prev, seen := source[f.Physical]
		if seen && prev == f.Canonical && !isCanonical {
			dropped = append(dropped, key)
			continue
		}

		val, ok := normalize(f, in[key])
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		if seen {
			dropped = append(dropped, prev)
		}
		out[f.Physical] = val
		source[f.Physical] = key
	}
	sort.Strings(dropped)
	return out, dropped
}

func normalize(f schema.Field, v any) (any, bool) {
	switch f.Kind {
	case schema.KindBool:
		return ParseBool(v)
	case schema.KindDate:
		if isBlank(v) {
			return nil, true
		}
		return ParseDate(v)
	case schema.KindInt:
		if isBlank(v) {
			return nil, true
		}
		return ParseInt(v)
	case schema.KindJSON:
		if isBlank(v) {
			return nil, true
		}
		return EncodeJSON(v)
	default:
		if isBlank(v) {
			return nil, true
		}
		return strings.TrimSpace(AsString(v)), true
	}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return strings.TrimSpace(string(t)) == ""
	}
	return false
}
