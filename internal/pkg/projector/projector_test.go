package projector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmbdev/intake/internal/pkg/schema"
)

type baseURL string

func (b baseURL) URL(stored string) string { return string(b) + "/" + stored }

func TestForRead_Mandiri(t *testing.T) {
	p := New(baseURL("https://pmb.test/storage"))
	created := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	v := p.ForRead(schema.For(schema.Mandiri), Row{
		"id":                int64(7),
		"jalur":             "mandiri",
		"nama_lengkap":      "Siti Aminah",
		"alamat_email":      "siti@example.com",
		"nomor_hp":          "6281234567890",
		"kota_sekolah":      "Bandung",
		"jurusan":           "IPA",
		"tanggal_lahir":     []byte("2007-03-14"),
		"tahun_lulus":       []byte("2025"),
		"otp_terverifikasi": int64(1),
		"berkas_terunggah":  []byte("0"),
		"status_pembayaran": "paid",
		"password":          "$2a$10$secret",
		"foto_path":         "public/pmb/mandiri/foto/a.jpg",
		"berkas":            []byte(`["storage/pmb/mandiri/berkas/r1.pdf", {"name":"Ijazah","path":"pmb/mandiri/berkas/ij.pdf"}]`),
		"created_at":        created,
	})

	assert.Equal(t, schema.Mandiri, v.Source)
	assert.Equal(t, uint64(7), v.ID)
	assert.Equal(t, "Siti Aminah", v.Name)
	assert.Equal(t, "paid", v.PaymentStatus)
	assert.True(t, v.OTPVerified)
	assert.False(t, v.DocumentsUploaded)
	require.NotNil(t, v.CreatedAt)
	assert.Equal(t, created, *v.CreatedAt)

	assert.Equal(t, "mandiri", v.Fields["jalur_pendaftaran"])
	assert.Equal(t, "Bandung", v.Fields["kabkota_sekolah"])
	assert.Equal(t, "IPA", v.Fields["jurusan_sekolah"])
	assert.Equal(t, "2007-03-14", v.Fields["tanggal_lahir"])
	assert.Equal(t, int64(2025), v.Fields["tahun_lulus"])
	assert.NotContains(t, v.Fields, "password_hash")
	assert.NotContains(t, v.Fields, "password")

	assert.Equal(t, "pmb/mandiri/foto/a.jpg", v.Fields["foto_path"])
	assert.NotContains(t, v.Fields, "foto_url")
	assert.Equal(t, "https://pmb.test/storage/pmb/mandiri/foto/a.jpg", v.URLs["foto"])

	files := v.Files["berkas"]
	require.Len(t, files, 2)
	assert.Equal(t, "pmb/mandiri/berkas/r1.pdf", files[0].Path)
	assert.Equal(t, "https://pmb.test/storage/pmb/mandiri/berkas/r1.pdf", files[0].URL)
	assert.Equal(t, "Ijazah", files[1].Name)
}

func TestForRead_FillsEmptyURLColumnOnly(t *testing.T) {
	p := New(baseURL("https://cdn"))
	v := p.ForRead(schema.For(schema.Kip), Row{
		"id":           uint64(3),
		"username":     "budi",
		"kip_ktp_path": "pmb/kip/ktp/k.pdf",
		"kip_ktp_url":  nil,
		"kip_kk_path":  "pmb/kip/kk/k.pdf",
		"kip_kk_url":   "https://old-host/storage/pmb/kip/kk/k.pdf",
		"kode_otp":     "123456",
	})

	assert.Equal(t, "budi", v.Name)
	assert.Equal(t, "https://cdn/pmb/kip/ktp/k.pdf", v.Fields["ktp_url"])
	assert.Equal(t, "https://old-host/storage/pmb/kip/kk/k.pdf", v.Fields["kk_url"])
	assert.Equal(t, "https://old-host/storage/pmb/kip/kk/k.pdf", v.URLs["kk"])
	assert.NotContains(t, v.Fields, "kode_otp")
}

func TestForRead_MalformedFileListIsEmpty(t *testing.T) {
	v := New(nil).ForRead(schema.For(schema.Yayasan), Row{
		"file_rapor_paths":  "{not json",
		"kategori_prestasi": `["olahraga","seni"]`,
	})
	assert.Empty(t, v.Files["file_rapor_paths"])
	assert.Equal(t, []any{"olahraga", "seni"}, v.Fields["kategori_prestasi"])
}

func TestForWrite(t *testing.T) {
	ws, dropped := ForWrite(schema.For(schema.Mandiri), map[string]any{
		"jalur_pendaftaran":   "Prestasi",
		"kabkota_sekolah":     "Bogor",
		"tanggal_lahir":       "14/03/2007",
		"otp_terverifikasi":   "ya",
		"nama_lengkap":        "  Siti  ",
		"nisn":                "",
		"foto_path":           "pmb/x.jpg",
		"foto_url":            "https://x",
		"password":            "hunter2",
		"created_at":          "2026-01-01",
		"nik":                 "3201",
		"unknown":             "x",
		"payment_external_id": "PMB-MANDIRI-AAAAAAAAAA",
	})

	assert.Equal(t, WriteSet{
		"jalur":             "Prestasi",
		"kota_sekolah":      "Bogor",
		"tanggal_lahir":     "2007-03-14",
		"otp_terverifikasi": true,
		"nama_lengkap":      "Siti",
		"nisn":              nil,
	}, ws)
	assert.ElementsMatch(t, []string{"foto_path", "foto_url", "password", "created_at", "nik", "unknown", "payment_external_id"}, dropped)
}

func TestForWrite_TrackRenamePerVariant(t *testing.T) {
	ws, _ := ForWrite(schema.For(schema.Kip), map[string]any{"jalur_pendaftaran": "KIP-K"})
	assert.Equal(t, WriteSet{"jalur_pendaftaran": "KIP-K"}, ws)

	// Physical spelling is accepted but loses to the canonical one.
	ws, dropped := ForWrite(schema.For(schema.Mandiri), map[string]any{"jalur": "a", "jalur_pendaftaran": "b"})
	assert.Equal(t, WriteSet{"jalur": "b"}, ws)
	assert.Equal(t, []string{"jalur"}, dropped)

	// A blank canonical value still replaces the physical one.
	ws, dropped = ForWrite(schema.For(schema.Mandiri), map[string]any{"jalur": "a", "jalur_pendaftaran": " "})
	assert.Equal(t, WriteSet{"jalur": nil}, ws)
	assert.Equal(t, []string{"jalur"}, dropped)

	ws, _ = ForWrite(schema.For(schema.Mandiri), map[string]any{"jalur": "a"})
	assert.Equal(t, WriteSet{"jalur": "a"}, ws)
}

func TestForWrite_DropsUnparseable(t *testing.T) {
	ws, dropped := ForWrite(schema.For(schema.Yayasan), map[string]any{
		"tanggal_lahir":     "kemarin",
		"berkas_terunggah":  "mungkin",
		"tahun_lulus":       "dua ribu",
		"kategori_prestasi": []string{"sains"},
		"setuju_syarat":     true,
	})
	assert.Equal(t, WriteSet{"kategori_prestasi": `["sains"]`}, ws)
	assert.ElementsMatch(t, []string{"tanggal_lahir", "berkas_terunggah", "tahun_lulus", "setuju_syarat"}, dropped)
}

func TestParseBool(t *testing.T) {
	for _, in := range []any{true, 1, int64(1), "1", "true", "ON", "yes", "y", "ya"} {
		b, ok := ParseBool(in)
		assert.True(t, ok, "%v", in)
		assert.True(t, b, "%v", in)
	}
	for _, in := range []any{false, 0, "0", "false", "off", "no", "tidak", ""} {
		b, ok := ParseBool(in)
		assert.True(t, ok, "%v", in)
		assert.False(t, b, "%v", in)
	}
	_, ok := ParseBool("maybe")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2007-03-14", "14/03/2007", "14-03-2007", "2007/03/14", "2007-03-14T00:00:00Z", "14 March 2007"} {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, "2007-03-14", got, in)
	}
	_, ok := ParseDate("31/02/2007")
	assert.False(t, ok)
}

func TestPaths(t *testing.T) {
	got := Paths(schema.For(schema.Yayasan), Row{
		"foto_path":           "storage/pmb/y/foto.jpg",
		"file_ktp_path":       "pmb/y/ktp.pdf",
		"file_kk_path":        nil,
		"bukti_prestasi_path": "",
		"file_rapor_paths":    `["pmb/y/r1.pdf","pmb/y/ktp.pdf"]`,
	})
	assert.Equal(t, []string{"pmb/y/foto.jpg", "pmb/y/ktp.pdf", "pmb/y/r1.pdf"}, got)
}
