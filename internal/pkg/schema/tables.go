package schema

import "github.com/pmbdev/intake/internal/pkg/upload"

// Bump a table's version whenever its column set changes in migrations/.
const (
	mandiriVersion = 3
	kipVersion     = 2
	yayasanVersion = 3
)

func text(canonical, physical, rule string) Field {
	return Field{Canonical: canonical, Physical: physical, Kind: KindText, Writable: true, Rule: rule}
}

func same(name, rule string) Field { return text(name, name, rule) }

func typed(name string, kind Kind, writable bool, rule string) Field {
	return Field{Canonical: name, Physical: name, Kind: kind, Writable: writable, Rule: rule}
}

func protected(canonical, physical string, kind Kind) Field {
	return Field{Canonical: canonical, Physical: physical, Kind: kind}
}

// slotFields declares the path/name (and optionally url) columns of a slot.
func slotFields(slot, prefix string, withURL bool) []Field {
	fs := []Field{
		protected(slot+"_nama", prefix+"_nama", KindName),
		protected(slot+"_path", prefix+"_path", KindPath),
	}
	if withURL {
		fs = append(fs, protected(slot+"_url", prefix+"_url", KindURL))
	}
	return fs
}

func slot(name, form string, class upload.Class, required, withURL bool) Slot {
	s := Slot{
		Name:      name,
		FormField: form,
		Class:     class,
		Required:  required,
		PathField: name + "_path",
		NameField: name + "_nama",
	}
	if withURL {
		s.URLField = name + "_url"
	}
	return s
}

func concat(groups ...[]Field) []Field {
	var out []Field
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var common = []Field{
	typed("id", KindInt, false, ""),
	same("nama_lengkap", "required,max=255"),
	same("jenis_kelamin", "required,oneof=L P"),
	same("tempat_lahir", "required,max=255"),
	typed("tanggal_lahir", KindDate, true, "required"),
	same("nama_sekolah", "required,max=255"),
	typed("tahun_lulus", KindInt, true, "required,numeric,len=4"),
	same("alamat_email", "required,email,max=255"),
	same("nomor_hp", "required,max=30"),
	typed("otp_terverifikasi", KindBool, true, ""),
	same("status_pembayaran", ""),
	typed("berkas_terunggah", KindBool, true, ""),
	protected("created_at", "created_at", KindTimestamp),
	protected("updated_at", "updated_at", KindTimestamp),
}

var mandiriTable = newDescriptor(Mandiri, "pmb_registrations", mandiriVersion,
	concat(common, []Field{
		text("jalur_pendaftaran", "jalur", ""),
		same("program_studi_1", "required,max=120"),
		same("program_studi_2", "required,max=120"),
		same("jenis_sekolah", "required,max=50"),
		text("kabkota_sekolah", "kota_sekolah", "required,max=255"),
		text("jurusan_sekolah", "jurusan", "required,max=120"),
		same("nisn", "omitempty,max=30"),
		protected("password_hash", "password", KindSecret),
		protected("otp_verified_at", "otp_verified_at", KindTimestamp),
		same("metode_pembayaran", "omitempty,oneof=bank ewallet"),
		typed("setuju_syarat", KindBool, true, ""),
		typed("setuju_kebenaran_data", KindBool, true, ""),
		protected("berkas", "berkas", KindFileList),
		protected("payment_external_id", "payment_external_id", KindText),
	}, slotFields("foto", "foto", false)),
	[]Slot{
		slot("foto", "foto", upload.ClassPhoto, false, false),
	},
	[]FileList{
		{Field: "berkas", FormField: "berkas", Class: upload.ClassDocument},
	},
)

var kipTable = newDescriptor(Kip, "pmb_kip_registrations", kipVersion,
	concat(common, []Field{
		same("jalur_pendaftaran", "omitempty,max=50"),
		same("nik", "required,numeric,len=16"),
		same("nomor_kk", "required,numeric,len=16"),
		same("program_studi_1", "required,max=100"),
		same("program_studi_2", "omitempty,max=100"),
		same("npsn_sekolah", "required,max=20"),
		same("nisn", "required,max=20"),
		same("jenis_sekolah", "required,max=30"),
		same("jurusan_sekolah", "required,max=80"),
		same("kabkota_sekolah", "required,max=120"),
		same("username", ""),
		protected("password_hash", "kata_sandi_hash", KindSecret),
		protected("kode_otp", "kode_otp", KindSecret),
	},
		slotFields("foto", "foto", true),
		slotFields("ktp", "kip_ktp", true),
		slotFields("kk", "kip_kk", true),
	),
	[]Slot{
		slot("foto", "foto", upload.ClassPhoto, false, true),
		slot("ktp", "kip_ktp", upload.ClassDocument, true, true),
		slot("kk", "kip_kk", upload.ClassDocument, false, true),
	},
	nil,
)

var yayasanTable = newDescriptor(Yayasan, "pmb_yayasan_registrations", yayasanVersion,
	concat(common, []Field{
		same("jalur_pendaftaran", "omitempty,max=50"),
		same("program_studi", "omitempty,max=255"),
		same("program_studi_1", "omitempty,max=255"),
		same("program_studi_2", "omitempty,max=255"),
		same("jenis_beasiswa", "required,oneof=akademik non_akademik"),
		typed("kategori_prestasi", KindJSON, true, ""),
		same("deskripsi_prestasi", "omitempty,max=2000"),
		same("kewarganegaraan", "required,oneof=WNI WNA"),
		same("provinsi_sekolah", "required,max=100"),
		same("jenis_sekolah", "required,max=10"),
		same("jurusan_sekolah", "required,max=100"),
		same("kabkota_sekolah", "required,max=120"),
		same("username", ""),
		protected("password_hash", "kata_sandi_hash", KindSecret),
		typed("setuju_biaya_formulir", KindBool, true, ""),
		same("metode_pembayaran", "omitempty,oneof=bank ewallet"),
		protected("file_rapor_nama", "file_rapor_nama", KindName),
		protected("file_rapor_paths", "file_rapor_paths", KindFileList),
		protected("payment_external_id", "payment_external_id", KindText),
	},
		slotFields("foto", "foto", false),
		slotFields("bukti_prestasi", "bukti_prestasi", true),
		slotFields("ktp", "file_ktp", true),
		slotFields("kk", "file_kk", true),
	),
	[]Slot{
		slot("foto", "foto", upload.ClassPhoto, false, false),
		slot("bukti_prestasi", "bukti_prestasi", upload.ClassDocument, true, true),
		slot("ktp", "file_ktp", upload.ClassDocument, true, true),
		slot("kk", "file_kk", upload.ClassDocument, true, true),
	},
	[]FileList{
		{Field: "file_rapor_paths", FormField: "file_rapor", Class: upload.ClassDocument, Required: true},
	},
)

var descriptors = map[Variant]*Descriptor{
	Mandiri: mandiriTable,
	Kip:     kipTable,
	Yayasan: yayasanTable,
}
