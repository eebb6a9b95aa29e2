package upload

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pmbdev/intake/internal/pkg/apperr"
)

// Class groups artifacts that share an extension allow-list and a size ceiling.
type Class string

const (
	ClassPhoto    Class = "photo"
	ClassDocument Class = "document"
)

type Rule struct {
	Extensions map[string]bool
	Mimes      map[string]bool
	MaxBytes   int64
	Label      string
}

var rules = map[Class]Rule{
	ClassPhoto: {
		Extensions: map[string]bool{".jpg": true, ".jpeg": true, ".png": true},
		Mimes:      map[string]bool{"image/jpeg": true, "image/png": true},
		MaxBytes:   2 << 20,
		Label:      "JPG, JPEG, PNG (maks. 2 MB)",
	},
	ClassDocument: {
		Extensions: map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".pdf": true},
		Mimes:      map[string]bool{"image/jpeg": true, "image/png": true, "application/pdf": true},
		MaxBytes:   4 << 20,
		Label:      "JPG, JPEG, PNG, PDF (maks. 4 MB)",
	},
}

var (
	ErrUnknownClass        = errors.New("unknown artifact class")
	ErrEmptyFile           = errors.New("empty file")
	ErrDisallowedExtension = errors.New("disallowed file extension")
	ErrTooLarge            = errors.New("file too large")
	ErrContentMismatch     = errors.New("file content does not match an allowed type")
)

func RuleFor(class Class) (Rule, error) {
	r, ok := rules[class]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	return r, nil
}

// ValidateMeta checks extension and declared size before any byte is read.
func ValidateMeta(class Class, filename string, size int64) (Rule, error) {
	rule, err := RuleFor(class)
	if err != nil {
		return Rule{}, apperr.Wrap(err, apperr.CodeValidation, err.Error())
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !rule.Extensions[ext] {
		return rule, apperr.Wrap(ErrDisallowedExtension, apperr.CodeValidation,
			"Format file tidak didukung, gunakan "+rule.Label)
	}
	if size == 0 {
		return rule, apperr.Wrap(ErrEmptyFile, apperr.CodeValidation, "File kosong tidak dapat diunggah")
	}
	if size > rule.MaxBytes {
		return rule, apperr.Wrap(ErrTooLarge, apperr.CodeValidation,
			"Ukuran file melebihi batas, gunakan "+rule.Label)
	}
	return rule, nil
}

// ValidateContent sniffs the first bytes and returns the detected mime type.
func ValidateContent(rule Rule, head []byte) (string, error) {
	detected := http.DetectContentType(head)

	if strings.HasPrefix(detected, "text/html") || strings.HasPrefix(detected, "application/xhtml") ||
		strings.HasPrefix(detected, "text/xml") || strings.HasPrefix(detected, "application/xml") ||
		detected == "image/svg+xml" {
		return "", apperr.Wrap(ErrContentMismatch, apperr.CodeValidation, "Konten HTML/XML tidak diizinkan")
	}
	if !rule.Mimes[detected] {
		return "", apperr.Wrap(ErrContentMismatch, apperr.CodeValidation,
			"Isi file tidak sesuai format "+rule.Label)
	}
	return detected, nil
}
