package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmbdev/intake/internal/pkg/apperr"
)

var (
	pngHead = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	pdfHead = []byte("%PDF-1.7\n%âãÏÓ\n")
)

func TestValidateMeta(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		class   Class
		file    string
		size    int64
		wantErr error
	}{
		{name: "photo png", class: ClassPhoto, file: "me.PNG", size: 1024},
		{name: "photo pdf rejected", class: ClassPhoto, file: "me.pdf", size: 1024, wantErr: ErrDisallowedExtension},
		{name: "photo at ceiling", class: ClassPhoto, file: "me.jpg", size: 2 << 20},
		{name: "photo over ceiling", class: ClassPhoto, file: "me.jpg", size: 2<<20 + 1, wantErr: ErrTooLarge},
		{name: "document pdf", class: ClassDocument, file: "ijazah.pdf", size: 3 << 20},
		{name: "document over ceiling", class: ClassDocument, file: "ijazah.pdf", size: 4<<20 + 1, wantErr: ErrTooLarge},
		{name: "document exe", class: ClassDocument, file: "setup.exe", size: 10, wantErr: ErrDisallowedExtension},
		{name: "empty", class: ClassDocument, file: "a.pdf", size: 0, wantErr: ErrEmptyFile},
		{name: "unknown class", class: Class("video"), file: "a.mp4", size: 1, wantErr: ErrUnknownClass},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ValidateMeta(tc.class, tc.file, tc.size)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
		})
	}
}

func TestPhotoCeilingIsBelowDocumentCeiling(t *testing.T) {
	photo, _ := RuleFor(ClassPhoto)
	doc, _ := RuleFor(ClassDocument)
	assert.Less(t, photo.MaxBytes, doc.MaxBytes)
}

func TestValidateContent(t *testing.T) {
	photo, _ := RuleFor(ClassPhoto)
	doc, _ := RuleFor(ClassDocument)

	mime, err := ValidateContent(photo, pngHead)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	mime, err = ValidateContent(doc, pdfHead)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mime)

	_, err = ValidateContent(photo, pdfHead)
	assert.ErrorIs(t, err, ErrContentMismatch)

	_, err = ValidateContent(doc, []byte("<html><script>alert(1)</script></html>"))
	assert.ErrorIs(t, err, ErrContentMismatch)
}
