package controllers

import (
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/schema"
	"github.com/pmbdev/intake/internal/pkg/storage"
)

// respondError renders err as {"error": code, "message": msg}.
func respondError(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   string(apperr.CodeOf(err)),
		"message": apperr.MessageOf(err),
	})
}

func variantParam(c *fiber.Ctx) (schema.Variant, error) {
	return schema.ParseVariant(c.Params("variant"))
}

func idParam(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Params("id")), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("ID pendaftaran tidak valid")
	}
	return id, nil
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm)
}

// formKey strips the array suffix PHP-style clients put on repeated fields.
func formKey(k string) string {
	return strings.TrimSuffix(strings.TrimSpace(k), "[]")
}

// openedForm is a parsed multipart body. Close releases every opened file.
type openedForm struct {
	Values  map[string][]string
	Files   map[string][]storage.Upload
	closers []multipart.File
}

func (f *openedForm) Close() {
	for _, fh := range f.closers {
		_ = fh.Close()
	}
	f.closers = nil
}

// First returns the first value of every field.
func (f *openedForm) First() map[string]string {
	out := make(map[string]string, len(f.Values))
	for k, vs := range f.Values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

// openForm parses the multipart body and opens every file part. Callers
// must Close the result once the uploads have been consumed.
func openForm(c *fiber.Ctx) (*openedForm, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation, "Form multipart tidak valid")
	}

	out := &openedForm{
		Values: make(map[string][]string, len(form.Value)),
		Files:  make(map[string][]storage.Upload, len(form.File)),
	}
	for k, vs := range form.Value {
		key := formKey(k)
		out.Values[key] = append(out.Values[key], vs...)
	}
	for k, headers := range form.File {
		key := formKey(k)
		for _, fh := range headers {
			if fh == nil || fh.Size == 0 {
				continue
			}
			file, err := fh.Open()
			if err != nil {
				out.Close()
				return nil, apperr.Wrap(err, apperr.CodeValidation, "Berkas tidak dapat dibaca")
			}
			out.closers = append(out.closers, file)
			// Class is assigned by the registration flow from the slot.
			out.Files[key] = append(out.Files[key], storage.Upload{
				Filename: fh.Filename,
				Size:     fh.Size,
				Content:  file,
			})
		}
	}
	return out, nil
}
