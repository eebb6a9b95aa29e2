package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pmbdev/intake/internal/pkg/registration"
	"github.com/pmbdev/intake/internal/pkg/schema"
)

// HandleAdminRegistrations lists every variant as one collection.
// Query: q, source, page, per_page.
func (pc *PmbController) HandleAdminRegistrations(c *fiber.Ctx) error {
	filter := registration.Filter{
		Query:  strings.TrimSpace(c.Query("q")),
		Source: strings.TrimSpace(c.Query("source")),
	}
	page := registration.Page{
		Page:    c.QueryInt("page", 1),
		PerPage: c.QueryInt("per_page", registration.DefaultPerPage),
	}

	listing, err := pc.svc.Directory.ListAll(c.UserContext(), filter, page)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(listing)
}

func (pc *PmbController) HandleAdminSummary(c *fiber.Ctx) error {
	summary, err := pc.svc.Directory.Summary(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": summary})
}

// HandleAdminLookup finds registrations by email or username on all variants.
func (pc *PmbController) HandleAdminLookup(c *fiber.Ctx) error {
	found, err := pc.svc.Directory.FindByIdentity(c.UserContext(), c.Query("identity"))
	if err != nil {
		return respondError(c, err)
	}
	total := 0
	for _, views := range found {
		total += len(views)
	}
	return c.JSON(fiber.Map{"success": true, "total": total, "data": found})
}

func (pc *PmbController) HandleAdminRegistrationShow(c *fiber.Ctx) error {
	v, id, err := variantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	view, err := pc.svc.Registration.Show(c.UserContext(), v, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": view})
}

// HandleAdminRegistrationUpdate applies an edit. JSON bodies carry fields and
// remove_files; multipart bodies may also carry replacement or extra files.
func (pc *PmbController) HandleAdminRegistrationUpdate(c *fiber.Ctx) error {
	v, id, err := variantAndID(c)
	if err != nil {
		return respondError(c, err)
	}

	var ch registration.Change
	if isMultipart(c) {
		form, err := openForm(c)
		if err != nil {
			return respondError(c, err)
		}
		defer form.Close()

		ch.RemoveFiles = splitList(form.Values["remove_files"])
		delete(form.Values, "remove_files")
		ch.Fields = make(map[string]any, len(form.Values))
		for k, vs := range form.Values {
			if len(vs) == 1 {
				ch.Fields[k] = vs[0]
			} else if len(vs) > 1 {
				ch.Fields[k] = vs
			}
		}
		ch.Files = form.Files
	} else {
		body, err := bodyMap(c)
		if err != nil {
			return respondError(c, err)
		}
		ch.RemoveFiles = removeList(body["remove_files"])
		delete(body, "remove_files")
		ch.Fields = body
	}

	view, err := pc.svc.Registration.Update(c.UserContext(), v, id, ch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Data pendaftaran berhasil diperbarui.",
		"data":    view,
	})
}

func (pc *PmbController) HandleAdminRegistrationDelete(c *fiber.Ctx) error {
	v, id, err := variantAndID(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := pc.svc.Registration.Delete(c.UserContext(), v, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Data pendaftaran berhasil dihapus.",
	})
}

func (pc *PmbController) HandleAdminStorageHealth(c *fiber.Ctx) error {
	h := pc.svc.Artifacts.CheckHealth(c.UserContext())
	status := fiber.StatusOK
	if !h.Healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(h)
}

func variantAndID(c *fiber.Ctx) (schema.Variant, uint64, error) {
	v, err := variantParam(c)
	if err != nil {
		return "", 0, err
	}
	id, err := idParam(c)
	if err != nil {
		return "", 0, err
	}
	return v, id, nil
}

// removeList accepts remove_files as an array or a comma separated string.
func removeList(v any) []string {
	switch t := v.(type) {
	case string:
		return splitList([]string{t})
	case []string:
		return splitList(t)
	case []any:
		items := make([]string, 0, len(t))
		for _, item := range t {
			items = append(items, stringValue(item))
		}
		return splitList(items)
	}
	return nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
