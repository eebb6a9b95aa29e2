package controllers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/registration"
)

// HandleRegister accepts one applicant form for the variant in the path.
// Multipart bodies carry the files; JSON and urlencoded bodies carry fields only.
func (pc *PmbController) HandleRegister(c *fiber.Ctx) error {
	v, err := variantParam(c)
	if err != nil {
		return respondError(c, err)
	}

	sub := registration.Submission{Fields: map[string]string{}}
	if isMultipart(c) {
		form, err := openForm(c)
		if err != nil {
			return respondError(c, err)
		}
		defer form.Close()
		sub.Fields = flatten(form.Values)
		sub.Files = form.Files
	} else {
		body, err := bodyMap(c)
		if err != nil {
			return respondError(c, err)
		}
		for k, val := range body {
			sub.Fields[formKey(k)] = stringValue(val)
		}
	}

	view, err := pc.svc.Registration.Register(c.UserContext(), v, sub)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Pendaftaran berhasil disimpan.",
		"data":    view,
	})
}

// flatten keeps single values as text and encodes repeated ones as a JSON
// array, which is what JSON columns expect.
func flatten(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, vs := range values {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			b, _ := json.Marshal(vs)
			out[k] = string(b)
		}
	}
	return out
}

// bodyMap decodes a JSON object or a urlencoded form into a generic map.
func bodyMap(c *fiber.Ctx) (map[string]any, error) {
	out := map[string]any{}
	if len(c.Body()) == 0 {
		return out, nil
	}
	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationForm) {
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			key := formKey(string(k))
			if prev, ok := out[key]; ok {
				switch p := prev.(type) {
				case []string:
					out[key] = append(p, string(v))
				case string:
					out[key] = []string{p, string(v)}
				}
				return
			}
			out[key] = string(v)
		})
		return out, nil
	}
	if err := json.Unmarshal(c.Body(), &out); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation, "Body JSON tidak valid")
	}
	return out, nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string, []any, map[string]any:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
