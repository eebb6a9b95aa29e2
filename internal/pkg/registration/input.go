package registration

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/projector"
	"github.com/pmbdev/intake/internal/pkg/schema"
	"github.com/pmbdev/intake/internal/pkg/storage"
	"github.com/pmbdev/intake/internal/pkg/upload"
)

const minPasswordLength = 8

var validate = validator.New()

// Submission is one registration form: text fields keyed by canonical or
// physical name, and uploads keyed by form field.
type Submission struct {
	Fields map[string]string
	Files  map[string][]storage.Upload
}

// canonical resolves the submitted keys against d. Protected fields are
// left out; they are filled by the flow itself.
func (s Submission) canonical(d *schema.Descriptor) map[string]string {
	out := make(map[string]string, len(s.Fields))
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f, ok := d.Resolve(strings.TrimSpace(k))
		if !ok || f.Kind.Protected() {
			continue
		}
		// the canonical spelling wins over the physical one
		if _, seen := out[f.Canonical]; seen && k != f.Canonical {
			continue
		}
		out[f.Canonical] = strings.TrimSpace(s.Fields[k])
	}
	return out
}

func (s Submission) raw(key string) string {
	return strings.TrimSpace(s.Fields[key])
}

func (s Submission) uploads(names ...string) []storage.Upload {
	for _, n := range names {
		if ups := s.Files[n]; len(ups) > 0 {
			return ups
		}
	}
	return nil
}

// checkFields applies each field's validator rule to the submitted text.
func checkFields(d *schema.Descriptor, in map[string]string) []string {
	var problems []string
	for _, f := range d.Fields() {
		if f.Rule == "" || f.Kind.Protected() {
			continue
		}
		v := in[f.Canonical]
		if err := validate.Var(v, f.Rule); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					problems = append(problems, describe(f.Canonical, fe.Tag(), fe.Param()))
				}
			} else {
				problems = append(problems, f.Canonical+": "+err.Error())
			}
			continue
		}
		if f.Kind == schema.KindDate && v != "" {
			if _, ok := projector.ParseDate(v); !ok {
				problems = append(problems, f.Canonical+": date")
			}
		}
	}
	return problems
}

func describe(field, tag, param string) string {
	if param != "" {
		return fmt.Sprintf("%s: %s=%s", field, tag, param)
	}
	return fmt.Sprintf("%s: %s", field, tag)
}

// checkUploads validates presence and metadata of every upload before any
// of them is stored.
func checkUploads(d *schema.Descriptor, sub Submission) []string {
	var problems []string
	for _, slot := range d.Slots() {
		ups := sub.uploads(slot.FormField, slot.Name)
		if len(ups) == 0 {
			if slot.Required {
				problems = append(problems, slot.FormField+": required")
			}
			continue
		}
		if _, err := upload.ValidateMeta(slot.Class, ups[0].Filename, ups[0].Size); err != nil {
			problems = append(problems, slot.FormField+": "+apperr.MessageOf(err))
		}
	}
	for _, l := range d.FileLists() {
		ups := sub.uploads(l.FormField, l.Field)
		if len(ups) == 0 && l.Required {
			problems = append(problems, l.FormField+": required")
		}
		for _, up := range ups {
			if _, err := upload.ValidateMeta(l.Class, up.Filename, up.Size); err != nil {
				problems = append(problems, l.FormField+": "+apperr.MessageOf(err))
				break
			}
		}
	}
	return problems
}

func invalid(problems []string) error {
	return apperr.Validation("Data tidak valid (" + strings.Join(problems, ", ") + ")")
}

func truthy(v string) bool {
	b, ok := projector.ParseBool(v)
	return ok && b
}
