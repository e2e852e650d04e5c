package categories

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// validateSchema checks a leaf field list. Non-leaf nodes must not carry one.
func validateSchema(isLeaf bool, fields []models.FieldSchema) pkgerrors.FieldErrors {
	var problems pkgerrors.FieldErrors
	if !isLeaf {
		if len(fields) > 0 {
			problems = append(problems, pkgerrors.FieldError{
				Field:   "fields",
				Message: "only leaf categories may define listing fields",
			})
		}
		return problems
	}

	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		key := fmt.Sprintf("fields[%d]", i)
		name := strings.TrimSpace(f.Name)
		if name == "" {
			problems = append(problems, pkgerrors.FieldError{Field: key + ".name", Message: "is required"})
			continue
		}
		if _, dup := seen[name]; dup {
			problems = append(problems, pkgerrors.FieldError{Field: key + ".name", Message: fmt.Sprintf("duplicate field %q", name)})
		}
		seen[name] = struct{}{}

		if !f.Type.IsValid() {
			problems = append(problems, pkgerrors.FieldError{Field: key + ".type", Message: fmt.Sprintf("unknown type %q", f.Type)})
			continue
		}
		if f.Type.HasOptions() && len(f.Options) == 0 {
			problems = append(problems, pkgerrors.FieldError{Field: key + ".options", Message: "at least one option is required"})
		}
		if f.MaxFiles < 0 || f.MaxSizeMB < 0 {
			problems = append(problems, pkgerrors.FieldError{Field: key, Message: "size limits must be positive"})
		}
	}
	return problems
}

func normalizeFields(fields []models.FieldSchema) []models.FieldSchema {
	out := make([]models.FieldSchema, 0, len(fields))
	for _, f := range fields {
		f.Name = strings.TrimSpace(f.Name)
		f.Label = strings.TrimSpace(f.Label)
		out = append(out, f)
	}
	return out
}
