package listings

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// ValidateOptions tunes a validation pass.
type ValidateOptions struct {
	// SkipRequiredFor names fields whose required check is waived because a
	// queued upload will fill them. Only file and image fields honour it.
	SkipRequiredFor []string
}

func (o ValidateOptions) waived(field models.FieldSchema) bool {
	if !field.Type.IsUpload() {
		return false
	}
	for _, name := range o.SkipRequiredFor {
		if name == field.Name {
			return true
		}
	}
	return false
}

// Validate checks raw against the category fields. Every problem is reported
// in one pass; a field with an error never appears in the returned values.
// Keys the schema does not declare are dropped.
func Validate(fields []models.FieldSchema, raw map[string]any, opts ValidateOptions) (Values, pkgerrors.FieldErrors) {
	values := make(Values, len(fields))
	var problems pkgerrors.FieldErrors
	for _, field := range fields {
		input, present := raw[field.Name]
		value, problem := validateField(field, input, present, opts)
		if problem != nil {
			problems = append(problems, *problem)
			continue
		}
		if value != nil {
			values[field.Name] = value
		}
	}
	return values, problems
}

// Patch is the result of validating an update: keys to set and keys to clear.
type Patch struct {
	Set   Values
	Unset []string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return len(p.Set) == 0 && len(p.Unset) == 0
}

// Apply merges the patch into current. Keys outside the patch, including keys
// the schema no longer declares, are kept.
func (p Patch) Apply(current Values) Values {
	merged := make(Values, len(current)+len(p.Set))
	for k, v := range current {
		merged[k] = v
	}
	for _, k := range p.Unset {
		delete(merged, k)
	}
	for k, v := range p.Set {
		merged[k] = v
	}
	return merged
}

// ValidateUpdate re-validates only the declared fields present in changes.
// Clearing a required field is an error unless the waiver applies.
func ValidateUpdate(fields []models.FieldSchema, changes map[string]any, opts ValidateOptions) (Patch, pkgerrors.FieldErrors) {
	patch := Patch{Set: Values{}}
	var problems pkgerrors.FieldErrors
	for _, field := range fields {
		input, present := changes[field.Name]
		if !present {
			continue
		}
		value, problem := validateField(field, input, true, opts)
		if problem != nil {
			problems = append(problems, *problem)
			continue
		}
		if value == nil {
			patch.Unset = append(patch.Unset, field.Name)
			continue
		}
		patch.Set[field.Name] = value
	}
	return patch, problems
}

func validateField(field models.FieldSchema, input any, present bool, opts ValidateOptions) (Value, *pkgerrors.FieldError) {
	if !present || isEmpty(input) {
		if field.Required && !opts.waived(field) {
			return nil, fieldError(field, "is required")
		}
		return nil, nil
	}

	switch field.Type {
	case enums.FieldTypeNumber:
		n, ok := toNumber(input)
		if !ok {
			return nil, fieldError(field, "must be a number")
		}
		return NumberValue(n), nil
	case enums.FieldTypeSelect, enums.FieldTypeRadio:
		return validateOption(field, input)
	case enums.FieldTypePoint:
		loc, ok := toLocation(input)
		if !ok {
			return nil, fieldError(field, "must be a location with numeric lat and lng")
		}
		return loc, nil
	default:
		return passThrough(field.Type, input), nil
	}
}

func fieldError(field models.FieldSchema, message string) *pkgerrors.FieldError {
	return &pkgerrors.FieldError{Field: field.Name, Message: message}
}

func isEmpty(input any) bool {
	switch v := input.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

func toNumber(input any) (float64, bool) {
	var n float64
	switch v := input.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func optionString(input any) (string, bool) {
	switch v := input.(type) {
	case string:
		return v, true
	case float64, int, int64, json.Number:
		n, ok := toNumber(v)
		if !ok {
			return "", false
		}
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	}
	return "", false
}

func validateOption(field models.FieldSchema, input any) (Value, *pkgerrors.FieldError) {
	message := "must be one of: " + strings.Join(field.Options, ", ")
	if items, ok := input.([]any); ok && field.Multiple {
		selected := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := optionString(item)
			if !ok || !contains(field.Options, s) {
				return nil, fieldError(field, message)
			}
			selected = append(selected, s)
		}
		encoded, _ := json.Marshal(selected)
		return RawValue(encoded), nil
	}
	s, ok := optionString(input)
	if !ok || !contains(field.Options, s) {
		return nil, fieldError(field, message)
	}
	return SelectValue(s), nil
}

func contains(options []string, value string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}

// toLocation accepts {lat,lng} or a [lng,lat] pair.
func toLocation(input any) (LocationValue, bool) {
	switch v := input.(type) {
	case map[string]any:
		if inner, ok := v["coordinates"].(map[string]any); ok {
			v = inner
		}
		lat, okLat := toNumber(v["lat"])
		lng, okLng := toNumber(v["lng"])
		if !okLat || !okLng {
			return LocationValue{}, false
		}
		return LocationValue{Lat: lat, Lng: lng}, true
	case []any:
		if len(v) != 2 {
			return LocationValue{}, false
		}
		lng, okLng := toNumber(v[0])
		lat, okLat := toNumber(v[1])
		if !okLat || !okLng {
			return LocationValue{}, false
		}
		return LocationValue{Lat: lat, Lng: lng}, true
	}
	return LocationValue{}, false
}

func passThrough(fieldType enums.FieldType, input any) Value {
	switch v := input.(type) {
	case string:
		if fieldType == enums.FieldTypeDate {
			return DateValue(v)
		}
		return TextValue(v)
	case bool:
		return BoolValue(v)
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	if fieldType.IsUpload() {
		return decodeValue(fieldType, encoded)
	}
	return RawValue(encoded)
}
