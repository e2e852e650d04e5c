package errors

import "strings"

// FieldError is a single field-level validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors collects every field problem found in one validation pass.
type FieldErrors []FieldError

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for _, fe := range f {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return strings.Join(parts, "; ")
}

// Has reports whether a problem was recorded for field.
func (f FieldErrors) Has(field string) bool {
	for _, fe := range f {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validation wraps field errors into a VALIDATION_ERROR carrying them as details.
func Validation(message string, fields FieldErrors) *Error {
	if message == "" {
		message = "validation failed"
	}
	return Wrap(CodeValidation, fields, message).WithDetails([]FieldError(fields))
}

// FieldsOf extracts field errors attached to a validation error.
func FieldsOf(err error) FieldErrors {
	typed := As(err)
	if typed == nil || typed.Code() != CodeValidation {
		return nil
	}
	if fields, ok := typed.Details().([]FieldError); ok {
		return FieldErrors(fields)
	}
	return nil
}
