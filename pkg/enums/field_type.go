package enums

import "fmt"

// FieldType is the declared type of a dynamic category field.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeNumber   FieldType = "number"
	FieldTypeSelect   FieldType = "select"
	FieldTypeDate     FieldType = "date"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeFile     FieldType = "file"
	FieldTypeImage    FieldType = "image"
	FieldTypeInput    FieldType = "input"
	FieldTypePoint    FieldType = "point"
)

var validFieldTypes = []FieldType{
	FieldTypeText,
	FieldTypeNumber,
	FieldTypeSelect,
	FieldTypeDate,
	FieldTypeCheckbox,
	FieldTypeRadio,
	FieldTypeFile,
	FieldTypeImage,
	FieldTypeInput,
	FieldTypePoint,
}

func (f FieldType) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FieldType.
func (f FieldType) IsValid() bool {
	for _, candidate := range validFieldTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

// IsUpload reports whether values of this type are produced by the asset store.
func (f FieldType) IsUpload() bool {
	return f == FieldTypeFile || f == FieldTypeImage
}

// HasOptions reports whether the type constrains values to a fixed option list.
func (f FieldType) HasOptions() bool {
	return f == FieldTypeSelect || f == FieldTypeRadio
}

// ParseFieldType converts raw input into a FieldType.
func ParseFieldType(value string) (FieldType, error) {
	for _, candidate := range validFieldTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid field type %q", value)
}
