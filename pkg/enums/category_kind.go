package enums

import "fmt"

// CategoryKind tells the listing pipeline which profile collection a listing joins.
type CategoryKind string

const (
	CategoryKindGeneral    CategoryKind = "general"
	CategoryKindJob        CategoryKind = "job"
	CategoryKindVehicle    CategoryKind = "vehicle"
	CategoryKindHealthcare CategoryKind = "healthcare"
	CategoryKindProperty   CategoryKind = "property"
)

var validCategoryKinds = []CategoryKind{
	CategoryKindGeneral,
	CategoryKindJob,
	CategoryKindVehicle,
	CategoryKindHealthcare,
	CategoryKindProperty,
}

func (c CategoryKind) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CategoryKind.
func (c CategoryKind) IsValid() bool {
	for _, candidate := range validCategoryKinds {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCategoryKind converts raw input into a CategoryKind. Empty input maps to general.
func ParseCategoryKind(value string) (CategoryKind, error) {
	if value == "" {
		return CategoryKindGeneral, nil
	}
	for _, candidate := range validCategoryKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid category kind %q", value)
}
