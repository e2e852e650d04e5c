package enums

import (
	"fmt"
	"regexp"
)

// StoreKind is the vertical a store belongs to.
type StoreKind string

const (
	StoreKindJobs        StoreKind = "jobs"
	StoreKindVehicles    StoreKind = "vehicles"
	StoreKindHealthcare  StoreKind = "healthcare"
	StoreKindClassifieds StoreKind = "classifieds"
	StoreKindGeneral     StoreKind = "general"
)

var validStoreKinds = []StoreKind{
	StoreKindJobs,
	StoreKindVehicles,
	StoreKindHealthcare,
	StoreKindClassifieds,
	StoreKindGeneral,
}

func (s StoreKind) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StoreKind.
func (s StoreKind) IsValid() bool {
	for _, candidate := range validStoreKinds {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStoreKind converts raw input into a StoreKind.
func ParseStoreKind(value string) (StoreKind, error) {
	for _, candidate := range validStoreKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid store kind %q", value)
}

var storeKindPatterns = []struct {
	kind StoreKind
	re   *regexp.Regexp
}{
	{StoreKindJobs, regexp.MustCompile(`(?i)\b(jobs?|careers?|hiring|employment)\b`)},
	{StoreKindVehicles, regexp.MustCompile(`(?i)\b(vehicles?|cars?|autos?|motors?)\b`)},
	{StoreKindHealthcare, regexp.MustCompile(`(?i)\b(health(care)?|medical|clinics?|doctors?)\b`)},
	{StoreKindClassifieds, regexp.MustCompile(`(?i)\b(classifieds?|marketplace|buy-?sell)\b`)},
}

// InferStoreKind classifies legacy stores from their name or slug. It is only
// used by the one-off kind backfill; new stores set their kind explicitly.
func InferStoreKind(name, slug string) StoreKind {
	for _, p := range storeKindPatterns {
		if p.re.MatchString(name) || p.re.MatchString(slug) {
			return p.kind
		}
	}
	return StoreKindGeneral
}
