package listings

import (
	"regexp"
	"testing"
)

func TestBuildSlugFromTitle(t *testing.T) {
	slug := BuildSlug(Values{"title": TextValue("  Senior Go Engineer!! (Remote) ")})
	if !regexp.MustCompile(`^senior-go-engineer-remote-[a-z0-9]{6}$`).MatchString(slug) {
		t.Fatalf("unexpected slug %q", slug)
	}
}

func TestBuildSlugFallsBackThroughTitleKeys(t *testing.T) {
	slug := BuildSlug(Values{"jobTitle": TextValue("Nurse")})
	if !regexp.MustCompile(`^nurse-[a-z0-9]{6}$`).MatchString(slug) {
		t.Fatalf("unexpected slug %q", slug)
	}
}

func TestBuildSlugRandomWithoutTitle(t *testing.T) {
	slug := BuildSlug(Values{"price": NumberValue(3)})
	if !regexp.MustCompile(`^[a-z0-9]{12}$`).MatchString(slug) {
		t.Fatalf("unexpected slug %q", slug)
	}
	if BuildSlug(Values{"title": TextValue("!!!")}) == "" {
		t.Fatal("expected random slug for punctuation-only title")
	}
}
