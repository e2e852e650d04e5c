package env

import "testing"

func TestGetPrefersPrefixedKey(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("BAZAAR_LOG_FORMAT", "console")
	if got := Get("LOG_FORMAT", "x"); got != "console" {
		t.Fatalf("expected prefixed value, got %q", got)
	}
	if got := Get("BAZAAR_LOG_FORMAT", "x"); got != "console" {
		t.Fatalf("expected prefixed lookup with full key, got %q", got)
	}
}

func TestGetFallsBack(t *testing.T) {
	t.Setenv("BAZAAR_MISSING_KEY", " ")
	if got := Get("MISSING_KEY", "default"); got != "default" {
		t.Fatalf("expected fallback, got %q", got)
	}
}
