package instance

import "testing"

func TestGetIDPrefersExplicitInstance(t *testing.T) {
	t.Setenv("HOSTNAME", "host-1")
	t.Setenv("DYNO", "")
	t.Setenv("BAZAAR_INSTANCE_ID", "api-7")
	if got := GetID("api"); got != "api-7" {
		t.Fatalf("expected api-7, got %s", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("BAZAAR_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	t.Setenv("HOSTNAME", "")
	if got := GetID("worker"); got != "worker-local" {
		t.Fatalf("expected worker-local, got %s", got)
	}
}
