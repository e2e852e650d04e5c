package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, kind, name, want string
	}{
		{"bazaar", "topics", "listing-events", "projects/bazaar/topics/listing-events"},
		{"bazaar", "subscriptions", " notif ", "projects/bazaar/subscriptions/notif"},
		{"bazaar", "topics", "projects/other/topics/x", "projects/other/topics/x"},
		{"bazaar", "topics", "", ""},
		{"", "topics", "x", ""},
	}
	for _, tc := range cases {
		if got := resourceName(tc.project, tc.kind, tc.name); got != tc.want {
			t.Fatalf("resourceName(%q,%q,%q) = %q, want %q", tc.project, tc.kind, tc.name, got, tc.want)
		}
	}
}

func TestRequiredSkipsBlankNames(t *testing.T) {
	if got := required(config.PubSubConfig{}); len(got) != 0 {
		t.Fatalf("expected no resources, got %v", got)
	}
	got := required(config.PubSubConfig{ListingEventsTopic: " events ", NotificationSubscription: "notif"})
	if len(got) != 2 {
		t.Fatalf("unexpected resources %v", got)
	}
	if got[0] != (resource{kindTopic, "events"}) || got[1] != (resource{kindSubscription, "notif"}) {
		t.Fatalf("unexpected resources %v", got)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil); err != errProjectIDRequired {
		t.Fatalf("expected project id error, got %v", err)
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil || c.Subscription("x") != nil {
		t.Fatal("expected nil handles from nil client")
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close error %v", err)
	}
}
