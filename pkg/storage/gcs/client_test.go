package gcs

import (
	"context"
	"testing"
	"time"
)

func TestObjectName(t *testing.T) {
	t.Parallel()

	at := time.UnixMilli(1714564800000)
	cases := []struct {
		folder string
		name   string
		want   string
	}{
		{"listings/abc", "Front View.PNG", "listings/abc/1714564800000-front-view.png"},
		{"/listings/abc/", "../../etc/passwd", "listings/abc/1714564800000-passwd"},
		{"", "photo.jpg", "1714564800000-photo.jpg"},
		{"listings", "ñ", "listings/1714564800000-file"},
		{"listings", `C:\Users\me\cv.pdf`, "listings/1714564800000-cv.pdf"},
	}
	for _, tc := range cases {
		if got := ObjectName(tc.folder, tc.name, at); got != tc.want {
			t.Fatalf("ObjectName(%q, %q) = %q, want %q", tc.folder, tc.name, got, tc.want)
		}
	}
}

func TestPublicURL(t *testing.T) {
	t.Parallel()

	got := PublicURL("https://cdn.example.com/", "bazaar-assets", "listings/a b/1-x.png")
	want := "https://cdn.example.com/bazaar-assets/listings/a%20b/1-x.png"
	if got != want {
		t.Fatalf("PublicURL = %q, want %q", got, want)
	}

	if got := PublicURL("", "b", "o.png"); got != "https://storage.googleapis.com/b/o.png" {
		t.Fatalf("unexpected default public url %q", got)
	}
}

func TestNilClientGuards(t *testing.T) {
	t.Parallel()

	var c *Client
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on nil client")
	}
	if _, err := c.Upload(context.Background(), "f", "n", "image/png", []byte("x")); err == nil {
		t.Fatal("expected upload error on nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("expected nil close on nil client, got %v", err)
	}
	if c.DefaultBucket() != "" {
		t.Fatal("expected empty bucket on nil client")
	}
}
