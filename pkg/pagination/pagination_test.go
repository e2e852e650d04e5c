package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	if got := NormalizeLimit(0); got != DefaultLimit {
		t.Fatalf("expected default limit, got %d", got)
	}
	if got := NormalizeLimit(1000); got != MaxLimit {
		t.Fatalf("expected max limit, got %d", got)
	}
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("expected buffered limit 11, got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC), ID: uuid.New()}
	parsed, err := ParseCursor(EncodeCursor(c))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.CreatedAt.Equal(c.CreatedAt) || parsed.ID != c.ID {
		t.Fatalf("unexpected cursor %+v", parsed)
	}

	empty, err := ParseCursor("")
	if err != nil || empty != nil {
		t.Fatalf("expected nil cursor for empty input, got %+v %v", empty, err)
	}
	if _, err := ParseCursor("%%%"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestPageMeta(t *testing.T) {
	meta := MetaFor(Page{Page: 2, Limit: 10}, 25)
	if meta.Pages != 3 || meta.Page != 2 || meta.Limit != 10 || meta.Total != 25 {
		t.Fatalf("unexpected meta %+v", meta)
	}
	if off := (Page{Page: 3, Limit: 10}).Offset(); off != 20 {
		t.Fatalf("expected offset 20, got %d", off)
	}

	zero := MetaFor(Page{}, 0)
	if zero.Page != 1 || zero.Pages != 0 || zero.Limit != DefaultLimit {
		t.Fatalf("unexpected empty meta %+v", zero)
	}
}

func TestTrimReturnsNextCursor(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	key := func(id uuid.UUID) Cursor { return Cursor{CreatedAt: time.Unix(1, 0), ID: id} }

	page, next := Trim(ids, 2, key)
	if len(page) != 2 || next == nil || next.ID != ids[2] {
		t.Fatalf("unexpected trim result %v %+v", page, next)
	}
	page, next = Trim(ids[:2], 2, key)
	if len(page) != 2 || next != nil {
		t.Fatalf("expected last page, got %v %+v", page, next)
	}
}

func TestParseCursorRejectsEmptyPosition(t *testing.T) {
	if _, err := ParseCursor("e30"); err == nil {
		t.Fatal("expected error for cursor without position")
	}
}
