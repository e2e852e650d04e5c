package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "bz:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestCheckAndMarkProcessed_FirstTime(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	already, err := manager.CheckAndMarkProcessed(context.Background(), "stripe-webhook", "evt_123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if already {
		t.Fatal("expected first delivery to be processed")
	}
	if store.lastKey != "bz:idempotency:evt:stripe-webhook:evt_123" {
		t.Fatalf("unexpected key %s", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", store.lastTTL)
	}
}

func TestCheckAndMarkProcessed_Duplicate(t *testing.T) {
	manager, _ := NewManager(&fakeStore{setNXResult: false}, time.Hour)

	already, err := manager.CheckAndMarkProcessed(context.Background(), "notifications", "evt-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !already {
		t.Fatal("expected duplicate to be reported")
	}
}

func TestCheckAndMarkProcessed_Errors(t *testing.T) {
	manager, _ := NewManager(&fakeStore{setNXError: errors.New("down")}, time.Hour)
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "c", "e"); err == nil {
		t.Fatal("expected store error to propagate")
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "", "e"); err == nil {
		t.Fatal("expected missing consumer error")
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "c", " "); err == nil {
		t.Fatal("expected missing event id error")
	}
}

func TestRelease(t *testing.T) {
	store := &fakeStore{}
	manager, _ := NewManager(store, time.Hour)
	if err := manager.Release(context.Background(), "notifications", "evt-9"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.lastDeleted != "bz:idempotency:evt:notifications:evt-9" {
		t.Fatalf("unexpected deleted key %s", store.lastDeleted)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
	if _, err := NewManager(&fakeStore{}, -time.Second); err == nil {
		t.Fatal("expected negative ttl error")
	}
}
