package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type counterStore struct {
	counts map[string]int64
	err    error
}

func (c *counterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.counts[key]++
	return c.counts[key], nil
}

func (c *counterStore) RateLimitKey(policy, subject string) string {
	return policy + ":" + subject
}

func TestRateLimitBlocksAfterLimitPerUser(t *testing.T) {
	store := &counterStore{counts: map[string]int64{}}
	handler := RateLimit(RateLimitPolicy{Name: "intents", Window: time.Minute, Limit: 2}, store, nil)(okHandler())

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithUserID(req.Context(), user))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("u1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, code)
		}
	}
	if code := send("u1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", code)
	}
	if code := send("u2"); code != http.StatusOK {
		t.Fatalf("other users keep their own budget, got %d", code)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	store := &counterStore{err: errors.New("redis down")}
	handler := RateLimit(RateLimitPolicy{Name: "intents", Window: time.Minute, Limit: 1}, store, nil)(okHandler())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
