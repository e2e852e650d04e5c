package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

type fakeSubscriptions struct {
	synced []*stripe.Subscription
	failed []string
}

func (f *fakeSubscriptions) SyncFromStripe(_ context.Context, sub *stripe.Subscription) error {
	f.synced = append(f.synced, sub)
	return nil
}

func (f *fakeSubscriptions) MarkPaymentFailed(_ context.Context, id string) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakePayments struct {
	intents []*stripe.PaymentIntent
}

func (f *fakePayments) ConfirmFromWebhook(_ context.Context, intent *stripe.PaymentIntent) error {
	f.intents = append(f.intents, intent)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeSubscriptions, *fakePayments) {
	t.Helper()
	subs, pays := &fakeSubscriptions{}, &fakePayments{}
	svc, err := NewService(ServiceParams{Subscriptions: subs, Payments: pays})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, subs, pays
}

func decodeEvent(t *testing.T, raw string) *stripe.Event {
	t.Helper()
	var event stripe.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return &event
}

func TestHandleEvent_SubscriptionLifecycle(t *testing.T) {
	svc, subs, _ := newTestService(t)
	for _, typ := range []string{"customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted"} {
		event := decodeEvent(t, `{"id":"evt_1","type":"`+typ+`","data":{"object":{"id":"sub_1","object":"subscription","status":"active","metadata":{"user_id":"u"}}}}`)
		if err := svc.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}
	if len(subs.synced) != 3 || subs.synced[0].ID != "sub_1" {
		t.Fatalf("unexpected synced subscriptions %+v", subs.synced)
	}
}

func TestHandleEvent_InvoicePaymentFailed(t *testing.T) {
	svc, subs, _ := newTestService(t)

	nested := decodeEvent(t, `{"id":"evt_2","type":"invoice.payment_failed","data":{"object":{"id":"in_1","object":"invoice","parent":{"subscription_details":{"subscription":"sub_nested"}}}}}`)
	if err := svc.HandleEvent(context.Background(), nested); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	legacy := decodeEvent(t, `{"id":"evt_3","type":"invoice.payment_failed","data":{"object":{"id":"in_2","object":"invoice","subscription":"sub_legacy"}}}`)
	if err := svc.HandleEvent(context.Background(), legacy); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(subs.failed) != 2 || subs.failed[0] != "sub_nested" || subs.failed[1] != "sub_legacy" {
		t.Fatalf("unexpected failed ids %v", subs.failed)
	}
}

func TestHandleEvent_PaymentIntentSucceeded(t *testing.T) {
	svc, _, pays := newTestService(t)
	event := decodeEvent(t, `{"id":"evt_4","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded","metadata":{"listing_reference":"ref-1"}}}}`)
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(pays.intents) != 1 || pays.intents[0].Metadata["listing_reference"] != "ref-1" {
		t.Fatalf("unexpected intents %+v", pays.intents)
	}
}

func TestHandleEvent_IgnoresUnknownTypes(t *testing.T) {
	svc, subs, pays := newTestService(t)
	event := decodeEvent(t, `{"id":"evt_5","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(subs.synced)+len(subs.failed)+len(pays.intents) != 0 {
		t.Fatal("expected no handlers to run")
	}
}

type memoryStore struct {
	keys map[string]bool
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return redis.BuildKey("idempotency", scope, id)
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func TestGuard_SeenAndRelease(t *testing.T) {
	guard, err := NewGuard(&memoryStore{keys: map[string]bool{}}, time.Hour)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	ctx := context.Background()

	if seen, _ := guard.Seen(ctx, "evt_1"); seen {
		t.Fatal("first delivery must not be seen")
	}
	if seen, _ := guard.Seen(ctx, "evt_1"); !seen {
		t.Fatal("redelivery must be seen")
	}
	if err := guard.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if seen, _ := guard.Seen(ctx, "evt_1"); seen {
		t.Fatal("released event must be processed again")
	}
	if _, err := guard.Seen(ctx, ""); err == nil {
		t.Fatal("expected error for empty id")
	}
}
