package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bazaar-backend/internal/uploads"
)

// ErrDraftNotFound means the reference is unknown or its TTL elapsed.
var ErrDraftNotFound = errors.New("listing draft not found")

// Draft is a validated listing waiting for its payment to clear.
type Draft struct {
	Reference        string          `json:"reference"`
	PaymentIntentID  string          `json:"paymentIntentId"`
	UserID           uuid.UUID       `json:"userId"`
	StoreID          uuid.UUID       `json:"storeId"`
	CategoryID       uuid.UUID       `json:"categoryId"`
	Values           map[string]any  `json:"values"`
	Images           []uploads.Image `json:"images,omitempty"`
	FileFieldMapping map[int]string  `json:"fileFieldMapping,omitempty"`
	NotifyUserIDs    []uuid.UUID     `json:"notifyUserIds,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

type kvStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	DraftKey(reference string) string
}

// DraftStore keeps drafts in Redis under a TTL. Take consumes a draft with
// GETDEL so exactly one confirmer wins.
type DraftStore struct {
	kv  kvStore
	ttl time.Duration
}

func NewDraftStore(kv kvStore, ttl time.Duration) (*DraftStore, error) {
	if kv == nil {
		return nil, errors.New("redis client required")
	}
	if ttl <= 0 {
		return nil, errors.New("draft ttl must be positive")
	}
	return &DraftStore{kv: kv, ttl: ttl}, nil
}

func (s *DraftStore) Save(ctx context.Context, draft *Draft) error {
	body, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.kv.DraftKey(draft.Reference), body, s.ttl)
}

func (s *DraftStore) Peek(ctx context.Context, reference string) (*Draft, error) {
	raw, err := s.kv.Get(ctx, s.kv.DraftKey(reference))
	return decodeDraft(raw, err)
}

func (s *DraftStore) Take(ctx context.Context, reference string) (*Draft, error) {
	raw, err := s.kv.GetDel(ctx, s.kv.DraftKey(reference))
	return decodeDraft(raw, err)
}

// MarkConfirmed remembers which listing a reference produced so a repeated
// confirmation returns it instead of failing.
func (s *DraftStore) MarkConfirmed(ctx context.Context, reference string, listingID uuid.UUID) error {
	return s.kv.Set(ctx, s.confirmedKey(reference), listingID.String(), s.ttl)
}

func (s *DraftStore) Confirmed(ctx context.Context, reference string) (uuid.UUID, bool, error) {
	raw, err := s.kv.Get(ctx, s.confirmedKey(reference))
	if errors.Is(err, goredis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (s *DraftStore) confirmedKey(reference string) string {
	return s.kv.DraftKey(reference) + ":confirmed"
}

func decodeDraft(raw string, err error) (*Draft, error) {
	if errors.Is(err, goredis.Nil) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, err
	}
	var draft Draft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}
