package notifications

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/mailer"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/push"
)

type fakeRepository struct {
	rows   []models.Notification
	prefs  []models.NotificationPreference
	marked notificationMarkResult
	bulks  int
}

func (f *fakeRepository) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepository) Create(_ context.Context, n *models.Notification) error {
	n.CreatedAt = time.Now()
	f.rows = append(f.rows, *n)
	return nil
}

func (f *fakeRepository) BulkInsert(_ context.Context, rows []models.Notification) ([]models.Notification, error) {
	f.bulks++
	f.rows = append(f.rows, rows...)
	return rows, nil
}

func (f *fakeRepository) List(context.Context, listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	return f.rows, nil, nil
}

func (f *fakeRepository) UnreadCount(context.Context, uuid.UUID) (int64, error) {
	return int64(len(f.rows)), nil
}

func (f *fakeRepository) MarkRead(context.Context, uuid.UUID, uuid.UUID, time.Time) (notificationMarkResult, error) {
	return f.marked, nil
}

func (f *fakeRepository) MarkAllRead(context.Context, uuid.UUID, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) Delete(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeRepository) BulkDelete(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (int64, error) {
	return int64(len(ids)), nil
}

func (f *fakeRepository) DeleteReadOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) FindPreference(_ context.Context, userID, storeID uuid.UUID) (*models.NotificationPreference, error) {
	for i := range f.prefs {
		if f.prefs[i].UserID == userID && f.prefs[i].StoreID == storeID {
			return &f.prefs[i], nil
		}
	}
	return nil, nil
}

func (f *fakeRepository) UpsertPreference(_ context.Context, pref *models.NotificationPreference) error {
	for i := range f.prefs {
		if f.prefs[i].UserID == pref.UserID && f.prefs[i].StoreID == pref.StoreID {
			f.prefs[i] = *pref
			return nil
		}
	}
	f.prefs = append(f.prefs, *pref)
	return nil
}

func (f *fakeRepository) ListPreferences(_ context.Context, storeID uuid.UUID) ([]models.NotificationPreference, error) {
	var out []models.NotificationPreference
	for _, p := range f.prefs {
		if p.StoreID == storeID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRepository) rowsFor(userID uuid.UUID) []models.Notification {
	var out []models.Notification
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

type fakeUsers struct {
	users   map[uuid.UUID]models.User
	removed map[uuid.UUID][]string
}

func (f *fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (f *fakeUsers) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) RemovePushTokens(_ context.Context, userID uuid.UUID, tokens []string) error {
	if f.removed == nil {
		f.removed = map[uuid.UUID][]string{}
	}
	f.removed[userID] = append(f.removed[userID], tokens...)
	return nil
}

type fakeEmitter struct {
	rooms []string
}

func (f *fakeEmitter) Emit(_ context.Context, room, _ string, _ any) error {
	f.rooms = append(f.rooms, room)
	return nil
}

type fakeMailer struct {
	sent []mailer.Email
	err  error
}

func (f *fakeMailer) Send(_ context.Context, email mailer.Email) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

type fakePush struct {
	calls   [][]string
	invalid []string
}

func (f *fakePush) SendMulticast(_ context.Context, tokens []string, _ push.Message) (*push.Result, error) {
	f.calls = append(f.calls, append([]string(nil), tokens...))
	return &push.Result{
		SuccessCount:  len(tokens) - len(f.invalid),
		FailureCount:  len(f.invalid),
		InvalidTokens: f.invalid,
	}, nil
}

type fakeTx struct{}

func (fakeTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type harness struct {
	svc     Service
	repo    *fakeRepository
	users   *fakeUsers
	emitter *fakeEmitter
	mail    *fakeMailer
	push    *fakePush
}

func newHarness(t *testing.T, users ...models.User) *harness {
	t.Helper()
	h := &harness{
		repo:    &fakeRepository{},
		users:   &fakeUsers{users: map[uuid.UUID]models.User{}},
		emitter: &fakeEmitter{},
		mail:    &fakeMailer{},
		push:    &fakePush{},
	}
	for _, u := range users {
		h.users.users[u.ID] = u
	}
	svc, err := NewService(ServiceParams{
		Repository: h.repo,
		Users:      h.users,
		TxRunner:   fakeTx{},
		Realtime:   h.emitter,
		Mailer:     h.mail,
		Push:       h.push,
		PublicURL:  "https://bazaar.test/",
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.svc = svc
	return h
}

func newUser(email string, tokens ...string) models.User {
	return models.User{ID: uuid.New(), Email: email, PushTokens: pq.StringArray(tokens)}
}

func boolPtr(v bool) *bool { return &v }

func TestFanOutNewListing_InAppDisabledStillEmailsAndPushes(t *testing.T) {
	follower := newUser("follower@example.com", "tok-f")
	h := newHarness(t, follower)
	storeID := uuid.New()
	h.repo.prefs = []models.NotificationPreference{{
		UserID: follower.ID, StoreID: storeID,
		InApp: boolPtr(false), Email: boolPtr(true), Push: boolPtr(true),
	}}

	res, err := h.svc.FanOutNewListing(context.Background(), FanOutInput{
		ListingID: uuid.New(), StoreID: storeID, OwnerID: uuid.New(), Slug: "red-bike-ab12cd", Title: "Red bike",
	})
	if err != nil {
		t.Fatalf("FanOutNewListing: %v", err)
	}
	if got := len(h.repo.rowsFor(follower.ID)); got != 0 {
		t.Fatalf("expected no persisted row, got %d", got)
	}
	if len(h.emitter.rooms) != 0 {
		t.Fatalf("expected no realtime emit, got %v", h.emitter.rooms)
	}
	if len(h.mail.sent) != 1 || h.mail.sent[0].To != follower.Email {
		t.Fatalf("expected one email to follower, got %+v", h.mail.sent)
	}
	if h.mail.sent[0].CTAURL != "https://bazaar.test/listings/red-bike-ab12cd" {
		t.Fatalf("unexpected cta %q", h.mail.sent[0].CTAURL)
	}
	if len(h.push.calls) != 1 || len(h.push.calls[0]) != 1 || h.push.calls[0][0] != "tok-f" {
		t.Fatalf("expected one push to tok-f, got %v", h.push.calls)
	}
	if res.Recipients != 1 || res.InApp != 0 || res.Emailed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestFanOutNewListing_ExcludesOwner(t *testing.T) {
	owner := newUser("owner@example.com", "tok-o")
	follower := newUser("follower@example.com")
	h := newHarness(t, owner, follower)
	storeID := uuid.New()
	h.repo.prefs = []models.NotificationPreference{
		{UserID: owner.ID, StoreID: storeID},
		{UserID: follower.ID, StoreID: storeID},
	}

	_, err := h.svc.FanOutNewListing(context.Background(), FanOutInput{
		ListingID:       uuid.New(),
		StoreID:         storeID,
		OwnerID:         owner.ID,
		Title:           "Sofa",
		ExtraRecipients: []uuid.UUID{owner.ID, follower.ID},
	})
	if err != nil {
		t.Fatalf("FanOutNewListing: %v", err)
	}
	if got := len(h.repo.rowsFor(owner.ID)); got != 0 {
		t.Fatalf("owner must not be notified, got %d rows", got)
	}
	rows := h.repo.rowsFor(follower.ID)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one row for follower, got %d", len(rows))
	}
	if h.repo.bulks != 1 {
		t.Fatalf("expected a single bulk insert, got %d", h.repo.bulks)
	}
	if rows[0].Type != enums.NotificationTypeListingCreated {
		t.Fatalf("unexpected type %q", rows[0].Type)
	}
	if got := rows[0].Channels.Data(); got != DefaultChannels {
		t.Fatalf("expected default channel snapshot, got %+v", got)
	}
	for _, call := range h.push.calls {
		for _, tok := range call {
			if tok == "tok-o" {
				t.Fatal("owner token must not be targeted")
			}
		}
	}
	if len(h.emitter.rooms) != 1 || h.emitter.rooms[0] != "user:"+follower.ID.String() {
		t.Fatalf("unexpected realtime rooms %v", h.emitter.rooms)
	}
}

func TestFanOutNewListing_RemovesExactlyInvalidTokens(t *testing.T) {
	alice := newUser("alice@example.com", "a-1", "a-2")
	bob := newUser("bob@example.com", "b-1")
	carol := newUser("carol@example.com", "c-1")
	h := newHarness(t, alice, bob, carol)
	storeID := uuid.New()
	for _, u := range []models.User{alice, bob, carol} {
		h.repo.prefs = append(h.repo.prefs, models.NotificationPreference{UserID: u.ID, StoreID: storeID})
	}
	h.push.invalid = []string{"a-2", "b-1"}

	res, err := h.svc.FanOutNewListing(context.Background(), FanOutInput{ListingID: uuid.New(), StoreID: storeID, OwnerID: uuid.New()})
	if err != nil {
		t.Fatalf("FanOutNewListing: %v", err)
	}
	if len(h.push.calls) != 1 {
		t.Fatalf("expected one multicast, got %d", len(h.push.calls))
	}
	sent := append([]string(nil), h.push.calls[0]...)
	sort.Strings(sent)
	if want := []string{"a-1", "a-2", "b-1", "c-1"}; !equalStrings(sent, want) {
		t.Fatalf("unexpected tokens %v", sent)
	}
	if res.PushTokens != 4 {
		t.Fatalf("expected 4 push tokens, got %d", res.PushTokens)
	}
	if got := h.users.removed[alice.ID]; !equalStrings(got, []string{"a-2"}) {
		t.Fatalf("alice cleanup = %v", got)
	}
	if got := h.users.removed[bob.ID]; !equalStrings(got, []string{"b-1"}) {
		t.Fatalf("bob cleanup = %v", got)
	}
	if _, ok := h.users.removed[carol.ID]; ok {
		t.Fatal("carol has no invalid tokens")
	}
}

func TestFanOutNewListing_EmailFailureDoesNotStopOthers(t *testing.T) {
	a := newUser("a@example.com")
	b := newUser("b@example.com")
	h := newHarness(t, a, b)
	storeID := uuid.New()
	h.repo.prefs = []models.NotificationPreference{
		{UserID: a.ID, StoreID: storeID, Email: boolPtr(true)},
		{UserID: b.ID, StoreID: storeID, Email: boolPtr(true)},
	}
	h.mail.err = errors.New("smtp down")

	res, err := h.svc.FanOutNewListing(context.Background(), FanOutInput{ListingID: uuid.New(), StoreID: storeID})
	if err != nil {
		t.Fatalf("FanOutNewListing: %v", err)
	}
	if res.InApp != 2 || len(h.repo.rows) != 2 {
		t.Fatalf("expected both in-app rows, got %+v", res)
	}
	if res.Emailed != 0 {
		t.Fatalf("expected no successful emails, got %d", res.Emailed)
	}
}

func TestDispatch_ValidatesPayload(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Dispatch(context.Background(), Payload{Type: "bogus"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	fields := pkgerrors.FieldsOf(err)
	for _, f := range []string{"user_id", "type", "title"} {
		if !fields.Has(f) {
			t.Fatalf("expected field error for %s, got %v", f, fields)
		}
	}
}

func TestDispatch_PersistsAndEmits(t *testing.T) {
	user := newUser("u@example.com")
	h := newHarness(t, user)

	dto, err := h.svc.Dispatch(context.Background(), Payload{
		UserID:   user.ID,
		Type:     enums.NotificationTypeSystem,
		Title:    "Hello",
		Message:  "Welcome to the bazaar",
		Channels: models.Channels{InApp: true},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if dto == nil || dto.UserID != user.ID {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if len(h.repo.rows) != 1 || len(h.emitter.rooms) != 1 {
		t.Fatalf("expected one row and one emit, got %d/%d", len(h.repo.rows), len(h.emitter.rooms))
	}
	if len(h.mail.sent) != 0 || len(h.push.calls) != 0 {
		t.Fatal("email and push are disabled")
	}
}

func TestUploadFailed_AlwaysWritesInApp(t *testing.T) {
	owner := newUser("owner@example.com")
	h := newHarness(t, owner)
	listing := &models.Listing{ID: uuid.New(), StoreID: uuid.New(), UserID: owner.ID, Slug: "desk-xyz123"}
	h.repo.prefs = []models.NotificationPreference{{UserID: owner.ID, StoreID: listing.StoreID, InApp: boolPtr(false)}}

	if err := h.svc.UploadFailed(context.Background(), listing, "bucket unavailable"); err != nil {
		t.Fatalf("UploadFailed: %v", err)
	}
	rows := h.repo.rowsFor(owner.ID)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0].Type != enums.NotificationTypeUploadFailed {
		t.Fatalf("unexpected type %q", rows[0].Type)
	}
	if rows[0].Metadata.Data().Summary != "bucket unavailable" {
		t.Fatalf("unexpected metadata %+v", rows[0].Metadata.Data())
	}
}

func TestResolveChannels_FallsBackPerChannel(t *testing.T) {
	repo := &fakeRepository{}
	userID, storeID := uuid.New(), uuid.New()

	got, err := ResolveChannels(context.Background(), repo, userID, storeID, DefaultChannels)
	if err != nil || got != DefaultChannels {
		t.Fatalf("expected defaults, got %+v (%v)", got, err)
	}

	repo.prefs = []models.NotificationPreference{{UserID: userID, StoreID: storeID, Email: boolPtr(true)}}
	got, _ = ResolveChannels(context.Background(), repo, userID, storeID, DefaultChannels)
	if want := (models.Channels{InApp: true, Email: true, Push: true}); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestUpsertPreference_MergesPartialInput(t *testing.T) {
	h := newHarness(t)
	userID, storeID := uuid.New(), uuid.New()

	if _, err := h.svc.UpsertPreference(context.Background(), userID, storeID, PreferenceInput{Push: boolPtr(false)}); err != nil {
		t.Fatalf("UpsertPreference: %v", err)
	}
	got, err := h.svc.UpsertPreference(context.Background(), userID, storeID, PreferenceInput{Email: boolPtr(true)})
	if err != nil {
		t.Fatalf("UpsertPreference: %v", err)
	}
	if got.Push || !got.Email || !got.InApp {
		t.Fatalf("unexpected merged preference %+v", got)
	}
	if len(h.repo.prefs) != 1 {
		t.Fatalf("expected one preference row, got %d", len(h.repo.prefs))
	}
}

func TestMarkRead_NotFound(t *testing.T) {
	h := newHarness(t)
	err := h.svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBulkDelete_RequiresIDs(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.BulkDelete(context.Background(), uuid.New(), nil)
	if !pkgerrors.FieldsOf(err).Has("ids") {
		t.Fatalf("expected ids field error, got %v", err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
