package notifications

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Notification{}, &models.NotificationPreference{}))
	return conn
}

func notificationRow(userID uuid.UUID) models.Notification {
	return models.Notification{
		ID:       uuid.New(),
		UserID:   userID,
		Type:     enums.NotificationTypeListingCreated,
		Title:    "New listing",
		Message:  "hello",
		Channels: datatypes.NewJSONType(DefaultChannels),
	}
}

func TestBulkInsert_FallsBackPerRow(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	userID := uuid.New()

	good := notificationRow(userID)
	dup := notificationRow(userID)
	dup.ID = good.ID
	other := notificationRow(userID)

	inserted, err := repo.BulkInsert(context.Background(), []models.Notification{good, dup, other})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Len(t, inserted, 2)

	count, err := repo.UnreadCount(context.Background(), userID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestBulkInsert_SingleStatement(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	userID := uuid.New()

	inserted, err := repo.BulkInsert(context.Background(), []models.Notification{notificationRow(userID), notificationRow(uuid.New())})
	require.NoError(t, err)
	assert.Len(t, inserted, 2)
}

func TestMarkReadAndDeleteAreOwnerScoped(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	owner, stranger := uuid.New(), uuid.New()
	row := notificationRow(owner)
	require.NoError(t, repo.Create(ctx, &row))

	res, err := repo.MarkRead(ctx, stranger, row.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = repo.MarkRead(ctx, owner, row.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, res.Updated)

	res, err = repo.MarkRead(ctx, owner, row.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Updated)

	deleted, err := repo.Delete(ctx, stranger, row.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := repo.BulkDelete(ctx, owner, []uuid.UUID{row.ID, uuid.New()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDeleteReadOlderThan(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	userID := uuid.New()
	old := time.Now().UTC().Add(-48 * time.Hour)

	oldRead := notificationRow(userID)
	oldRead.IsRead, oldRead.CreatedAt = true, old
	oldUnread := notificationRow(userID)
	oldUnread.CreatedAt = old
	freshRead := notificationRow(userID)
	freshRead.IsRead = true
	for _, n := range []*models.Notification{&oldRead, &oldUnread, &freshRead} {
		require.NoError(t, repo.Create(ctx, n))
	}

	removed, err := repo.DeleteReadOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	var remaining []models.Notification
	require.NoError(t, conn.Find(&remaining).Error)
	assert.Len(t, remaining, 2)
}

func TestUpsertPreference_UniquePerUserStore(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	userID, storeID := uuid.New(), uuid.New()

	require.NoError(t, repo.UpsertPreference(ctx, &models.NotificationPreference{UserID: userID, StoreID: storeID, Email: boolPtr(true)}))
	require.NoError(t, repo.UpsertPreference(ctx, &models.NotificationPreference{UserID: userID, StoreID: storeID, Email: boolPtr(false), Push: boolPtr(false)}))

	prefs, err := repo.ListPreferences(ctx, storeID)
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	require.NotNil(t, prefs[0].Email)
	assert.False(t, *prefs[0].Email)
	assert.Nil(t, prefs[0].InApp)

	found, err := repo.FindPreference(ctx, userID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestListPagesByKeysetCursor(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		row := notificationRow(userID)
		row.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, &row))
	}

	first, next, err := repo.List(ctx, listNotificationsParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, next)
	assert.True(t, first[0].CreatedAt.After(first[1].CreatedAt))

	second, last, err := repo.List(ctx, listNotificationsParams{UserID: userID, Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Nil(t, last)
	assert.True(t, second[0].CreatedAt.Equal(base))
}
