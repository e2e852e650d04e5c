package stores

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Store{}))
	return conn
}

func TestServiceCreateAndGet(t *testing.T) {
	repo := NewRepository(openTestDB(t))
	svc, err := NewService(repo, nil)
	require.NoError(t, err)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{
		OwnerUserID: uuid.New(),
		Name:        "Lagos Motors",
		Kind:        enums.StoreKindVehicles,
	})
	require.NoError(t, err)
	assert.Equal(t, "lagos-motors", created.Slug)

	got, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.StoreKindVehicles, got.Kind)

	exists, err := repo.Exists(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = svc.GetByID(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceCreateRequiresExplicitKind(t *testing.T) {
	svc, err := NewService(NewRepository(openTestDB(t)), nil)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{OwnerUserID: uuid.New(), Name: "Anything"})
	require.Error(t, err)
	assert.True(t, pkgerrors.FieldsOf(err).Has("kind"))
}

func TestBackfillKinds(t *testing.T) {
	conn := openTestDB(t)
	repo := NewRepository(conn)
	svc, err := NewService(repo, nil)
	require.NoError(t, err)
	ctx := context.Background()

	seed := []models.Store{
		{ID: uuid.New(), OwnerUserID: uuid.New(), Name: "Downtown Jobs", Slug: "downtown-jobs", Kind: enums.StoreKindGeneral},
		{ID: uuid.New(), OwnerUserID: uuid.New(), Name: "City Clinic", Slug: "city-clinic", Kind: enums.StoreKindGeneral},
		{ID: uuid.New(), OwnerUserID: uuid.New(), Name: "Corner Shop", Slug: "corner-shop", Kind: enums.StoreKindGeneral},
	}
	for i := range seed {
		require.NoError(t, repo.Create(ctx, &seed[i]))
	}

	dry, err := svc.BackfillKinds(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, dry.Scanned)
	assert.Equal(t, 1, dry.Reclassified[enums.StoreKindJobs])

	unchanged, err := repo.FindByID(ctx, seed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.StoreKindGeneral, unchanged.Kind)

	_, err = svc.BackfillKinds(ctx, false)
	require.NoError(t, err)

	jobs, err := repo.FindByID(ctx, seed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.StoreKindJobs, jobs.Kind)
	clinic, err := repo.FindByID(ctx, seed[1].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.StoreKindHealthcare, clinic.Kind)
	shop, err := repo.FindByID(ctx, seed[2].ID)
	require.NoError(t, err)
	assert.Equal(t, enums.StoreKindGeneral, shop.Kind)
}
