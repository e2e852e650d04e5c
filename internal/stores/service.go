package stores

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type storeRepository interface {
	Create(ctx context.Context, store *models.Store) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	ListByKind(ctx context.Context, kind enums.StoreKind) ([]models.Store, error)
	UpdateKind(ctx context.Context, id uuid.UUID, kind enums.StoreKind) error
}

// Service exposes store operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*StoreDTO, error)
	GetByID(ctx context.Context, id uuid.UUID) (*StoreDTO, error)
	BackfillKinds(ctx context.Context, dryRun bool) (*BackfillResult, error)
}

type service struct {
	repo storeRepository
	logg *logger.Logger
}

// NewService builds a store service with the provided repository.
func NewService(repo storeRepository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*StoreDTO, error) {
	name := strings.TrimSpace(input.Name)
	var problems pkgerrors.FieldErrors
	if input.OwnerUserID == uuid.Nil {
		problems = append(problems, pkgerrors.FieldError{Field: "owner_user_id", Message: "is required"})
	}
	if name == "" {
		problems = append(problems, pkgerrors.FieldError{Field: "name", Message: "is required"})
	}
	if !input.Kind.IsValid() {
		problems = append(problems, pkgerrors.FieldError{Field: "kind", Message: "must be one of jobs, vehicles, healthcare, classifieds, general"})
	}
	if len(problems) > 0 {
		return nil, pkgerrors.Validation("invalid store", problems)
	}

	storeSlug := slug.Make(input.Slug)
	if storeSlug == "" {
		storeSlug = slug.Make(name)
	}
	store := &models.Store{
		OwnerUserID: input.OwnerUserID,
		Name:        name,
		Slug:        storeSlug,
		Kind:        input.Kind,
	}
	if err := s.repo.Create(ctx, store); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "store slug already taken")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create store")
	}
	return FromModel(store), nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*StoreDTO, error) {
	store, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return FromModel(store), nil
}

// BackfillKinds classifies stores still marked general from their name and
// slug. It exists for the one-time migration off pattern-matched verticals.
func (s *service) BackfillKinds(ctx context.Context, dryRun bool) (*BackfillResult, error) {
	rows, err := s.repo.ListByKind(ctx, enums.StoreKindGeneral)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unclassified stores")
	}

	result := &BackfillResult{Scanned: len(rows), Reclassified: map[enums.StoreKind]int{}}
	for _, store := range rows {
		kind := enums.InferStoreKind(store.Name, store.Slug)
		if kind == enums.StoreKindGeneral {
			continue
		}
		result.Reclassified[kind]++
		if dryRun {
			continue
		}
		if err := s.repo.UpdateKind(ctx, store.ID, kind); err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update store kind")
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"store_id": store.ID.String(),
			"kind":     kind,
		}), "store kind backfilled")
	}
	return result, nil
}
