package categories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository persists category tree nodes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, category *models.Category) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Category, error)
	ListByStore(ctx context.Context, storeID uuid.UUID, filter ListFilter) ([]models.Category, error)
	ListDescendants(ctx context.Context, id uuid.UUID) ([]models.Category, error)
	Update(ctx context.Context, category *models.Category) error
	UpdatePlacement(ctx context.Context, id uuid.UUID, level int, path string) error
	AttachChild(ctx context.Context, parentID, childID uuid.UUID) error
	DetachChild(ctx context.Context, parentID, childID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ListFilter narrows a store's categories. RootsOnly wins over ParentID.
type ListFilter struct {
	ParentID  *uuid.UUID
	RootsOnly bool
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a categories repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, category *models.Category) error {
	if category.ID == uuid.Nil {
		category.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&category, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *repository) ListByStore(ctx context.Context, storeID uuid.UUID, filter ListFilter) ([]models.Category, error) {
	query := r.db.WithContext(ctx).Where("store_id = ?", storeID)
	switch {
	case filter.RootsOnly:
		query = query.Where("parent_id IS NULL")
	case filter.ParentID != nil:
		query = query.Where("parent_id = ?", *filter.ParentID)
	}

	var rows []models.Category
	if err := query.Order("level ASC, name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDescendants returns every node whose ancestor chain includes id.
func (r *repository) ListDescendants(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	var rows []models.Category
	err := r.db.WithContext(ctx).
		Where("(',' || path || ',') LIKE ?", "%,"+id.String()+",%").
		Order("level ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Update(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Save(category).Error
}

func (r *repository) UpdatePlacement(ctx context.Context, id uuid.UUID, level int, path string) error {
	return r.db.WithContext(ctx).
		Model(&models.Category{}).
		Where("id = ?", id).
		Updates(map[string]any{"level": level, "path": path}).Error
}

// AttachChild appends childID to the parent's children and bumps the counter
// in a single statement.
func (r *repository) AttachChild(ctx context.Context, parentID, childID uuid.UUID) error {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE categories
		    SET children = array_append(array_remove(children, ?::uuid), ?::uuid),
		        children_count = children_count + 1,
		        updated_at = now()
		  WHERE id = ?`,
		childID, childID, parentID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DetachChild removes childID from the parent's children; the counter never
// drops below zero.
func (r *repository) DetachChild(ctx context.Context, parentID, childID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE categories
		    SET children = array_remove(children, ?::uuid),
		        children_count = GREATEST(children_count - 1, 0),
		        updated_at = now()
		  WHERE id = ?`,
		childID, parentID,
	).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Category{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
