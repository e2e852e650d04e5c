package categories

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// Service maintains store category trees and their leaf schemas.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CategoryDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*CategoryDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*CategoryDTO, error)
	List(ctx context.Context, storeID uuid.UUID, parentID *uuid.UUID) ([]CategoryDTO, error)
	Tree(ctx context.Context, storeID uuid.UUID) ([]*TreeNode, error)
	Schema(ctx context.Context, id uuid.UUID) ([]models.FieldSchema, error)
	// Leaf loads a category that may own listings.
	Leaf(ctx context.Context, id uuid.UUID) (*models.Category, error)
}

type storeLookup interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo   Repository
	stores storeLookup
	tx     txRunner
	logg   *logger.Logger
}

// NewService wires the category service.
func NewService(repo Repository, stores storeLookup, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "categories repository required")
	}
	if stores == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "store lookup required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, stores: stores, tx: tx, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CategoryDTO, error) {
	name := strings.TrimSpace(input.Name)
	var problems pkgerrors.FieldErrors
	if input.StoreID == uuid.Nil {
		problems = append(problems, pkgerrors.FieldError{Field: "store_id", Message: "is required"})
	}
	if name == "" {
		problems = append(problems, pkgerrors.FieldError{Field: "name", Message: "is required"})
	}
	kind := input.Kind
	if kind == "" {
		kind = enums.CategoryKindGeneral
	}
	if !kind.IsValid() {
		problems = append(problems, pkgerrors.FieldError{Field: "kind", Message: "is not a known category kind"})
	}
	fields := normalizeFields(input.Fields)
	problems = append(problems, validateSchema(input.IsLeaf, fields)...)
	if len(problems) > 0 {
		return nil, pkgerrors.Validation("invalid category", problems)
	}

	exists, err := s.stores.Exists(ctx, input.StoreID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}

	categorySlug := slug.Make(input.Slug)
	if categorySlug == "" {
		categorySlug = slug.Make(name)
	}

	category := &models.Category{
		ID:       uuid.New(),
		StoreID:  input.StoreID,
		ParentID: input.ParentID,
		Name:     name,
		Slug:     categorySlug,
		Kind:     kind,
		IsLeaf:   input.IsLeaf,
		Fields:   datatypes.JSONSlice[models.FieldSchema](fields),
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var parent *models.Category
		if input.ParentID != nil {
			p, loadErr := s.loadParent(ctx, repo, *input.ParentID, input.StoreID)
			if loadErr != nil {
				return loadErr
			}
			parent = p
		}
		category.Level, category.Path = Placement(parent)

		if err := repo.Create(ctx, category); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a sibling category already uses this slug")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create category")
		}
		if parent != nil {
			if err := repo.AttachChild(ctx, parent.ID, category.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach child")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"category_id": category.ID.String(),
		"store_id":    category.StoreID.String(),
		"level":       category.Level,
	}), "category created")
	return FromModel(category), nil
}

func (s *service) loadParent(ctx context.Context, repo Repository, parentID, storeID uuid.UUID) (*models.Category, error) {
	parent, err := repo.FindByIDForUpdate(ctx, parentID)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.Validation("invalid parent", pkgerrors.FieldErrors{{Field: "parent_id", Message: "parent category not found"}})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load parent category")
	}
	if parent.StoreID != storeID {
		return nil, pkgerrors.Validation("invalid parent", pkgerrors.FieldErrors{{Field: "parent_id", Message: "parent belongs to another store"}})
	}
	if parent.IsLeaf {
		return nil, pkgerrors.Validation("invalid parent", pkgerrors.FieldErrors{{Field: "parent_id", Message: "leaf categories cannot have children"}})
	}
	return parent, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*CategoryDTO, error) {
	var updated *models.Category
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		category, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
		}

		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return pkgerrors.Validation("invalid category", pkgerrors.FieldErrors{{Field: "name", Message: "is required"}})
			}
			category.Name = name
		}
		if input.Kind != nil {
			if !input.Kind.IsValid() {
				return pkgerrors.Validation("invalid category", pkgerrors.FieldErrors{{Field: "kind", Message: "is not a known category kind"}})
			}
			category.Kind = *input.Kind
		}
		if input.IsLeaf != nil {
			if *input.IsLeaf && category.ChildrenCount > 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "a category with children cannot become a leaf")
			}
			category.IsLeaf = *input.IsLeaf
		}
		if input.Fields != nil {
			category.Fields = datatypes.JSONSlice[models.FieldSchema](normalizeFields(*input.Fields))
		}
		if problems := validateSchema(category.IsLeaf, category.Fields); len(problems) > 0 {
			return pkgerrors.Validation("invalid category", problems)
		}

		if input.Move && !sameParent(category.ParentID, input.MoveTo) {
			if err := s.move(ctx, repo, category, input.MoveTo); err != nil {
				return err
			}
		}

		if err := repo.Update(ctx, category); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update category")
		}
		updated = category
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

// move re-parents category, rewrites every descendant's path and level, and
// keeps both parents' children bookkeeping in step.
func (s *service) move(ctx context.Context, repo Repository, category *models.Category, newParentID *uuid.UUID) error {
	var parent *models.Category
	if newParentID != nil {
		if *newParentID == category.ID {
			return pkgerrors.Validation("invalid parent", pkgerrors.FieldErrors{{Field: "parent_id", Message: "a category cannot be its own parent"}})
		}
		var err error
		parent, err = s.loadParent(ctx, repo, *newParentID, category.StoreID)
		if err != nil {
			return err
		}
		if IsAncestor(category.ID, parent) {
			return pkgerrors.Validation("invalid parent", pkgerrors.FieldErrors{{Field: "parent_id", Message: "a category cannot move under its own descendant"}})
		}
	}

	oldLevel := category.Level
	oldPrefix := childPath(category)
	oldParentID := category.ParentID

	category.ParentID = newParentID
	category.Level, category.Path = Placement(parent)
	newPrefix := childPath(category)
	delta := category.Level - oldLevel

	descendants, err := repo.ListDescendants(ctx, category.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load descendants")
	}
	for _, d := range descendants {
		if err := repo.UpdatePlacement(ctx, d.ID, d.Level+delta, rebase(d.Path, oldPrefix, newPrefix)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rewrite descendant path")
		}
	}

	if oldParentID != nil {
		if err := repo.DetachChild(ctx, *oldParentID, category.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach from previous parent")
		}
	}
	if parent != nil {
		if err := repo.AttachChild(ctx, parent.ID, category.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach to new parent")
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"category_id": category.ID.String(),
		"descendants": len(descendants),
	}), "category re-parented")
	return nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		category, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
		}
		if category.ChildrenCount > 0 || len(category.Children) > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "category still has children")
		}
		if err := repo.Delete(ctx, id); err != nil {
			if isNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "category is still referenced by listings")
		}
		if category.ParentID != nil {
			if err := repo.DetachChild(ctx, *category.ParentID, category.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach from parent")
			}
		}
		return nil
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CategoryDTO, error) {
	category, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(category), nil
}

func (s *service) List(ctx context.Context, storeID uuid.UUID, parentID *uuid.UUID) ([]CategoryDTO, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	rows, err := s.repo.ListByStore(ctx, storeID, ListFilter{ParentID: parentID, RootsOnly: parentID == nil})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Tree(ctx context.Context, storeID uuid.UUID) ([]*TreeNode, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	rows, err := s.repo.ListByStore(ctx, storeID, ListFilter{})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return BuildTree(rows), nil
}

func (s *service) Schema(ctx context.Context, id uuid.UUID) ([]models.FieldSchema, error) {
	category, err := s.Leaf(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := []models.FieldSchema(category.Fields)
	if fields == nil {
		fields = []models.FieldSchema{}
	}
	return fields, nil
}

func (s *service) Leaf(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	category, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !category.IsLeaf {
		return nil, pkgerrors.Validation("invalid category", pkgerrors.FieldErrors{{
			Field:   "category_id",
			Message: "listings can only be filed under a leaf category",
		}})
	}
	return category, nil
}

func (s *service) find(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category id required")
	}
	category, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	return category, nil
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
