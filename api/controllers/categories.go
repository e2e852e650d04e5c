package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/categories"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type categoryService interface {
	Create(ctx context.Context, input categories.CreateInput) (*categories.CategoryDTO, error)
	Update(ctx context.Context, id uuid.UUID, input categories.UpdateInput) (*categories.CategoryDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*categories.CategoryDTO, error)
	List(ctx context.Context, storeID uuid.UUID, parentID *uuid.UUID) ([]categories.CategoryDTO, error)
	Tree(ctx context.Context, storeID uuid.UUID) ([]*categories.TreeNode, error)
	Schema(ctx context.Context, id uuid.UUID) ([]models.FieldSchema, error)
}

type createCategoryRequest struct {
	StoreID  string               `json:"store_id" validate:"required,uuid"`
	ParentID *string              `json:"parent_id" validate:"omitempty,uuid"`
	Name     string               `json:"name" validate:"required,max=120"`
	Slug     string               `json:"slug" validate:"max=140"`
	Kind     string               `json:"kind"`
	IsLeaf   bool                 `json:"is_leaf"`
	Fields   []models.FieldSchema `json:"fields"`
}

// updateCategoryRequest distinguishes an absent parent_id from an explicit
// null, which moves the node to the root.
type updateCategoryRequest struct {
	Name     *string               `json:"name" validate:"omitempty,min=1,max=120"`
	Kind     *string               `json:"kind"`
	IsLeaf   *bool                 `json:"is_leaf"`
	Fields   *[]models.FieldSchema `json:"fields"`
	ParentID optionalUUID          `json:"parent_id"`
}

func CreateCategory(svc categoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("category service"))
			return
		}

		var req createCategoryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := categories.CreateInput{
			StoreID: uuid.MustParse(req.StoreID),
			Name:    validators.SanitizeString(req.Name, 120),
			Slug:    strings.TrimSpace(req.Slug),
			IsLeaf:  req.IsLeaf,
			Fields:  req.Fields,
		}
		if req.ParentID != nil {
			parent := uuid.MustParse(*req.ParentID)
			input.ParentID = &parent
		}
		if strings.TrimSpace(req.Kind) != "" {
			kind, err := enums.ParseCategoryKind(req.Kind)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Validation("invalid category", pkgerrors.FieldErrors{{Field: "kind", Message: err.Error()}}))
				return
			}
			input.Kind = kind
		}

		category, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, category)
	}
}

func UpdateCategory(svc categoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("category service"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateCategoryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := categories.UpdateInput{
			Name:   req.Name,
			IsLeaf: req.IsLeaf,
			Fields: req.Fields,
			Move:   req.ParentID.Set,
			MoveTo: req.ParentID.Value,
		}
		if req.Kind != nil {
			kind, err := enums.ParseCategoryKind(*req.Kind)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Validation("invalid category", pkgerrors.FieldErrors{{Field: "kind", Message: err.Error()}}))
				return
			}
			input.Kind = &kind
		}

		category, err := svc.Update(r.Context(), id, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, category)
	}
}

func DeleteCategory(svc categoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("category service"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true})
	}
}

func GetCategory(svc categoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("category service"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, category)
	}
}

// CategorySchema returns the ordered field schema of a category.
func CategorySchema(svc categoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("category service"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fields, err := svc.Schema(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"fields": fields})
	}
}

// ListCategories returns one level of a store's tree; roots unless parentId is given.
func ListCategories(svc categoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("category service"))
			return
		}
		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var parentID *uuid.UUID
		if raw := strings.TrimSpace(r.URL.Query().Get("parentId")); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid parentId"))
				return
			}
			parentID = &parsed
		}

		items, err := svc.List(r.Context(), storeID, parentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func CategoryTree(svc categoryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("category service"))
			return
		}
		storeID, err := validators.ParseUUIDParam(r, "storeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tree, err := svc.Tree(r.Context(), storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, tree)
	}
}
