package categories

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// CategoryDTO is the API shape of a category node.
type CategoryDTO struct {
	ID            uuid.UUID            `json:"id"`
	StoreID       uuid.UUID            `json:"store_id"`
	ParentID      *uuid.UUID           `json:"parent_id,omitempty"`
	Name          string               `json:"name"`
	Slug          string               `json:"slug"`
	Kind          enums.CategoryKind   `json:"kind"`
	IsLeaf        bool                 `json:"is_leaf"`
	Fields        []models.FieldSchema `json:"fields"`
	Level         int                  `json:"level"`
	Path          string               `json:"path"`
	ChildrenCount int                  `json:"children_count"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// TreeNode is a category with its nested children.
type TreeNode struct {
	CategoryDTO
	Children []*TreeNode `json:"children"`
}

// CreateInput carries a new category.
type CreateInput struct {
	StoreID  uuid.UUID
	ParentID *uuid.UUID
	Name     string
	Slug     string
	Kind     enums.CategoryKind
	IsLeaf   bool
	Fields   []models.FieldSchema
}

// UpdateInput carries a partial category update. MoveTo is applied only when
// Move is set; a nil MoveTo turns the node into a root.
type UpdateInput struct {
	Name   *string
	Kind   *enums.CategoryKind
	IsLeaf *bool
	Fields *[]models.FieldSchema
	Move   bool
	MoveTo *uuid.UUID
}

// FromModel maps the persisted category to its DTO.
func FromModel(m *models.Category) *CategoryDTO {
	if m == nil {
		return nil
	}
	fields := []models.FieldSchema(m.Fields)
	if fields == nil {
		fields = []models.FieldSchema{}
	}
	return &CategoryDTO{
		ID:            m.ID,
		StoreID:       m.StoreID,
		ParentID:      m.ParentID,
		Name:          m.Name,
		Slug:          m.Slug,
		Kind:          m.Kind,
		IsLeaf:        m.IsLeaf,
		Fields:        fields,
		Level:         m.Level,
		Path:          m.Path,
		ChildrenCount: m.ChildrenCount,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// BuildTree nests a flat store category list. Rows whose parent is missing
// from the list are treated as roots.
func BuildTree(rows []models.Category) []*TreeNode {
	nodes := make(map[uuid.UUID]*TreeNode, len(rows))
	for i := range rows {
		nodes[rows[i].ID] = &TreeNode{CategoryDTO: *FromModel(&rows[i]), Children: []*TreeNode{}}
	}

	roots := make([]*TreeNode, 0)
	for i := range rows {
		node := nodes[rows[i].ID]
		if rows[i].ParentID != nil {
			if parent, ok := nodes[*rows[i].ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots
}
