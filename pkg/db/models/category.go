package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// FieldSchema describes one dynamic field a leaf category asks listings for.
type FieldSchema struct {
	Name      string          `json:"name"`
	Label     string          `json:"label,omitempty"`
	Type      enums.FieldType `json:"type"`
	Required  bool            `json:"required"`
	Options   []string        `json:"options,omitempty"`
	Multiple  bool            `json:"multiple,omitempty"`
	MaxFiles  int             `json:"maxFiles,omitempty"`
	MaxSizeMB int             `json:"maxSizeMb,omitempty"`
}

// Category is a node in a store's category tree. Path holds the comma-joined
// ancestor ids from the root down to the parent, excluding the node itself.
type Category struct {
	ID            uuid.UUID                        `gorm:"type:uuid;primaryKey"`
	StoreID       uuid.UUID                        `gorm:"column:store_id;type:uuid;not null;index"`
	ParentID      *uuid.UUID                       `gorm:"column:parent_id;type:uuid;index"`
	Name          string                           `gorm:"column:name;not null"`
	Slug          string                           `gorm:"column:slug;not null"`
	Kind          enums.CategoryKind               `gorm:"column:kind;type:text;not null;default:'general'"`
	IsLeaf        bool                             `gorm:"column:is_leaf;not null;default:false"`
	Fields        datatypes.JSONSlice[FieldSchema] `gorm:"column:fields;type:jsonb"`
	Level         int                              `gorm:"column:level;not null;default:0"`
	Path          string                           `gorm:"column:path;not null;default:''"`
	Children      dbtypes.UUIDArray                `gorm:"column:children;type:uuid[];not null;default:'{}'"`
	ChildrenCount int                              `gorm:"column:children_count;not null;default:0"`
	CreatedAt     time.Time                        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                        `gorm:"column:updated_at;autoUpdateTime"`
}

// PathIDs returns the ancestor chain encoded in Path.
func (c Category) PathIDs() ([]uuid.UUID, error) {
	return dbtypes.ParseIDPath(c.Path)
}
