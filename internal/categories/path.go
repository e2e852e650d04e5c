package categories

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/bazaar-backend/pkg/db/types"
)

// Placement computes level and path for a node placed under parent. A nil
// parent yields a root node.
func Placement(parent *models.Category) (int, string) {
	if parent == nil {
		return 0, ""
	}
	return parent.Level + 1, childPath(parent)
}

// childPath is the path every direct child of parent carries.
func childPath(parent *models.Category) string {
	if parent.Path == "" {
		return parent.ID.String()
	}
	return parent.Path + "," + parent.ID.String()
}

// ListingPath is the category_path stored on listings filed under category:
// every ancestor followed by the category itself.
func ListingPath(category *models.Category) ([]uuid.UUID, error) {
	ancestors, err := category.PathIDs()
	if err != nil {
		return nil, err
	}
	return append(ancestors, category.ID), nil
}

// IsAncestor reports whether candidate appears in node's ancestor chain.
func IsAncestor(candidate uuid.UUID, node *models.Category) bool {
	ids, err := node.PathIDs()
	if err != nil {
		return false
	}
	return dbtypes.UUIDArray(ids).Contains(candidate)
}

// rebase rewrites a descendant path after moved has been re-parented. oldPrefix
// and newPrefix are the child paths of moved before and after the move.
func rebase(path, oldPrefix, newPrefix string) string {
	switch {
	case path == oldPrefix:
		return newPrefix
	case strings.HasPrefix(path, oldPrefix+","):
		return newPrefix + path[len(oldPrefix):]
	default:
		return path
	}
}
