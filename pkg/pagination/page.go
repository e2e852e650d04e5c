package pagination

import "gorm.io/gorm"

// Page is a 1-based offset page request.
type Page struct {
	Page  int
	Limit int
}

type Meta struct {
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

func (p Page) Normalize() Page {
	return Page{Page: max(p.Page, 1), Limit: NormalizeLimit(p.Limit)}
}

func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// Scope applies LIMIT/OFFSET for the page.
func (p Page) Scope(db *gorm.DB) *gorm.DB {
	n := p.Normalize()
	return db.Limit(n.Limit).Offset(p.Offset())
}

func MetaFor(p Page, total int64) Meta {
	n := p.Normalize()
	pages := int((total + int64(n.Limit) - 1) / int64(n.Limit))
	return Meta{Page: n.Page, Pages: pages, Limit: n.Limit, Total: total}
}
