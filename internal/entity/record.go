package entity

import (
	"time"

	id "caminomanager/pkg/domain"
)

// Record is one row of an entity table. Data holds the validated field
// values keyed by field name.
type Record struct {
	ID        id.RecordID    `json:"id"`
	Entity    string         `json:"entity"`
	Data      map[string]any `json:"data"`
	Search    string         `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Query is a caller's request for one page of an entity table. Page is
// 1-based. Sort is a field name, prefixed with "-" for descending order.
type Query struct {
	Page     int
	PageSize int
	Search   string
	Sort     string
}

// Page is one page of records.
type Page struct {
	Items      []*Record `json:"items"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// HasPrev reports whether a previous page exists.
func (p *Page) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p *Page) HasNext() bool { return p.Page < p.TotalPages }

// ListQuery is the store-level form of a Query, resolved against a Config.
type ListQuery struct {
	Entity   string
	Offset   int
	Limit    int
	Search   string
	SortBy   string
	SortType FieldType
	Desc     bool
}
