package scoped

import (
	"context"
	"time"
)

// Entity is anything a tenant-scoped repository can manage. Every entity
// carries its owning organization and a soft-delete marker.
type Entity interface {
	GetID() int64
	SetID(id int64)
	GetOrgID() int64
	SetOrgID(orgID int64)
	GetDeletedAt() *time.Time
	SetDeletedAt(t *time.Time)
}

// Filter matches a single field against a value.
type Filter struct {
	Field string
	Value interface{}
}

// Order names a field to sort by. Desc reverses the direction.
type Order struct {
	Field string
	Desc  bool
}

// Query describes a list operation. Tenant and soft-delete constraints are
// never expressed here; the repository injects them itself.
type Query struct {
	Filters []Filter
	OrderBy []Order
	Limit   int
	Offset  int
}

// Store is the raw, unscoped persistence layer a Repository wraps. Store
// implementations apply no tenant filtering of their own; isolation is the
// repository's job.
type Store[T Entity] interface {
	// Get returns the entity with the given ID regardless of owner or
	// deletion state, or a not-found error.
	Get(ctx context.Context, id int64) (T, error)
	// Select returns entities matching the query, including soft-deleted
	// rows when the query asks for them.
	Select(ctx context.Context, query Query) ([]T, error)
	// Insert persists a new entity and assigns its ID.
	Insert(ctx context.Context, entity T) error
	// Update persists changes to an existing entity.
	Update(ctx context.Context, entity T) error
}
