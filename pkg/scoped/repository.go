package scoped

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/classhub/pkg/audit"
	"github.com/platinummonkey/classhub/pkg/orgs"
	"github.com/platinummonkey/classhub/pkg/tenantctx"
)

// ErrNotFound is the sentinel a Store returns when no row matches. The
// repository translates it into *orgs.NotFoundError for callers.
var ErrNotFound = errors.New("entity not found")

// Repository enforces tenant isolation over a raw Store. Every operation
// requires a tenant-bound context and silently constrains reads and writes
// to that tenant's rows. Rows owned by another tenant are indistinguishable
// from rows that do not exist: callers get the same not-found either way.
type Repository[T Entity] struct {
	store    Store[T]
	resource string
	auditLog audit.Logger
}

// Option configures a Repository.
type Option[T Entity] func(*Repository[T])

// WithAuditLogger records cross-tenant misses to the audit trail. The miss
// is operator-facing only; the caller still sees plain not-found.
func WithAuditLogger[T Entity](logger audit.Logger) Option[T] {
	return func(r *Repository[T]) {
		r.auditLog = logger
	}
}

// NewRepository creates a tenant-scoped repository over a raw store.
// resource names the entity kind in not-found errors ("class", "assignment").
func NewRepository[T Entity](store Store[T], resource string, opts ...Option[T]) *Repository[T] {
	r := &Repository[T]{
		store:    store,
		resource: resource,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetByID returns the entity if it exists, belongs to the bound tenant and
// is not soft-deleted.
func (r *Repository[T]) GetByID(ctx context.Context, id int64) (T, error) {
	var zero T
	orgID, err := tenantctx.Require(ctx)
	if err != nil {
		return zero, err
	}

	entity, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return zero, &orgs.NotFoundError{Resource: r.resource, Key: fmt.Sprintf("%d", id)}
		}
		return zero, fmt.Errorf("failed to get %s: %w", r.resource, err)
	}

	if entity.GetOrgID() != orgID {
		r.recordCrossTenantMiss(ctx, orgID, entity.GetOrgID(), id)
		return zero, &orgs.NotFoundError{Resource: r.resource, Key: fmt.Sprintf("%d", id)}
	}
	if entity.GetDeletedAt() != nil {
		return zero, &orgs.NotFoundError{Resource: r.resource, Key: fmt.Sprintf("%d", id)}
	}
	return entity, nil
}

// List returns the bound tenant's live entities matching the query. Any
// caller-supplied filters on the tenant or soft-delete columns are discarded
// before the repository injects its own.
func (r *Repository[T]) List(ctx context.Context, query Query) ([]T, error) {
	orgID, err := tenantctx.Require(ctx)
	if err != nil {
		return nil, err
	}

	scoped := Query{
		OrderBy: query.OrderBy,
		Limit:   query.Limit,
		Offset:  query.Offset,
	}
	for _, f := range query.Filters {
		if f.Field == "org_id" || f.Field == "deleted_at" {
			continue
		}
		scoped.Filters = append(scoped.Filters, f)
	}
	scoped.Filters = append(scoped.Filters,
		Filter{Field: "org_id", Value: orgID},
		Filter{Field: "deleted_at", Value: nil},
	)

	entities, err := r.store.Select(ctx, scoped)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.resource, err)
	}
	return entities, nil
}

// Create persists a new entity owned by the bound tenant. Any owner the
// caller set on the entity is overwritten.
func (r *Repository[T]) Create(ctx context.Context, entity T) error {
	orgID, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	entity.SetOrgID(orgID)
	entity.SetDeletedAt(nil)
	if err := r.store.Insert(ctx, entity); err != nil {
		return fmt.Errorf("failed to create %s: %w", r.resource, err)
	}
	return nil
}

// Update persists changes to an entity the bound tenant owns.
func (r *Repository[T]) Update(ctx context.Context, entity T) error {
	orgID, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}
	// Ownership is checked against the stored row, not the caller's copy
	if _, err := r.GetByID(ctx, entity.GetID()); err != nil {
		return err
	}
	entity.SetOrgID(orgID)
	if err := r.store.Update(ctx, entity); err != nil {
		return fmt.Errorf("failed to update %s: %w", r.resource, err)
	}
	return nil
}

// SoftDelete marks an entity deleted without removing the row. Deleted
// entities vanish from GetByID and List but remain restorable.
func (r *Repository[T]) SoftDelete(ctx context.Context, id int64) error {
	entity, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	entity.SetDeletedAt(&now)
	if err := r.store.Update(ctx, entity); err != nil {
		return fmt.Errorf("failed to soft-delete %s: %w", r.resource, err)
	}
	return nil
}

// Restore clears the soft-delete marker on one of the tenant's entities.
func (r *Repository[T]) Restore(ctx context.Context, id int64) error {
	orgID, err := tenantctx.Require(ctx)
	if err != nil {
		return err
	}

	entity, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &orgs.NotFoundError{Resource: r.resource, Key: fmt.Sprintf("%d", id)}
		}
		return fmt.Errorf("failed to get %s: %w", r.resource, err)
	}
	if entity.GetOrgID() != orgID {
		r.recordCrossTenantMiss(ctx, orgID, entity.GetOrgID(), id)
		return &orgs.NotFoundError{Resource: r.resource, Key: fmt.Sprintf("%d", id)}
	}

	entity.SetDeletedAt(nil)
	if err := r.store.Update(ctx, entity); err != nil {
		return fmt.Errorf("failed to restore %s: %w", r.resource, err)
	}
	return nil
}

func (r *Repository[T]) recordCrossTenantMiss(ctx context.Context, boundOrg, ownerOrg, entityID int64) {
	if r.auditLog == nil {
		return
	}
	event := audit.NewEvent(audit.EventTypeCrossTenantMiss)
	event.OrgID = &boundOrg
	event.Details = map[string]any{
		"resource":  r.resource,
		"entity_id": entityID,
		"owner_org": ownerOrg,
	}
	// Best effort; an audit failure must not change the caller's outcome
	_ = r.auditLog.Record(ctx, event)
}
