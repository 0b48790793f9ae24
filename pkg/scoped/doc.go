// Package scoped provides a generic tenant-scoped repository.
//
// Repository[T] wraps a raw Store[T] and makes tenant isolation structural:
// the owning organization comes from the tenant-bound context, never from
// caller-supplied filters, and soft-deleted rows are filtered on every read.
// A row owned by another tenant produces the same not-found as a row that
// does not exist, so existence never leaks across the tenant boundary.
package scoped
