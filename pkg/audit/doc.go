// Package audit provides an append-only audit trail for tenant lifecycle,
// quota and isolation events.
//
// The trail exists primarily for operators. The one subtle consumer is the
// tenant-scoped repository: when a lookup hits a row owned by a different
// tenant it records a cross-tenant miss here while still returning a plain
// not-found to the caller, so operators can tell probing from typos without
// the external contract ever leaking existence across the tenant boundary.
package audit
