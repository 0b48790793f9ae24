// Package tenantctx binds a tenant (organization) ID to a context.Context.
//
// The binding is carried by the context itself, so it follows the request
// through goroutines and channel handoffs without any thread-local state,
// and it is released automatically when the context goes out of scope. A
// context can be bound at most once: rebinding to a different organization
// fails rather than silently switching tenants mid-request.
//
// # Usage Example
//
//	ctx, err := tenantctx.Bind(ctx, org.ID)
//	if err != nil {
//		return err
//	}
//	orgID, err := tenantctx.Require(ctx)
package tenantctx

import (
	"context"
	"errors"

	"github.com/platinummonkey/classhub/pkg/contextkeys"
	"github.com/platinummonkey/classhub/pkg/orgs"
)

// ErrNotBound is returned by Require when no tenant is bound to the context.
var ErrNotBound = errors.New("no tenant bound to context")

// Bind returns a child context bound to the given organization. Binding the
// same organization again is a no-op; binding a different one fails with
// *orgs.TenantIsolationError so a request can never straddle two tenants.
func Bind(ctx context.Context, orgID int64) (context.Context, error) {
	if bound, ok := From(ctx); ok {
		if bound == orgID {
			return ctx, nil
		}
		return nil, &orgs.TenantIsolationError{BoundOrg: bound, AttemptedOrg: orgID}
	}
	return context.WithValue(ctx, contextkeys.TenantKey, orgID), nil
}

// MustBind is like Bind but panics on a cross-tenant rebind. Intended for
// entry points where a conflicting binding is a programming error.
func MustBind(ctx context.Context, orgID int64) context.Context {
	bound, err := Bind(ctx, orgID)
	if err != nil {
		panic(err)
	}
	return bound
}

// From returns the bound organization ID, if any.
func From(ctx context.Context) (int64, bool) {
	orgID, ok := ctx.Value(contextkeys.TenantKey).(int64)
	return orgID, ok
}

// Require returns the bound organization ID or ErrNotBound.
func Require(ctx context.Context) (int64, error) {
	orgID, ok := From(ctx)
	if !ok {
		return 0, ErrNotBound
	}
	return orgID, nil
}

// RunAs runs fn with a context bound to the given organization. The binding
// exists only for the duration of fn.
func RunAs(ctx context.Context, orgID int64, fn func(context.Context) error) error {
	bound, err := Bind(ctx, orgID)
	if err != nil {
		return err
	}
	return fn(bound)
}
