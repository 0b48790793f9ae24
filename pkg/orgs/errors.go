package orgs

import (
	"errors"
	"fmt"
	"time"
)

// NotFoundError indicates a missing entity. A record that exists but belongs
// to a different tenant is reported identically, so existence is never leaked
// across the tenant boundary.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
	}
	return e.Resource + " not found"
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// QuotaExceededError indicates a resource ceiling was hit. This is an
// expected, recoverable, user-facing condition.
type QuotaExceededError struct {
	Kind    ResourceKind
	Current int64
	Limit   int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d of %d used", e.Kind, e.Current, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// InvalidStatusTransitionError indicates an illegal state machine transition.
// The organization state is left unchanged.
type InvalidStatusTransitionError struct {
	From OrgStatus
	To   OrgStatus
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// IsInvalidStatusTransition checks if an error is an invalid transition error
func IsInvalidStatusTransition(err error) bool {
	var st *InvalidStatusTransitionError
	return errors.As(err, &st)
}

// InvalidTokenError indicates an unknown invitation token
type InvalidTokenError struct{}

func (e *InvalidTokenError) Error() string {
	return "invalid invitation token"
}

// IsInvalidToken checks if an error is an invalid token error
func IsInvalidToken(err error) bool {
	var it *InvalidTokenError
	return errors.As(err, &it)
}

// ExpiredInvitationError indicates the invitation is past its expiry
type ExpiredInvitationError struct {
	ExpiredAt time.Time
}

func (e *ExpiredInvitationError) Error() string {
	return fmt.Sprintf("invitation expired at %s", e.ExpiredAt.Format(time.RFC3339))
}

// IsExpiredInvitation checks if an error is an expired invitation error
func IsExpiredInvitation(err error) bool {
	var ei *ExpiredInvitationError
	return errors.As(err, &ei)
}

// AlreadyResolvedError indicates a terminal timestamp is already set on the
// invitation; resolutions are set-once and mutually exclusive.
type AlreadyResolvedError struct {
	Resolution string
}

func (e *AlreadyResolvedError) Error() string {
	return "invitation already " + e.Resolution
}

// IsAlreadyResolved checks if an error is an already resolved error
func IsAlreadyResolved(err error) bool {
	var ar *AlreadyResolvedError
	return errors.As(err, &ar)
}

// TenantIsolationError indicates an operation whose tenant context does not
// match the target entity's owning tenant, or an attempt to rebind an already
// bound unit of work to a different tenant. This is a programmer error and is
// never silently normalized.
type TenantIsolationError struct {
	BoundOrg     int64
	AttemptedOrg int64
}

func (e *TenantIsolationError) Error() string {
	return fmt.Sprintf("tenant isolation violation: context bound to org %d, attempted org %d",
		e.BoundOrg, e.AttemptedOrg)
}

// IsTenantIsolation checks if an error is a tenant isolation violation
func IsTenantIsolation(err error) bool {
	var ti *TenantIsolationError
	return errors.As(err, &ti)
}
