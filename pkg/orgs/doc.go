// Package orgs provides the tenant registry, quota enforcement, usage logging
// and invitation management for the ClassHub platform.
//
// # Overview
//
// Every piece of business data on the platform belongs to exactly one
// organization. This package owns the organization record itself: its
// lifecycle state machine, its subscription tier and the per-resource quota
// ceilings and usage counters the tier implies.
//
// # Lifecycle
//
// Organizations move through a fixed state machine:
//
//	pending   -> trial | active | cancelled
//	trial     -> active | cancelled
//	active    -> suspended | cancelled
//	suspended -> active | cancelled
//	cancelled -> (terminal)
//
// Illegal transitions fail with InvalidStatusTransitionError and leave state
// unchanged. Cancelled is absorbing.
//
// # Quotas
//
// Resource ceilings are sized by subscription tier (users, classes, storage,
// API calls, sessions). The check and the increment are a single bounded SQL
// UPDATE, so concurrent creators cannot both pass a check and push a counter
// past its ceiling. Decrements floor at zero.
//
// # Invitations
//
// Membership onboarding is token based: an opaque, unguessable token with a
// seven day expiry. Acceptance resolves the invitation, assigns the member
// and increments the users counter inside a single row-locked transaction.
// Exactly one of accepted/declined/cancelled is ever set.
//
// # Usage Example
//
//	service := orgs.NewPostgresService(db, orgs.WithActivityCounter(tracker))
//	org, err := service.CreateOrganization(&orgs.CreateOrgRequest{
//		Name: "Acme School",
//		Tier: orgs.TierFree,
//	})
package orgs
