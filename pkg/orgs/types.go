package orgs

import (
	"context"
	"time"
)

// Tier represents a subscription tier
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// HasTrial reports whether organizations on this tier start with a trial
// window. Enterprise onboarding is sales-led and starts pending verification.
func (t Tier) HasTrial() bool {
	return t != TierEnterprise
}

// OrgStatus represents organization lifecycle status
type OrgStatus string

const (
	OrgStatusPending   OrgStatus = "pending"
	OrgStatusTrial     OrgStatus = "trial"
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
	OrgStatusCancelled OrgStatus = "cancelled"
)

// ResourceKind identifies a quota-governed resource
type ResourceKind string

const (
	ResourceUsers        ResourceKind = "users"
	ResourceClasses      ResourceKind = "classes"
	ResourceStorageBytes ResourceKind = "storage_bytes"
	ResourceAPICalls     ResourceKind = "api_calls"
	ResourceSessions     ResourceKind = "sessions"
)

// ResourceKinds lists every quota-governed resource kind
var ResourceKinds = []ResourceKind{
	ResourceUsers,
	ResourceClasses,
	ResourceStorageBytes,
	ResourceAPICalls,
	ResourceSessions,
}

// QuotaSet holds per-resource ceilings or counters for an organization
type QuotaSet struct {
	Users        int64 `json:"users"`
	Classes      int64 `json:"classes"`
	StorageBytes int64 `json:"storage_bytes"`
	APICalls     int64 `json:"api_calls"`
	Sessions     int64 `json:"sessions"`
}

// Get returns the value for a resource kind
func (q QuotaSet) Get(kind ResourceKind) int64 {
	switch kind {
	case ResourceUsers:
		return q.Users
	case ResourceClasses:
		return q.Classes
	case ResourceStorageBytes:
		return q.StorageBytes
	case ResourceAPICalls:
		return q.APICalls
	case ResourceSessions:
		return q.Sessions
	}
	return 0
}

// Set assigns the value for a resource kind
func (q *QuotaSet) Set(kind ResourceKind, value int64) {
	switch kind {
	case ResourceUsers:
		q.Users = value
	case ResourceClasses:
		q.Classes = value
	case ResourceStorageBytes:
		q.StorageBytes = value
	case ResourceAPICalls:
		q.APICalls = value
	case ResourceSessions:
		q.Sessions = value
	}
}

// Organization represents a tenant. All business data belongs to exactly one
// organization; the org row is the sole owner of its quota and usage state.
type Organization struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Tier           Tier           `json:"tier"`
	Status         OrgStatus      `json:"status"`
	Quotas         QuotaSet       `json:"quotas"`
	Usage          QuotaSet       `json:"usage"`
	TrialStartedAt *time.Time     `json:"trial_started_at,omitempty"`
	TrialEndsAt    *time.Time     `json:"trial_ends_at,omitempty"`
	PeriodStart    *time.Time     `json:"period_start,omitempty"`
	PeriodEnd      *time.Time     `json:"period_end,omitempty"`
	Settings       map[string]any `json:"settings,omitempty"`
	Features       []string       `json:"features,omitempty"`
	Verified       bool           `json:"verified"`
	IsActive       bool           `json:"is_active"`
	CreatedBy      *int64         `json:"created_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
}

// Invitation represents a pending or resolved membership invitation.
// At most one of AcceptedAt, DeclinedAt, CancelledAt is ever set.
type Invitation struct {
	ID          int64      `json:"id"`
	OrgID       int64      `json:"org_id"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	Token       string     `json:"token,omitempty"`
	InvitedBy   int64      `json:"invited_by"`
	InvitedAt   time.Time  `json:"invited_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	DeclinedAt  *time.Time `json:"declined_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	AcceptedBy  *int64     `json:"accepted_by,omitempty"`
}

// Invitation resolutions
const (
	ResolutionAccepted  = "accepted"
	ResolutionDeclined  = "declined"
	ResolutionCancelled = "cancelled"
)

// Resolved reports whether a terminal timestamp is already set, and which one
func (i *Invitation) Resolved() (string, bool) {
	switch {
	case i.AcceptedAt != nil:
		return ResolutionAccepted, true
	case i.DeclinedAt != nil:
		return ResolutionDeclined, true
	case i.CancelledAt != nil:
		return ResolutionCancelled, true
	}
	return "", false
}

// Expired reports whether the invitation is past its expiry. Expiry is checked
// lazily on access; expired rows are never actively swept.
func (i *Invitation) Expired() bool {
	return time.Now().After(i.ExpiresAt)
}

// Member represents a platform member. Members reference an organization but
// are not owned by it; OrganizationID is nil for unassigned members.
type Member struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	Email          string     `json:"email"`
	OrganizationID *int64     `json:"organization_id,omitempty"`
	OrgRole        string     `json:"org_role,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UsageLogEntry is an immutable point-in-time snapshot of an organization's
// usage counters. Entries are append-only and never mutated or deleted here.
type UsageLogEntry struct {
	ID            int64     `json:"id"`
	OrgID         int64     `json:"org_id"`
	LogType       string    `json:"log_type"`
	Usage         QuotaSet  `json:"usage"`
	ActiveMembers int64     `json:"active_members"`
	CreatedAt     time.Time `json:"created_at"`
}

// Usage log types
const (
	LogTypeDaily  = "daily"
	LogTypeManual = "manual"
)

// UsageReport combines historical snapshots with live current stats
type UsageReport struct {
	OrgID       int64                    `json:"org_id"`
	Entries     []*UsageLogEntry         `json:"entries"`
	Current     QuotaSet                 `json:"current"`
	Quotas      QuotaSet                 `json:"quotas"`
	Percentages map[ResourceKind]float64 `json:"percentages"`
}

// CreateOrgRequest represents a request to create an organization. The
// registry owns final slug assignment; DesiredSlug is only a starting point.
type CreateOrgRequest struct {
	Name        string         `json:"name"`
	DesiredSlug string         `json:"desired_slug,omitempty"`
	Tier        Tier           `json:"tier,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedBy   *int64         `json:"created_by,omitempty"`
}

// UpdateOrgRequest represents a partial update; only non-nil fields are applied
type UpdateOrgRequest struct {
	Name     *string        `json:"name,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
	Features []string       `json:"features,omitempty"`
}

// ActiveMemberCounter supplies the recently-active member count captured in
// usage snapshots. Implemented by the redis-backed activity tracker.
type ActiveMemberCounter interface {
	CountActive(ctx context.Context, orgID int64, window time.Duration) (int64, error)
}

// Thresholds holds usage percentage alerting thresholds
type Thresholds struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds returns the conventional warning/critical thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 0.80, Critical: 0.95}
}

// UsageLevel classifies a usage percentage against thresholds
type UsageLevel string

const (
	UsageLevelOK       UsageLevel = "ok"
	UsageLevelWarning  UsageLevel = "warning"
	UsageLevelCritical UsageLevel = "critical"
)

// Level classifies pct (0.0-1.0) against the thresholds
func (t Thresholds) Level(pct float64) UsageLevel {
	switch {
	case pct >= t.Critical:
		return UsageLevelCritical
	case pct >= t.Warning:
		return UsageLevelWarning
	}
	return UsageLevelOK
}

// Service defines the tenant registry, quota enforcement, usage logging and
// invitation management surface consumed by the provisioner and ops daemon.
type Service interface {
	// Organization registry
	CreateOrganization(req *CreateOrgRequest) (*Organization, error)
	GetOrganization(id int64) (*Organization, error)
	GetOrganizationBySlug(slug string) (*Organization, error)
	ListActiveOrganizations() ([]*Organization, error)
	UpdateOrganization(id int64, updates *UpdateOrgRequest) error
	SetStatus(id int64, status OrgStatus) error
	MarkVerified(id int64) error
	SoftDeleteOrganization(id int64) error

	// Quota enforcement
	CanAdd(orgID int64, kind ResourceKind) (bool, error)
	CheckQuota(orgID int64, kind ResourceKind, amount int64) error
	TryIncrementUsage(orgID int64, kind ResourceKind, amount int64) error
	IncrementUsage(orgID int64, kind ResourceKind, amount int64) error
	DecrementUsage(orgID int64, kind ResourceKind, amount int64) error
	UsagePercentages(orgID int64) (map[ResourceKind]float64, error)
	UpgradeTier(orgID int64, tier Tier) error

	// Usage logging
	LogUsage(ctx context.Context, orgID int64, logType string) (*UsageLogEntry, error)
	Report(ctx context.Context, orgID int64, start, end time.Time) (*UsageReport, error)

	// Invitations
	Invite(orgID int64, email, role string, invitedBy int64) (*Invitation, error)
	GetInvitation(token string) (*Invitation, error)
	ListPendingInvitations(orgID int64) ([]*Invitation, error)
	AcceptInvitation(token string, userID int64) error
	DeclineInvitation(token string) error
	CancelInvitation(id int64) error

	// Members
	GetMemberByUserID(userID int64) (*Member, error)
	CreateMember(m *Member) error
	AssignMember(userID, orgID int64, role string) error
	UnassignMember(userID int64) error
}
