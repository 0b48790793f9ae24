package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	// Tenant lifecycle events
	EventTypeOrgCreate       EventType = "tenancy.org_create"
	EventTypeOrgStatusChange EventType = "tenancy.org_status_change"
	EventTypeOrgTierUpgrade  EventType = "tenancy.org_tier_upgrade"
	EventTypeOrgProvision    EventType = "tenancy.org_provision"
	EventTypeOrgDeprovision  EventType = "tenancy.org_deprovision"

	// Quota events
	EventTypeQuotaDenied EventType = "quota.denied"

	// Invitation events
	EventTypeInvitationCreate  EventType = "invitation.create"
	EventTypeInvitationAccept  EventType = "invitation.accept"
	EventTypeInvitationDecline EventType = "invitation.decline"
	EventTypeInvitationCancel  EventType = "invitation.cancel"

	// Isolation events. CrossTenantMiss is the internal-only signal recorded
	// when a row exists but belongs to another tenant; callers still see a
	// plain not-found, so existence is never leaked outward.
	EventTypeCrossTenantMiss    EventType = "tenancy.cross_tenant_miss"
	EventTypeIsolationViolation EventType = "tenancy.isolation_violation"
)

// Event represents a single append-only audit log entry
type Event struct {
	ID        int64          `json:"id"`
	EventID   string         `json:"event_id"`
	Type      EventType      `json:"type"`
	OrgID     *int64         `json:"org_id,omitempty"`
	ActorID   *int64         `json:"actor_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEvent creates an event with a fresh globally-unique event id
func NewEvent(eventType EventType) *Event {
	return &Event{
		EventID: uuid.NewString(),
		Type:    eventType,
	}
}
