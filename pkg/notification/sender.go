// Package notification delivers transactional email for tenant lifecycle
// events. Delivery failures are reported to callers but are expected to be
// treated as non-fatal; losing a welcome email must never fail provisioning.
package notification

import "context"

// Template identifies a message template
type Template string

const (
	TemplateWelcome    Template = "welcome"
	TemplateInvitation Template = "invitation"
)

// Sender delivers a templated message to a recipient
type Sender interface {
	Send(ctx context.Context, to string, template Template, data map[string]string) error
}
