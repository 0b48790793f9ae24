// Package provision sets up newly created organizations and tears down
// departing ones.
//
// Provisioning runs a fixed set of independent steps. Steps never depend on
// each other's output, so a failure in one does not stop the rest: the run
// reports per-step outcomes and an aggregate status instead of aborting.
// Re-running provisioning on a fully provisioned organization is a no-op.
package provision

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/classhub/pkg/audit"
	"github.com/platinummonkey/classhub/pkg/notification"
	"github.com/platinummonkey/classhub/pkg/observability"
	"github.com/platinummonkey/classhub/pkg/orgs"
)

// defaultSettings seeds every new organization's settings map
var defaultSettings = map[string]any{
	"timezone":       "UTC",
	"locale":         "en-US",
	"grading_scale":  "percentage",
	"class_capacity": 30,
}

// Exporter archives an organization's data before permanent deprovisioning
type Exporter interface {
	ExportOrganization(ctx context.Context, orgID int64) (string, error)
}

// ActivityPurger drops cached activity state for an organization. Implemented
// by the redis-backed activity tracker.
type ActivityPurger interface {
	Forget(ctx context.Context, orgID int64) error
}

// Provisioner runs organization setup and teardown
type Provisioner struct {
	svc      orgs.Service
	notifier notification.Sender
	exporter Exporter
	activity ActivityPurger
	auditLog audit.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	loginURL string
}

// Option configures a Provisioner
type Option func(*Provisioner)

// WithNotifier sets the welcome notification sender
func WithNotifier(sender notification.Sender) Option {
	return func(p *Provisioner) {
		p.notifier = sender
	}
}

// WithExporter enables the best-effort backup before permanent deprovision
func WithExporter(exporter Exporter) Option {
	return func(p *Provisioner) {
		p.exporter = exporter
	}
}

// WithActivityPurger drops an organization's activity state on permanent
// deprovision so the redis set does not outlive the tenant
func WithActivityPurger(purger ActivityPurger) Option {
	return func(p *Provisioner) {
		p.activity = purger
	}
}

// WithAuditLogger records provisioning outcomes to the audit trail
func WithAuditLogger(logger audit.Logger) Option {
	return func(p *Provisioner) {
		p.auditLog = logger
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *observability.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// WithMetrics records step and run outcomes to Prometheus
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Provisioner) {
		p.metrics = metrics
	}
}

// WithLoginURL sets the sign-in URL included in welcome notifications
func WithLoginURL(url string) Option {
	return func(p *Provisioner) {
		p.loginURL = url
	}
}

// NewProvisioner creates a provisioner over the organization service
func NewProvisioner(svc orgs.Service, opts ...Option) *Provisioner {
	p := &Provisioner{
		svc:      svc,
		notifier: notification.NewMemorySender(),
		logger:   observability.NewLogger(observability.InfoLevel, os.Stdout),
		tracer:   otel.Tracer("classhub/provision"),
		loginURL: "https://app.classhub.io/login",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type step struct {
	tag string
	run func(ctx context.Context, org *orgs.Organization, admin AdminInfo) error
}

// Provision runs every setup step for the organization. All steps are
// attempted even when earlier ones fail; the result carries what completed
// and what did not.
func (p *Provisioner) Provision(ctx context.Context, orgID int64, admin AdminInfo) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "Provision",
		trace.WithAttributes(attribute.Int64("org.id", orgID)),
	)
	defer span.End()

	org, err := p.svc.GetOrganization(orgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "organization lookup failed")
		return nil, err
	}

	if p.alreadyProvisioned(org) {
		p.countRun(StatusAlreadyProvisioned)
		span.SetAttributes(attribute.String("provision.status", string(StatusAlreadyProvisioned)))
		return &Result{Status: StatusAlreadyProvisioned}, nil
	}

	steps := []step{
		{StepAdminUserCreated, p.createAdminMember},
		{StepDefaultSettingsInitialized, p.initializeDefaultSettings},
		{StepTierFeaturesConfigured, p.configureTierFeatures},
		{StepOrganizationVerified, p.markVerified},
		{StepWelcomeNotificationSent, p.sendWelcomeNotification},
	}

	result := &Result{}
	for _, s := range steps {
		if err := p.runStep(ctx, s, org, admin); err != nil {
			result.Errors = append(result.Errors, StepError{Step: s.tag, Err: err})
			p.countStep(s.tag, "failure")
			continue
		}
		result.StepsCompleted = append(result.StepsCompleted, s.tag)
		p.countStep(s.tag, "success")
	}

	switch len(result.StepsCompleted) {
	case len(steps):
		result.Status = StatusSuccess
	case 0:
		result.Status = StatusFailed
	default:
		result.Status = StatusPartialSuccess
	}
	p.countRun(result.Status)
	span.SetAttributes(attribute.String("provision.status", string(result.Status)))

	p.record(ctx, audit.EventTypeOrgProvision, orgID, map[string]any{
		"status":          string(result.Status),
		"steps_completed": result.StepsCompleted,
		"failed_steps":    len(result.Errors),
	})
	return result, nil
}

func (p *Provisioner) runStep(ctx context.Context, s step, org *orgs.Organization, admin AdminInfo) error {
	ctx, span := p.tracer.Start(ctx, "Provision."+s.tag)
	defer span.End()

	if err := s.run(ctx, org, admin); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "step failed")
		p.logger.WithError(err).WithField("org_id", org.ID).Warnf("Provisioning step %s failed", s.tag)
		return err
	}
	span.SetStatus(codes.Ok, "step complete")
	return nil
}

// alreadyProvisioned reports whether every step has already taken effect.
// Verified plus an activated status means a prior run completed.
func (p *Provisioner) alreadyProvisioned(org *orgs.Organization) bool {
	return org.Verified && (org.Status == orgs.OrgStatusActive || org.Status == orgs.OrgStatusTrial)
}

func (p *Provisioner) createAdminMember(_ context.Context, org *orgs.Organization, admin AdminInfo) error {
	existing, err := p.svc.GetMemberByUserID(admin.UserID)
	if err == nil {
		if existing.OrganizationID != nil && *existing.OrganizationID == org.ID {
			return nil
		}
		return p.svc.AssignMember(admin.UserID, org.ID, "admin")
	}
	if !orgs.IsNotFound(err) {
		return err
	}
	return p.svc.CreateMember(&orgs.Member{
		UserID:         admin.UserID,
		Email:          admin.Email,
		OrganizationID: &org.ID,
		OrgRole:        "admin",
	})
}

func (p *Provisioner) initializeDefaultSettings(_ context.Context, org *orgs.Organization, _ AdminInfo) error {
	settings := make(map[string]any, len(defaultSettings))
	for k, v := range defaultSettings {
		settings[k] = v
	}
	// Existing values win; re-runs must not clobber tenant customization
	for k, v := range org.Settings {
		settings[k] = v
	}
	return p.svc.UpdateOrganization(org.ID, &orgs.UpdateOrgRequest{Settings: settings})
}

func (p *Provisioner) configureTierFeatures(_ context.Context, org *orgs.Organization, _ AdminInfo) error {
	return p.svc.UpdateOrganization(org.ID, &orgs.UpdateOrgRequest{
		Features: orgs.DefaultFeatures(org.Tier),
	})
}

func (p *Provisioner) markVerified(_ context.Context, org *orgs.Organization, _ AdminInfo) error {
	if err := p.svc.MarkVerified(org.ID); err != nil {
		return err
	}
	if org.Status == orgs.OrgStatusPending {
		return p.svc.SetStatus(org.ID, orgs.OrgStatusActive)
	}
	return nil
}

func (p *Provisioner) sendWelcomeNotification(ctx context.Context, org *orgs.Organization, admin AdminInfo) error {
	if admin.Email == "" {
		return fmt.Errorf("admin email is required for welcome notification")
	}
	return p.notifier.Send(ctx, admin.Email, notification.TemplateWelcome, map[string]string{
		"org_name":  org.Name,
		"tier":      string(org.Tier),
		"login_url": p.loginURL,
	})
}

func (p *Provisioner) countStep(tag, outcome string) {
	if p.metrics != nil {
		p.metrics.ProvisioningStepsTotal.WithLabelValues(tag, outcome).Inc()
	}
}

func (p *Provisioner) countRun(status Status) {
	if p.metrics != nil {
		p.metrics.ProvisioningRunsTotal.WithLabelValues(string(status)).Inc()
	}
}

func (p *Provisioner) record(ctx context.Context, eventType audit.EventType, orgID int64, details map[string]any) {
	if p.auditLog == nil {
		return
	}
	event := audit.NewEvent(eventType)
	event.OrgID = &orgID
	event.Details = details
	if err := p.auditLog.Record(ctx, event); err != nil {
		p.logger.WithError(err).WithField("event_type", string(eventType)).Warn("Failed to record audit event")
	}
}
