package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/classhub/pkg/audit"
	"github.com/platinummonkey/classhub/pkg/notification"
	"github.com/platinummonkey/classhub/pkg/orgs"
)

// fakeService records the registry calls the provisioner makes. Only the
// methods provisioning touches have real behavior; the rest satisfy the
// interface.
type fakeService struct {
	org           *orgs.Organization
	members       map[int64]*orgs.Member
	created       []*orgs.Member
	assigned      []assignment
	updates       []*orgs.UpdateOrgRequest
	statusChanges []orgs.OrgStatus
	verified      bool
	softDeleted   bool

	memberErr  error
	updateErr  error
	verifyErr  error
	statusErr  error
	softDelErr error
}

type assignment struct {
	userID int64
	orgID  int64
	role   string
}

func newFakeService(org *orgs.Organization) *fakeService {
	return &fakeService{org: org, members: map[int64]*orgs.Member{}}
}

func (f *fakeService) CreateOrganization(*orgs.CreateOrgRequest) (*orgs.Organization, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeService) GetOrganization(id int64) (*orgs.Organization, error) {
	if f.org == nil || f.org.ID != id {
		return nil, &orgs.NotFoundError{Resource: "organization"}
	}
	return f.org, nil
}

func (f *fakeService) GetOrganizationBySlug(string) (*orgs.Organization, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeService) ListActiveOrganizations() ([]*orgs.Organization, error) {
	return []*orgs.Organization{f.org}, nil
}

func (f *fakeService) UpdateOrganization(_ int64, updates *orgs.UpdateOrgRequest) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, updates)
	return nil
}

func (f *fakeService) SetStatus(_ int64, status orgs.OrgStatus) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statusChanges = append(f.statusChanges, status)
	f.org.Status = status
	return nil
}

func (f *fakeService) MarkVerified(int64) error {
	if f.verifyErr != nil {
		return f.verifyErr
	}
	f.verified = true
	return nil
}

func (f *fakeService) SoftDeleteOrganization(int64) error {
	if f.softDelErr != nil {
		return f.softDelErr
	}
	f.softDeleted = true
	return nil
}

func (f *fakeService) CanAdd(int64, orgs.ResourceKind) (bool, error) { return true, nil }
func (f *fakeService) CheckQuota(int64, orgs.ResourceKind, int64) error {
	return nil
}
func (f *fakeService) TryIncrementUsage(int64, orgs.ResourceKind, int64) error { return nil }
func (f *fakeService) IncrementUsage(int64, orgs.ResourceKind, int64) error    { return nil }
func (f *fakeService) DecrementUsage(int64, orgs.ResourceKind, int64) error    { return nil }
func (f *fakeService) UsagePercentages(int64) (map[orgs.ResourceKind]float64, error) {
	return nil, nil
}
func (f *fakeService) UpgradeTier(int64, orgs.Tier) error { return nil }

func (f *fakeService) LogUsage(context.Context, int64, string) (*orgs.UsageLogEntry, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeService) Report(context.Context, int64, time.Time, time.Time) (*orgs.UsageReport, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeService) Invite(int64, string, string, int64) (*orgs.Invitation, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeService) GetInvitation(string) (*orgs.Invitation, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeService) ListPendingInvitations(int64) ([]*orgs.Invitation, error) { return nil, nil }
func (f *fakeService) AcceptInvitation(string, int64) error                     { return nil }
func (f *fakeService) DeclineInvitation(string) error                           { return nil }
func (f *fakeService) CancelInvitation(int64) error                             { return nil }

func (f *fakeService) GetMemberByUserID(userID int64) (*orgs.Member, error) {
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	m, ok := f.members[userID]
	if !ok {
		return nil, &orgs.NotFoundError{Resource: "member"}
	}
	return m, nil
}

func (f *fakeService) CreateMember(m *orgs.Member) error {
	if f.memberErr != nil {
		return f.memberErr
	}
	f.created = append(f.created, m)
	f.members[m.UserID] = m
	return nil
}

func (f *fakeService) AssignMember(userID, orgID int64, role string) error {
	f.assigned = append(f.assigned, assignment{userID, orgID, role})
	return nil
}

func (f *fakeService) UnassignMember(int64) error { return nil }

func freshOrg() *orgs.Organization {
	return &orgs.Organization{
		ID:     1,
		Name:   "Acme School",
		Slug:   "acme-school",
		Tier:   orgs.TierFree,
		Status: orgs.OrgStatusTrial,
	}
}

func TestProvision_AllStepsComplete(t *testing.T) {
	svc := newFakeService(freshOrg())
	notifier := notification.NewMemorySender()
	auditLog := audit.NewMemoryLogger()
	p := NewProvisioner(svc, WithNotifier(notifier), WithAuditLogger(auditLog))

	result, err := p.Provision(context.Background(), 1, AdminInfo{UserID: 42, Email: "admin@acme.edu"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Len(t, result.StepsCompleted, 5)
	assert.Empty(t, result.Errors)

	// Admin member created with the admin role
	require.Len(t, svc.created, 1)
	assert.Equal(t, "admin", svc.created[0].OrgRole)
	require.NotNil(t, svc.created[0].OrganizationID)
	assert.Equal(t, int64(1), *svc.created[0].OrganizationID)

	// Settings seeded and tier features applied
	require.Len(t, svc.updates, 2)
	assert.Equal(t, "UTC", svc.updates[0].Settings["timezone"])
	assert.Contains(t, svc.updates[1].Features, "basic_reports")

	assert.True(t, svc.verified)

	// Welcome notification carries the org name and login URL
	messages := notifier.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "admin@acme.edu", messages[0].To)
	assert.Equal(t, notification.TemplateWelcome, messages[0].Template)
	assert.Equal(t, "Acme School", messages[0].Data["org_name"])
	assert.NotEmpty(t, messages[0].Data["login_url"])

	events := auditLog.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeOrgProvision, events[0].Type)
	assert.Equal(t, "success", events[0].Details["status"])
}

func TestProvision_NotifierFailureIsPartialSuccess(t *testing.T) {
	svc := newFakeService(freshOrg())
	notifier := notification.NewMemorySender()
	notifier.FailWith(errors.New("smtp unreachable"))
	p := NewProvisioner(svc, WithNotifier(notifier))

	result, err := p.Provision(context.Background(), 1, AdminInfo{UserID: 42, Email: "admin@acme.edu"})
	require.NoError(t, err)
	assert.Equal(t, StatusPartialSuccess, result.Status)
	assert.Len(t, result.StepsCompleted, 4)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, StepWelcomeNotificationSent, result.Errors[0].Step)

	// The notification failure did not stop the other steps
	assert.True(t, svc.verified)
	assert.Len(t, svc.updates, 2)
}

func TestProvision_StepFailureDoesNotStopLaterSteps(t *testing.T) {
	svc := newFakeService(freshOrg())
	svc.memberErr = errors.New("members table unavailable")
	notifier := notification.NewMemorySender()
	p := NewProvisioner(svc, WithNotifier(notifier))

	result, err := p.Provision(context.Background(), 1, AdminInfo{UserID: 42, Email: "admin@acme.edu"})
	require.NoError(t, err)
	assert.Equal(t, StatusPartialSuccess, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, StepAdminUserCreated, result.Errors[0].Step)

	// Later steps still ran
	assert.True(t, svc.verified)
	assert.Len(t, notifier.Messages(), 1)
}

func TestProvision_AlreadyProvisionedIsNoop(t *testing.T) {
	org := freshOrg()
	org.Verified = true
	org.Status = orgs.OrgStatusActive
	svc := newFakeService(org)
	notifier := notification.NewMemorySender()
	p := NewProvisioner(svc, WithNotifier(notifier))

	result, err := p.Provision(context.Background(), 1, AdminInfo{UserID: 42, Email: "admin@acme.edu"})
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyProvisioned, result.Status)
	assert.Empty(t, result.StepsCompleted)

	// Nothing was touched
	assert.Empty(t, svc.created)
	assert.Empty(t, svc.updates)
	assert.Empty(t, notifier.Messages())
}

func TestProvision_ExistingSettingsSurviveReRun(t *testing.T) {
	org := freshOrg()
	org.Settings = map[string]any{"timezone": "America/Chicago"}
	svc := newFakeService(org)
	p := NewProvisioner(svc)

	_, err := p.Provision(context.Background(), 1, AdminInfo{UserID: 42, Email: "admin@acme.edu"})
	require.NoError(t, err)

	require.NotEmpty(t, svc.updates)
	assert.Equal(t, "America/Chicago", svc.updates[0].Settings["timezone"])
	assert.Equal(t, "en-US", svc.updates[0].Settings["locale"])
}

func TestProvision_PendingOrgActivates(t *testing.T) {
	org := freshOrg()
	org.Tier = orgs.TierEnterprise
	org.Status = orgs.OrgStatusPending
	svc := newFakeService(org)
	p := NewProvisioner(svc)

	result, err := p.Provision(context.Background(), 1, AdminInfo{UserID: 42, Email: "admin@acme.edu"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, []orgs.OrgStatus{orgs.OrgStatusActive}, svc.statusChanges)
}

func TestProvision_ExistingMemberReassigned(t *testing.T) {
	svc := newFakeService(freshOrg())
	otherOrg := int64(9)
	svc.members[42] = &orgs.Member{UserID: 42, OrganizationID: &otherOrg}
	p := NewProvisioner(svc)

	_, err := p.Provision(context.Background(), 1, AdminInfo{UserID: 42, Email: "admin@acme.edu"})
	require.NoError(t, err)

	require.Len(t, svc.assigned, 1)
	assert.Equal(t, assignment{userID: 42, orgID: 1, role: "admin"}, svc.assigned[0])
	assert.Empty(t, svc.created)
}

func TestProvision_MissingAdminEmailFailsWelcomeStep(t *testing.T) {
	svc := newFakeService(freshOrg())
	p := NewProvisioner(svc)

	result, err := p.Provision(context.Background(), 1, AdminInfo{UserID: 42})
	require.NoError(t, err)
	assert.Equal(t, StatusPartialSuccess, result.Status)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, StepWelcomeNotificationSent, result.Errors[0].Step)
}

func TestProvision_UnknownOrg(t *testing.T) {
	p := NewProvisioner(newFakeService(freshOrg()))

	_, err := p.Provision(context.Background(), 99, AdminInfo{UserID: 42, Email: "admin@acme.edu"})
	assert.True(t, orgs.IsNotFound(err))
}

type fakeExporter struct {
	key string
	err error
}

func (f *fakeExporter) ExportOrganization(context.Context, int64) (string, error) {
	return f.key, f.err
}

func TestDeprovision_SoftSuspends(t *testing.T) {
	org := freshOrg()
	org.Status = orgs.OrgStatusActive
	svc := newFakeService(org)
	p := NewProvisioner(svc)

	require.NoError(t, p.Deprovision(context.Background(), 1, false))
	assert.Equal(t, []orgs.OrgStatus{orgs.OrgStatusSuspended}, svc.statusChanges)
	assert.False(t, svc.softDeleted)
}

func TestDeprovision_PermanentCancelsAndDeletes(t *testing.T) {
	org := freshOrg()
	org.Status = orgs.OrgStatusActive
	svc := newFakeService(org)
	auditLog := audit.NewMemoryLogger()
	exporter := &fakeExporter{key: "exports/org-1/20260830T020000Z.json"}
	p := NewProvisioner(svc, WithExporter(exporter), WithAuditLogger(auditLog))

	require.NoError(t, p.Deprovision(context.Background(), 1, true))
	assert.Equal(t, []orgs.OrgStatus{orgs.OrgStatusCancelled}, svc.statusChanges)
	assert.True(t, svc.softDeleted)

	events := auditLog.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeOrgDeprovision, events[0].Type)
	assert.Equal(t, exporter.key, events[0].Details["backup_key"])
}

func TestDeprovision_BackupFailureDoesNotBlock(t *testing.T) {
	org := freshOrg()
	org.Status = orgs.OrgStatusActive
	svc := newFakeService(org)
	exporter := &fakeExporter{err: errors.New("bucket unavailable")}
	p := NewProvisioner(svc, WithExporter(exporter))

	require.NoError(t, p.Deprovision(context.Background(), 1, true))
	assert.True(t, svc.softDeleted)
}

type fakePurger struct {
	forgotten []int64
	err       error
}

func (f *fakePurger) Forget(_ context.Context, orgID int64) error {
	if f.err != nil {
		return f.err
	}
	f.forgotten = append(f.forgotten, orgID)
	return nil
}

func TestDeprovision_PermanentPurgesActivityState(t *testing.T) {
	org := freshOrg()
	org.Status = orgs.OrgStatusActive
	svc := newFakeService(org)
	purger := &fakePurger{}
	p := NewProvisioner(svc, WithActivityPurger(purger))

	require.NoError(t, p.Deprovision(context.Background(), 1, true))
	assert.Equal(t, []int64{1}, purger.forgotten)
}

func TestDeprovision_SoftKeepsActivityState(t *testing.T) {
	org := freshOrg()
	org.Status = orgs.OrgStatusActive
	svc := newFakeService(org)
	purger := &fakePurger{}
	p := NewProvisioner(svc, WithActivityPurger(purger))

	// A suspended org can come back; its activity set must survive
	require.NoError(t, p.Deprovision(context.Background(), 1, false))
	assert.Empty(t, purger.forgotten)
}

func TestDeprovision_ActivityPurgeFailureDoesNotBlock(t *testing.T) {
	org := freshOrg()
	org.Status = orgs.OrgStatusActive
	svc := newFakeService(org)
	purger := &fakePurger{err: errors.New("redis unavailable")}
	p := NewProvisioner(svc, WithActivityPurger(purger))

	require.NoError(t, p.Deprovision(context.Background(), 1, true))
	assert.True(t, svc.softDeleted)
}

func TestDeprovision_AlreadyCancelledSkipsTransition(t *testing.T) {
	org := freshOrg()
	org.Status = orgs.OrgStatusCancelled
	svc := newFakeService(org)
	p := NewProvisioner(svc)

	require.NoError(t, p.Deprovision(context.Background(), 1, true))
	assert.Empty(t, svc.statusChanges)
	assert.True(t, svc.softDeleted)
}
