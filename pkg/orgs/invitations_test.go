package orgs

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/classhub/pkg/audit"
)

// invRow builds a full org_invitations row in invitationColumns order
func invRow(inv *Invitation) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "org_id", "email", "role", "token", "invited_by", "invited_at", "expires_at",
		"accepted_at", "declined_at", "cancelled_at", "accepted_by",
	}).AddRow(
		inv.ID, inv.OrgID, inv.Email, inv.Role, inv.Token, inv.InvitedBy, inv.InvitedAt, inv.ExpiresAt,
		inv.AcceptedAt, inv.DeclinedAt, inv.CancelledAt, inv.AcceptedBy,
	)
}

func pendingInvitation() *Invitation {
	now := time.Now().UTC()
	return &Invitation{
		ID:        10,
		OrgID:     1,
		Email:     "teacher@example.com",
		Role:      "teacher",
		Token:     "tok-abc",
		InvitedBy: 7,
		InvitedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
}

func TestInvite(t *testing.T) {
	service, mock, auditLog := newTestService(t)

	org := testOrg(1)
	org.Usage.Users = 3
	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(orgRow(org))

	mock.ExpectQuery("INSERT INTO org_invitations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))

	inv, err := service.Invite(1, " Teacher@Example.COM ", "teacher", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(10), inv.ID)
	assert.Equal(t, "teacher@example.com", inv.Email)
	assert.NotEmpty(t, inv.Token)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), inv.ExpiresAt, time.Minute)

	assert.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, auditLog.Events(), 1)
	assert.Equal(t, audit.EventTypeInvitationCreate, auditLog.Events()[0].Type)
}

func TestInvite_CountsMetric(t *testing.T) {
	service, mock, metrics := newMetricsService(t)

	org := testOrg(1)
	org.Usage.Users = 3
	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(orgRow(org))
	mock.ExpectQuery("INSERT INTO org_invitations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10))

	_, err := service.Invite(1, "teacher@example.com", "teacher", 7)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.InvitationsTotal.WithLabelValues("created")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvite_QuotaExceededPersistsNothing(t *testing.T) {
	service, mock, _ := newTestService(t)

	org := testOrg(1)
	org.Usage.Users = org.Quotas.Users
	mock.ExpectQuery("SELECT (.+) FROM organizations WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(orgRow(org))

	_, err := service.Invite(1, "teacher@example.com", "teacher", 7)
	assert.True(t, IsQuotaExceeded(err))
	// No INSERT was expected; the gate short-circuits before any write
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInvitation_InvalidToken(t *testing.T) {
	service, mock, _ := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM org_invitations WHERE token").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := service.GetInvitation("nope")
	assert.True(t, IsInvalidToken(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptInvitation_NewMember(t *testing.T) {
	service, mock, auditLog := newTestService(t)
	inv := pendingInvitation()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM org_invitations WHERE token (.+) FOR UPDATE").
		WithArgs("tok-abc").
		WillReturnRows(invRow(inv))
	// No existing member row, so one is created under the quota gate
	mock.ExpectQuery("SELECT id, organization_id FROM members WHERE user_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id"}))
	mock.ExpectExec("UPDATE organizations").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO members").
		WithArgs(int64(42), "teacher@example.com", int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE org_invitations SET accepted_at").
		WithArgs(int64(42), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.AcceptInvitation("tok-abc", 42))
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, auditLog.Events(), 1)
	assert.Equal(t, audit.EventTypeInvitationAccept, auditLog.Events()[0].Type)
}

func TestAcceptInvitation_QuotaExceededRollsBack(t *testing.T) {
	service, mock, _ := newTestService(t)
	inv := pendingInvitation()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM org_invitations WHERE token (.+) FOR UPDATE").
		WithArgs("tok-abc").
		WillReturnRows(invRow(inv))
	mock.ExpectQuery("SELECT id, organization_id FROM members WHERE user_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id"}))
	mock.ExpectExec("UPDATE organizations").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT current_users, max_users FROM organizations").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"current_users", "max_users"}).AddRow(5, 5))
	mock.ExpectRollback()

	err := service.AcceptInvitation("tok-abc", 42)
	assert.True(t, IsQuotaExceeded(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptInvitation_AlreadyResolved(t *testing.T) {
	service, mock, _ := newTestService(t)

	now := time.Now()
	inv := pendingInvitation()
	inv.DeclinedAt = &now

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM org_invitations WHERE token (.+) FOR UPDATE").
		WithArgs("tok-abc").
		WillReturnRows(invRow(inv))
	mock.ExpectRollback()

	err := service.AcceptInvitation("tok-abc", 42)
	require.Error(t, err)
	assert.True(t, IsAlreadyResolved(err))

	resolvedErr, ok := err.(*AlreadyResolvedError)
	require.True(t, ok)
	assert.Equal(t, ResolutionDeclined, resolvedErr.Resolution)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptInvitation_Expired(t *testing.T) {
	service, mock, _ := newTestService(t)

	inv := pendingInvitation()
	inv.ExpiresAt = time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM org_invitations WHERE token (.+) FOR UPDATE").
		WithArgs("tok-abc").
		WillReturnRows(invRow(inv))
	mock.ExpectRollback()

	err := service.AcceptInvitation("tok-abc", 42)
	assert.True(t, IsExpiredInvitation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeclineInvitation(t *testing.T) {
	service, mock, auditLog := newTestService(t)
	inv := pendingInvitation()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM org_invitations WHERE token (.+) FOR UPDATE").
		WithArgs("tok-abc").
		WillReturnRows(invRow(inv))
	mock.ExpectExec("UPDATE org_invitations SET declined_at").
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.DeclineInvitation("tok-abc"))
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, auditLog.Events(), 1)
	assert.Equal(t, audit.EventTypeInvitationDecline, auditLog.Events()[0].Type)
}

func TestDeclineInvitation_Expired(t *testing.T) {
	service, mock, _ := newTestService(t)

	inv := pendingInvitation()
	inv.ExpiresAt = time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM org_invitations WHERE token (.+) FOR UPDATE").
		WithArgs("tok-abc").
		WillReturnRows(invRow(inv))
	mock.ExpectRollback()

	err := service.DeclineInvitation("tok-abc")
	assert.True(t, IsExpiredInvitation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelInvitation_ExpiredStillCancellable(t *testing.T) {
	service, mock, _ := newTestService(t)

	// Expiry never blocks the inviter side from cleaning up
	inv := pendingInvitation()
	inv.ExpiresAt = time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM org_invitations WHERE id (.+) FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(invRow(inv))
	mock.ExpectExec("UPDATE org_invitations SET cancelled_at").
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.CancelInvitation(10))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelInvitation_AlreadyResolved(t *testing.T) {
	service, mock, _ := newTestService(t)

	now := time.Now()
	inv := pendingInvitation()
	inv.AcceptedAt = &now

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM org_invitations WHERE id (.+) FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(invRow(inv))
	mock.ExpectRollback()

	err := service.CancelInvitation(10)
	assert.True(t, IsAlreadyResolved(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPendingInvitations(t *testing.T) {
	service, mock, _ := newTestService(t)

	inv := pendingInvitation()
	mock.ExpectQuery("SELECT (.+) FROM org_invitations").
		WithArgs(int64(1)).
		WillReturnRows(invRow(inv))

	invitations, err := service.ListPendingInvitations(1)
	require.NoError(t, err)
	require.Len(t, invitations, 1)
	assert.Equal(t, "teacher@example.com", invitations[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}
