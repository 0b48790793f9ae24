package orgs

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMemberByUserID(t *testing.T) {
	service, mock, _ := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM members WHERE user_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "email", "organization_id", "org_role", "created_at", "updated_at",
		}).AddRow(5, 42, "teacher@example.com", 1, "teacher", time.Now(), time.Now()))

	m, err := service.GetMemberByUserID(42)
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.ID)
	require.NotNil(t, m.OrganizationID)
	assert.Equal(t, int64(1), *m.OrganizationID)
	assert.Equal(t, "teacher", m.OrgRole)

	mock.ExpectQuery("SELECT (.+) FROM members WHERE user_id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = service.GetMemberByUserID(99)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMember_WithOrgIncrementsUsage(t *testing.T) {
	service, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE organizations").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO members").
		WithArgs(int64(42), "teacher@example.com", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(5, time.Now(), time.Now()))
	mock.ExpectCommit()

	orgID := int64(1)
	m := &Member{UserID: 42, Email: " Teacher@Example.COM ", OrganizationID: &orgID, OrgRole: "teacher"}
	require.NoError(t, service.CreateMember(m))
	assert.Equal(t, int64(5), m.ID)
	assert.Equal(t, "teacher@example.com", m.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMember_UnassignedSkipsQuota(t *testing.T) {
	service, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO members").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(6, time.Now(), time.Now()))
	mock.ExpectCommit()

	m := &Member{UserID: 43, Email: "solo@example.com"}
	require.NoError(t, service.CreateMember(m))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMember_QuotaExceededRollsBack(t *testing.T) {
	service, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE organizations").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT current_users, max_users FROM organizations").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"current_users", "max_users"}).AddRow(5, 5))
	mock.ExpectRollback()

	orgID := int64(1)
	m := &Member{UserID: 42, Email: "teacher@example.com", OrganizationID: &orgID}
	err := service.CreateMember(m)
	assert.True(t, IsQuotaExceeded(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignMember_MovesBetweenOrgs(t *testing.T) {
	service, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, organization_id FROM members WHERE user_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id"}).AddRow(5, 2))
	// Old org decremented, new org bounded-incremented
	mock.ExpectExec("UPDATE organizations").
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE organizations").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE members SET organization_id").
		WithArgs(int64(1), sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.AssignMember(42, 1, "teacher"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignMember_SameOrgUpdatesRoleOnly(t *testing.T) {
	service, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, organization_id FROM members WHERE user_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id"}).AddRow(5, 1))
	mock.ExpectExec("UPDATE members SET org_role").
		WithArgs(sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.AssignMember(42, 1, "admin"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnassignMember(t *testing.T) {
	service, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, organization_id FROM members WHERE user_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id"}).AddRow(5, 1))
	mock.ExpectExec("UPDATE organizations").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE members SET organization_id = NULL").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, service.UnassignMember(42))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnassignMember_NotFound(t *testing.T) {
	service, mock, _ := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, organization_id FROM members WHERE user_id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id"}))
	mock.ExpectRollback()

	err := service.UnassignMember(99)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
