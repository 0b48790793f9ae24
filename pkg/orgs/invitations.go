package orgs

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/classhub/pkg/audit"
)

// invitationTTL is the default validity window for new invitations
const invitationTTL = 7 * 24 * time.Hour

const invitationColumns = `id, org_id, email, role, token, invited_by, invited_at, expires_at,
	accepted_at, declined_at, cancelled_at, accepted_by`

// scanInvitation scans one org_invitations row in invitationColumns order
func scanInvitation(row rowScanner) (*Invitation, error) {
	inv := &Invitation{}
	err := row.Scan(
		&inv.ID, &inv.OrgID, &inv.Email, &inv.Role, &inv.Token,
		&inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt,
		&inv.AcceptedAt, &inv.DeclinedAt, &inv.CancelledAt, &inv.AcceptedBy,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Invite creates a membership invitation, gated by the users quota. On quota
// exceedance nothing is persisted.
func (s *PostgresService) Invite(orgID int64, email, role string, invitedBy int64) (*Invitation, error) {
	if err := s.CheckQuota(orgID, ResourceUsers, 1); err != nil {
		return nil, err
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now().UTC()
	inv := &Invitation{
		OrgID:     orgID,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Role:      role,
		Token:     token,
		InvitedBy: invitedBy,
		InvitedAt: now,
		ExpiresAt: now.Add(invitationTTL),
	}

	query := `
		INSERT INTO org_invitations (org_id, email, role, token, invited_by, invited_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = s.db.QueryRow(query, inv.OrgID, inv.Email, inv.Role, inv.Token,
		inv.InvitedBy, inv.InvitedAt, inv.ExpiresAt).Scan(&inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	s.countInvitation("created")
	s.record(audit.EventTypeInvitationCreate, orgID, map[string]any{
		"email": inv.Email, "role": inv.Role,
	})
	return inv, nil
}

// GetInvitation retrieves an invitation by token
func (s *PostgresService) GetInvitation(token string) (*Invitation, error) {
	query := fmt.Sprintf(`SELECT %s FROM org_invitations WHERE token = $1`, invitationColumns)
	inv, err := scanInvitation(s.db.QueryRow(query, token))
	if err == sql.ErrNoRows {
		return nil, &InvalidTokenError{}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// ListPendingInvitations lists unresolved, unexpired invitations for an
// organization. Expired rows are filtered lazily, never swept.
func (s *PostgresService) ListPendingInvitations(orgID int64) ([]*Invitation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM org_invitations
		WHERE org_id = $1
		  AND accepted_at IS NULL AND declined_at IS NULL AND cancelled_at IS NULL
		  AND expires_at > NOW()
		ORDER BY invited_at DESC
	`, invitationColumns)
	rows, err := s.db.Query(query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// AcceptInvitation resolves an invitation: the member assignment, the users
// counter increment and the terminal timestamp land in one transaction, so a
// half-applied acceptance can never be observed.
func (s *PostgresService) AcceptInvitation(token string, userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inv, err := lockInvitationByToken(tx, token)
	if err != nil {
		return err
	}
	if resolution, ok := inv.Resolved(); ok {
		return &AlreadyResolvedError{Resolution: resolution}
	}
	if inv.Expired() {
		return &ExpiredInvitationError{ExpiredAt: inv.ExpiresAt}
	}

	if err := assignMemberTx(tx, userID, inv.Email, inv.OrgID, inv.Role); err != nil {
		return err
	}

	result, err := tx.Exec(`
		UPDATE org_invitations SET accepted_at = NOW(), accepted_by = $1
		WHERE id = $2 AND accepted_at IS NULL AND declined_at IS NULL AND cancelled_at IS NULL
	`, userID, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to resolve invitation: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return &AlreadyResolvedError{Resolution: ResolutionAccepted}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit acceptance: %w", err)
	}

	s.countInvitation("accepted")
	s.record(audit.EventTypeInvitationAccept, inv.OrgID, map[string]any{
		"email": inv.Email, "user_id": userID,
	})
	return nil
}

// DeclineInvitation resolves an invitation as declined. Expiry applies the
// same lazy check as acceptance.
func (s *PostgresService) DeclineInvitation(token string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inv, err := lockInvitationByToken(tx, token)
	if err != nil {
		return err
	}
	if resolution, ok := inv.Resolved(); ok {
		return &AlreadyResolvedError{Resolution: resolution}
	}
	if inv.Expired() {
		return &ExpiredInvitationError{ExpiredAt: inv.ExpiresAt}
	}

	if _, err := tx.Exec(`UPDATE org_invitations SET declined_at = NOW() WHERE id = $1`, inv.ID); err != nil {
		return fmt.Errorf("failed to resolve invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decline: %w", err)
	}

	s.countInvitation("declined")
	s.record(audit.EventTypeInvitationDecline, inv.OrgID, map[string]any{"email": inv.Email})
	return nil
}

// CancelInvitation resolves an invitation as cancelled by the inviter side.
// Cancelling an expired-but-unresolved invitation is permitted.
func (s *PostgresService) CancelInvitation(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`SELECT %s FROM org_invitations WHERE id = $1 FOR UPDATE`, invitationColumns)
	inv, err := scanInvitation(tx.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return &NotFoundError{Resource: "invitation", Key: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return fmt.Errorf("failed to get invitation: %w", err)
	}
	if resolution, ok := inv.Resolved(); ok {
		return &AlreadyResolvedError{Resolution: resolution}
	}

	if _, err := tx.Exec(`UPDATE org_invitations SET cancelled_at = NOW() WHERE id = $1`, inv.ID); err != nil {
		return fmt.Errorf("failed to resolve invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	s.countInvitation("cancelled")
	s.record(audit.EventTypeInvitationCancel, inv.OrgID, map[string]any{"email": inv.Email})
	return nil
}

// lockInvitationByToken reads an invitation row under a row lock
func lockInvitationByToken(tx *sql.Tx, token string) (*Invitation, error) {
	query := fmt.Sprintf(`SELECT %s FROM org_invitations WHERE token = $1 FOR UPDATE`, invitationColumns)
	inv, err := scanInvitation(tx.QueryRow(query, token))
	if err == sql.ErrNoRows {
		return nil, &InvalidTokenError{}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}
