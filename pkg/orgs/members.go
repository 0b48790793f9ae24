package orgs

import (
	"database/sql"
	"fmt"
	"strings"
)

const memberColumns = `id, user_id, email, organization_id, org_role, created_at, updated_at`

// scanMember scans one members row in memberColumns order
func scanMember(row rowScanner) (*Member, error) {
	m := &Member{}
	var orgRole sql.NullString
	err := row.Scan(&m.ID, &m.UserID, &m.Email, &m.OrganizationID, &orgRole, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if orgRole.Valid {
		m.OrgRole = orgRole.String
	}
	return m, nil
}

// GetMemberByUserID retrieves a member by platform user id
func (s *PostgresService) GetMemberByUserID(userID int64) (*Member, error) {
	query := fmt.Sprintf(`SELECT %s FROM members WHERE user_id = $1`, memberColumns)
	m, err := scanMember(s.db.QueryRow(query, userID))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "member", Key: fmt.Sprintf("%d", userID)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// CreateMember creates a member record. If the member carries an organization
// assignment, the organization's users counter is incremented in the same
// transaction, bounded by the quota ceiling.
func (s *PostgresService) CreateMember(m *Member) error {
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if m.OrganizationID != nil {
		if err := incrementUsersBoundedTx(tx, *m.OrganizationID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO members (user_id, email, organization_id, org_role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(query, m.UserID, m.Email, m.OrganizationID, nullableString(m.OrgRole)).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}

	return tx.Commit()
}

// AssignMember moves a member to an organization in one atomic operation:
// the old organization's users counter is decremented and the new one's
// incremented within a single transaction.
func (s *PostgresService) AssignMember(userID, orgID int64, role string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := assignMemberTx(tx, userID, "", orgID, role); err != nil {
		return err
	}
	return tx.Commit()
}

// UnassignMember clears a member's organization assignment, decrementing the
// organization's users counter.
func (s *PostgresService) UnassignMember(userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var memberID int64
	var currentOrg sql.NullInt64
	err = tx.QueryRow(`SELECT id, organization_id FROM members WHERE user_id = $1 FOR UPDATE`, userID).
		Scan(&memberID, &currentOrg)
	if err == sql.ErrNoRows {
		return &NotFoundError{Resource: "member", Key: fmt.Sprintf("%d", userID)}
	}
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}

	if currentOrg.Valid {
		if err := decrementUsersTx(tx, currentOrg.Int64); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`UPDATE members SET organization_id = NULL, org_role = NULL, updated_at = NOW() WHERE id = $1`, memberID)
	if err != nil {
		return fmt.Errorf("failed to unassign member: %w", err)
	}

	return tx.Commit()
}

// assignMemberTx creates or updates a member's organization assignment inside
// an open transaction. Missing member rows are created (invitation acceptance
// may precede first login). Reassignment decrements the old organization and
// bounded-increments the new one.
func assignMemberTx(tx *sql.Tx, userID int64, email string, orgID int64, role string) error {
	var memberID int64
	var currentOrg sql.NullInt64
	err := tx.QueryRow(`SELECT id, organization_id FROM members WHERE user_id = $1 FOR UPDATE`, userID).
		Scan(&memberID, &currentOrg)
	if err == sql.ErrNoRows {
		if err := incrementUsersBoundedTx(tx, orgID); err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO members (user_id, email, organization_id, org_role) VALUES ($1, $2, $3, $4)`,
			userID, strings.ToLower(strings.TrimSpace(email)), orgID, nullableString(role))
		if err != nil {
			return fmt.Errorf("failed to create member: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}

	if currentOrg.Valid && currentOrg.Int64 == orgID {
		_, err = tx.Exec(`UPDATE members SET org_role = $1, updated_at = NOW() WHERE id = $2`,
			nullableString(role), memberID)
		if err != nil {
			return fmt.Errorf("failed to update member role: %w", err)
		}
		return nil
	}

	if currentOrg.Valid {
		if err := decrementUsersTx(tx, currentOrg.Int64); err != nil {
			return err
		}
	}
	if err := incrementUsersBoundedTx(tx, orgID); err != nil {
		return err
	}

	_, err = tx.Exec(`UPDATE members SET organization_id = $1, org_role = $2, updated_at = NOW() WHERE id = $3`,
		orgID, nullableString(role), memberID)
	if err != nil {
		return fmt.Errorf("failed to reassign member: %w", err)
	}
	return nil
}

// incrementUsersBoundedTx bumps the users counter only if it stays within the
// ceiling; the check and increment are one statement.
func incrementUsersBoundedTx(tx *sql.Tx, orgID int64) error {
	result, err := tx.Exec(`
		UPDATE organizations
		SET current_users = current_users + 1, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND current_users + 1 <= max_users
	`, orgID)
	if err != nil {
		return fmt.Errorf("failed to increment users usage: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var current, limit int64
	err = tx.QueryRow(`SELECT current_users, max_users FROM organizations WHERE id = $1 AND deleted_at IS NULL`, orgID).
		Scan(&current, &limit)
	if err == sql.ErrNoRows {
		return &NotFoundError{Resource: "organization", Key: fmt.Sprintf("%d", orgID)}
	}
	if err != nil {
		return fmt.Errorf("failed to get organization usage: %w", err)
	}
	return &QuotaExceededError{Kind: ResourceUsers, Current: current, Limit: limit}
}

// decrementUsersTx lowers the users counter, flooring at zero
func decrementUsersTx(tx *sql.Tx, orgID int64) error {
	_, err := tx.Exec(`
		UPDATE organizations
		SET current_users = GREATEST(current_users - 1, 0), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, orgID)
	if err != nil {
		return fmt.Errorf("failed to decrement users usage: %w", err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
