package orgs

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/classhub/pkg/audit"
)

// usageColumn maps a resource kind to its usage counter column
func usageColumn(kind ResourceKind) (string, error) {
	switch kind {
	case ResourceUsers:
		return "current_users", nil
	case ResourceClasses:
		return "current_classes", nil
	case ResourceStorageBytes:
		return "current_storage_bytes", nil
	case ResourceAPICalls:
		return "current_api_calls", nil
	case ResourceSessions:
		return "current_sessions", nil
	}
	return "", fmt.Errorf("unknown resource kind: %s", kind)
}

// quotaColumn maps a resource kind to its ceiling column
func quotaColumn(kind ResourceKind) (string, error) {
	switch kind {
	case ResourceUsers:
		return "max_users", nil
	case ResourceClasses:
		return "max_classes", nil
	case ResourceStorageBytes:
		return "max_storage_bytes", nil
	case ResourceAPICalls:
		return "max_api_calls", nil
	case ResourceSessions:
		return "max_sessions", nil
	}
	return "", fmt.Errorf("unknown resource kind: %s", kind)
}

// CanAdd reports whether one more unit of the resource fits under the ceiling
func (s *PostgresService) CanAdd(orgID int64, kind ResourceKind) (bool, error) {
	err := s.CheckQuota(orgID, kind, 1)
	if IsQuotaExceeded(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CheckQuota returns a QuotaExceededError if adding amount would exceed the
// ceiling. This is a read-only pre-check; mutations must go through
// TryIncrementUsage, which re-validates atomically.
func (s *PostgresService) CheckQuota(orgID int64, kind ResourceKind, amount int64) error {
	org, err := s.GetOrganization(orgID)
	if err != nil {
		return err
	}
	current := org.Usage.Get(kind)
	limit := org.Quotas.Get(kind)
	if current+amount > limit {
		s.countQuotaDenial(kind)
		s.record(audit.EventTypeQuotaDenied, orgID, map[string]any{
			"kind": string(kind), "current": current, "limit": limit, "amount": amount,
		})
		return &QuotaExceededError{Kind: kind, Current: current, Limit: limit}
	}
	return nil
}

// TryIncrementUsage adds amount to the usage counter only if the result stays
// within the ceiling. The check and the increment are a single UPDATE, so two
// concurrent callers can never both pass the check and overshoot the ceiling.
func (s *PostgresService) TryIncrementUsage(orgID int64, kind ResourceKind, amount int64) error {
	cur, err := usageColumn(kind)
	if err != nil {
		return err
	}
	max, err := quotaColumn(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE organizations
		SET %[1]s = %[1]s + $1, updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL AND %[1]s + $1 <= %[2]s
	`, cur, max)
	result, err := s.db.Exec(query, amount, orgID)
	if err != nil {
		return fmt.Errorf("failed to increment %s usage: %w", kind, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Zero rows means either a missing org or a full counter; re-read to tell
	// the two apart.
	org, err := s.GetOrganization(orgID)
	if err != nil {
		return err
	}
	current := org.Usage.Get(kind)
	limit := org.Quotas.Get(kind)
	s.countQuotaDenial(kind)
	s.record(audit.EventTypeQuotaDenied, orgID, map[string]any{
		"kind": string(kind), "current": current, "limit": limit, "amount": amount,
	})
	return &QuotaExceededError{Kind: kind, Current: current, Limit: limit}
}

// IncrementUsage adds amount to the usage counter, saturating at the ceiling
func (s *PostgresService) IncrementUsage(orgID int64, kind ResourceKind, amount int64) error {
	cur, err := usageColumn(kind)
	if err != nil {
		return err
	}
	max, err := quotaColumn(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE organizations
		SET %[1]s = LEAST(%[1]s + $1, %[2]s), updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
	`, cur, max)
	result, err := s.db.Exec(query, amount, orgID)
	if err != nil {
		return fmt.Errorf("failed to increment %s usage: %w", kind, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Resource: "organization", Key: fmt.Sprintf("%d", orgID)}
	}
	return nil
}

// DecrementUsage subtracts amount from the usage counter, flooring at zero
func (s *PostgresService) DecrementUsage(orgID int64, kind ResourceKind, amount int64) error {
	cur, err := usageColumn(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE organizations
		SET %[1]s = GREATEST(%[1]s - $1, 0), updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
	`, cur)
	result, err := s.db.Exec(query, amount, orgID)
	if err != nil {
		return fmt.Errorf("failed to decrement %s usage: %w", kind, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Resource: "organization", Key: fmt.Sprintf("%d", orgID)}
	}
	return nil
}

// UsagePercentages returns per-kind usage as a fraction of the ceiling
func (s *PostgresService) UsagePercentages(orgID int64) (map[ResourceKind]float64, error) {
	org, err := s.GetOrganization(orgID)
	if err != nil {
		return nil, err
	}
	return Percentages(org), nil
}

// Percentages computes per-kind usage fractions for an already-loaded org
func Percentages(org *Organization) map[ResourceKind]float64 {
	pcts := make(map[ResourceKind]float64, len(ResourceKinds))
	for _, kind := range ResourceKinds {
		limit := org.Quotas.Get(kind)
		if limit <= 0 {
			pcts[kind] = 0
			continue
		}
		pcts[kind] = float64(org.Usage.Get(kind)) / float64(limit)
	}
	return pcts
}

// UpgradeTier atomically re-applies the new tier's quota table, moves status
// toward active, and opens a new billing window.
func (s *PostgresService) UpgradeTier(orgID int64, tier Tier) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current OrgStatus
	err = tx.QueryRow(`SELECT status FROM organizations WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, orgID).
		Scan(&current)
	if err == sql.ErrNoRows {
		return &NotFoundError{Resource: "organization", Key: fmt.Sprintf("%d", orgID)}
	}
	if err != nil {
		return fmt.Errorf("failed to get organization status: %w", err)
	}

	if current != OrgStatusActive {
		if err := ValidateTransition(current, OrgStatusActive); err != nil {
			return err
		}
	}

	quotas := DefaultQuotas(tier)
	now := time.Now().UTC()
	periodEnd := now.AddDate(0, 1, 0)

	query := `
		UPDATE organizations
		SET tier = $1, status = $2, is_active = true,
		    max_users = $3, max_classes = $4, max_storage_bytes = $5,
		    max_api_calls = $6, max_sessions = $7,
		    period_start = $8, period_end = $9, updated_at = NOW()
		WHERE id = $10
	`
	_, err = tx.Exec(query, tier, OrgStatusActive,
		quotas.Users, quotas.Classes, quotas.StorageBytes, quotas.APICalls, quotas.Sessions,
		now, periodEnd, orgID)
	if err != nil {
		return fmt.Errorf("failed to upgrade tier: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tier upgrade: %w", err)
	}

	s.record(audit.EventTypeOrgTierUpgrade, orgID, map[string]any{
		"tier": string(tier), "from_status": string(current),
	})
	return nil
}
