package orgs

import (
	"context"
	"fmt"
	"time"
)

// activityWindow bounds the "recently active members" figure in snapshots
const activityWindow = 24 * time.Hour

// LogUsage captures a point-in-time immutable snapshot of the organization's
// usage counters plus the recently-active member count, and appends it to the
// usage log. Prior entries are never overwritten.
func (s *PostgresService) LogUsage(ctx context.Context, orgID int64, logType string) (*UsageLogEntry, error) {
	org, err := s.GetOrganization(orgID)
	if err != nil {
		return nil, err
	}

	var activeMembers int64
	if s.activity != nil {
		activeMembers, err = s.activity.CountActive(ctx, orgID, activityWindow)
		if err != nil {
			// Activity tracking is best-effort; a snapshot with a zero count
			// beats no snapshot at all.
			s.logger.WithError(err).WithField("org_id", orgID).
				Warn("failed to count active members for usage snapshot")
			activeMembers = 0
		}
	}

	entry := &UsageLogEntry{
		OrgID:         orgID,
		LogType:       logType,
		Usage:         org.Usage,
		ActiveMembers: activeMembers,
	}

	query := `
		INSERT INTO usage_log_entries (org_id, log_type,
			users_count, classes_count, storage_bytes, api_calls_count, sessions_count,
			active_members)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query, entry.OrgID, entry.LogType,
		entry.Usage.Users, entry.Usage.Classes, entry.Usage.StorageBytes,
		entry.Usage.APICalls, entry.Usage.Sessions, entry.ActiveMembers).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append usage log entry: %w", err)
	}

	return entry, nil
}

// Report returns the ordered snapshots in [start, end] plus live current
// stats. Read-only; safe to run concurrently with any other operation on the
// same organization.
func (s *PostgresService) Report(ctx context.Context, orgID int64, start, end time.Time) (*UsageReport, error) {
	org, err := s.GetOrganization(orgID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, org_id, log_type,
			users_count, classes_count, storage_bytes, api_calls_count, sessions_count,
			active_members, created_at
		FROM usage_log_entries
		WHERE org_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage log: %w", err)
	}
	defer rows.Close()

	var entries []*UsageLogEntry
	for rows.Next() {
		entry := &UsageLogEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.OrgID, &entry.LogType,
			&entry.Usage.Users, &entry.Usage.Classes, &entry.Usage.StorageBytes,
			&entry.Usage.APICalls, &entry.Usage.Sessions,
			&entry.ActiveMembers, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage log: %w", err)
	}

	return &UsageReport{
		OrgID:       orgID,
		Entries:     entries,
		Current:     org.Usage,
		Quotas:      org.Quotas,
		Percentages: Percentages(org),
	}, nil
}
