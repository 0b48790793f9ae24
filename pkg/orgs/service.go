package orgs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/classhub/pkg/audit"
	"github.com/platinummonkey/classhub/pkg/observability"
)

// trialPeriod is the trial window applied at creation for trial-bearing tiers
const trialPeriod = 30 * 24 * time.Hour

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db       *sql.DB
	activity ActiveMemberCounter
	auditLog audit.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// Option configures a PostgresService
type Option func(*PostgresService)

// WithActivityCounter wires the recently-active member counter used by usage
// snapshots. Without it, snapshots record zero active members.
func WithActivityCounter(c ActiveMemberCounter) Option {
	return func(s *PostgresService) { s.activity = c }
}

// WithAuditLogger wires the append-only audit trail. Audit failures are
// logged and never fail the triggering operation.
func WithAuditLogger(l audit.Logger) Option {
	return func(s *PostgresService) { s.auditLog = l }
}

// WithLogger sets the structured logger
func WithLogger(l *observability.Logger) Option {
	return func(s *PostgresService) { s.logger = l }
}

// WithMetrics wires the Prometheus counters for quota denials and invitation
// outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(s *PostgresService) { s.metrics = m }
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, opts ...Option) *PostgresService {
	s := &PostgresService{
		db:     db,
		logger: observability.NewLogger(observability.InfoLevel, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// orgColumns is the canonical organizations column list used by every scan
const orgColumns = `id, name, slug, tier, status,
	max_users, max_classes, max_storage_bytes, max_api_calls, max_sessions,
	current_users, current_classes, current_storage_bytes, current_api_calls, current_sessions,
	trial_started_at, trial_ends_at, period_start, period_end,
	settings, features, verified, is_active, created_by, created_at, updated_at, deleted_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanOrganization scans one organizations row in orgColumns order
func scanOrganization(row rowScanner) (*Organization, error) {
	org := &Organization{}
	var settingsJSON, featuresJSON []byte
	err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.Tier, &org.Status,
		&org.Quotas.Users, &org.Quotas.Classes, &org.Quotas.StorageBytes,
		&org.Quotas.APICalls, &org.Quotas.Sessions,
		&org.Usage.Users, &org.Usage.Classes, &org.Usage.StorageBytes,
		&org.Usage.APICalls, &org.Usage.Sessions,
		&org.TrialStartedAt, &org.TrialEndsAt, &org.PeriodStart, &org.PeriodEnd,
		&settingsJSON, &featuresJSON, &org.Verified, &org.IsActive,
		&org.CreatedBy, &org.CreatedAt, &org.UpdatedAt, &org.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &org.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	if len(featuresJSON) > 0 {
		if err := json.Unmarshal(featuresJSON, &org.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal features: %w", err)
		}
	}
	return org, nil
}

// DefaultQuotas returns the default quota table for a subscription tier
func DefaultQuotas(tier Tier) QuotaSet {
	switch tier {
	case TierFree:
		return QuotaSet{
			Users:        5,
			Classes:      10,
			StorageBytes: 1 * 1024 * 1024 * 1024, // 1GB
			APICalls:     10000,
			Sessions:     25,
		}
	case TierStarter:
		return QuotaSet{
			Users:        25,
			Classes:      50,
			StorageBytes: 10 * 1024 * 1024 * 1024, // 10GB
			APICalls:     100000,
			Sessions:     250,
		}
	case TierPro:
		return QuotaSet{
			Users:        100,
			Classes:      250,
			StorageBytes: 100 * 1024 * 1024 * 1024, // 100GB
			APICalls:     1000000,
			Sessions:     2500,
		}
	case TierEnterprise:
		return QuotaSet{
			Users:        1000,
			Classes:      2500,
			StorageBytes: 1024 * 1024 * 1024 * 1024, // 1TB
			APICalls:     10000000,
			Sessions:     25000,
		}
	default:
		return DefaultQuotas(TierFree)
	}
}

// DefaultFeatures returns the feature set enabled for a subscription tier
func DefaultFeatures(tier Tier) []string {
	switch tier {
	case TierStarter:
		return []string{"basic_reports", "csv_export"}
	case TierPro:
		return []string{"basic_reports", "csv_export", "api_access", "advanced_reports"}
	case TierEnterprise:
		return []string{"basic_reports", "csv_export", "api_access", "advanced_reports", "sso", "audit_log"}
	default:
		return []string{"basic_reports"}
	}
}

// CreateOrganization creates a new organization with tier default quotas.
// Slug collisions are resolved with an incrementing numeric suffix and never
// fail the call.
func (s *PostgresService) CreateOrganization(req *CreateOrgRequest) (*Organization, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("organization name is required")
	}

	tier := req.Tier
	if tier == "" {
		tier = TierFree
	}

	base := req.DesiredSlug
	if base == "" {
		base = req.Name
	}
	slug, err := s.uniqueSlug(normalizeSlug(base))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve slug: %w", err)
	}

	org := &Organization{
		Name:      req.Name,
		Slug:      slug,
		Tier:      tier,
		Quotas:    DefaultQuotas(tier),
		Settings:  req.Settings,
		Verified:  false,
		IsActive:  true,
		CreatedBy: req.CreatedBy,
	}

	now := time.Now().UTC()
	if tier.HasTrial() {
		org.Status = OrgStatusTrial
		trialEnd := now.Add(trialPeriod)
		org.TrialStartedAt = &now
		org.TrialEndsAt = &trialEnd
	} else {
		org.Status = OrgStatusPending
	}

	settingsJSON, err := json.Marshal(orDefault(org.Settings))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	featuresJSON, err := json.Marshal(org.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO organizations (name, slug, tier, status,
			max_users, max_classes, max_storage_bytes, max_api_calls, max_sessions,
			trial_started_at, trial_ends_at, settings, features, verified, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRow(query, org.Name, org.Slug, org.Tier, org.Status,
		org.Quotas.Users, org.Quotas.Classes, org.Quotas.StorageBytes,
		org.Quotas.APICalls, org.Quotas.Sessions,
		org.TrialStartedAt, org.TrialEndsAt, settingsJSON, featuresJSON,
		org.Verified, org.IsActive, org.CreatedBy).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	s.record(audit.EventTypeOrgCreate, org.ID, map[string]any{
		"slug": org.Slug, "tier": string(org.Tier), "status": string(org.Status),
	})

	return org, nil
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(id int64) (*Organization, error) {
	query := fmt.Sprintf(`SELECT %s FROM organizations WHERE id = $1 AND deleted_at IS NULL`, orgColumns)
	org, err := scanOrganization(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "organization", Key: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *PostgresService) GetOrganizationBySlug(slug string) (*Organization, error) {
	query := fmt.Sprintf(`SELECT %s FROM organizations WHERE slug = $1 AND deleted_at IS NULL`, orgColumns)
	org, err := scanOrganization(s.db.QueryRow(query, slug))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "organization", Key: slug}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// ListActiveOrganizations lists all active, non-deleted organizations
func (s *PostgresService) ListActiveOrganizations() ([]*Organization, error) {
	query := fmt.Sprintf(`SELECT %s FROM organizations WHERE is_active = true AND deleted_at IS NULL ORDER BY id ASC`, orgColumns)
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// UpdateOrganization applies a partial update. Slug is never touched here;
// it is assigned at creation and immutable after.
func (s *PostgresService) UpdateOrganization(id int64, updates *UpdateOrgRequest) error {
	setClauses := []string{}
	args := []interface{}{}
	argPos := 1

	if updates.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argPos))
		args = append(args, *updates.Name)
		argPos++
	}
	if updates.Settings != nil {
		settingsJSON, err := json.Marshal(updates.Settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("settings = $%d", argPos))
		args = append(args, settingsJSON)
		argPos++
	}
	if updates.Features != nil {
		featuresJSON, err := json.Marshal(updates.Features)
		if err != nil {
			return fmt.Errorf("failed to marshal features: %w", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("features = $%d", argPos))
		args = append(args, featuresJSON)
		argPos++
	}

	if len(setClauses) == 0 {
		return nil
	}

	setClauses = append(setClauses, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf("UPDATE organizations SET %s WHERE id = $%d AND deleted_at IS NULL",
		strings.Join(setClauses, ", "), argPos)

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Resource: "organization", Key: fmt.Sprintf("%d", id)}
	}
	return nil
}

// SetStatus transitions an organization's status, validated against the
// lifecycle state machine. Illegal transitions leave state unchanged.
func (s *PostgresService) SetStatus(id int64, status OrgStatus) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current OrgStatus
	err = tx.QueryRow(`SELECT status FROM organizations WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id).
		Scan(&current)
	if err == sql.ErrNoRows {
		return &NotFoundError{Resource: "organization", Key: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return fmt.Errorf("failed to get organization status: %w", err)
	}

	if err := ValidateTransition(current, status); err != nil {
		return err
	}

	isActive := status == OrgStatusActive || status == OrgStatusTrial || status == OrgStatusPending
	_, err = tx.Exec(`UPDATE organizations SET status = $1, is_active = $2, updated_at = NOW() WHERE id = $3`,
		status, isActive, id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status change: %w", err)
	}

	s.record(audit.EventTypeOrgStatusChange, id, map[string]any{
		"from": string(current), "to": string(status),
	})
	return nil
}

// MarkVerified flags the organization as verified
func (s *PostgresService) MarkVerified(id int64) error {
	result, err := s.db.Exec(`UPDATE organizations SET verified = true, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to mark verified: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Resource: "organization", Key: fmt.Sprintf("%d", id)}
	}
	return nil
}

// SoftDeleteOrganization stamps the deletion marker. Invitations and usage
// log entries are owned by the organization and cascade with it in the schema.
func (s *PostgresService) SoftDeleteOrganization(id int64) error {
	result, err := s.db.Exec(`UPDATE organizations SET deleted_at = NOW(), is_active = false, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete organization: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Resource: "organization", Key: fmt.Sprintf("%d", id)}
	}
	return nil
}

// uniqueSlug appends an incrementing numeric suffix until the slug is unused
func (s *PostgresService) uniqueSlug(base string) (string, error) {
	if base == "" {
		base = "org"
	}
	candidate := base
	for i := 1; ; i++ {
		var exists bool
		err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)`, candidate).
			Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// record appends an audit event; failures are logged, never propagated
func (s *PostgresService) record(eventType audit.EventType, orgID int64, details map[string]any) {
	if s.auditLog == nil {
		return
	}
	event := &audit.Event{Type: eventType, OrgID: &orgID, Details: details}
	if err := s.auditLog.Record(context.Background(), event); err != nil {
		s.logger.WithError(err).WithField("event_type", string(eventType)).
			Warn("failed to record audit event")
	}
}

func (s *PostgresService) countQuotaDenial(kind ResourceKind) {
	if s.metrics != nil {
		s.metrics.QuotaDenialsTotal.WithLabelValues(string(kind)).Inc()
	}
}

func (s *PostgresService) countInvitation(outcome string) {
	if s.metrics != nil {
		s.metrics.InvitationsTotal.WithLabelValues(outcome).Inc()
	}
}

func orDefault(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// normalizeSlug lowercases and reduces a name to alphanumerics and hyphens
func normalizeSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

// generateToken generates an opaque unguessable invitation token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
