package orgs

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all tenancy migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					tier VARCHAR(32) NOT NULL DEFAULT 'free',
					status VARCHAR(32) NOT NULL DEFAULT 'pending',
					max_users BIGINT NOT NULL DEFAULT 0,
					max_classes BIGINT NOT NULL DEFAULT 0,
					max_storage_bytes BIGINT NOT NULL DEFAULT 0,
					max_api_calls BIGINT NOT NULL DEFAULT 0,
					max_sessions BIGINT NOT NULL DEFAULT 0,
					current_users BIGINT NOT NULL DEFAULT 0,
					current_classes BIGINT NOT NULL DEFAULT 0,
					current_storage_bytes BIGINT NOT NULL DEFAULT 0,
					current_api_calls BIGINT NOT NULL DEFAULT 0,
					current_sessions BIGINT NOT NULL DEFAULT 0,
					trial_started_at TIMESTAMPTZ,
					trial_ends_at TIMESTAMPTZ,
					period_start TIMESTAMPTZ,
					period_end TIMESTAMPTZ,
					settings JSONB NOT NULL DEFAULT '{}',
					features JSONB NOT NULL DEFAULT '[]',
					verified BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_by BIGINT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMPTZ,
					CONSTRAINT usage_within_quota CHECK (
						current_users <= max_users AND
						current_classes <= max_classes AND
						current_storage_bytes <= max_storage_bytes AND
						current_api_calls <= max_api_calls AND
						current_sessions <= max_sessions
					)
				);

				CREATE INDEX IF NOT EXISTS idx_organizations_slug ON organizations(slug);
				CREATE INDEX IF NOT EXISTS idx_organizations_status ON organizations(status);
			`,
		},
		{
			Version:     2,
			Description: "Create members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS members (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL UNIQUE,
					email VARCHAR(255) NOT NULL,
					organization_id BIGINT REFERENCES organizations(id) ON DELETE SET NULL,
					org_role VARCHAR(64),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_members_organization_id ON members(organization_id);
			`,
		},
		{
			Version:     3,
			Description: "Create org_invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_invitations (
					id BIGSERIAL PRIMARY KEY,
					org_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					role VARCHAR(64) NOT NULL,
					token VARCHAR(64) NOT NULL UNIQUE,
					invited_by BIGINT NOT NULL,
					invited_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMPTZ NOT NULL,
					accepted_at TIMESTAMPTZ,
					declined_at TIMESTAMPTZ,
					cancelled_at TIMESTAMPTZ,
					accepted_by BIGINT,
					CONSTRAINT single_resolution CHECK (
						(accepted_at IS NOT NULL)::int +
						(declined_at IS NOT NULL)::int +
						(cancelled_at IS NOT NULL)::int <= 1
					)
				);

				CREATE INDEX IF NOT EXISTS idx_org_invitations_org_id ON org_invitations(org_id);
				CREATE INDEX IF NOT EXISTS idx_org_invitations_token ON org_invitations(token);
			`,
		},
		{
			Version:     4,
			Description: "Create usage_log_entries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS usage_log_entries (
					id BIGSERIAL PRIMARY KEY,
					org_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					log_type VARCHAR(32) NOT NULL,
					users_count BIGINT NOT NULL DEFAULT 0,
					classes_count BIGINT NOT NULL DEFAULT 0,
					storage_bytes BIGINT NOT NULL DEFAULT 0,
					api_calls_count BIGINT NOT NULL DEFAULT 0,
					sessions_count BIGINT NOT NULL DEFAULT 0,
					active_members BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_usage_log_entries_org_created
					ON usage_log_entries(org_id, created_at);
			`,
		},
	}
}

// RunMigrations applies all tenancy migrations in order
func RunMigrations(db *sql.DB) error {
	for _, m := range GetMigrations() {
		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}
