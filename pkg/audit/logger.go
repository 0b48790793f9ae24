package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger records append-only audit events
type Logger interface {
	Record(ctx context.Context, event *Event) error
}

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	logger := &DBLogger{db: db}
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return logger, nil
}

// ensureTable creates the audit_events table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		event_id VARCHAR(36) NOT NULL UNIQUE,
		event_type VARCHAR(64) NOT NULL,
		org_id BIGINT,
		actor_id BIGINT,
		details JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_org_id ON audit_events(org_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events(created_at DESC);
	`
	_, err := l.db.Exec(query)
	return err
}

// Record appends one audit event. Events are never updated or deleted here.
func (l *DBLogger) Record(ctx context.Context, event *Event) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	var detailsJSON []byte
	if event.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (event_id, event_type, org_id, actor_id, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := l.db.QueryRowContext(ctx, query, event.EventID, event.Type, event.OrgID, event.ActorID, detailsJSON).
		Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// SearchFilter narrows audit event queries
type SearchFilter struct {
	OrgID     *int64
	Type      EventType
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

// Search queries audit events most recent first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `SELECT id, event_id, event_type, org_id, actor_id, details, created_at FROM audit_events WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if filter.OrgID != nil {
		query += fmt.Sprintf(" AND org_id = $%d", argPos)
		args = append(args, *filter.OrgID)
		argPos++
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argPos)
		args = append(args, filter.Type)
		argPos++
	}
	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *filter.StartTime)
		argPos++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argPos)
		args = append(args, *filter.EndTime)
		argPos++
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		var detailsJSON []byte
		if err := rows.Scan(&event.ID, &event.EventID, &event.Type, &event.OrgID,
			&event.ActorID, &detailsJSON, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal details: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// MemoryLogger is an in-memory audit logger for tests and default wiring
type MemoryLogger struct {
	mu     sync.Mutex
	events []*Event
	nextID int64
}

// NewMemoryLogger creates a new in-memory audit logger
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Record appends one audit event in memory
func (l *MemoryLogger) Record(_ context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	event.ID = l.nextID
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	l.events = append(l.events, event)
	return nil
}

// Events returns a snapshot of recorded events
func (l *MemoryLogger) Events() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Event, len(l.events))
	copy(out, l.events)
	return out
}
