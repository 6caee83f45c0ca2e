package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DBLogger persists audit events to the database.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger, creating the
// audit_logs table if needed.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	l := &DBLogger{db: db}
	if err := l.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}
	return l, nil
}

func (l *DBLogger) ensureTable() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL DEFAULT NOW(),
			event_type VARCHAR(100) NOT NULL,
			user_id BIGINT,
			username VARCHAR(150),
			resource_type VARCHAR(50),
			resource_id VARCHAR(255),
			status VARCHAR(20) NOT NULL,
			message TEXT,
			details JSONB
		);

		CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
	`)
	return err
}

// Log writes one event.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var details any
	if len(event.Details) > 0 {
		details = string(event.Details)
	}
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (timestamp, event_type, user_id, username, resource_type, resource_id, status, message, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		event.Timestamp, string(event.Type), event.UserID, event.Username,
		string(event.ResourceType), event.ResourceID,
		string(event.Status), event.Message, details,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Search retrieves events matching the filter, newest first.
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := "SELECT id, timestamp, event_type, user_id, username, resource_type, resource_id, status, message, details FROM audit_logs WHERE 1=1"
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = arg(string(t))
		}
		query += " AND event_type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if filter.UserID != nil {
		query += " AND user_id = " + arg(*filter.UserID)
	}
	if filter.ResourceType != "" {
		query += " AND resource_type = " + arg(string(filter.ResourceType))
	}
	if filter.ResourceID != "" {
		query += " AND resource_id = " + arg(filter.ResourceID)
	}
	if filter.Since != nil {
		query += " AND timestamp >= " + arg(*filter.Since)
	}
	if filter.Until != nil {
		query += " AND timestamp <= " + arg(*filter.Until)
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit log: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var userID sql.NullInt64
		var username, resourceType, resourceID, message, details sql.NullString
		err := rows.Scan(&event.ID, &event.Timestamp, &event.Type, &userID,
			&username, &resourceType, &resourceID, &event.Status, &message, &details)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if userID.Valid {
			event.UserID = &userID.Int64
		}
		event.Username = username.String
		event.ResourceType = ResourceType(resourceType.String)
		event.ResourceID = resourceID.String
		event.Message = message.String
		if details.Valid {
			event.Details = []byte(details.String)
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

// Close is a no-op; the logger does not own the database handle.
func (l *DBLogger) Close() error { return nil }
