package audit

import (
	"context"
	"time"

	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/storage/postgres"
)

// Migrations returns the audit trail schema.
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     5,
			Description: "Create audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
					event_type TEXT NOT NULL,
					status TEXT NOT NULL,
					actor_id BIGINT,
					target_id BIGINT,
					permission_key TEXT,
					request_id TEXT,
					message TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log(actor_id, timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_log_event_type ON audit_log(event_type);
			`,
		},
	}
}

// DBLogger writes audit entries to the audit_log table.
type DBLogger struct {
	db postgres.DBTX
}

// NewDBLogger creates a database audit logger.
func NewDBLogger(db postgres.DBTX) *DBLogger {
	return &DBLogger{db: db}
}

// Log inserts one entry.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO audit_log (timestamp, event_type, status, actor_id, target_id, permission_key, request_id, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.ActorID, event.TargetID, nullIfEmpty(event.PermissionKey),
		nullIfEmpty(event.RequestID), nullIfEmpty(event.Message),
	).Scan(&event.ID)
	if err != nil {
		return governance.Storagef("insert audit entry", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (l *DBLogger) Recent(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, status, actor_id, target_id,
		       COALESCE(permission_key, ''), COALESCE(request_id, ''), COALESCE(message, '')
		FROM audit_log
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, governance.Storagef("list audit entries", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.EventType, &e.Status,
			&e.ActorID, &e.TargetID, &e.PermissionKey, &e.RequestID, &e.Message,
		); err != nil {
			return nil, governance.Storagef("scan audit entry", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, governance.Storagef("list audit entries", err)
	}
	return events, nil
}

// Cleanup deletes entries older than the retention window and returns
// how many were removed. Called by the scheduled sweep.
func (l *DBLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	result, err := l.db.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, governance.Storagef("cleanup audit log", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, governance.Storagef("cleanup audit log", err)
	}
	return removed, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
