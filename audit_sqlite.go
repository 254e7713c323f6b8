package payflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteAuditSink is an AuditSink backed by a SQLite database. It can share
// a database handle with SQLiteCheckpointStore.
type SQLiteAuditSink struct {
	db *sql.DB
}

// NewSQLiteAuditSink wraps an existing database handle, creating the
// audit_log table if needed.
func NewSQLiteAuditSink(db *sql.DB) (*SQLiteAuditSink, error) {
	s := &SQLiteAuditSink{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate audit_log table: %w", err)
	}
	return s, nil
}

func (s *SQLiteAuditSink) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		workflow_id TEXT,
		stage TEXT,
		action TEXT,
		timestamp TEXT,
		details TEXT NOT NULL DEFAULT ''
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteAuditSink) Record(ctx context.Context, workflowID string, entry AuditLogEntry) error {
	var details string
	if entry.Details != nil {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return err
		}
		details = string(data)
	}
	query := `
	INSERT INTO audit_log (workflow_id, stage, action, timestamp, details)
	VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		workflowID,
		string(entry.Stage),
		entry.Action,
		entry.Timestamp.Format(time.RFC3339Nano),
		details,
	)
	return err
}

func (s *SQLiteAuditSink) History(ctx context.Context, workflowID string) ([]AuditLogEntry, error) {
	query := `
	SELECT stage, action, timestamp, details
	FROM audit_log
	WHERE workflow_id = ?
	ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditLogEntry
	for rows.Next() {
		var entry AuditLogEntry
		var stage, timestamp, details string
		if err := rows.Scan(&stage, &entry.Action, &timestamp, &details); err != nil {
			return nil, err
		}
		entry.Stage = StageName(stage)
		if entry.Timestamp, err = parseStoredTime(timestamp); err != nil {
			return nil, err
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &entry.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
