package payflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCheckpointStore is a CheckpointStore backed by a SQLite database.
// The driver is pure Go, so the store works without cgo.
type SQLiteCheckpointStore struct {
	db *sql.DB
}

// OpenSQLiteCheckpointStore opens (creating if needed) a SQLite database at
// path and returns a migrated store.
func OpenSQLiteCheckpointStore(path string) (*SQLiteCheckpointStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	store, err := NewSQLiteCheckpointStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteCheckpointStore wraps an existing database handle, creating the
// checkpoints table if needed.
func NewSQLiteCheckpointStore(db *sql.DB) (*SQLiteCheckpointStore, error) {
	s := &SQLiteCheckpointStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate checkpoints table: %w", err)
	}
	return s, nil
}

// DB returns the underlying database handle, for sharing with other
// components such as SQLiteAuditSink.
func (s *SQLiteCheckpointStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database handle.
func (s *SQLiteCheckpointStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteCheckpointStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		checkpoint_id TEXT PRIMARY KEY,
		workflow_id TEXT,
		invoice_id TEXT,
		vendor_name TEXT,
		amount REAL,
		currency TEXT,
		state_blob TEXT,
		reason_for_hold TEXT,
		review_reference TEXT,
		status TEXT,
		created_at TEXT,
		decision TEXT NOT NULL DEFAULT '',
		reviewer_id TEXT NOT NULL DEFAULT '',
		decision_notes TEXT NOT NULL DEFAULT '',
		decided_at TEXT NOT NULL DEFAULT ''
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteCheckpointStore) Save(ctx context.Context, record *CheckpointRecord) error {
	blob, err := json.Marshal(record.Snapshot)
	if err != nil {
		return WrapPersistenceError(err, "failed to marshal checkpoint snapshot")
	}
	query := `
	INSERT INTO checkpoints (
		checkpoint_id, workflow_id, invoice_id, vendor_name, amount, currency,
		state_blob, reason_for_hold, review_reference, status, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		record.CheckpointID,
		record.WorkflowID,
		record.InvoiceID,
		record.VendorName,
		record.Amount,
		record.Currency,
		string(blob),
		record.Reason,
		record.ReviewRef,
		string(record.Status),
		record.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return WrapPersistenceError(err, "failed to insert checkpoint")
	}
	return nil
}

func (s *SQLiteCheckpointStore) Get(ctx context.Context, checkpointID string) (*CheckpointRecord, error) {
	query := `
	SELECT checkpoint_id, workflow_id, invoice_id, vendor_name, amount, currency,
		state_blob, reason_for_hold, review_reference, status, created_at,
		decision, reviewer_id, decision_notes, decided_at
	FROM checkpoints
	WHERE checkpoint_id = ?`
	return s.queryOne(ctx, query, checkpointID)
}

func (s *SQLiteCheckpointStore) queryOne(ctx context.Context, query string, args ...any) (*CheckpointRecord, error) {
	row := s.db.QueryRowContext(ctx, query, args...)

	var record CheckpointRecord
	var blob, status, createdAt, decision, decidedAt string
	err := row.Scan(
		&record.CheckpointID,
		&record.WorkflowID,
		&record.InvoiceID,
		&record.VendorName,
		&record.Amount,
		&record.Currency,
		&blob,
		&record.Reason,
		&record.ReviewRef,
		&status,
		&createdAt,
		&decision,
		&record.ReviewerID,
		&record.DecisionNotes,
		&decidedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NewPipelineError(ErrorTypeNotFound, "checkpoint not found")
	}
	if err != nil {
		return nil, WrapPersistenceError(err, "failed to read checkpoint")
	}

	if err := json.Unmarshal([]byte(blob), &record.Snapshot); err != nil {
		return nil, WrapPersistenceError(err, "failed to unmarshal checkpoint snapshot")
	}
	record.Status = CheckpointStatus(status)
	record.Decision = ReviewDecision(decision)
	if record.CreatedAt, err = parseStoredTime(createdAt); err != nil {
		return nil, WrapPersistenceError(err, "failed to parse created_at")
	}
	if record.DecidedAt, err = parseStoredTime(decidedAt); err != nil {
		return nil, WrapPersistenceError(err, "failed to parse decided_at")
	}
	return &record, nil
}

func (s *SQLiteCheckpointStore) RecordDecision(ctx context.Context, checkpointID string, decision ReviewDecision, reviewerID, notes string) (*CheckpointRecord, error) {
	decidedAt := now()
	query := `
	UPDATE checkpoints
	SET decision = ?, reviewer_id = ?, decision_notes = ?, decided_at = ?, status = ?
	WHERE checkpoint_id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, query,
		string(decision),
		reviewerID,
		notes,
		decidedAt.Format(time.RFC3339Nano),
		string(CheckpointStatusDecided),
		checkpointID,
		string(CheckpointStatusPending),
	)
	if err != nil {
		return nil, WrapPersistenceError(err, "failed to record decision")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, WrapPersistenceError(err, "failed to record decision")
	}
	if affected == 0 {
		// Either the checkpoint does not exist or it is already decided.
		record, err := s.Get(ctx, checkpointID)
		if err != nil {
			return nil, err
		}
		if record.Status != CheckpointStatusPending {
			return nil, NewPipelineError(ErrorTypeAlreadyDecided, "checkpoint already decided: "+checkpointID)
		}
		return nil, NewPipelineError(ErrorTypePersistence, "failed to record decision for checkpoint "+checkpointID)
	}
	return s.Get(ctx, checkpointID)
}

func (s *SQLiteCheckpointStore) ListPending(ctx context.Context) ([]*PendingReview, error) {
	query := `
	SELECT checkpoint_id, invoice_id, vendor_name, amount, currency, created_at,
		reason_for_hold, review_reference
	FROM checkpoints
	WHERE status = ?
	ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, string(CheckpointStatusPending))
	if err != nil {
		return nil, WrapPersistenceError(err, "failed to list pending checkpoints")
	}
	defer rows.Close()

	var pending []*PendingReview
	for rows.Next() {
		var review PendingReview
		var createdAt string
		if err := rows.Scan(
			&review.CheckpointID,
			&review.InvoiceID,
			&review.VendorName,
			&review.Amount,
			&review.Currency,
			&createdAt,
			&review.Reason,
			&review.ReviewRef,
		); err != nil {
			return nil, WrapPersistenceError(err, "failed to scan pending checkpoint")
		}
		if review.CreatedAt, err = parseStoredTime(createdAt); err != nil {
			return nil, WrapPersistenceError(err, "failed to parse created_at")
		}
		pending = append(pending, &review)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapPersistenceError(err, "failed to list pending checkpoints")
	}
	return pending, nil
}

func (s *SQLiteCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE checkpoint_id = ?`, checkpointID)
	if err != nil {
		return WrapPersistenceError(err, "failed to delete checkpoint")
	}
	return nil
}

// parseStoredTime parses an RFC3339 column value; the empty string maps to
// the zero time.
func parseStoredTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
