package payflow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestRecord builds a pending checkpoint record whose snapshot carries a
// populated Document, so store tests exercise the full round trip.
func newTestRecord(t *testing.T) *CheckpointRecord {
	t.Helper()
	doc, err := NewDocument(testInvoice(5000))
	require.NoError(t, err)
	doc.Outputs.Match = &MatchOutput{Score: 0.88, Result: MatchResultFailed}
	doc.appendLog(StageMatch, "match_computed", map[string]any{"match_score": 0.88})

	snapshot, err := doc.Clone()
	require.NoError(t, err)
	return &CheckpointRecord{
		CheckpointID: NewCheckpointID(),
		WorkflowID:   doc.WorkflowID,
		InvoiceID:    doc.Invoice.InvoiceID,
		VendorName:   doc.Invoice.VendorName,
		Amount:       doc.Invoice.Amount,
		Currency:     doc.Invoice.Currency,
		Snapshot:     snapshot,
		Reason:       "match score 0.88 below threshold 0.90",
		ReviewRef:    NewReviewReference(),
		Status:       CheckpointStatusPending,
		CreatedAt:    now(),
	}
}

// runCheckpointStoreTests exercises the CheckpointStore contract against any
// implementation.
func runCheckpointStoreTests(t *testing.T, newStore func(t *testing.T) CheckpointStore) {
	ctx := context.Background()

	t.Run("save and get round trip", func(t *testing.T) {
		store := newStore(t)
		record := newTestRecord(t)
		require.NoError(t, store.Save(ctx, record))

		got, err := store.Get(ctx, record.CheckpointID)
		require.NoError(t, err)
		require.Equal(t, record.CheckpointID, got.CheckpointID)
		require.Equal(t, record.WorkflowID, got.WorkflowID)
		require.Equal(t, record.Reason, got.Reason)
		require.Equal(t, record.ReviewRef, got.ReviewRef)
		require.Equal(t, CheckpointStatusPending, got.Status)
		require.True(t, record.CreatedAt.Equal(got.CreatedAt))
		require.True(t, got.DecidedAt.IsZero())

		// The snapshot Document survives intact.
		require.Equal(t, record.Snapshot.WorkflowID, got.Snapshot.WorkflowID)
		require.Equal(t, record.Snapshot.Invoice, got.Snapshot.Invoice)
		require.NotNil(t, got.Snapshot.Outputs.Match)
		require.Equal(t, 0.88, got.Snapshot.Outputs.Match.Score)
		require.Len(t, got.Snapshot.ExecutionLog, 1)
	})

	t.Run("duplicate save is an error", func(t *testing.T) {
		store := newStore(t)
		record := newTestRecord(t)
		require.NoError(t, store.Save(ctx, record))
		require.Error(t, store.Save(ctx, record))
	})

	t.Run("get unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "chk_missing")
		require.Error(t, err)
		require.True(t, IsNotFound(err))
	})

	t.Run("record decision exactly once", func(t *testing.T) {
		store := newStore(t)
		record := newTestRecord(t)
		require.NoError(t, store.Save(ctx, record))

		decided, err := store.RecordDecision(ctx, record.CheckpointID,
			ReviewDecisionAccept, "reviewer_007", "verified")
		require.NoError(t, err)
		require.Equal(t, CheckpointStatusDecided, decided.Status)
		require.Equal(t, ReviewDecisionAccept, decided.Decision)
		require.Equal(t, "reviewer_007", decided.ReviewerID)
		require.Equal(t, "verified", decided.DecisionNotes)
		require.False(t, decided.DecidedAt.IsZero())

		_, err = store.RecordDecision(ctx, record.CheckpointID,
			ReviewDecisionReject, "reviewer_008", "changed my mind")
		require.Error(t, err)
		require.True(t, IsAlreadyDecided(err))

		// The losing submission changed nothing.
		got, err := store.Get(ctx, record.CheckpointID)
		require.NoError(t, err)
		require.Equal(t, ReviewDecisionAccept, got.Decision)
		require.Equal(t, "reviewer_007", got.ReviewerID)
	})

	t.Run("record decision for unknown id", func(t *testing.T) {
		store := newStore(t)
		_, err := store.RecordDecision(ctx, "chk_missing", ReviewDecisionAccept, "reviewer_007", "")
		require.Error(t, err)
		require.True(t, IsNotFound(err))
	})

	t.Run("list pending excludes decided records", func(t *testing.T) {
		store := newStore(t)
		first := newTestRecord(t)
		require.NoError(t, store.Save(ctx, first))
		time.Sleep(2 * time.Millisecond)
		second := newTestRecord(t)
		require.NoError(t, store.Save(ctx, second))

		pending, err := store.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		require.Equal(t, first.CheckpointID, pending[0].CheckpointID)
		require.Equal(t, second.CheckpointID, pending[1].CheckpointID)

		_, err = store.RecordDecision(ctx, first.CheckpointID, ReviewDecisionAccept, "reviewer_007", "")
		require.NoError(t, err)

		pending, err = store.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, second.CheckpointID, pending[0].CheckpointID)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := newStore(t)
		record := newTestRecord(t)
		require.NoError(t, store.Save(ctx, record))
		require.NoError(t, store.Delete(ctx, record.CheckpointID))
		require.NoError(t, store.Delete(ctx, record.CheckpointID))

		_, err := store.Get(ctx, record.CheckpointID)
		require.True(t, IsNotFound(err))
	})
}

func TestMemoryCheckpointStore(t *testing.T) {
	runCheckpointStoreTests(t, func(t *testing.T) CheckpointStore {
		return NewMemoryCheckpointStore()
	})

	t.Run("records do not alias caller memory", func(t *testing.T) {
		store := NewMemoryCheckpointStore()
		record := newTestRecord(t)
		require.NoError(t, store.Save(context.Background(), record))

		record.Reason = "mutated after save"
		got, err := store.Get(context.Background(), record.CheckpointID)
		require.NoError(t, err)
		require.Equal(t, "match score 0.88 below threshold 0.90", got.Reason)
	})
}

func TestSQLiteCheckpointStore(t *testing.T) {
	runCheckpointStoreTests(t, func(t *testing.T) CheckpointStore {
		store, err := OpenSQLiteCheckpointStore(filepath.Join(t.TempDir(), "payflow.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	})

	t.Run("records survive reopening the database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "payflow.db")

		store, err := OpenSQLiteCheckpointStore(path)
		require.NoError(t, err)
		record := newTestRecord(t)
		require.NoError(t, store.Save(context.Background(), record))
		require.NoError(t, store.Close())

		reopened, err := OpenSQLiteCheckpointStore(path)
		require.NoError(t, err)
		defer reopened.Close()

		got, err := reopened.Get(context.Background(), record.CheckpointID)
		require.NoError(t, err)
		require.Equal(t, record.CheckpointID, got.CheckpointID)
		require.Equal(t, record.Snapshot.WorkflowID, got.Snapshot.WorkflowID)
	})
}
