package payflow

import "context"

// CheckpointStore is durable keyed storage for checkpoint records. Stores
// must support concurrent independent writes keyed by distinct checkpoint
// ids, and must tolerate checkpoints that stay PENDING indefinitely.
type CheckpointStore interface {
	// Save persists a new checkpoint record. Saving an id that already
	// exists is an error.
	Save(ctx context.Context, record *CheckpointRecord) error

	// Get returns the record for a checkpoint id, or a not_found error.
	Get(ctx context.Context, checkpointID string) (*CheckpointRecord, error)

	// RecordDecision sets the decision fields exactly once, transitioning the
	// record from PENDING to DECIDED, and returns the updated record. It
	// returns a not_found error for an unknown id and an already_decided
	// error when the record is no longer pending; neither failure mutates
	// store state.
	RecordDecision(ctx context.Context, checkpointID string, decision ReviewDecision, reviewerID, notes string) (*CheckpointRecord, error)

	// ListPending returns summaries of all records still awaiting a decision.
	ListPending(ctx context.Context) ([]*PendingReview, error)

	// Delete removes a checkpoint record. Deleting an unknown id is not an
	// error.
	Delete(ctx context.Context, checkpointID string) error
}
