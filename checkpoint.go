package payflow

import (
	"time"

	"github.com/google/uuid"
	"go.jetify.com/typeid"
)

// CheckpointStatus is the lifecycle state of a checkpoint record. The only
// transition is PENDING -> DECIDED; DECIDED is terminal for the record (the
// workflow itself continues via Engine.Resume).
type CheckpointStatus string

const (
	CheckpointStatusPending CheckpointStatus = "PENDING"
	CheckpointStatusDecided CheckpointStatus = "DECIDED"
)

// NewCheckpointID returns a new prefixed unique id for a checkpoint record.
func NewCheckpointID() string {
	id, err := typeid.WithPrefix("chk")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// NewReviewReference returns an opaque reference a reviewer uses to locate a
// suspended workflow.
func NewReviewReference() string {
	return uuid.NewString()
}

// CheckpointRecord is the durable snapshot persisted when a workflow
// suspends for review. Snapshot is a deep copy of the Document at the moment
// of suspension, sufficient to resume without recomputing prior stages. The
// decision fields are unset until a decision is submitted, then set exactly
// once.
type CheckpointRecord struct {
	CheckpointID  string           `json:"checkpoint_id"`
	WorkflowID    string           `json:"workflow_id"`
	InvoiceID     string           `json:"invoice_id"`
	VendorName    string           `json:"vendor_name"`
	Amount        float64          `json:"amount"`
	Currency      string           `json:"currency"`
	Snapshot      Document         `json:"state_blob"`
	Reason        string           `json:"reason_for_hold"`
	ReviewRef     string           `json:"review_reference"`
	Status        CheckpointStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	Decision      ReviewDecision   `json:"decision,omitempty"`
	ReviewerID    string           `json:"reviewer_id,omitempty"`
	DecisionNotes string           `json:"decision_notes,omitempty"`
	DecidedAt     time.Time        `json:"decided_at,omitzero"`
}

// Summary returns the review-queue view of the record.
func (r *CheckpointRecord) Summary() *PendingReview {
	return &PendingReview{
		CheckpointID: r.CheckpointID,
		InvoiceID:    r.InvoiceID,
		VendorName:   r.VendorName,
		Amount:       r.Amount,
		Currency:     r.Currency,
		CreatedAt:    r.CreatedAt,
		Reason:       r.Reason,
		ReviewRef:    r.ReviewRef,
	}
}

// PendingReview is a summary of a checkpoint awaiting a decision.
type PendingReview struct {
	CheckpointID string    `json:"checkpoint_id"`
	InvoiceID    string    `json:"invoice_id"`
	VendorName   string    `json:"vendor_name"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
	Reason       string    `json:"reason_for_hold"`
	ReviewRef    string    `json:"review_reference"`
}
