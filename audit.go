package payflow

import "context"

// AuditSink receives execution log entries as they are appended to a
// Document. Forwarding is fire-and-forget from the engine's perspective: a
// sink failure is logged but never aborts the workflow, and the in-memory
// execution log on the Document remains authoritative. For a given
// workflow id, entries arrive in the order they were appended.
type AuditSink interface {
	// Record stores a single execution log entry for a workflow.
	Record(ctx context.Context, workflowID string, entry AuditLogEntry) error

	// History retrieves the recorded entries for a workflow, in order.
	History(ctx context.Context, workflowID string) ([]AuditLogEntry, error)
}
