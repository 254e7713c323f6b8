package payflow

import "context"

// NullAuditSink is a no-op implementation of AuditSink.
type NullAuditSink struct{}

func NewNullAuditSink() *NullAuditSink {
	return &NullAuditSink{}
}

func (s *NullAuditSink) Record(ctx context.Context, workflowID string, entry AuditLogEntry) error {
	return nil
}

func (s *NullAuditSink) History(ctx context.Context, workflowID string) ([]AuditLogEntry, error) {
	return nil, nil
}
