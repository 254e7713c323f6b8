package payflow

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// RunStatus reports how a run invocation ended.
type RunStatus string

const (
	// RunStatusCompleted means the Document reached the terminal stage.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusPaused means the graph suspended at the decision point. The
	// workflow continues only through a later Resume call.
	RunStatusPaused RunStatus = "paused"
)

// RunResult is the outcome of Run or Resume. Document is populated only for
// a completed run; CheckpointID, ReviewRef and Reason only for a paused one.
type RunResult struct {
	Status       RunStatus
	Document     Document
	CheckpointID string
	ReviewRef    string
	Reason       string
}

// Completed reports whether the run reached the terminal stage.
func (r RunResult) Completed() bool {
	return r.Status == RunStatusCompleted
}

// Paused reports whether the run suspended for an external decision.
func (r RunResult) Paused() bool {
	return r.Status == RunStatusPaused
}

// EngineOptions configures a new Engine. Zero fields get working defaults:
// DefaultConfig, the static resolver, the built-in enrichment services, an
// in-memory checkpoint store, a null audit sink, and a discard logger.
type EngineOptions struct {
	Config    *Config
	Resolver  CapabilityResolver
	Services  Services
	Store     CheckpointStore
	AuditSink AuditSink
	Logger    *slog.Logger
}

// Engine drives Stage execution in pipeline order, evaluates routing
// decisions, and suspends at the decision-wait point by returning a paused
// result instead of blocking. One Engine may process many workflow instances
// concurrently; the checkpoint store and audit sink are the only shared
// mutable state.
type Engine struct {
	config   *Config
	resolver CapabilityResolver
	services Services
	store    CheckpointStore
	sink     AuditSink
	logger   *slog.Logger
	stages   []Stage
}

// NewEngine creates an Engine from the given options.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Config == nil {
		opts.Config = DefaultConfig()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Resolver == nil {
		opts.Resolver = NewStaticResolver(opts.Config.DefaultTools)
	}
	if opts.Store == nil {
		opts.Store = NewMemoryCheckpointStore()
	}
	if opts.AuditSink == nil {
		opts.AuditSink = NewNullAuditSink()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := &Engine{
		config:   opts.Config,
		resolver: opts.Resolver,
		services: opts.Services.withDefaults(),
		store:    opts.Store,
		sink:     opts.AuditSink,
		logger:   opts.Logger,
	}
	e.stages = e.buildStages()
	return e, nil
}

// NewDocument validates the invoice and returns a fresh Document ready to
// run from the intake stage.
func (e *Engine) NewDocument(invoice Invoice) (Document, error) {
	doc, err := NewDocument(invoice)
	if err != nil {
		return Document{}, err
	}
	e.logger.Info("created workflow document",
		"workflow_id", doc.WorkflowID,
		"invoice_id", invoice.InvoiceID)
	return doc, nil
}

// Run executes stages in order until the Document reaches the terminal stage
// or the graph suspends for an external decision. Suspension is a normal
// return with a paused result; no goroutine is parked waiting.
func (e *Engine) Run(ctx context.Context, doc Document) (RunResult, error) {
	return e.run(ctx, doc, nil)
}

// Resume records a reviewer decision for a pending checkpoint and re-enters
// the pipeline with the restored Document. An unknown checkpoint id yields a
// not_found error and a repeated decision an already_decided error; neither
// mutates store state. An accepted decision continues through reconciliation;
// a rejected one bypasses the productive tail and completes with the
// downstream stages reporting "not performed".
func (e *Engine) Resume(ctx context.Context, checkpointID string, decision ReviewDecision, reviewerID, notes string) (RunResult, error) {
	if !decision.Valid() {
		return RunResult{}, NewValidationError("decision must be ACCEPT or REJECT, got %q", decision)
	}
	if strings.TrimSpace(reviewerID) == "" {
		return RunResult{}, NewValidationError("reviewer_id is required")
	}

	record, err := e.store.RecordDecision(ctx, checkpointID, decision, reviewerID, notes)
	if err != nil {
		return RunResult{}, err
	}

	e.logger.Info("resuming workflow from checkpoint",
		"workflow_id", record.WorkflowID,
		"checkpoint_id", checkpointID,
		"decision", string(decision),
		"reviewer_id", reviewerID)

	pending := &DecisionOutput{
		Decision:   record.Decision,
		ReviewerID: record.ReviewerID,
		Notes:      record.DecisionNotes,
		DecidedAt:  record.DecidedAt,
	}
	return e.run(ctx, record.Snapshot, pending)
}

// ListPending returns summaries of all checkpoints awaiting a decision.
func (e *Engine) ListPending(ctx context.Context) ([]*PendingReview, error) {
	return e.store.ListPending(ctx)
}

// GetCheckpoint returns the full checkpoint record for an id.
func (e *Engine) GetCheckpoint(ctx context.Context, checkpointID string) (*CheckpointRecord, error) {
	return e.store.Get(ctx, checkpointID)
}

// run is the graph driver. Stages whose outputs are already populated skip,
// so re-entering from a restored snapshot naturally continues at the first
// unfinished stage instead of recomputing prior work.
func (e *Engine) run(ctx context.Context, doc Document, pending *DecisionOutput) (RunResult, error) {
	if err := ctx.Err(); err != nil {
		return RunResult{}, err
	}

	for _, stage := range e.stages {
		if stage.Name == StageDecision {
			// The decision-wait stage is the only suspension point and is
			// driven by the engine: it either records a decision supplied by
			// Resume or hands control back to the caller.
			if RouteDecisionWait(doc) == WaitRouteSkip || doc.Outputs.Decision != nil {
				continue
			}
			if pending == nil {
				cp := doc.Outputs.Checkpoint
				e.logger.Info("workflow suspended for review",
					"workflow_id", doc.WorkflowID,
					"checkpoint_id", cp.CheckpointID,
					"reason", cp.Reason)
				return RunResult{
					Status:       RunStatusPaused,
					CheckpointID: cp.CheckpointID,
					ReviewRef:    cp.ReviewRef,
					Reason:       cp.Reason,
				}, nil
			}
			before := len(doc.ExecutionLog)
			doc.Outputs.Decision = pending
			doc.appendLog(StageDecision, "decision_recorded", map[string]any{
				"decision":    string(pending.Decision),
				"reviewer_id": pending.ReviewerID,
			})
			doc.CurrentStage = StageDecision
			e.forwardAudit(ctx, doc, before)
			pending = nil
			continue
		}

		before := len(doc.ExecutionLog)
		updated, ran, err := stage.run(ctx, doc)
		if err != nil {
			e.logger.Error("stage failed",
				"workflow_id", doc.WorkflowID,
				"stage", stage.Name,
				"error", err)
			return RunResult{}, err
		}
		doc = updated
		if ran {
			doc.CurrentStage = stage.Name
			e.forwardAudit(ctx, doc, before)
			e.logger.Debug("stage executed",
				"workflow_id", doc.WorkflowID,
				"stage", stage.Name)
		}
	}

	e.logger.Info("workflow completed",
		"workflow_id", doc.WorkflowID,
		"invoice_id", doc.Invoice.InvoiceID,
		"stages_executed", len(doc.ExecutionLog))
	return RunResult{Status: RunStatusCompleted, Document: doc}, nil
}

// forwardAudit sends log entries appended since the given index to the audit
// sink, preserving append order. Sink failures are logged and otherwise
// ignored; the Document's execution log remains authoritative.
func (e *Engine) forwardAudit(ctx context.Context, doc Document, from int) {
	for _, entry := range doc.ExecutionLog[from:] {
		if err := e.sink.Record(ctx, doc.WorkflowID, entry); err != nil {
			e.logger.Warn("failed to forward audit entry",
				"workflow_id", doc.WorkflowID,
				"stage", entry.Stage,
				"error", err)
		}
	}
}
