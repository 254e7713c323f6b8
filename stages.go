package payflow

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/deepnoodle-ai/payflow/retry"
)

// buildStages assembles the pipeline in execution order. Every stage's
// precondition includes "own output slot is nil", so a restored snapshot
// re-entering the loop skips everything already done. The decision stage has
// no Run function here; the engine drives it directly.
func (e *Engine) buildStages() []Stage {
	return []Stage{
		{
			Name:  StageIntake,
			Ready: func(doc Document) bool { return doc.Outputs.Intake == nil },
			Run:   e.runIntake,
		},
		{
			Name:  StageUnderstand,
			Ready: func(doc Document) bool { return doc.Outputs.Understand == nil },
			Run:   e.runUnderstand,
		},
		{
			Name:  StagePrepare,
			Ready: func(doc Document) bool { return doc.Outputs.Prepare == nil },
			Run:   e.runPrepare,
		},
		{
			Name:  StageRetrieve,
			Ready: func(doc Document) bool { return doc.Outputs.Retrieve == nil },
			Run:   e.runRetrieve,
		},
		{
			Name:  StageMatch,
			Ready: func(doc Document) bool { return doc.Outputs.Match == nil },
			Run:   e.runMatch,
		},
		{
			Name: StageCheckpoint,
			Ready: func(doc Document) bool {
				return doc.Outputs.Checkpoint == nil && RouteAfterMatch(doc) == MatchRouteCheckpoint
			},
			Run: e.runCheckpoint,
		},
		{
			Name: StageDecision,
		},
		{
			Name: StageReconcile,
			Ready: func(doc Document) bool {
				return doc.Outputs.Reconcile == nil && RouteReconcile(doc) == ReconcileRouteRun
			},
			Run: e.runReconcile,
		},
		{
			Name: StageApprove,
			Ready: func(doc Document) bool {
				return doc.Outputs.Approve == nil && doc.Outputs.Reconcile != nil
			},
			Run: e.runApprove,
		},
		{
			Name: StagePost,
			Ready: func(doc Document) bool {
				return doc.Outputs.Posting == nil && doc.Outputs.Approve != nil
			},
			Run: e.runPost,
		},
		{
			Name: StageNotify,
			Ready: func(doc Document) bool {
				return doc.Outputs.Notify == nil && doc.Outputs.Posting != nil
			},
			Run: e.runNotify,
		},
		{
			Name:  StageComplete,
			Ready: func(doc Document) bool { return doc.Outputs.Complete == nil },
			Run:   e.runComplete,
		},
	}
}

// runIntake accepts the raw invoice, assigns a storage id, and marks it
// validated. Structural validation already happened at Document creation.
func (e *Engine) runIntake(ctx context.Context, doc Document) (Document, error) {
	tool := doc.selectTool("intake_storage", e.resolver.Resolve(CapabilityStorage, nil))
	out := &IntakeOutput{
		RawID:      newPrefixedID("raw"),
		IngestedAt: now(),
		Validated:  true,
	}
	doc.Outputs.Intake = out
	doc.appendLog(StageIntake, "invoice_validated", map[string]any{
		"raw_id":       out.RawID,
		"invoice_id":   doc.Invoice.InvoiceID,
		"storage_tool": tool,
	})
	return doc, nil
}

// runUnderstand renders the invoice to text and extracts structured fields.
// Extraction failure degrades to an empty result and the stage continues.
func (e *Engine) runUnderstand(ctx context.Context, doc Document) (Document, error) {
	tool := doc.selectTool("understand_ocr", e.resolver.Resolve(CapabilityTextExtraction, nil))

	text := renderInvoiceText(doc.Invoice)
	extracted, err := e.services.Extractor.ExtractInvoice(ctx, text)
	degraded := false
	if err != nil {
		e.logger.Warn("text extraction failed, continuing with empty result",
			"workflow_id", doc.WorkflowID, "error", err)
		extracted = ExtractionResult{}
		degraded = true
	}

	doc.Outputs.Understand = &UnderstandOutput{
		Parsed: ParsedInvoice{
			Text:        text,
			LineItems:   append([]LineItem(nil), doc.Invoice.LineItems...),
			DetectedPOs: extracted.POReferences,
			Currency:    doc.Invoice.Currency,
			Dates: ParsedDates{
				InvoiceDate: doc.Invoice.InvoiceDate,
				DueDate:     doc.Invoice.DueDate,
			},
		},
	}
	details := map[string]any{
		"line_items":      len(doc.Invoice.LineItems),
		"detected_pos":    len(extracted.POReferences),
		"extraction_tool": tool,
	}
	if degraded {
		details["degraded"] = true
	}
	doc.appendLog(StageUnderstand, "invoice_parsed", details)
	return doc, nil
}

// runPrepare normalizes the vendor identity and computes data quality flags.
// Normalization failure degrades to the unchanged vendor name.
func (e *Engine) runPrepare(ctx context.Context, doc Document) (Document, error) {
	tool := doc.selectTool("prepare_enrichment", e.resolver.Resolve(CapabilityEnrichment, nil))

	name, err := e.services.Normalizer.NormalizeVendor(ctx, doc.Invoice.VendorName)
	degraded := false
	if err != nil || name == "" {
		if err != nil {
			e.logger.Warn("vendor normalization failed, keeping original name",
				"workflow_id", doc.WorkflowID, "error", err)
		}
		name = doc.Invoice.VendorName
		degraded = true
	}

	var missing []string
	if doc.Invoice.VendorTaxID == "" {
		missing = append(missing, "vendor_tax_id")
	}
	if len(doc.Invoice.LineItems) == 0 {
		missing = append(missing, "line_items")
	}

	doc.Outputs.Prepare = &PrepareOutput{
		Vendor: VendorProfile{
			NormalizedName: name,
			TaxID:          doc.Invoice.VendorTaxID,
			Enrichment: &EnrichmentMeta{
				Source:     tool,
				Confidence: 0.95,
				EnrichedAt: now(),
			},
		},
		Normalized: NormalizedInvoice{
			Amount:    doc.Invoice.Amount,
			Currency:  doc.Invoice.Currency,
			LineItems: append([]LineItem(nil), doc.Invoice.LineItems...),
		},
		Flags: Flags{
			MissingInfo: missing,
			RiskScore:   0.1 + 0.2*float64(len(missing)),
		},
	}
	details := map[string]any{
		"normalized_name": name,
		"enrichment_tool": tool,
	}
	if degraded {
		details["degraded"] = true
	}
	doc.appendLog(StagePrepare, "vendor_enriched", details)
	return doc, nil
}

// runRetrieve fetches purchase orders and receipts from the ERP connector.
// Fetch failures degrade to empty lists; the match stage then scores zero.
func (e *Engine) runRetrieve(ctx context.Context, doc Document) (Document, error) {
	tool := doc.selectTool("retrieve_erp", e.resolver.Resolve(CapabilityERPConnector, nil))

	degraded := false
	orders, err := e.services.ERP.FetchPurchaseOrders(ctx, doc.Invoice)
	if err != nil {
		e.logger.Warn("purchase order fetch failed, continuing without POs",
			"workflow_id", doc.WorkflowID, "error", err)
		orders = nil
		degraded = true
	}

	var receipts []GoodsReceivedNote
	if len(orders) > 0 {
		receipts, err = e.services.ERP.FetchReceipts(ctx, orders)
		if err != nil {
			e.logger.Warn("receipt fetch failed, continuing without GRNs",
				"workflow_id", doc.WorkflowID, "error", err)
			receipts = nil
			degraded = true
		}
	}

	doc.Outputs.Retrieve = &RetrieveOutput{
		PurchaseOrders: orders,
		Receipts:       receipts,
		History:        []string{},
	}
	details := map[string]any{
		"pos":      len(orders),
		"grns":     len(receipts),
		"erp_tool": tool,
	}
	if degraded {
		details["degraded"] = true
	}
	doc.appendLog(StageRetrieve, "po_grn_fetched", details)
	return doc, nil
}

// runMatch scores the invoice against the first retrieved purchase order and
// classifies the result against the configured threshold. Scorer failure
// degrades to a zero score, which always classifies as FAILED.
func (e *Engine) runMatch(ctx context.Context, doc Document) (Document, error) {
	var po PurchaseOrder
	if len(doc.Outputs.Retrieve.PurchaseOrders) > 0 {
		po = doc.Outputs.Retrieve.PurchaseOrders[0]
	}

	degraded := false
	score, err := e.services.Scorer.ScoreMatch(ctx, doc.Outputs.Prepare.Normalized, po)
	if err != nil {
		e.logger.Warn("match scoring failed, degrading to zero score",
			"workflow_id", doc.WorkflowID, "error", err)
		score = 0
		degraded = true
	}
	score = math.Max(0, math.Min(1, score))

	result := MatchResultFailed
	if score >= e.config.MatchThreshold {
		result = MatchResultMatched
	}

	tolerance := e.config.amountToleranceFor(doc.Invoice.Amount)
	doc.Outputs.Match = &MatchOutput{
		Score:           score,
		Result:          result,
		AmountTolerance: tolerance,
		Evidence: MatchEvidence{
			AmountMatch: po.POID != "" && math.Abs(doc.Invoice.Amount-po.Amount) <= tolerance,
			POMatch:     po.POID != "",
			VendorMatch: po.POID != "" && (po.VendorID == "" || po.VendorID == doc.Invoice.VendorTaxID),
		},
	}
	details := map[string]any{
		"match_score":  score,
		"match_result": string(result),
	}
	if degraded {
		details["degraded"] = true
	}
	doc.appendLog(StageMatch, "match_computed", details)
	return doc, nil
}

// runCheckpoint snapshots the Document and persists a pending review record.
// The checkpoint output and its log entry are part of the snapshot, so the
// resumed Document does not create a second checkpoint. A persistence failure
// here is fatal to the run: a workflow must never look suspended without a
// durable record backing it.
func (e *Engine) runCheckpoint(ctx context.Context, doc Document) (Document, error) {
	tool := doc.selectTool("checkpoint_db", e.resolver.Resolve(CapabilityDatabase, nil))

	out := &CheckpointOutput{
		CheckpointID: NewCheckpointID(),
		ReviewRef:    NewReviewReference(),
		Reason: fmt.Sprintf("match score %.2f below threshold %.2f",
			doc.Outputs.Match.Score, e.config.MatchThreshold),
	}
	doc.Outputs.Checkpoint = out
	doc.appendLog(StageCheckpoint, "checkpoint_created", map[string]any{
		"checkpoint_id":    out.CheckpointID,
		"review_reference": out.ReviewRef,
		"db_tool":          tool,
	})

	snapshot, err := doc.Clone()
	if err != nil {
		return doc, WrapPersistenceError(err, "failed to snapshot document")
	}
	record := &CheckpointRecord{
		CheckpointID: out.CheckpointID,
		WorkflowID:   doc.WorkflowID,
		InvoiceID:    doc.Invoice.InvoiceID,
		VendorName:   doc.VendorName(),
		Amount:       doc.Invoice.Amount,
		Currency:     doc.Invoice.Currency,
		Snapshot:     snapshot,
		Reason:       out.Reason,
		ReviewRef:    out.ReviewRef,
		Status:       CheckpointStatusPending,
		CreatedAt:    now(),
	}
	// A busy store gets a few attempts before the run fails.
	saveErr := retry.Do(ctx, 3, 50*time.Millisecond, func() error {
		return e.store.Save(ctx, record)
	})
	if saveErr != nil {
		return doc, fmt.Errorf("failed to persist checkpoint %s: %w", out.CheckpointID, saveErr)
	}

	e.logger.Info("checkpoint persisted",
		"workflow_id", doc.WorkflowID,
		"checkpoint_id", out.CheckpointID,
		"invoice_id", doc.Invoice.InvoiceID)
	return doc, nil
}

// runReconcile generates accounting entries and verifies they balance.
// Generation failure or an empty result degrades to the default AP/expense
// pair so the report is always populated.
func (e *Engine) runReconcile(ctx context.Context, doc Document) (Document, error) {
	vendorName := doc.VendorName()

	degraded := false
	entries, err := e.services.Entries.GenerateEntries(ctx, doc.Invoice, vendorName)
	if err != nil || len(entries) == 0 {
		if err != nil {
			e.logger.Warn("entry generation failed, using default entries",
				"workflow_id", doc.WorkflowID, "error", err)
			degraded = true
		}
		entries = defaultEntries(doc.Invoice, vendorName)
	}

	var debits, credits float64
	for _, entry := range entries {
		debits += entry.Debit
		credits += entry.Credit
	}
	balanced := math.Abs(debits-credits) < 0.01

	doc.Outputs.Reconcile = &ReconcileOutput{
		Entries: entries,
		Report: ReconciliationReport{
			TotalDebits:  debits,
			TotalCredits: credits,
			Balanced:     balanced,
			EntryCount:   len(entries),
		},
	}
	details := map[string]any{
		"entries":  len(entries),
		"balanced": balanced,
	}
	if degraded {
		details["degraded"] = true
	}
	doc.appendLog(StageReconcile, "entries_created", details)
	return doc, nil
}

// runApprove applies the approval policy: at or below the ceiling the system
// auto-approves, above it the invoice escalates to a manager.
func (e *Engine) runApprove(ctx context.Context, doc Document) (Document, error) {
	status := ApprovalStatusEscalated
	approver := "manager_001"
	if doc.Invoice.Amount <= e.config.AutoApprovalCeiling {
		status = ApprovalStatusAutoApproved
		approver = "system"
	}

	doc.Outputs.Approve = &ApproveOutput{
		Status:     status,
		ApproverID: approver,
	}
	doc.appendLog(StageApprove, "approval_determined", map[string]any{
		"approval_status": string(status),
		"amount":          doc.Invoice.Amount,
	})
	return doc, nil
}

// runPost posts the invoice to the ERP system and schedules payment.
func (e *Engine) runPost(ctx context.Context, doc Document) (Document, error) {
	tool := doc.selectTool("posting_erp", e.resolver.Resolve(CapabilityERPConnector, nil))

	doc.Outputs.Posting = &PostingOutput{
		Posted:           true,
		ERPTransactionID: newPrefixedID("txn"),
		PaymentID:        newPrefixedID("pay"),
	}
	doc.appendLog(StagePost, "posted_to_erp", map[string]any{
		"erp_txn_id":           doc.Outputs.Posting.ERPTransactionID,
		"scheduled_payment_id": doc.Outputs.Posting.PaymentID,
		"erp_tool":             tool,
	})
	return doc, nil
}

// runNotify records the vendor and finance notifications.
func (e *Engine) runNotify(ctx context.Context, doc Document) (Document, error) {
	tool := doc.selectTool("notify_email", e.resolver.Resolve(CapabilityEmail, nil))

	parties := []string{doc.VendorName(), "finance_team"}
	doc.Outputs.Notify = &NotifyOutput{
		VendorEmailed:   true,
		FinanceNotified: true,
		Parties:         parties,
	}
	doc.appendLog(StageNotify, "notifications_sent", map[string]any{
		"parties":    len(parties),
		"email_tool": tool,
	})
	return doc, nil
}

// runComplete assembles the final payload. The audit log copy is taken before
// this stage's own log entry, recording the log as it stood when the last
// productive stage finished. When posting was bypassed the transaction id is
// "N/A" and the entry list is empty.
func (e *Engine) runComplete(ctx context.Context, doc Document) (Document, error) {
	tool := doc.selectTool("complete_db", e.resolver.Resolve(CapabilityDatabase, nil))

	erpTxnID := "N/A"
	if doc.Outputs.Posting != nil {
		erpTxnID = doc.Outputs.Posting.ERPTransactionID
	}
	entries := []AccountingEntry{}
	if doc.Outputs.Reconcile != nil {
		entries = append(entries, doc.Outputs.Reconcile.Entries...)
	}

	auditCopy := append([]AuditLogEntry(nil), doc.ExecutionLog...)
	doc.Outputs.Complete = &CompleteOutput{
		Final: FinalPayload{
			InvoiceID:        doc.Invoice.InvoiceID,
			VendorName:       doc.VendorName(),
			Amount:           doc.Invoice.Amount,
			Currency:         doc.Invoice.Currency,
			Status:           "COMPLETE",
			ERPTransactionID: erpTxnID,
			PostedAt:         now(),
			Entries:          entries,
		},
		AuditLog: auditCopy,
	}
	doc.appendLog(StageComplete, "workflow_completed", map[string]any{
		"invoice_id": doc.Invoice.InvoiceID,
		"erp_txn_id": erpTxnID,
		"db_tool":    tool,
	})
	return doc, nil
}

// renderInvoiceText produces the plain-text rendering the extraction service
// consumes, standing in for the scanned document a real pipeline would OCR.
func renderInvoiceText(invoice Invoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INVOICE %s\n", invoice.InvoiceID)
	fmt.Fprintf(&b, "Vendor: %s\n", invoice.VendorName)
	if invoice.InvoiceDate != "" {
		fmt.Fprintf(&b, "Date: %s\n", invoice.InvoiceDate)
	}
	if invoice.DueDate != "" {
		fmt.Fprintf(&b, "Due: %s\n", invoice.DueDate)
	}
	for _, item := range invoice.LineItems {
		fmt.Fprintf(&b, "%s x%.0f @ %.2f = %.2f\n",
			item.Description, item.Quantity, item.UnitPrice, item.Total)
	}
	fmt.Fprintf(&b, "Reference: PO-%s\n", invoice.InvoiceID)
	fmt.Fprintf(&b, "Total: %.2f %s\n", invoice.Amount, invoice.Currency)
	return b.String()
}
