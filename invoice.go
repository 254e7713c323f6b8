package payflow

import (
	"strings"
	"time"
)

// MatchResult is the outcome of the two-way invoice/PO comparison.
type MatchResult string

const (
	MatchResultMatched MatchResult = "MATCHED"
	MatchResultFailed  MatchResult = "FAILED"
)

// ReviewDecision is the decision a reviewer submits for a suspended workflow.
type ReviewDecision string

const (
	ReviewDecisionAccept ReviewDecision = "ACCEPT"
	ReviewDecisionReject ReviewDecision = "REJECT"
)

// Valid reports whether d is one of the recognized decision values.
func (d ReviewDecision) Valid() bool {
	return d == ReviewDecisionAccept || d == ReviewDecisionReject
}

// ApprovalStatus is the outcome of the approval policy check.
type ApprovalStatus string

const (
	ApprovalStatusAutoApproved ApprovalStatus = "AUTO_APPROVED"
	ApprovalStatusEscalated    ApprovalStatus = "ESCALATED"
)

// LineItem is a single invoice line.
type LineItem struct {
	Description string  `json:"desc"`
	Quantity    float64 `json:"qty"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// Invoice is the immutable business payload a workflow is created for.
// It is set once at Document creation and never mutated afterward.
type Invoice struct {
	InvoiceID   string     `json:"invoice_id"`
	VendorName  string     `json:"vendor_name"`
	VendorTaxID string     `json:"vendor_tax_id,omitempty"`
	InvoiceDate string     `json:"invoice_date,omitempty"`
	DueDate     string     `json:"due_date,omitempty"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	LineItems   []LineItem `json:"line_items"`
	Attachments []string   `json:"attachments,omitempty"`
}

// Validate checks the invoice for structural problems. A failed validation
// produces no Document and no log entries.
func (inv *Invoice) Validate() error {
	if strings.TrimSpace(inv.InvoiceID) == "" {
		return NewValidationError("invoice_id is required")
	}
	if strings.TrimSpace(inv.VendorName) == "" {
		return NewValidationError("vendor_name is required")
	}
	if inv.Amount <= 0 {
		return NewValidationError("amount must be positive, got %v", inv.Amount)
	}
	if strings.TrimSpace(inv.Currency) == "" {
		return NewValidationError("currency is required")
	}
	for i, item := range inv.LineItems {
		if strings.TrimSpace(item.Description) == "" {
			return NewValidationError("line item %d: desc is required", i)
		}
		if item.Quantity <= 0 {
			return NewValidationError("line item %d: qty must be positive", i)
		}
	}
	return nil
}

// IntakeOutput records acceptance of the raw invoice.
type IntakeOutput struct {
	RawID      string    `json:"raw_id"`
	IngestedAt time.Time `json:"ingested_at"`
	Validated  bool      `json:"validated"`
}

// ParsedDates holds dates recovered during extraction.
type ParsedDates struct {
	InvoiceDate string `json:"invoice_date"`
	DueDate     string `json:"due_date"`
}

// ParsedInvoice is the structured form recovered from the invoice text.
type ParsedInvoice struct {
	Text        string      `json:"invoice_text"`
	LineItems   []LineItem  `json:"parsed_line_items"`
	DetectedPOs []string    `json:"detected_pos"`
	Currency    string      `json:"currency"`
	Dates       ParsedDates `json:"parsed_dates"`
}

// UnderstandOutput is the extraction stage result.
type UnderstandOutput struct {
	Parsed ParsedInvoice `json:"parsed_invoice"`
}

// EnrichmentMeta describes where vendor enrichment data came from.
type EnrichmentMeta struct {
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	EnrichedAt time.Time `json:"enriched_at"`
}

// VendorProfile is the normalized, enriched vendor identity.
type VendorProfile struct {
	NormalizedName string          `json:"normalized_name"`
	TaxID          string          `json:"tax_id,omitempty"`
	Enrichment     *EnrichmentMeta `json:"enrichment_meta,omitempty"`
}

// NormalizedInvoice is the cleaned-up invoice used for matching.
type NormalizedInvoice struct {
	Amount    float64    `json:"amount"`
	Currency  string     `json:"currency"`
	LineItems []LineItem `json:"line_items"`
}

// Flags collects data-quality signals computed during preparation.
type Flags struct {
	MissingInfo []string `json:"missing_info"`
	RiskScore   float64  `json:"risk_score"`
}

// PrepareOutput is the vendor normalization stage result.
type PrepareOutput struct {
	Vendor     VendorProfile     `json:"vendor_profile"`
	Normalized NormalizedInvoice `json:"normalized_invoice"`
	Flags      Flags             `json:"flags"`
}

// PurchaseOrder is a PO fetched from the ERP system.
type PurchaseOrder struct {
	POID     string     `json:"po_id"`
	VendorID string     `json:"vendor_id,omitempty"`
	Amount   float64    `json:"amount"`
	Items    []LineItem `json:"items,omitempty"`
}

// GoodsReceivedNote is a receipt record associated with a PO.
type GoodsReceivedNote struct {
	GRNID        string    `json:"grn_id"`
	POID         string    `json:"po_id"`
	ReceivedQty  float64   `json:"received_qty"`
	ReceivedDate time.Time `json:"received_date"`
}

// RetrieveOutput is the ERP retrieval stage result.
type RetrieveOutput struct {
	PurchaseOrders []PurchaseOrder     `json:"matched_pos"`
	Receipts       []GoodsReceivedNote `json:"matched_grns"`
	History        []string            `json:"history"`
}

// MatchEvidence records the individual comparisons behind a match score.
type MatchEvidence struct {
	AmountMatch bool `json:"amount_match"`
	POMatch     bool `json:"po_match"`
	VendorMatch bool `json:"vendor_match"`
}

// MatchOutput is the two-way match stage result. AmountTolerance is the
// absolute tolerance (in currency units) applied to the amount comparison.
type MatchOutput struct {
	Score           float64       `json:"match_score"`
	Result          MatchResult   `json:"match_result"`
	AmountTolerance float64       `json:"amount_tolerance"`
	Evidence        MatchEvidence `json:"match_evidence"`
}

// CheckpointOutput records that the workflow was suspended for review.
type CheckpointOutput struct {
	CheckpointID string `json:"checkpoint_id"`
	ReviewRef    string `json:"review_reference"`
	Reason       string `json:"paused_reason"`
}

// DecisionOutput records the reviewer decision that resumed the workflow.
type DecisionOutput struct {
	Decision   ReviewDecision `json:"decision"`
	ReviewerID string         `json:"reviewer_id"`
	Notes      string         `json:"notes,omitempty"`
	DecidedAt  time.Time      `json:"decided_at"`
}

// AccountingEntry is one side of a double-entry posting.
type AccountingEntry struct {
	AccountCode string  `json:"account_code"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Description string  `json:"description"`
}

// ReconciliationReport summarizes generated accounting entries.
type ReconciliationReport struct {
	TotalDebits  float64 `json:"total_debits"`
	TotalCredits float64 `json:"total_credits"`
	Balanced     bool    `json:"balanced"`
	EntryCount   int     `json:"entries_count"`
}

// ReconcileOutput is the accounting reconciliation stage result.
type ReconcileOutput struct {
	Entries []AccountingEntry    `json:"accounting_entries"`
	Report  ReconciliationReport `json:"reconciliation_report"`
}

// ApproveOutput is the approval policy stage result.
type ApproveOutput struct {
	Status     ApprovalStatus `json:"approval_status"`
	ApproverID string         `json:"approver_id"`
}

// PostingOutput is the ERP posting stage result.
type PostingOutput struct {
	Posted           bool   `json:"posted"`
	ERPTransactionID string `json:"erp_txn_id"`
	PaymentID        string `json:"scheduled_payment_id"`
}

// NotifyOutput is the notification stage result.
type NotifyOutput struct {
	VendorEmailed   bool     `json:"vendor_email"`
	FinanceNotified bool     `json:"finance_team_notified"`
	Parties         []string `json:"notified_parties"`
}

// FinalPayload is the terminal summary of a processed invoice. When the
// posting stage was bypassed, ERPTransactionID is "N/A" and Entries is empty.
type FinalPayload struct {
	InvoiceID        string            `json:"invoice_id"`
	VendorName       string            `json:"vendor_name"`
	Amount           float64           `json:"amount"`
	Currency         string            `json:"currency"`
	Status           string            `json:"status"`
	ERPTransactionID string            `json:"erp_txn_id"`
	PostedAt         time.Time         `json:"posted_at"`
	Entries          []AccountingEntry `json:"accounting_entries"`
}

// CompleteOutput is the final stage result, carrying the final payload and a
// copy of the execution log as it stood when the workflow finished.
type CompleteOutput struct {
	Final    FinalPayload    `json:"final_payload"`
	AuditLog []AuditLogEntry `json:"audit_log"`
}
