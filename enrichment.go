package payflow

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.jetify.com/typeid"
)

// Enrichment services are the external collaborators stages call to transform
// data. Each call is fallible; the call site applies a safe default on failure
// and continues the stage instead of aborting the workflow.

// ExtractionResult is structured data recovered from invoice text.
type ExtractionResult struct {
	VendorName   string   `json:"vendor_name,omitempty"`
	TotalAmount  float64  `json:"total_amount,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	POReferences []string `json:"po_references,omitempty"`
}

// TextExtractor recovers structured fields from rendered invoice text.
// Failure degrades to an empty ExtractionResult.
type TextExtractor interface {
	ExtractInvoice(ctx context.Context, text string) (ExtractionResult, error)
}

// VendorNormalizer cleans up a vendor name. Failure degrades to the
// unchanged input name.
type VendorNormalizer interface {
	NormalizeVendor(ctx context.Context, name string) (string, error)
}

// MatchScorer compares a normalized invoice against a purchase order and
// returns a score in [0, 1]. Failure degrades to a zero score.
type MatchScorer interface {
	ScoreMatch(ctx context.Context, invoice NormalizedInvoice, po PurchaseOrder) (float64, error)
}

// EntryGenerator produces accounting entries for an invoice. Failure or an
// empty result degrades to a default balanced AP/expense pair.
type EntryGenerator interface {
	GenerateEntries(ctx context.Context, invoice Invoice, vendorName string) ([]AccountingEntry, error)
}

// ERPClient fetches purchase orders and goods-received notes for an invoice.
// Failure degrades to empty result sets.
type ERPClient interface {
	FetchPurchaseOrders(ctx context.Context, invoice Invoice) ([]PurchaseOrder, error)
	FetchReceipts(ctx context.Context, orders []PurchaseOrder) ([]GoodsReceivedNote, error)
}

// Services bundles the enrichment collaborators the stages depend on. Zero
// fields are replaced with the deterministic built-in implementations.
type Services struct {
	Extractor  TextExtractor
	Normalizer VendorNormalizer
	Scorer     MatchScorer
	Entries    EntryGenerator
	ERP        ERPClient
}

func (s Services) withDefaults() Services {
	if s.Extractor == nil {
		s.Extractor = &StaticExtractor{}
	}
	if s.Normalizer == nil {
		s.Normalizer = &StandardNormalizer{}
	}
	if s.Scorer == nil {
		s.Scorer = &TwoWayScorer{}
	}
	if s.Entries == nil {
		s.Entries = &StandardEntryGenerator{}
	}
	if s.ERP == nil {
		s.ERP = &StaticERPClient{}
	}
	return s
}

// StaticExtractor is a deterministic TextExtractor that scans for PO-prefixed
// references in the invoice text.
type StaticExtractor struct{}

func (e *StaticExtractor) ExtractInvoice(ctx context.Context, text string) (ExtractionResult, error) {
	var refs []string
	for _, field := range strings.Fields(text) {
		token := strings.Trim(field, ".,;:()")
		if strings.HasPrefix(token, "PO-") && len(token) > len("PO-") {
			refs = append(refs, token)
		}
	}
	return ExtractionResult{POReferences: refs}, nil
}

// StandardNormalizer trims and collapses whitespace in vendor names.
type StandardNormalizer struct{}

func (n *StandardNormalizer) NormalizeVendor(ctx context.Context, name string) (string, error) {
	normalized := strings.Join(strings.Fields(name), " ")
	if normalized == "" {
		return "", fmt.Errorf("vendor name is empty after normalization")
	}
	return normalized, nil
}

// TwoWayScorer computes a deterministic match score from amount closeness,
// vendor identity, and line item counts.
type TwoWayScorer struct{}

func (s *TwoWayScorer) ScoreMatch(ctx context.Context, invoice NormalizedInvoice, po PurchaseOrder) (float64, error) {
	if po.POID == "" {
		return 0, nil
	}

	// Amount component: linear falloff with relative difference.
	amountScore := 0.0
	if invoice.Amount > 0 {
		diff := math.Abs(invoice.Amount-po.Amount) / invoice.Amount
		amountScore = math.Max(0, 1-diff)
	}

	lineScore := 0.0
	if len(invoice.LineItems) == len(po.Items) {
		lineScore = 1.0
	}

	score := 0.6*amountScore + 0.2*lineScore + 0.2
	return math.Max(0, math.Min(1, score)), nil
}

// StandardEntryGenerator emits a balanced AP credit and expense debit pair.
type StandardEntryGenerator struct{}

func (g *StandardEntryGenerator) GenerateEntries(ctx context.Context, invoice Invoice, vendorName string) ([]AccountingEntry, error) {
	return defaultEntries(invoice, vendorName), nil
}

// defaultEntries is the degradation fallback applied when entry generation
// fails or returns nothing.
func defaultEntries(invoice Invoice, vendorName string) []AccountingEntry {
	return []AccountingEntry{
		{
			AccountCode: "2100",
			Credit:      invoice.Amount,
			Description: fmt.Sprintf("AP for %s", vendorName),
		},
		{
			AccountCode: "5000",
			Debit:       invoice.Amount,
			Description: fmt.Sprintf("Expense from %s", vendorName),
		},
	}
}

// StaticERPClient fabricates a purchase order and receipt mirroring the
// invoice, standing in for a real ERP connector.
type StaticERPClient struct{}

func (c *StaticERPClient) FetchPurchaseOrders(ctx context.Context, invoice Invoice) ([]PurchaseOrder, error) {
	return []PurchaseOrder{
		{
			POID:     fmt.Sprintf("PO-%s", invoice.InvoiceID),
			VendorID: invoice.VendorTaxID,
			Amount:   invoice.Amount,
			Items:    append([]LineItem(nil), invoice.LineItems...),
		},
	}, nil
}

func (c *StaticERPClient) FetchReceipts(ctx context.Context, orders []PurchaseOrder) ([]GoodsReceivedNote, error) {
	notes := make([]GoodsReceivedNote, 0, len(orders))
	for _, po := range orders {
		qty := 0.0
		for _, item := range po.Items {
			qty += item.Quantity
		}
		notes = append(notes, GoodsReceivedNote{
			GRNID:        fmt.Sprintf("GRN-%s", po.POID),
			POID:         po.POID,
			ReceivedQty:  qty,
			ReceivedDate: now(),
		})
	}
	return notes, nil
}

// newPrefixedID returns a typeid-backed identifier with the given prefix.
// These ids are the only non-deterministic values stages produce.
func newPrefixedID(prefix string) string {
	id, err := typeid.WithPrefix(prefix)
	if err != nil {
		panic(err)
	}
	return id.String()
}
