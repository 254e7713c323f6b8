package payflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticExtractor(t *testing.T) {
	extractor := &StaticExtractor{}

	t.Run("finds PO references", func(t *testing.T) {
		result, err := extractor.ExtractInvoice(context.Background(),
			"Invoice for order PO-2025-001 (see also PO-2025-002).")
		require.NoError(t, err)
		require.Equal(t, []string{"PO-2025-001", "PO-2025-002"}, result.POReferences)
	})

	t.Run("no references", func(t *testing.T) {
		result, err := extractor.ExtractInvoice(context.Background(), "plain text")
		require.NoError(t, err)
		require.Empty(t, result.POReferences)
	})
}

func TestStandardNormalizer(t *testing.T) {
	normalizer := &StandardNormalizer{}

	t.Run("collapses whitespace", func(t *testing.T) {
		name, err := normalizer.NormalizeVendor(context.Background(), "  Acme   Industrial\tSupply ")
		require.NoError(t, err)
		require.Equal(t, "Acme Industrial Supply", name)
	})

	t.Run("empty name is an error", func(t *testing.T) {
		_, err := normalizer.NormalizeVendor(context.Background(), "   ")
		require.Error(t, err)
	})
}

func TestTwoWayScorer(t *testing.T) {
	scorer := &TwoWayScorer{}
	ctx := context.Background()

	invoice := NormalizedInvoice{
		Amount:    5000,
		Currency:  "USD",
		LineItems: []LineItem{{Description: "Hydraulic pump", Quantity: 2}},
	}

	t.Run("identical amounts score full", func(t *testing.T) {
		po := PurchaseOrder{POID: "PO-1", Amount: 5000, Items: invoice.LineItems}
		score, err := scorer.ScoreMatch(ctx, invoice, po)
		require.NoError(t, err)
		require.InDelta(t, 1.0, score, 0.001)
	})

	t.Run("diverging amounts score below threshold", func(t *testing.T) {
		po := PurchaseOrder{POID: "PO-1", Amount: 4000, Items: invoice.LineItems}
		score, err := scorer.ScoreMatch(ctx, invoice, po)
		require.NoError(t, err)
		require.InDelta(t, 0.88, score, 0.001)
	})

	t.Run("missing purchase order scores zero", func(t *testing.T) {
		score, err := scorer.ScoreMatch(ctx, invoice, PurchaseOrder{})
		require.NoError(t, err)
		require.Zero(t, score)
	})

	t.Run("score stays within bounds", func(t *testing.T) {
		po := PurchaseOrder{POID: "PO-1", Amount: 50000, Items: invoice.LineItems}
		score, err := scorer.ScoreMatch(ctx, invoice, po)
		require.NoError(t, err)
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 1.0)
	})
}

func TestDefaultEntries(t *testing.T) {
	entries := defaultEntries(testInvoice(5000), "Acme Industrial Supply")
	require.Len(t, entries, 2)

	var debits, credits float64
	for _, entry := range entries {
		debits += entry.Debit
		credits += entry.Credit
	}
	require.Equal(t, 5000.0, debits)
	require.Equal(t, 5000.0, credits)
	require.Equal(t, "2100", entries[0].AccountCode)
	require.Equal(t, "5000", entries[1].AccountCode)
	require.Contains(t, entries[0].Description, "Acme Industrial Supply")
}

func TestStaticERPClient(t *testing.T) {
	client := &StaticERPClient{}
	ctx := context.Background()
	invoice := testInvoice(5000)

	orders, err := client.FetchPurchaseOrders(ctx, invoice)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, "PO-INV-2025-001", orders[0].POID)
	require.Equal(t, invoice.Amount, orders[0].Amount)
	require.Equal(t, invoice.VendorTaxID, orders[0].VendorID)

	receipts, err := client.FetchReceipts(ctx, orders)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.Equal(t, orders[0].POID, receipts[0].POID)
	require.Equal(t, 2.0, receipts[0].ReceivedQty)
}
