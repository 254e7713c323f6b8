package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/deepnoodle-ai/payflow"
	"github.com/fatih/color"
)

// CLI configuration
type Config struct {
	InvoiceFile string
	Amount      float64
	POAmount    float64
	ConfigFile  string
	DBPath      string
	AuditDir    string
	Decision    string
	ReviewerID  string
	Notes       string
	Resume      string
	ListPending bool
	Timeout     time.Duration
	Verbose     bool
	JSON        bool
}

func main() {
	config := parseFlags()

	logger := payflow.NewLogger()
	if config.Verbose {
		logger = payflow.NewLoggerWithLevel(slog.LevelDebug)
	}
	if config.JSON {
		logger = payflow.NewJSONLogger()
	}

	// Load pipeline configuration
	pipelineConfig := payflow.DefaultConfig()
	if config.ConfigFile != "" {
		var err error
		pipelineConfig, err = payflow.LoadConfigFile(config.ConfigFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		color.Blue("Config: %s", config.ConfigFile)
	}

	// Set up the checkpoint store and audit sink
	store, sink, cleanup, err := buildPersistence(config)
	if err != nil {
		log.Fatalf("Failed to set up persistence: %v", err)
	}
	defer cleanup()

	// Services: the PO amount override simulates an ERP whose purchase order
	// disagrees with the invoice, which forces the match below threshold.
	var services payflow.Services
	if config.POAmount > 0 {
		services.ERP = &fixedAmountERP{amount: config.POAmount}
		color.Yellow("PO amount override: %.2f", config.POAmount)
	}

	engine, err := payflow.NewEngine(payflow.EngineOptions{
		Config:    pipelineConfig,
		Services:  services,
		Store:     store,
		AuditSink: sink,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	if config.ListPending {
		listPending(ctx, engine)
		return
	}

	if config.Resume != "" {
		resumeCheckpoint(ctx, engine, config)
		return
	}

	runInvoice(ctx, engine, config)
}

func runInvoice(ctx context.Context, engine *payflow.Engine, config *Config) {
	invoice, err := loadInvoice(config)
	if err != nil {
		log.Fatalf("Failed to load invoice: %v", err)
	}

	doc, err := engine.NewDocument(invoice)
	if err != nil {
		log.Fatalf("Failed to create workflow: %v", err)
	}
	color.Green("Processing invoice %s (workflow %s)...", invoice.InvoiceID, doc.WorkflowID)

	result, err := engine.Run(ctx, doc)
	if err != nil {
		log.Fatalf("Workflow failed: %v", err)
	}

	if result.Completed() {
		showCompleted(result, config)
		return
	}

	color.Yellow("Workflow paused for review")
	color.White("  Checkpoint: %s", result.CheckpointID)
	color.White("  Reference:  %s", result.ReviewRef)
	color.White("  Reason:     %s", result.Reason)

	if config.Decision == "" {
		color.Blue("Resume with: %s -resume %s -decision ACCEPT -reviewer <id>",
			os.Args[0], result.CheckpointID)
		return
	}

	config.Resume = result.CheckpointID
	resumeCheckpoint(ctx, engine, config)
}

func resumeCheckpoint(ctx context.Context, engine *payflow.Engine, config *Config) {
	if config.Decision == "" {
		log.Fatalf("A -decision (ACCEPT or REJECT) is required to resume")
	}
	decision := payflow.ReviewDecision(strings.ToUpper(config.Decision))

	color.Green("Resuming checkpoint %s with %s...", config.Resume, decision)
	result, err := engine.Resume(ctx, config.Resume, decision, config.ReviewerID, config.Notes)
	if err != nil {
		switch {
		case payflow.IsNotFound(err):
			color.Red("Checkpoint not found: %s", config.Resume)
		case payflow.IsAlreadyDecided(err):
			color.Red("A decision was already recorded for %s", config.Resume)
		default:
			color.Red("Resume failed: %v", err)
		}
		os.Exit(1)
	}
	showCompleted(result, config)
}

func listPending(ctx context.Context, engine *payflow.Engine) {
	pending, err := engine.ListPending(ctx)
	if err != nil {
		log.Fatalf("Failed to list pending reviews: %v", err)
	}
	if len(pending) == 0 {
		color.Blue("No pending reviews")
		return
	}
	color.Magenta("Pending reviews:")
	for _, review := range pending {
		fmt.Printf("  %s  %s  %s %.2f %s\n",
			review.CheckpointID, review.InvoiceID,
			review.VendorName, review.Amount, review.Currency)
		fmt.Printf("    %s\n", review.Reason)
	}
}

func showCompleted(result payflow.RunResult, config *Config) {
	final := result.Document.Outputs.Complete.Final

	color.Green("Workflow completed")
	if config.JSON {
		data, err := json.MarshalIndent(final, "", "  ")
		if err != nil {
			log.Fatalf("Failed to format final payload: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	color.White("  Invoice:     %s", final.InvoiceID)
	color.White("  Vendor:      %s", final.VendorName)
	color.White("  Amount:      %.2f %s", final.Amount, final.Currency)
	color.White("  Status:      %s", final.Status)
	color.White("  ERP txn:     %s", final.ERPTransactionID)
	color.White("  Entries:     %d", len(final.Entries))

	if config.Verbose {
		fmt.Printf("\n")
		color.Magenta("Execution log:")
		for _, entry := range result.Document.ExecutionLog {
			fmt.Printf("  %-12s %s\n", entry.Stage, entry.Action)
		}
	}
}

func buildPersistence(config *Config) (payflow.CheckpointStore, payflow.AuditSink, func(), error) {
	cleanup := func() {}

	var store payflow.CheckpointStore
	var sink payflow.AuditSink

	if config.DBPath != "" {
		sqliteStore, err := payflow.OpenSQLiteCheckpointStore(config.DBPath)
		if err != nil {
			return nil, nil, cleanup, err
		}
		cleanup = func() { sqliteStore.Close() }
		store = sqliteStore
		sink, err = payflow.NewSQLiteAuditSink(sqliteStore.DB())
		if err != nil {
			sqliteStore.Close()
			return nil, nil, func() {}, err
		}
		color.Blue("Database: %s", config.DBPath)
	}

	if config.AuditDir != "" {
		sink = payflow.NewFileAuditSink(config.AuditDir)
		color.Blue("Audit logs: %s", config.AuditDir)
	}

	return store, sink, cleanup, nil
}

func loadInvoice(config *Config) (payflow.Invoice, error) {
	if config.InvoiceFile != "" {
		data, err := os.ReadFile(config.InvoiceFile)
		if err != nil {
			return payflow.Invoice{}, err
		}
		var invoice payflow.Invoice
		if err := json.Unmarshal(data, &invoice); err != nil {
			return payflow.Invoice{}, fmt.Errorf("invalid invoice file: %w", err)
		}
		return invoice, nil
	}
	return sampleInvoice(config.Amount), nil
}

func sampleInvoice(amount float64) payflow.Invoice {
	if amount <= 0 {
		amount = 5000
	}
	return payflow.Invoice{
		InvoiceID:   "INV-2025-001",
		VendorName:  "Acme Industrial Supply",
		VendorTaxID: "TAX-93-1234567",
		InvoiceDate: "2025-08-01",
		DueDate:     "2025-08-31",
		Amount:      amount,
		Currency:    "USD",
		LineItems: []payflow.LineItem{
			{Description: "Hydraulic pump", Quantity: 2, UnitPrice: amount / 2, Total: amount},
		},
	}
}

// fixedAmountERP wraps the static ERP client and pins the purchase order
// amount, regardless of the invoice amount.
type fixedAmountERP struct {
	inner  payflow.StaticERPClient
	amount float64
}

func (c *fixedAmountERP) FetchPurchaseOrders(ctx context.Context, invoice payflow.Invoice) ([]payflow.PurchaseOrder, error) {
	orders, err := c.inner.FetchPurchaseOrders(ctx, invoice)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Amount = c.amount
	}
	return orders, nil
}

func (c *fixedAmountERP) FetchReceipts(ctx context.Context, orders []payflow.PurchaseOrder) ([]payflow.GoodsReceivedNote, error) {
	return c.inner.FetchReceipts(ctx, orders)
}

func parseFlags() *Config {
	config := &Config{}

	flag.StringVar(&config.InvoiceFile, "invoice", "", "Path to a JSON invoice file (default: built-in sample)")
	flag.Float64Var(&config.Amount, "amount", 0, "Sample invoice amount (default: 5000)")
	flag.Float64Var(&config.POAmount, "po-amount", 0, "Override the ERP purchase order amount to force a mismatch")
	flag.StringVar(&config.ConfigFile, "config", "", "Path to a YAML pipeline config file")
	flag.StringVar(&config.DBPath, "db", "", "SQLite database path for checkpoints and audit (default: in-memory)")
	flag.StringVar(&config.AuditDir, "audit", "", "Directory for per-workflow audit logs")
	flag.StringVar(&config.Decision, "decision", "", "Review decision to apply on pause or resume (ACCEPT or REJECT)")
	flag.StringVar(&config.ReviewerID, "reviewer", "", "Reviewer id for the decision")
	flag.StringVar(&config.Notes, "notes", "", "Reviewer notes for the decision")
	flag.StringVar(&config.Resume, "resume", "", "Checkpoint id to resume")
	flag.BoolVar(&config.ListPending, "list", false, "List pending reviews and exit")
	flag.DurationVar(&config.Timeout, "timeout", 0, "Run timeout (e.g., 30s, 5m)")
	flag.BoolVar(&config.Verbose, "verbose", false, "Enable debug logging and show the execution log after completion")
	flag.BoolVar(&config.JSON, "json", false, "Output the final payload as JSON")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Payflow CLI - Run the invoice processing pipeline

Usage: %s [options]

Examples:
  # Process the built-in sample invoice end to end
  %s

  # Force a match failure, then accept it in the same run
  %s -po-amount 4000 -decision ACCEPT -reviewer reviewer_007

  # Persist checkpoints so a review can happen in a later invocation
  %s -po-amount 4000 -db payflow.db
  %s -db payflow.db -list
  %s -db payflow.db -resume <checkpoint_id> -decision REJECT -reviewer reviewer_007

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	if config.Decision != "" && config.ReviewerID == "" {
		fmt.Fprintln(os.Stderr, "Error: -reviewer is required with -decision")
		os.Exit(1)
	}

	return config
}
