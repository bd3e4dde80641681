package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/granafin/ofxingest/internal/alert"
	"github.com/granafin/ofxingest/internal/ingest"
	"github.com/granafin/ofxingest/internal/logger"
	"github.com/granafin/ofxingest/internal/metrics"
	"github.com/granafin/ofxingest/internal/ofx"
	"github.com/granafin/ofxingest/internal/storage"
	"github.com/granafin/ofxingest/internal/ui"
)

const version = "0.1.0"

var (
	versionFlag = flag.Bool("version", false, "Show version")

	filePath = flag.String("file", "", "OFX statement file to import (required)")
	clientID = flag.String("client", "", "Client ID owning the statement (required)")
	bankName = flag.String("bank", "", "Bank name for alerting and metrics")
	dbPath   = flag.String("db", "", "SQLite database file (default: in-memory, nothing persists)")
	jsonOut  = flag.Bool("json", false, "Print the import result as JSON")
	verbose  = flag.Bool("verbose", false, "Show detailed logs")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `ofximport - Import one OFX bank statement from the command line

Usage:
  ofximport [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Import into a local SQLite database
  ofximport -file extrato.ofx -client acme -bank itau -db ofxingest.db

  # Dry-run style check against an empty in-memory store
  ofximport -file extrato.ofx -client acme -json

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("ofximport version %s\n", version)
		os.Exit(0)
	}

	if *filePath == "" || *clientID == "" {
		fmt.Fprintf(os.Stderr, "Error: -file and -client flags are required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.New(level)

	if !*jsonOut {
		ui.Header("OFX Statement Import")
		ui.Step(1, 3, "Opening storage")
	}

	var store storage.Store
	if *dbPath != "" {
		sqlStore, err := storage.NewSQLite(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", *dbPath, err)
		}
		defer sqlStore.Close()
		store = sqlStore
	} else {
		store = storage.NewMemory()
	}

	if !*jsonOut {
		ui.Step(2, 3, "Reading statement file")
	}
	data, err := os.ReadFile(*filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", *filePath, err)
	}
	if !ofx.NewParser().CanParse(*filePath, data) {
		return fmt.Errorf("%s does not look like an OFX statement (.ofx/.qfx with an OFX header)", *filePath)
	}

	recorder := metrics.NewRecorder(prometheus.NewRegistry())
	tracker := alert.NewTracker(alert.NewMemoryStore(), alert.NewLogNotifier(log), alert.DefaultSustainedThreshold)
	service := ingest.NewService(store, recorder, tracker, log)

	if !*jsonOut {
		ui.Step(3, 3, "Importing transactions")
	}
	result, err := service.Import(ctx, ingest.ImportRequest{
		ClientID: *clientID,
		BankName: *bankName,
		Filename: *filePath,
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if *jsonOut {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	if result.AlreadyImported {
		ui.Info("File was already imported, nothing written")
	}
	ui.Success(fmt.Sprintf("Imported %d of %d transactions (%d duplicates skipped)",
		result.Imported, result.Total, result.Deduped))

	for _, account := range result.Reconciliation.Accounts {
		ui.Info(fmt.Sprintf("Account %s: credits %s, debits %s, computed balance %s",
			account.BankAccountID,
			account.TotalCredits.StringFixed(2),
			account.TotalDebits.StringFixed(2),
			account.ComputedClosingBalance.StringFixed(2)))
	}
	for _, warning := range result.Reconciliation.Warnings {
		ui.Warning(warning)
	}

	return nil
}
