package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"dlmm-ledger/internal/domain"
	"dlmm-ledger/internal/ledger"
	"dlmm-ledger/internal/ledger/blob"
	"dlmm-ledger/internal/logging"
	"dlmm-ledger/internal/reporting"
)

func main() {
	// Parse flags
	dbPath := flag.String("db", "dlmm.duckdb", "Database file path")
	snapshotPath := flag.String("snapshot", "", "Snapshot file to materialize the database from if missing")
	owner := flag.String("owner", "", "Restrict the report to one wallet address (empty for all)")
	outputDir := flag.String("output-dir", "reports", "Output directory for generated files (empty to skip)")
	format := flag.String("format", "", "Also dump transactions to stdout: csv or json")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error")

	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	logger, err := logging.New(*logLevel, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*dbPath, *snapshotPath, *owner, *outputDir, *format, logger); err != nil {
		logger.Fatal("report failed", zap.Error(err))
	}
}

func run(dbPath, snapshotPath, owner, outputDir, format string, logger *zap.Logger) error {
	var bs blob.Store
	if snapshotPath != "" {
		bs = blob.NewFileStore(snapshotPath)
	}

	store, err := ledger.Open(dbPath, bs, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	if outputDir != "" {
		gen := reporting.NewGenerator(store, outputDir)
		report, err := gen.Generate(ctx, owner)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s: %d positions (%d open), %d transactions\n",
			outputDir, report.Totals.PositionCount, report.Totals.OpenPositions, report.TransactionCount)
	}

	if format == "" {
		return nil
	}

	var transactions []domain.PositionTransaction
	if owner == "" {
		transactions, err = store.GetAllTransactions(ctx)
	} else {
		transactions, err = store.GetOwnerTransactions(ctx, owner)
	}
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	switch format {
	case "csv":
		fmt.Print(reporting.RenderTransactionsCSV(transactions))
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(transactions); err != nil {
			return fmt.Errorf("encode transactions: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q, want csv or json", format)
	}

	return nil
}
