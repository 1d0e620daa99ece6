package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dlmm-ledger/internal/domain"
)

// TransactionSource supplies reconstructed transactions, normally the
// ledger store.
type TransactionSource interface {
	GetAllTransactions(ctx context.Context) ([]domain.PositionTransaction, error)
	GetOwnerTransactions(ctx context.Context, owner string) ([]domain.PositionTransaction, error)
}

// Generator produces reports from the reconstructed ledger.
type Generator struct {
	source    TransactionSource
	outputDir string
	now       func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. When outputDir is empty no
// files are written and Generate only returns the report.
func NewGenerator(source TransactionSource, outputDir string) *Generator {
	return &Generator{
		source:    source,
		outputDir: outputDir,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for one owner, or for the whole ledger when
// owner is empty, and writes transactions.csv and report.md to the output
// directory.
func (g *Generator) Generate(ctx context.Context, owner string) (*Report, error) {
	var (
		transactions []domain.PositionTransaction
		err          error
	)
	if owner == "" {
		transactions, err = g.source.GetAllTransactions(ctx)
	} else {
		transactions, err = g.source.GetOwnerTransactions(ctx, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	report := BuildReport(owner, transactions, g.now())

	if g.outputDir != "" {
		if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}

		csvPath := filepath.Join(g.outputDir, "transactions.csv")
		if err := os.WriteFile(csvPath, []byte(RenderTransactionsCSV(transactions)), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", csvPath, err)
		}

		mdPath := filepath.Join(g.outputDir, "report.md")
		if err := os.WriteFile(mdPath, []byte(RenderMarkdown(report)), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", mdPath, err)
		}
	}

	return report, nil
}
