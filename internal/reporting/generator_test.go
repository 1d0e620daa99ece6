package reporting

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dlmm-ledger/internal/domain"
)

type fakeSource struct {
	transactions []domain.PositionTransaction
	ownerArg     *string
}

func (f *fakeSource) GetAllTransactions(ctx context.Context) ([]domain.PositionTransaction, error) {
	return f.transactions, nil
}

func (f *fakeSource) GetOwnerTransactions(ctx context.Context, owner string) ([]domain.PositionTransaction, error) {
	f.ownerArg = &owner
	return f.transactions, nil
}

func strPtr(s string) *string { return &s }

func sampleTransactions() []domain.PositionTransaction {
	sol := strPtr("SOL")
	usdc := strPtr("USDC")
	return []domain.PositionTransaction{
		{
			BlockTime: 100, Signature: "sig1", PositionAddress: "pos1",
			OwnerAddress: "owner1", PairAddress: "pair1",
			BaseMint: "So11111111111111111111111111111111111111112", BaseSymbol: sol,
			QuoteMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", QuoteSymbol: usdc,
			Deposit: 100, PositionBalance: 100, PositionIsOpen: true,
		},
		{
			BlockTime: 200, Signature: "sig2", PositionAddress: "pos1",
			OwnerAddress: "owner1", PairAddress: "pair1",
			BaseMint: "So11111111111111111111111111111111111111112", BaseSymbol: sol,
			QuoteMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", QuoteSymbol: usdc,
			RemovalBps: 10000, Withdrawal: 95, FeeAmount: 5,
			PositionBalance: 0, ImpermanentLoss: 5, PnL: 0,
		},
		{
			BlockTime: 300, Signature: "sig3", PositionAddress: "pos2",
			OwnerAddress: "owner1", PairAddress: "pair2",
			BaseMint:  "mintXmintXmintXmintXmintXmintXmintX",
			QuoteMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", QuoteSymbol: usdc,
			Deposit: 50, PositionBalance: 50, PositionIsOpen: true,
		},
	}
}

func TestBuildReport_AggregatesPerPosition(t *testing.T) {
	now := time.Unix(1000, 0).UTC()
	report := BuildReport("owner1", sampleTransactions(), now)

	assert.Equal(t, now, report.GeneratedAt)
	assert.Equal(t, "owner1", report.Owner)
	assert.Equal(t, 3, report.TransactionCount)
	require.Len(t, report.Positions, 2)

	first := report.Positions[0]
	assert.Equal(t, "pos1", first.PositionAddress)
	assert.Equal(t, "SOL-USDC", first.PairName)
	assert.False(t, first.IsOpen)
	assert.Equal(t, 2, first.TransactionCount)
	assert.Equal(t, int64(100), first.FirstBlockTime)
	assert.Equal(t, int64(200), first.LastBlockTime)
	assert.InDelta(t, 100, first.Deposits, 1e-9)
	assert.InDelta(t, 95, first.Withdrawals, 1e-9)
	assert.InDelta(t, 5, first.Fees, 1e-9)
	assert.InDelta(t, 0, first.Balance, 1e-9)
	assert.InDelta(t, 5, first.ImpermanentLoss, 1e-9)
	assert.InDelta(t, 0, first.PnL, 1e-9)

	second := report.Positions[1]
	assert.Equal(t, "pos2", second.PositionAddress)
	assert.True(t, second.IsOpen)
	assert.InDelta(t, 50, second.Balance, 1e-9)

	assert.Equal(t, 2, report.Totals.PositionCount)
	assert.Equal(t, 1, report.Totals.OpenPositions)
	assert.InDelta(t, 150, report.Totals.Deposits, 1e-9)
	assert.InDelta(t, 5, report.Totals.ImpermanentLoss, 1e-9)
}

func TestBuildReport_PairNameFallsBackToMints(t *testing.T) {
	report := BuildReport("", sampleTransactions(), time.Now())

	require.Len(t, report.Positions, 2)
	assert.Equal(t, "mint..intX-USDC", report.Positions[1].PairName)
}

func TestBuildReport_Empty(t *testing.T) {
	report := BuildReport("owner1", nil, time.Now())

	assert.Empty(t, report.Positions)
	assert.Equal(t, 0, report.Totals.PositionCount)
}

func TestGenerator_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{transactions: sampleTransactions()}
	gen := NewGenerator(source, dir).WithClock(func() time.Time {
		return time.Unix(1700000000, 0).UTC()
	})

	report, err := gen.Generate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Totals.PositionCount)

	csvBytes, err := os.ReadFile(filepath.Join(dir, "transactions.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvBytes)), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "block_time,signature,position_address")
	assert.Contains(t, lines[1], "sig1")

	mdBytes, err := os.ReadFile(filepath.Join(dir, "report.md"))
	require.NoError(t, err)
	md := string(mdBytes)
	assert.Contains(t, md, "# Position History Report")
	assert.Contains(t, md, "SOL-USDC")
	assert.Contains(t, md, "2023-11-14")
}

func TestGenerator_OwnerFilter(t *testing.T) {
	source := &fakeSource{transactions: sampleTransactions()}
	gen := NewGenerator(source, "")

	report, err := gen.Generate(context.Background(), "owner1")
	require.NoError(t, err)

	require.NotNil(t, source.ownerArg)
	assert.Equal(t, "owner1", *source.ownerArg)
	assert.Equal(t, "owner1", report.Owner)
}
