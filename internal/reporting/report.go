package reporting

import (
	"sort"
	"time"

	"dlmm-ledger/internal/domain"
)

// Report summarizes reconstructed position history for one owner, or for
// every owner in the ledger when Owner is empty.
type Report struct {
	GeneratedAt time.Time
	Owner       string

	TransactionCount int

	// Per-position rows, sorted by first activity
	Positions []PositionSummaryRow

	Totals Totals
}

// PositionSummaryRow aggregates one position's lifecycle. Fee, deposit,
// withdrawal, impermanent loss and P&L columns are sums of the per
// transaction deltas; Balance is the value after the last transaction.
type PositionSummaryRow struct {
	PositionAddress string
	PairAddress     string
	PairName        string
	IsOpen          bool

	FirstBlockTime   int64
	LastBlockTime    int64
	TransactionCount int

	Deposits        float64
	Withdrawals     float64
	Fees            float64
	Balance         float64
	ImpermanentLoss float64
	PnL             float64

	UsdDeposits        float64
	UsdWithdrawals     float64
	UsdFees            float64
	UsdBalance         float64
	UsdImpermanentLoss float64
	UsdPnL             float64
}

// Totals sums the per-position rows.
type Totals struct {
	PositionCount int
	OpenPositions int

	Deposits        float64
	Withdrawals     float64
	Fees            float64
	ImpermanentLoss float64
	PnL             float64

	UsdDeposits        float64
	UsdWithdrawals     float64
	UsdFees            float64
	UsdImpermanentLoss float64
	UsdPnL             float64
}

// BuildReport aggregates reconstructed transactions into a Report. The
// input is expected in block time order, as the ledger returns it.
func BuildReport(owner string, transactions []domain.PositionTransaction, now time.Time) *Report {
	rows := make(map[string]*PositionSummaryRow)
	order := make([]string, 0)

	for _, tx := range transactions {
		row, ok := rows[tx.PositionAddress]
		if !ok {
			row = &PositionSummaryRow{
				PositionAddress: tx.PositionAddress,
				PairAddress:     tx.PairAddress,
				PairName:        pairName(tx),
				FirstBlockTime:  tx.BlockTime,
			}
			rows[tx.PositionAddress] = row
			order = append(order, tx.PositionAddress)
		}

		row.LastBlockTime = tx.BlockTime
		row.TransactionCount++
		row.IsOpen = tx.PositionIsOpen
		row.Balance = tx.PositionBalance
		row.UsdBalance = tx.UsdPositionBalance

		row.Deposits += tx.Deposit
		row.Withdrawals += tx.Withdrawal
		row.Fees += tx.FeeAmount
		row.ImpermanentLoss += tx.ImpermanentLoss
		row.PnL += tx.PnL

		row.UsdDeposits += tx.UsdDeposit
		row.UsdWithdrawals += tx.UsdWithdrawal
		row.UsdFees += tx.UsdFeeAmount
		row.UsdImpermanentLoss += tx.UsdImpermanentLoss
		row.UsdPnL += tx.UsdPnL
	}

	report := &Report{
		GeneratedAt:      now,
		Owner:            owner,
		TransactionCount: len(transactions),
		Positions:        make([]PositionSummaryRow, 0, len(order)),
	}

	sort.SliceStable(order, func(i, j int) bool {
		return rows[order[i]].FirstBlockTime < rows[order[j]].FirstBlockTime
	})

	for _, addr := range order {
		row := rows[addr]
		report.Positions = append(report.Positions, *row)

		report.Totals.PositionCount++
		if row.IsOpen {
			report.Totals.OpenPositions++
		}
		report.Totals.Deposits += row.Deposits
		report.Totals.Withdrawals += row.Withdrawals
		report.Totals.Fees += row.Fees
		report.Totals.ImpermanentLoss += row.ImpermanentLoss
		report.Totals.PnL += row.PnL
		report.Totals.UsdDeposits += row.UsdDeposits
		report.Totals.UsdWithdrawals += row.UsdWithdrawals
		report.Totals.UsdFees += row.UsdFees
		report.Totals.UsdImpermanentLoss += row.UsdImpermanentLoss
		report.Totals.UsdPnL += row.UsdPnL
	}

	return report
}

// pairName builds a human readable pair label, falling back to shortened
// mint addresses for tokens the token list does not know.
func pairName(tx domain.PositionTransaction) string {
	base := shortMint(tx.BaseMint)
	if tx.BaseSymbol != nil && *tx.BaseSymbol != "" {
		base = *tx.BaseSymbol
	}
	quote := shortMint(tx.QuoteMint)
	if tx.QuoteSymbol != nil && *tx.QuoteSymbol != "" {
		quote = *tx.QuoteSymbol
	}
	return base + "-" + quote
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}
