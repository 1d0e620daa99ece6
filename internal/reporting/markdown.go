package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Position History Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.Owner != "" {
		sb.WriteString(fmt.Sprintf("Owner: `%s`\n\n", r.Owner))
	}
	sb.WriteString(fmt.Sprintf("Positions: %d (%d open) | Transactions: %d\n\n",
		r.Totals.PositionCount, r.Totals.OpenPositions, r.TransactionCount))

	// Totals
	sb.WriteString("## Totals\n\n")
	sb.WriteString("| Metric | Token (quote) | USD |\n")
	sb.WriteString("|--------|---------------|-----|\n")
	sb.WriteString(fmt.Sprintf("| Deposits | %.6f | %.2f |\n", r.Totals.Deposits, r.Totals.UsdDeposits))
	sb.WriteString(fmt.Sprintf("| Withdrawals | %.6f | %.2f |\n", r.Totals.Withdrawals, r.Totals.UsdWithdrawals))
	sb.WriteString(fmt.Sprintf("| Fees Claimed | %.6f | %.2f |\n", r.Totals.Fees, r.Totals.UsdFees))
	sb.WriteString(fmt.Sprintf("| Impermanent Loss | %.6f | %.2f |\n", r.Totals.ImpermanentLoss, r.Totals.UsdImpermanentLoss))
	sb.WriteString(fmt.Sprintf("| Total P&L | %.6f | %.2f |\n", r.Totals.PnL, r.Totals.UsdPnL))
	sb.WriteString("\n")

	// Per-position breakdown
	sb.WriteString("## Positions\n\n")
	if len(r.Positions) > 0 {
		sb.WriteString("| Pair | Position | Status | Txs | Opened | Last Activity | Deposits | Withdrawals | Fees | Balance | IL | P&L | USD P&L |\n")
		sb.WriteString("|------|----------|--------|-----|--------|---------------|----------|-------------|------|---------|----|----|---------|\n")
		for _, p := range r.Positions {
			status := "closed"
			if p.IsOpen {
				status = "open"
			}
			sb.WriteString(fmt.Sprintf("| %s | `%s` | %s | %d | %s | %s | %.6f | %.6f | %.6f | %.6f | %.6f | %.6f | %.2f |\n",
				p.PairName, shortMint(p.PositionAddress), status,
				p.TransactionCount,
				time.Unix(p.FirstBlockTime, 0).UTC().Format("2006-01-02"),
				time.Unix(p.LastBlockTime, 0).UTC().Format("2006-01-02"),
				p.Deposits, p.Withdrawals, p.Fees, p.Balance,
				p.ImpermanentLoss, p.PnL, p.UsdPnL))
		}
	} else {
		sb.WriteString("No positions found.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
