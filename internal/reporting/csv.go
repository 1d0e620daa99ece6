package reporting

import (
	"fmt"
	"strings"

	"dlmm-ledger/internal/domain"
)

// RenderTransactionsCSV renders reconstructed transactions as CSV string.
func RenderTransactionsCSV(transactions []domain.PositionTransaction) string {
	var sb strings.Builder

	// Header
	sb.WriteString("block_time,signature,position_address,owner_address,pair_address,")
	sb.WriteString("base_symbol,quote_symbol,is_inverted,is_hawksight,removal_bps,is_one_sided_removal,position_is_open,")
	sb.WriteString("price,fee_amount,deposit,withdrawal,position_balance,impermanent_loss,pnl,")
	sb.WriteString("usd_fee_amount,usd_deposit,usd_withdrawal,usd_position_balance,usd_impermanent_loss,usd_pnl\n")

	// Rows
	for _, tx := range transactions {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s,%s,%s,%t,%t,%d,%t,%t,%.9f,%.9f,%.9f,%.9f,%.9f,%.9f,%.9f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f\n",
			tx.BlockTime,
			tx.Signature,
			tx.PositionAddress,
			tx.OwnerAddress,
			tx.PairAddress,
			orEmpty(tx.BaseSymbol),
			orEmpty(tx.QuoteSymbol),
			tx.IsInverted,
			tx.IsHawksight,
			tx.RemovalBps,
			tx.IsOneSidedRemoval,
			tx.PositionIsOpen,
			tx.Price,
			tx.FeeAmount,
			tx.Deposit,
			tx.Withdrawal,
			tx.PositionBalance,
			tx.ImpermanentLoss,
			tx.PnL,
			tx.UsdFeeAmount,
			tx.UsdDeposit,
			tx.UsdWithdrawal,
			tx.UsdPositionBalance,
			tx.UsdImpermanentLoss,
			tx.UsdPnL,
		))
	}

	return sb.String()
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
