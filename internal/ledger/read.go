package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dlmm-ledger/internal/domain"
)

const selectTransactions = `
SELECT
    block_time,
    is_hawksight,
    signature,
    position_address,
    owner_address,
    pair_address,
    base_mint,
    base_symbol,
    base_decimals,
    base_logo,
    quote_mint,
    quote_symbol,
    quote_decimals,
    quote_logo,
    is_inverted,
    removal_bps,
    is_one_sided_removal,
    position_is_open,
    price,
    fee_amount,
    deposit,
    withdrawal,
    position_balance,
    impermanent_loss,
    pnl,
    usd_fee_amount,
    usd_deposit,
    usd_withdrawal,
    usd_position_balance,
    usd_impermanent_loss,
    usd_pnl
FROM v_transactions
`

const transactionsOrder = ` ORDER BY block_time, position_address`

// IsComplete reports whether the account's full history has been downloaded.
func (s *Store) IsComplete(ctx context.Context, account string) (bool, error) {
	var completed bool
	err := s.db.QueryRowContext(ctx,
		`SELECT completed FROM completed_accounts WHERE account_address = ?`,
		account).Scan(&completed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query completed %s: %w", account, err)
	}
	return completed, nil
}

// GetMissingPairs lists pair addresses referenced by instructions but absent
// from dlmm_pairs.
func (s *Store) GetMissingPairs(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT pair_address FROM v_missing_pairs`)
}

// GetMissingTokens lists mints referenced by known pairs but absent from
// tokens.
func (s *Store) GetMissingTokens(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT address FROM v_missing_tokens`)
}

// GetMissingUsd lists positions with transfers that never had a USD load
// attempt.
func (s *Store) GetMissingUsd(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT position_address FROM v_missing_usd`)
}

func (s *Store) queryStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetMostRecentSignature returns the newest stored signature for the owner,
// or "" when nothing is stored yet.
func (s *Store) GetMostRecentSignature(ctx context.Context, owner string) (string, error) {
	var signature string
	err := s.db.QueryRowContext(ctx, `
		SELECT signature
		FROM instructions
		WHERE owner_address = ?
		ORDER BY block_time DESC
		LIMIT 1`,
		owner).Scan(&signature)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query most recent signature: %w", err)
	}
	return signature, nil
}

// GetOldestSignature returns the oldest known signature for the owner,
// considering both stored instructions and the saved pagination cursor, or
// "" when nothing is stored yet.
func (s *Store) GetOldestSignature(ctx context.Context, owner string) (string, error) {
	var signature string
	err := s.db.QueryRowContext(ctx, `
		WITH signatures AS (
			SELECT block_time, signature
			FROM instructions
			WHERE owner_address = ?
			UNION
			SELECT oldest_block_time, oldest_signature
			FROM completed_accounts
			WHERE account_address = ? AND oldest_signature IS NOT NULL
		)
		SELECT signature
		FROM signatures
		ORDER BY block_time
		LIMIT 1`,
		owner, owner).Scan(&signature)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query oldest signature: %w", err)
	}
	return signature, nil
}

// GetAllTransactions returns every reconstructed position transaction.
func (s *Store) GetAllTransactions(ctx context.Context) ([]domain.PositionTransaction, error) {
	return s.queryTransactions(ctx, selectTransactions+transactionsOrder)
}

// GetOwnerTransactions returns the owner's reconstructed position
// transactions.
func (s *Store) GetOwnerTransactions(ctx context.Context, owner string) ([]domain.PositionTransaction, error) {
	return s.queryTransactions(ctx, selectTransactions+` WHERE owner_address = ?`+transactionsOrder, owner)
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]domain.PositionTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionTransaction
	for rows.Next() {
		var tx domain.PositionTransaction
		err := rows.Scan(
			&tx.BlockTime,
			&tx.IsHawksight,
			&tx.Signature,
			&tx.PositionAddress,
			&tx.OwnerAddress,
			&tx.PairAddress,
			&tx.BaseMint,
			&tx.BaseSymbol,
			&tx.BaseDecimals,
			&tx.BaseLogo,
			&tx.QuoteMint,
			&tx.QuoteSymbol,
			&tx.QuoteDecimals,
			&tx.QuoteLogo,
			&tx.IsInverted,
			&tx.RemovalBps,
			&tx.IsOneSidedRemoval,
			&tx.PositionIsOpen,
			&tx.Price,
			&tx.FeeAmount,
			&tx.Deposit,
			&tx.Withdrawal,
			&tx.PositionBalance,
			&tx.ImpermanentLoss,
			&tx.PnL,
			&tx.UsdFeeAmount,
			&tx.UsdDeposit,
			&tx.UsdWithdrawal,
			&tx.UsdPositionBalance,
			&tx.UsdImpermanentLoss,
			&tx.UsdPnL,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
