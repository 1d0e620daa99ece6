package ledger

import (
	"context"
	"fmt"

	"dlmm-ledger/internal/domain"
)

const insertInstruction = `
INSERT INTO instructions (
    signature, slot, block_time, is_hawksight,
    instruction_name, instruction_type,
    position_address, pair_address, owner_address,
    active_bin_id, removal_bps
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`

const insertTransfer = `
INSERT INTO token_transfers (
    signature, instruction_name, position_address, mint, amount
)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`

const insertPair = `
INSERT INTO dlmm_pairs (
    pair_address, name, mint_x, mint_y, bin_step, base_fee_bps
)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`

const insertToken = `
INSERT INTO tokens (address, name, symbol, decimals, logo)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`

// The usd updates key on (signature, position, instruction type) and resolve
// which transfer row is the X or Y side through the pair's mints, because
// the pricing service reports amounts per side, not per mint.
const updateUsdX = `
UPDATE token_transfers
SET
    usd_load_attempted = 1,
    usd_amount = ?
WHERE EXISTS (
    SELECT 1
    FROM
        token_transfers t
        JOIN instructions i ON
            i.signature = t.signature
            AND i.instruction_name = t.instruction_name
            AND i.position_address = t.position_address
        JOIN dlmm_pairs p ON
            i.pair_address = p.pair_address
    WHERE
        t.signature = ?
        AND token_transfers.signature = t.signature
        AND token_transfers.instruction_name = t.instruction_name
        AND token_transfers.position_address = ?
        AND token_transfers.mint = p.mint_x
        AND i.instruction_type = ?
)
`

const updateUsdY = `
UPDATE token_transfers
SET
    usd_load_attempted = 1,
    usd_amount = ?
WHERE EXISTS (
    SELECT 1
    FROM
        token_transfers t
        JOIN instructions i ON
            i.signature = t.signature
            AND i.instruction_name = t.instruction_name
            AND i.position_address = t.position_address
        JOIN dlmm_pairs p ON
            i.pair_address = p.pair_address
    WHERE
        t.signature = ?
        AND token_transfers.signature = t.signature
        AND token_transfers.instruction_name = t.instruction_name
        AND token_transfers.position_address = ?
        AND token_transfers.mint = p.mint_y
        AND i.instruction_type = ?
)
`

// Transfers the pricing service never reported for the position are marked
// attempted anyway so v_missing_usd converges.
const markUsdAttempted = `
UPDATE token_transfers
SET usd_load_attempted = 1
WHERE position_address = ? AND usd_load_attempted = 0
`

const upsertOldestSignature = `
INSERT INTO completed_accounts (account_address, oldest_block_time, oldest_signature)
VALUES (?, ?, ?)
ON CONFLICT (account_address) DO UPDATE
SET
    oldest_block_time = excluded.oldest_block_time,
    oldest_signature = excluded.oldest_signature
`

const upsertComplete = `
INSERT INTO completed_accounts (account_address, completed)
VALUES (?, TRUE)
ON CONFLICT (account_address) DO UPDATE
SET completed = TRUE
`

// AddInstruction stores one classified instruction and its token transfers.
// Replays of an already stored (signature, name, position) are no-ops.
func (s *Store) AddInstruction(ctx context.Context, ix domain.Instruction) error {
	return s.enqueue(func() error {
		_, err := s.db.ExecContext(ctx, insertInstruction,
			ix.Signature,
			ix.Slot,
			ix.BlockTime,
			ix.IsHawksight,
			ix.Name,
			string(ix.Type),
			ix.Accounts.Position,
			ix.Accounts.LbPair,
			ix.Accounts.Sender,
			ix.ActiveBinID,
			ix.RemovalBps,
		)
		if err != nil {
			return fmt.Errorf("insert instruction %s: %w", ix.Signature, err)
		}
		return s.addTransfers(ctx, ix)
	})
}

// AddTransfers stores the instruction's token transfers only, for
// instructions whose row already exists.
func (s *Store) AddTransfers(ctx context.Context, ix domain.Instruction) error {
	return s.enqueue(func() error {
		return s.addTransfers(ctx, ix)
	})
}

func (s *Store) addTransfers(ctx context.Context, ix domain.Instruction) error {
	for _, transfer := range ix.Transfers {
		_, err := s.db.ExecContext(ctx, insertTransfer,
			ix.Signature,
			ix.Name,
			ix.Accounts.Position,
			transfer.Mint,
			transfer.Amount,
		)
		if err != nil {
			return fmt.Errorf("insert transfer %s %s: %w", ix.Signature, transfer.Mint, err)
		}
	}
	return nil
}

// AddPair stores pool metadata.
func (s *Store) AddPair(ctx context.Context, pair domain.Pair) error {
	return s.enqueue(func() error {
		_, err := s.db.ExecContext(ctx, insertPair,
			pair.Address,
			pair.Name,
			pair.MintX,
			pair.MintY,
			pair.BinStep,
			pair.BaseFeeBps,
		)
		if err != nil {
			return fmt.Errorf("insert pair %s: %w", pair.Address, err)
		}
		return nil
	})
}

// AddToken stores token metadata.
func (s *Store) AddToken(ctx context.Context, token domain.Token) error {
	return s.enqueue(func() error {
		_, err := s.db.ExecContext(ctx, insertToken,
			token.Address,
			token.Name,
			token.Symbol,
			token.Decimals,
			token.Logo,
		)
		if err != nil {
			return fmt.Errorf("insert token %s: %w", token.Address, err)
		}
		return nil
	})
}

// AddUsdTransactions applies the pricing service's USD amounts to the
// position's transfers and marks every remaining transfer of the position as
// attempted, reported or not.
func (s *Store) AddUsdTransactions(ctx context.Context, positionAddress string, usd domain.PositionUsd) error {
	return s.enqueue(func() error {
		apply := func(instructionType string, amounts []domain.UsdAmount) error {
			for _, amount := range amounts {
				_, err := s.db.ExecContext(ctx, updateUsdX,
					amount.TokenXUsd, amount.Signature, positionAddress, instructionType)
				if err != nil {
					return fmt.Errorf("set usd x %s: %w", amount.Signature, err)
				}
				_, err = s.db.ExecContext(ctx, updateUsdY,
					amount.TokenYUsd, amount.Signature, positionAddress, instructionType)
				if err != nil {
					return fmt.Errorf("set usd y %s: %w", amount.Signature, err)
				}
			}
			return nil
		}
		if err := apply("add", usd.Deposits); err != nil {
			return err
		}
		if err := apply("remove", usd.Withdrawals); err != nil {
			return err
		}
		if err := apply("claim", usd.Fees); err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, markUsdAttempted, positionAddress); err != nil {
			return fmt.Errorf("mark usd attempted %s: %w", positionAddress, err)
		}
		return nil
	})
}

// Close instructions parsed from pool-less account shapes are stored with an
// empty pair address; once any sibling instruction of the position is in,
// the pool is known.
const backfillPairs = `
UPDATE instructions
SET pair_address = (
    SELECT i2.pair_address
    FROM instructions i2
    WHERE i2.position_address = instructions.position_address
      AND i2.pair_address <> ''
    LIMIT 1
)
WHERE pair_address = ''
  AND EXISTS (
    SELECT 1
    FROM instructions i3
    WHERE i3.position_address = instructions.position_address
      AND i3.pair_address <> ''
  )
`

// BackfillPairAddresses fills empty pair addresses from sibling instructions
// on the same position.
func (s *Store) BackfillPairAddresses(ctx context.Context) error {
	return s.enqueue(func() error {
		if _, err := s.db.ExecContext(ctx, backfillPairs); err != nil {
			return fmt.Errorf("backfill pair addresses: %w", err)
		}
		return nil
	})
}

// SetOldestSignature records the pagination cursor for resuming an
// interrupted download.
func (s *Store) SetOldestSignature(ctx context.Context, account string, blockTime int64, signature string) error {
	return s.enqueue(func() error {
		_, err := s.db.ExecContext(ctx, upsertOldestSignature, account, blockTime, signature)
		if err != nil {
			return fmt.Errorf("set oldest signature %s: %w", account, err)
		}
		return nil
	})
}

// MarkComplete records that the account's full history has been downloaded.
func (s *Store) MarkComplete(ctx context.Context, account string) error {
	return s.enqueue(func() error {
		_, err := s.db.ExecContext(ctx, upsertComplete, account)
		if err != nil {
			return fmt.Errorf("mark complete %s: %w", account, err)
		}
		return nil
	})
}
