package dlmm

import (
	"encoding/json"
	"fmt"
	"strconv"

	"dlmm-ledger/internal/domain"
	"dlmm-ledger/internal/solana"
)

// instructionIndex locates the outer-instruction index the given instruction
// executes under: its own position for outer instructions, the containing
// set's index for inner ones. Returns -1 when the instruction is not part of
// the transaction.
func instructionIndex(tx *solana.ParsedTransaction, target *solana.ParsedInstruction) int {
	for i := range tx.Transaction.Message.Instructions {
		if &tx.Transaction.Message.Instructions[i] == target {
			return i
		}
	}
	if tx.Meta == nil {
		return -1
	}
	for _, inner := range tx.Meta.InnerInstructions {
		for i := range inner.Instructions {
			if &inner.Instructions[i] == target {
				return inner.Index
			}
		}
	}
	return -1
}

// tokenTransferInstructions returns the transferChecked inner instructions
// beneath the outer instruction at index.
func tokenTransferInstructions(tx *solana.ParsedTransaction, index int) []solana.ParsedInstruction {
	if tx.Meta == nil || index == -1 {
		return nil
	}
	for _, inner := range tx.Meta.InnerInstructions {
		if inner.Index != index {
			continue
		}
		var transfers []solana.ParsedInstruction
		for _, ix := range inner.Instructions {
			transfer, err := ix.TokenTransfer()
			if err != nil || transfer == nil || transfer.Type != "transferChecked" {
				continue
			}
			transfers = append(transfers, ix)
		}
		return transfers
	}
	return nil
}

// parseTokenTransfers converts transfer instructions to domain transfers
// with raw integer amounts. transferChecked carries its mint; a plain
// transfer does not, so the mint is inferred by matching the transfer's
// source or destination against the instruction's user token accounts.
func parseTokenTransfers(transfers []solana.ParsedInstruction, accounts domain.InstructionAccounts) ([]domain.TokenTransfer, error) {
	out := make([]domain.TokenTransfer, 0, len(transfers))
	for _, ix := range transfers {
		parsed, err := ix.TokenTransfer()
		if err != nil {
			return nil, fmt.Errorf("parse transfer payload: %w", err)
		}
		if parsed == nil {
			return nil, fmt.Errorf("unrecognized transfer format")
		}

		switch parsed.Type {
		case "transferChecked":
			var info solana.TransferCheckedInfo
			if err := json.Unmarshal(parsed.Info, &info); err != nil {
				return nil, fmt.Errorf("unmarshal transferChecked: %w", err)
			}
			amount, err := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse transfer amount %q: %w", info.TokenAmount.Amount, err)
			}
			out = append(out, domain.TokenTransfer{Mint: info.Mint, Amount: amount})

		case "transfer":
			if accounts.TokenXMint == "" || accounts.TokenYMint == "" ||
				accounts.UserTokenX == "" || accounts.UserTokenY == "" {
				return nil, fmt.Errorf("mints were not found in instruction, unable to parse token transfers")
			}
			var info solana.TransferInfo
			if err := json.Unmarshal(parsed.Info, &info); err != nil {
				return nil, fmt.Errorf("unmarshal transfer: %w", err)
			}
			mint := accounts.TokenYMint
			if info.Source == accounts.UserTokenX || info.Destination == accounts.UserTokenX {
				mint = accounts.TokenXMint
			}
			amount, err := strconv.ParseUint(info.Amount, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse transfer amount %q: %w", info.Amount, err)
			}
			out = append(out, domain.TokenTransfer{Mint: mint, Amount: amount})
		}
	}
	return out, nil
}
