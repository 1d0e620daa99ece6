package dlmm

import (
	solanago "github.com/gagliardetto/solana-go"

	"dlmm-ledger/internal/solana"
)

// HawksightProgramID is the Hawksight auto-compounder, which wraps DLMM
// instructions behind its own CPI. Transactions it drives must report the
// Hawksight-managed account as the owner instead of the immediate signer.
var HawksightProgramID = solanago.MustPublicKeyFromBase58("FqGg2Y1FNxMiGd51Q6UETixQWkF5fB92MysbYogRJb3P")

// hawksightAccount returns the managed-account address when the transaction
// contains a Hawksight wrapper instruction, else "". The wrapper has shipped
// a handful of account-list shapes; the managed account sits at a fixed
// index per shape.
func hawksightAccount(tx *solana.ParsedTransaction) string {
	if tx == nil || tx.Transaction == nil {
		return ""
	}
	for _, ix := range tx.Transaction.Message.Instructions {
		if ix.ProgramID != HawksightProgramID.String() {
			continue
		}
		switch len(ix.Accounts) {
		case 10, 15, 21, 23:
			return ix.Accounts[2]
		case 7:
			return ix.Accounts[1]
		}
	}
	return ""
}

// hawksightTokenTransfers collects the token transfers belonging to one
// wrapped DLMM instruction. Because the DLMM instruction is itself an inner
// instruction, its transfers are the spl-token instructions between it and
// the next DLMM instruction in the same inner set.
func hawksightTokenTransfers(tx *solana.ParsedTransaction, target *solana.ParsedInstruction, index int) []solana.ParsedInstruction {
	if tx.Meta == nil || index == -1 {
		return nil
	}
	for _, inner := range tx.Meta.InnerInstructions {
		if inner.Index != index {
			continue
		}
		start := -1
		for i := range inner.Instructions {
			if &inner.Instructions[i] == target || sameInstruction(&inner.Instructions[i], target) {
				start = i + 1
				break
			}
		}
		if start == -1 {
			return nil
		}
		var transfers []solana.ParsedInstruction
		for _, ix := range inner.Instructions[start:] {
			if ix.ProgramID == ProgramID.String() {
				break
			}
			if transfer, err := ix.TokenTransfer(); err == nil && transfer != nil {
				transfers = append(transfers, ix)
			}
		}
		return transfers
	}
	return nil
}

// sameInstruction matches by identity fields since instructions are copied
// when iterated.
func sameInstruction(a, b *solana.ParsedInstruction) bool {
	if a.ProgramID != b.ProgramID || a.Data != b.Data || len(a.Accounts) != len(b.Accounts) {
		return false
	}
	for i := range a.Accounts {
		if a.Accounts[i] != b.Accounts[i] {
			return false
		}
	}
	return true
}
