package dlmm

import (
	"fmt"
	"sort"

	"github.com/mr-tron/base58"

	"dlmm-ledger/internal/domain"
	"dlmm-ledger/internal/solana"
)

// Classify walks every outer and inner instruction of a parsed transaction
// and returns the normalized position instructions it contains. Instructions
// of other programs and unrecognized instruction names are skipped. A
// missing blockTime is a structural failure.
func Classify(tx *solana.ParsedTransaction) ([]domain.Instruction, error) {
	if tx == nil || tx.Transaction == nil {
		return nil, nil
	}

	hawksight := hawksightAccount(tx)

	var instructions []domain.Instruction
	for i := range tx.Transaction.Message.Instructions {
		inst, err := classifyInstruction(tx, &tx.Transaction.Message.Instructions[i], hawksight)
		if err != nil {
			return nil, err
		}
		if inst != nil {
			instructions = append(instructions, *inst)
		}
	}
	if tx.Meta != nil {
		for si := range tx.Meta.InnerInstructions {
			inner := &tx.Meta.InnerInstructions[si]
			for i := range inner.Instructions {
				inst, err := classifyInstruction(tx, &inner.Instructions[i], hawksight)
				if err != nil {
					return nil, err
				}
				if inst != nil {
					instructions = append(instructions, *inst)
				}
			}
		}
	}
	return instructions, nil
}

func classifyInstruction(tx *solana.ParsedTransaction, ix *solana.ParsedInstruction, hawksight string) (*domain.Instruction, error) {
	if ix.ProgramID != ProgramID.String() || ix.Data == "" {
		return nil, nil
	}

	data, err := base58.Decode(ix.Data)
	if err != nil || len(data) < 8 {
		return nil, nil
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	name, ok := discriminators[disc]
	if !ok {
		// Unknown instruction
		return nil, nil
	}

	signature := ""
	if len(tx.Transaction.Signatures) > 0 {
		signature = tx.Transaction.Signatures[0]
	}
	if tx.BlockTime == nil {
		return nil, fmt.Errorf("transaction blockTime missing from signature %s", signature)
	}

	index := instructionIndex(tx, ix)
	if index == -1 {
		return nil, nil
	}

	instructionType := instructionTypes[name]
	accounts := resolveAccounts(name, ix.Accounts, hawksight)

	var transferIxs []solana.ParsedInstruction
	if hawksight == "" {
		transferIxs = tokenTransferInstructions(tx, index)
	} else {
		transferIxs = hawksightTokenTransfers(tx, ix, index)
	}
	transfers, err := parseTokenTransfers(transferIxs, accounts)
	if err != nil {
		return nil, fmt.Errorf("signature %s: %w", signature, err)
	}

	var binID *int32
	if len(transfers) > 0 {
		binID = activeBinID(tx, index)
	}

	var bps *int32
	if instructionType == domain.InstructionRemove {
		v := removalBps(name, data[8:])
		bps = &v
	}

	return &domain.Instruction{
		Signature:   signature,
		Slot:        tx.Slot,
		BlockTime:   *tx.BlockTime,
		IsHawksight: hawksight != "",
		Name:        name,
		Type:        instructionType,
		Accounts:    accounts,
		Transfers:   transfers,
		ActiveBinID: binID,
		RemovalBps:  bps,
	}, nil
}

// SortInstructions orders instructions by block time ascending. Within one
// block time, open sorts first and claim next so the position exists before
// activity lands on it, and close sorts last; add and remove keep their
// relative order.
func SortInstructions(instructions []domain.Instruction) {
	sort.SliceStable(instructions, func(i, j int) bool {
		a, b := &instructions[i], &instructions[j]
		if a.BlockTime != b.BlockTime {
			return a.BlockTime < b.BlockTime
		}
		return sortRank(a.Type) < sortRank(b.Type)
	})
}

func sortRank(t domain.InstructionType) int {
	switch t {
	case domain.InstructionOpen:
		return 0
	case domain.InstructionClaim:
		return 1
	case domain.InstructionClose:
		return 3
	}
	return 2
}
