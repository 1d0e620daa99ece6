package dlmm

import (
	bin "github.com/gagliardetto/binary"
)

// binLiquidityReduction mirrors the program's per-bin removal argument.
type binLiquidityReduction struct {
	BinID       int32
	BpsToRemove uint16
}

// removalBps extracts the basis points removed from a remove instruction's
// decoded argument data (discriminator already stripped). remove_liquidity
// takes a vector of per-bin reductions and the first entry's bps applies to
// the whole removal; the by_range variants take from/to bin ids then bps.
// Instruction shapes without an explicit bps field are full removals.
func removalBps(name string, args []byte) int32 {
	const fullRemoval = 10000

	switch name {
	case "remove_liquidity", "remove_liquidity2":
		var reductions []binLiquidityReduction
		if err := bin.NewBorshDecoder(args).Decode(&reductions); err != nil || len(reductions) == 0 {
			return fullRemoval
		}
		return int32(reductions[0].BpsToRemove)

	case "remove_liquidity_by_range", "remove_liquidity_by_range2":
		var rangeArgs struct {
			FromBinID   int32
			ToBinID     int32
			BpsToRemove uint16
		}
		if err := bin.NewBorshDecoder(args).Decode(&rangeArgs); err != nil {
			return fullRemoval
		}
		return int32(rangeArgs.BpsToRemove)
	}

	return fullRemoval
}
