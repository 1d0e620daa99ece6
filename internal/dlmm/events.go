package dlmm

import (
	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"dlmm-ledger/internal/solana"
)

// liquidityEvent is the borsh payload of the AddLiquidity and RemoveLiquidity
// events, which share one layout.
type liquidityEvent struct {
	LbPair      solanago.PublicKey
	From        solanago.PublicKey
	Position    solanago.PublicKey
	Amounts     [2]uint64
	ActiveBinID int32
}

var (
	addLiquidityEventDisc    = eventDiscriminator("AddLiquidity")
	removeLiquidityEventDisc = eventDiscriminator("RemoveLiquidity")
)

// activeBinID scans the inner instructions beneath the outer instruction at
// index for a DLMM event CPI carrying the pool's active bin. Event CPIs are
// self-invocations whose data is an 8-byte instruction discriminator, an
// 8-byte event discriminator, then the borsh event payload. Returns nil when
// no matching event exists; the ledger interpolates those from neighbors.
func activeBinID(tx *solana.ParsedTransaction, index int) *int32 {
	if tx.Meta == nil || index == -1 {
		return nil
	}
	for _, inner := range tx.Meta.InnerInstructions {
		if inner.Index != index {
			continue
		}
		for _, ix := range inner.Instructions {
			if ix.ProgramID != ProgramID.String() || ix.Data == "" {
				continue
			}
			data, err := base58.Decode(ix.Data)
			if err != nil || len(data) < 16 {
				continue
			}
			var disc [8]byte
			copy(disc[:], data[8:16])
			if disc != addLiquidityEventDisc && disc != removeLiquidityEventDisc {
				continue
			}
			var event liquidityEvent
			if err := bin.NewBorshDecoder(data[16:]).Decode(&event); err != nil {
				continue
			}
			binID := event.ActiveBinID
			return &binID
		}
	}
	return nil
}
