package dlmm

import (
	"crypto/sha256"

	solanago "github.com/gagliardetto/solana-go"

	"dlmm-ledger/internal/domain"
)

// ProgramID is the mainnet DLMM program.
var ProgramID = solanago.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")

// instructionTypes maps every position-lifecycle instruction name the
// program has ever shipped to its normalized type. Names absent from this
// map (swaps, pool admin, rewards) are skipped during classification. The
// set has grown with every program upgrade; additions here must also cover
// accountLayouts or fallbackLayouts.
var instructionTypes = map[string]domain.InstructionType{
	"initialize_position":             domain.InstructionOpen,
	"initialize_position_pda":         domain.InstructionOpen,
	"initialize_position_by_operator": domain.InstructionOpen,

	"rebalance_liquidity":                domain.InstructionAdd,
	"add_liquidity":                      domain.InstructionAdd,
	"add_liquidity2":                     domain.InstructionAdd,
	"add_liquidity_by_weight":            domain.InstructionAdd,
	"add_liquidity_by_strategy":          domain.InstructionAdd,
	"add_liquidity_by_strategy2":         domain.InstructionAdd,
	"add_liquidity_by_strategy_one_side": domain.InstructionAdd,
	"add_liquidity_one_side":             domain.InstructionAdd,
	"add_liquidity_one_side_precise":     domain.InstructionAdd,
	"add_liquidity_one_side_precise2":    domain.InstructionAdd,

	"remove_liquidity":           domain.InstructionRemove,
	"remove_liquidity2":          domain.InstructionRemove,
	"remove_all_liquidity":       domain.InstructionRemove,
	"remove_liquidity_by_range":  domain.InstructionRemove,
	"remove_liquidity_by_range2": domain.InstructionRemove,

	"claim_fee":  domain.InstructionClaim,
	"claim_fee2": domain.InstructionClaim,

	"close_position":          domain.InstructionClose,
	"close_position_if_empty": domain.InstructionClose,
	"close_position2":         domain.InstructionClose,

	// Retired v1 instruction. Stored under the camelCase name early program
	// IDLs reported so the ledger's one-sided-removal handling lines up with
	// rows ingested before the rename.
	"removeLiquiditySingleSide": domain.InstructionRemove,
}

// wireNames overrides the name hashed into the discriminator where it
// differs from the stored name.
var wireNames = map[string]string{
	"removeLiquiditySingleSide": "remove_liquidity_single_side",
}

// anchorDiscriminator computes the 8-byte instruction discriminator,
// sha256("global:<name>")[:8].
func anchorDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// eventDiscriminator computes the 8-byte event discriminator,
// sha256("event:<name>")[:8].
func eventDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("event:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// discriminators indexes tracked instruction names by wire discriminator.
var discriminators = func() map[[8]byte]string {
	m := make(map[[8]byte]string, len(instructionTypes))
	for name := range instructionTypes {
		wire := name
		if w, ok := wireNames[name]; ok {
			wire = w
		}
		m[anchorDiscriminator(wire)] = name
	}
	return m
}()
