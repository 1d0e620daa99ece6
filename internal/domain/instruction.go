package domain

// InstructionType is the normalized lifecycle category of a position
// instruction. The on-chain program has shipped many instruction names over
// its versions; every name collapses into one of these five types.
type InstructionType string

const (
	InstructionOpen   InstructionType = "open"
	InstructionAdd    InstructionType = "add"
	InstructionClaim  InstructionType = "claim"
	InstructionRemove InstructionType = "remove"
	InstructionClose  InstructionType = "close"
)

// Priority orders instructions sharing a block time: open must sort before
// any activity on the position, close after everything.
func (t InstructionType) Priority() int {
	switch t {
	case InstructionOpen:
		return 1
	case InstructionAdd:
		return 2
	case InstructionClaim:
		return 3
	case InstructionRemove:
		return 4
	case InstructionClose:
		return 5
	}
	return 0
}

// InstructionAccounts holds the resolved account addresses for one
// instruction. LbPair may be empty for close instructions parsed from legacy
// shapes; the downloader backfills it from earlier instructions on the same
// position.
type InstructionAccounts struct {
	Position   string // position account address
	LbPair     string // pool address
	Sender     string // owner wallet
	TokenXMint string
	TokenYMint string
	UserTokenX string // owner's token X account
	UserTokenY string // owner's token Y account
}

// TokenTransfer is one SPL token movement attributed to an instruction.
// Amount is in raw integer units, not UI units.
type TokenTransfer struct {
	Mint   string
	Amount uint64
}

// Instruction is one observed position instruction invocation.
// Corresponds to the instructions table; (Signature, Name, Position) is the
// dedup key.
type Instruction struct {
	Signature   string
	Slot        uint64
	BlockTime   int64 // unix seconds
	IsHawksight bool  // invoked through the Hawksight wrapper program
	Name        string
	Type        InstructionType
	Accounts    InstructionAccounts
	Transfers   []TokenTransfer
	ActiveBinID *int32 // nil when the instruction moved no tokens
	RemovalBps  *int32 // nil unless the instruction removes liquidity
}
