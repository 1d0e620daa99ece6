package solana

import "encoding/json"

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// ParsedTransaction is a transaction fetched with jsonParsed encoding.
type ParsedTransaction struct {
	Slot        uint64      `json:"slot"`
	BlockTime   *int64      `json:"blockTime"`
	Meta        *ParsedMeta `json:"meta"`
	Transaction *ParsedTx   `json:"transaction"`
}

// ParsedTx is the inner transaction envelope.
type ParsedTx struct {
	Signatures []string      `json:"signatures"`
	Message    ParsedMessage `json:"message"`
}

// ParsedMeta carries execution results and inner instructions.
type ParsedMeta struct {
	Err               interface{}           `json:"err"`
	InnerInstructions []InnerInstructionSet `json:"innerInstructions"`
}

// InnerInstructionSet groups the inner instructions emitted under the outer
// instruction at Index.
type InnerInstructionSet struct {
	Index        int                 `json:"index"`
	Instructions []ParsedInstruction `json:"instructions"`
}

// ParsedMessage is the jsonParsed transaction message. AccountKeys already
// include addresses resolved from lookup tables.
type ParsedMessage struct {
	AccountKeys  []AccountKey        `json:"accountKeys"`
	Instructions []ParsedInstruction `json:"instructions"`
}

// AccountKey is one entry of the resolved account key list.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// ParsedInstruction is one instruction in jsonParsed form. Instructions of
// programs the node understands carry Parsed and an empty Data; everything
// else is partially decoded with base58 Data and raw account addresses.
type ParsedInstruction struct {
	Program     string          `json:"program,omitempty"`
	ProgramID   string          `json:"programId"`
	Accounts    []string        `json:"accounts,omitempty"`
	Data        string          `json:"data,omitempty"`
	Parsed      json.RawMessage `json:"parsed,omitempty"`
	StackHeight *int            `json:"stackHeight,omitempty"`
}

// TokenInstruction is the parsed payload of an spl-token instruction.
type TokenInstruction struct {
	Type string          `json:"type"`
	Info json.RawMessage `json:"info"`
}

// TokenAmount mirrors the RPC uiTokenAmount shape. Amount is the raw
// integer amount as a decimal string.
type TokenAmount struct {
	Amount   string   `json:"amount"`
	Decimals int      `json:"decimals"`
	UIAmount *float64 `json:"uiAmount"`
}

// TransferCheckedInfo is the info payload of a transferChecked instruction.
type TransferCheckedInfo struct {
	Mint        string      `json:"mint"`
	Source      string      `json:"source"`
	Destination string      `json:"destination"`
	Authority   string      `json:"authority"`
	TokenAmount TokenAmount `json:"tokenAmount"`
}

// TransferInfo is the info payload of a plain transfer instruction, which
// carries no mint.
type TransferInfo struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Authority   string `json:"authority"`
	Amount      string `json:"amount"`
}

// TokenTransfer unmarshals the instruction's parsed payload when it is an
// spl-token transferChecked or transfer. Returns nil for anything else.
func (ix *ParsedInstruction) TokenTransfer() (*TokenInstruction, error) {
	if ix.Program != "spl-token" || len(ix.Parsed) == 0 {
		return nil, nil
	}
	var parsed TokenInstruction
	if err := json.Unmarshal(ix.Parsed, &parsed); err != nil {
		return nil, err
	}
	if parsed.Type != "transferChecked" && parsed.Type != "transfer" {
		return nil, nil
	}
	return &parsed, nil
}

// AccountInfo represents Solana account information with base64 data.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       string // base64 encoded
	Executable bool
	RentEpoch  uint64
}
