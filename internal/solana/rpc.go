package solana

import "context"

// RPCClient defines the Solana RPC surface the download pipeline consumes.
type RPCClient interface {
	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetParsedTransaction retrieves one transaction with jsonParsed encoding.
	// Returns nil when the transaction is unknown to the node.
	GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)

	// GetAccountInfo retrieves account info by public key.
	// Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}
