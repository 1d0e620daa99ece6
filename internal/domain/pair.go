package domain

// Pair is a DLMM pool. Immutable once fetched; keyed by Address.
// Corresponds to the dlmm_pairs table.
type Pair struct {
	Address    string
	Name       string
	MintX      string
	MintY      string
	BinStep    int // price step in basis points
	BaseFeeBps int
}

// Token is SPL mint metadata. Name, Symbol and Logo are nullable: mints
// resolved from the chain instead of the token list carry only decimals.
// Corresponds to the tokens table.
type Token struct {
	Address  string
	Name     *string
	Symbol   *string
	Decimals int
	Logo     *string
}
