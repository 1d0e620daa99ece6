package domain

// PositionTransaction is one reconstructed ledger row: every instruction for
// a (signature, position) collapsed into deposit/withdrawal/fee amounts with
// running balance, per-period impermanent loss and P&L. Produced by the
// v_transactions view, never stored.
type PositionTransaction struct {
	BlockTime       int64
	IsHawksight     bool
	Signature       string
	PositionAddress string
	OwnerAddress    string
	PairAddress     string

	BaseMint      string
	BaseSymbol    *string
	BaseDecimals  int
	BaseLogo      *string
	QuoteMint     string
	QuoteSymbol   *string
	QuoteDecimals int
	QuoteLogo     *string
	IsInverted    bool

	RemovalBps        int32
	IsOneSidedRemoval bool
	PositionIsOpen    bool

	Price           float64
	FeeAmount       float64
	Deposit         float64
	Withdrawal      float64
	PositionBalance float64
	ImpermanentLoss float64
	PnL             float64

	UsdFeeAmount       float64
	UsdDeposit         float64
	UsdWithdrawal      float64
	UsdPositionBalance float64
	UsdImpermanentLoss float64
	UsdPnL             float64
}

// UsdAmount is the USD value of one side of a position transaction as
// reported by the pricing service.
type UsdAmount struct {
	Signature string
	TokenXUsd float64
	TokenYUsd float64
}

// PositionUsd groups the priced sub-transactions of one position, one fetch
// covers all three kinds.
type PositionUsd struct {
	Deposits    []UsdAmount
	Withdrawals []UsdAmount
	Fees        []UsdAmount
}
