package dlmm

import "dlmm-ledger/internal/domain"

// accountLayout gives the index of each logical account in an instruction's
// account list. An index of -1 means the layout does not carry that account.
// count pins the layout to one account-list shape; when the observed count
// differs the instruction predates this layout and resolution falls back to
// fallbackLayouts.
type accountLayout struct {
	count      int
	position   int
	lbPair     int
	sender     int
	tokenXMint int
	tokenYMint int
	userTokenX int
	userTokenY int
}

// accountLayouts holds the current program schema, one entry per tracked
// instruction name.
var accountLayouts = map[string]accountLayout{
	"initialize_position":             {count: 8, position: 1, lbPair: 2, sender: 3, tokenXMint: -1, tokenYMint: -1, userTokenX: -1, userTokenY: -1},
	"initialize_position_pda":         {count: 9, position: 2, lbPair: 3, sender: 4, tokenXMint: -1, tokenYMint: -1, userTokenX: -1, userTokenY: -1},
	"initialize_position_by_operator": {count: 11, position: 2, lbPair: 3, sender: 4, tokenXMint: -1, tokenYMint: -1, userTokenX: -1, userTokenY: -1},

	"add_liquidity":             {count: 16, position: 0, lbPair: 1, sender: 11, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},
	"add_liquidity_by_weight":   {count: 16, position: 0, lbPair: 1, sender: 11, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},
	"add_liquidity_by_strategy": {count: 16, position: 0, lbPair: 1, sender: 11, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},
	"remove_liquidity":          {count: 16, position: 0, lbPair: 1, sender: 11, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},
	"remove_all_liquidity":      {count: 16, position: 0, lbPair: 1, sender: 11, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},
	"remove_liquidity_by_range": {count: 16, position: 0, lbPair: 1, sender: 11, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},

	"add_liquidity2":             {count: 14, position: 0, lbPair: 1, sender: 9, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},
	"add_liquidity_by_strategy2": {count: 14, position: 0, lbPair: 1, sender: 9, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},
	"remove_liquidity2":          {count: 14, position: 0, lbPair: 1, sender: 9, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},
	"remove_liquidity_by_range2": {count: 14, position: 0, lbPair: 1, sender: 9, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},

	"add_liquidity_one_side":             {count: 12, position: 0, lbPair: 1, sender: 8, tokenXMint: 5, tokenYMint: -1, userTokenX: 3, userTokenY: -1},
	"add_liquidity_one_side_precise":     {count: 12, position: 0, lbPair: 1, sender: 8, tokenXMint: 5, tokenYMint: -1, userTokenX: 3, userTokenY: -1},
	"add_liquidity_by_strategy_one_side": {count: 12, position: 0, lbPair: 1, sender: 8, tokenXMint: 5, tokenYMint: -1, userTokenX: 3, userTokenY: -1},
	"add_liquidity_one_side_precise2":    {count: 10, position: 0, lbPair: 1, sender: 6, tokenXMint: 5, tokenYMint: -1, userTokenX: 3, userTokenY: -1},

	"rebalance_liquidity": {count: 15, position: 0, lbPair: 1, sender: 9, tokenXMint: 7, tokenYMint: 8, userTokenX: 3, userTokenY: 4},

	"claim_fee":  {count: 14, position: 1, lbPair: 0, sender: 4, tokenXMint: 9, tokenYMint: 10, userTokenX: 7, userTokenY: 8},
	"claim_fee2": {count: 14, position: 1, lbPair: 0, sender: 2, tokenXMint: 7, tokenYMint: 8, userTokenX: 5, userTokenY: 6},

	"close_position":          {count: 8, position: 0, lbPair: 1, sender: 4, tokenXMint: -1, tokenYMint: -1, userTokenX: -1, userTokenY: -1},
	"close_position2":         {count: 5, position: 0, lbPair: -1, sender: 1, tokenXMint: -1, tokenYMint: -1, userTokenX: -1, userTokenY: -1},
	"close_position_if_empty": {count: 5, position: 0, lbPair: -1, sender: 1, tokenXMint: -1, tokenYMint: -1, userTokenX: -1, userTokenY: -1},
}

// fallbackLayouts covers historical account-list shapes that predate
// accountLayouts. Indexes are pinned per shipped program version; changing
// them silently breaks old transactions, so every entry has a fixture test.
var fallbackLayouts = map[string]accountLayout{
	"initialize_position":             {position: 1, lbPair: 2, sender: 3},
	"initialize_position_pda":         {position: 0, lbPair: 1, sender: 2},
	"initialize_position_by_operator": {position: 0, lbPair: 1, sender: 2},

	"add_liquidity":                      {position: 0, lbPair: 1, sender: 7},
	"add_liquidity_by_strategy":          {position: 0, lbPair: 1, sender: 7},
	"add_liquidity_by_strategy_one_side": {position: 0, lbPair: 1, sender: 7},
	"add_liquidity_one_side":             {position: 0, lbPair: 1, sender: 8},
	"add_liquidity_one_side_precise":     {position: 0, lbPair: 1, sender: 8},
	"add_liquidity_by_weight":            {position: 0, lbPair: 1, sender: 11},
	"add_liquidity2":                     {position: 0, lbPair: 1, sender: 9},
	"add_liquidity_by_strategy2":         {position: 0, lbPair: 1, sender: 9},
	"add_liquidity_one_side_precise2":    {position: 0, lbPair: 1, sender: 6},

	"remove_liquidity":           {position: 0, lbPair: 1, sender: 7},
	"remove_all_liquidity":       {position: 0, lbPair: 1, sender: 7},
	"remove_liquidity_by_range":  {position: 0, lbPair: 1, sender: 7},
	"remove_liquidity2":          {position: 0, lbPair: 1, sender: 9},
	"remove_liquidity_by_range2": {position: 0, lbPair: 1, sender: 9},

	"claim_fee":  {position: 1, lbPair: 0, sender: 2},
	"claim_fee2": {position: 1, lbPair: 0, sender: 2},

	"close_position":          {position: 0, lbPair: -1, sender: 1},
	"close_position2":         {position: 0, lbPair: -1, sender: 1},
	"close_position_if_empty": {position: 0, lbPair: -1, sender: 1},
}

// defaultFallback is the shape shared by the oldest liquidity instructions.
var defaultFallback = accountLayout{position: 0, lbPair: 1, sender: 11}

// resolveAccounts maps an instruction's account list to logical addresses.
// The current-schema layout applies only when the account count matches;
// otherwise the version-pinned fallback for the name is used. A Hawksight
// wrapper account replaces the resolved sender. Close shapes without a pool
// account yield an empty LbPair for the downloader to backfill.
func resolveAccounts(name string, accounts []string, hawksightAccount string) domain.InstructionAccounts {
	layout, ok := accountLayouts[name]
	if !ok || layout.count != len(accounts) {
		layout, ok = fallbackLayouts[name]
		if !ok {
			layout = defaultFallback
		}
		layout.tokenXMint, layout.tokenYMint = -1, -1
		layout.userTokenX, layout.userTokenY = -1, -1
	}

	resolved := domain.InstructionAccounts{
		Position:   accountAt(accounts, layout.position),
		LbPair:     accountAt(accounts, layout.lbPair),
		Sender:     accountAt(accounts, layout.sender),
		TokenXMint: accountAt(accounts, layout.tokenXMint),
		TokenYMint: accountAt(accounts, layout.tokenYMint),
		UserTokenX: accountAt(accounts, layout.userTokenX),
		UserTokenY: accountAt(accounts, layout.userTokenY),
	}
	if hawksightAccount != "" {
		resolved.Sender = hawksightAccount
	}
	return resolved
}

func accountAt(accounts []string, i int) string {
	if i < 0 || i >= len(accounts) {
		return ""
	}
	return accounts[i]
}
