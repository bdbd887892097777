package model

// Operation is one line of a replay input stream. Kind selects which fields
// are meaningful; numeric amounts are decimal strings so arbitrary-precision
// values survive JSON.
type Operation struct {
	Kind              string `json:"kind"`
	Caller            string `json:"caller"`
	Recipient         string `json:"recipient,omitempty"`
	Referrer          string `json:"referrer,omitempty"`
	ZeroForOne        bool   `json:"zero_for_one,omitempty"`
	AmountSpecified   string `json:"amount_specified,omitempty"`
	SqrtPriceLimitX96 string `json:"sqrt_price_limit_x96,omitempty"`
	SqrtPriceX96      string `json:"sqrt_price_x96,omitempty"`
	TickLower         int    `json:"tick_lower,omitempty"`
	TickUpper         int    `json:"tick_upper,omitempty"`
	Amount            string `json:"amount,omitempty"`
	Amount0Requested  string `json:"amount0_requested,omitempty"`
	Amount1Requested  string `json:"amount1_requested,omitempty"`
	FeeDenom0         uint8  `json:"fee_denom0,omitempty"`
	FeeDenom1         uint8  `json:"fee_denom1,omitempty"`
}

// Operation kinds.
const (
	OpInitialize      = "initialize"
	OpSwap            = "swap"
	OpMint            = "mint"
	OpBurn            = "burn"
	OpCollect         = "collect"
	OpCollectReferrer = "collect_referrer"
	OpCollectProtocol = "collect_protocol"
	OpSetReferrerFee  = "set_referrer_fee"
	OpSetProtocolFee  = "set_protocol_fee"
)

// ApplyResult is the outcome of applying one operation.
type ApplyResult struct {
	Index   uint64 `json:"index"`
	Kind    string `json:"kind"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Amount0 string `json:"amount0,omitempty"`
	Amount1 string `json:"amount1,omitempty"`
}

// PoolSnapshot is a point-in-time view of persisted pool state.
type PoolSnapshot struct {
	Token0               string `json:"token0"`
	Token1               string `json:"token1"`
	FeePips              uint32 `json:"fee_pips"`
	TickSpacing          int    `json:"tick_spacing"`
	SqrtPriceX96         string `json:"sqrt_price_x96"`
	Tick                 int    `json:"tick"`
	Liquidity            string `json:"liquidity"`
	FeeGrowthGlobal0X128 string `json:"fee_growth_global0_x128"`
	FeeGrowthGlobal1X128 string `json:"fee_growth_global1_x128"`
	Balance0             string `json:"balance0"`
	Balance1             string `json:"balance1"`
	ProtocolFees0        string `json:"protocol_fees0"`
	ProtocolFees1        string `json:"protocol_fees1"`
	ProtocolFeeDenom0    uint8  `json:"protocol_fee_denom0"`
	ProtocolFeeDenom1    uint8  `json:"protocol_fee_denom1"`
	ReferrerFeeDenom0    uint8  `json:"referrer_fee_denom0"`
	ReferrerFeeDenom1    uint8  `json:"referrer_fee_denom1"`
	InitializedTicks     int    `json:"initialized_ticks"`
	Positions            int    `json:"positions"`
}

// RunSummary aggregates a replay run for reporting and persistence.
type RunSummary struct {
	RunName     string `json:"run_name"`
	Operations  uint64 `json:"operations"`
	Failed      uint64 `json:"failed"`
	SwapCount   uint64 `json:"swap_count"`
	Volume0     string `json:"volume0"`
	Volume1     string `json:"volume1"`
	Fees0       string `json:"fees0"`
	Fees1       string `json:"fees1"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
}
