package model

// Event is a single emitted pool event. Seq is assigned by the consumer that
// journals the event stream; Data holds one of the typed payloads below.
type Event struct {
	Seq  uint64 `json:"seq"`
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event type tags.
const (
	EventPoolInitialized       = "pool_initialized"
	EventSwapExecuted          = "swap_executed"
	EventLiquidityMinted       = "liquidity_minted"
	EventLiquidityBurned       = "liquidity_burned"
	EventFeesCollected         = "fees_collected"
	EventFeeConfigChanged      = "fee_config_changed"
	EventReferrerFeeAccrued    = "referrer_fee_accrued"
	EventReferrerFeesCollected = "referrer_fees_collected"
	EventProtocolFeeAccrued    = "protocol_fee_accrued"
	EventProtocolFeesCollected = "protocol_fees_collected"
)

// PoolInitializedEvent records the starting price of the pool.
type PoolInitializedEvent struct {
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int    `json:"tick"`
}

// SwapExecutedEvent records a completed swap. Amounts are signed decimal
// strings: positive means the pool received, negative means the pool paid.
type SwapExecutedEvent struct {
	Sender       string `json:"sender"`
	Recipient    string `json:"recipient"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Liquidity    string `json:"liquidity"`
	Tick         int    `json:"tick"`
}

// LiquidityMintedEvent records a position liquidity increase.
type LiquidityMintedEvent struct {
	Owner     string `json:"owner"`
	TickLower int    `json:"tick_lower"`
	TickUpper int    `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// LiquidityBurnedEvent records a position liquidity decrease.
type LiquidityBurnedEvent struct {
	Owner     string `json:"owner"`
	TickLower int    `json:"tick_lower"`
	TickUpper int    `json:"tick_upper"`
	Amount    string `json:"amount"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// FeesCollectedEvent records a position fee/principal collection.
type FeesCollectedEvent struct {
	Owner     string `json:"owner"`
	Recipient string `json:"recipient"`
	TickLower int    `json:"tick_lower"`
	TickUpper int    `json:"tick_upper"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}

// FeeConfigChangedEvent records a before/after fee denominator change.
// Kind is "protocol" or "referrer".
type FeeConfigChangedEvent struct {
	Kind    string `json:"kind"`
	Before0 uint8  `json:"before0"`
	Before1 uint8  `json:"before1"`
	After0  uint8  `json:"after0"`
	After1  uint8  `json:"after1"`
}

// ReferrerFeeAccruedEvent records a per-swap referrer accrual.
type ReferrerFeeAccruedEvent struct {
	Referrer string `json:"referrer"`
	Amount0  string `json:"amount0"`
	Amount1  string `json:"amount1"`
}

// ReferrerFeesCollectedEvent records a referrer self-service withdrawal.
type ReferrerFeesCollectedEvent struct {
	Referrer string `json:"referrer"`
	Amount0  string `json:"amount0"`
	Amount1  string `json:"amount1"`
}

// ProtocolFeeAccruedEvent records a per-swap protocol accrual, including
// referrer shares folded in when the referrer path was not permitted.
type ProtocolFeeAccruedEvent struct {
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

// ProtocolFeesCollectedEvent records an owner withdrawal of protocol fees.
type ProtocolFeesCollectedEvent struct {
	Recipient string `json:"recipient"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
}
