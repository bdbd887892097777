package pool

// FeeConfig holds the per-token protocol and referrer fee denominators.
// A denominator of zero disables that extraction; otherwise the share taken
// is feeAmount / denominator. The source platform packs each pair into a
// single byte, four bits per token; here they are plain fields but the valid
// ranges are the same.
type FeeConfig struct {
	ProtocolDenom0 uint8
	ProtocolDenom1 uint8
	ReferrerDenom0 uint8
	ReferrerDenom1 uint8
}

const (
	minProtocolFeeDenom = 2
	maxProtocolFeeDenom = 15
	minReferrerFeeDenom = 4
	maxReferrerFeeDenom = 15
)

func validProtocolDenom(d uint8) bool {
	return d == 0 || (d >= minProtocolFeeDenom && d <= maxProtocolFeeDenom)
}

func validReferrerDenom(d uint8) bool {
	return d == 0 || (d >= minReferrerFeeDenom && d <= maxReferrerFeeDenom)
}
