package pool

import "errors"

var (
	ErrNotInitialized     = errors.New("pool not initialized")
	ErrAlreadyInitialized = errors.New("pool already initialized")
	ErrZeroAmount         = errors.New("amount specified is zero")
	ErrPriceLimitInvalid  = errors.New("sqrt price limit invalid")
	ErrInvalidFeeConfig   = errors.New("fee denominator out of bounds")
	ErrReentrant          = errors.New("reentrant call")
	ErrUnauthorized       = errors.New("caller not authorized")
	ErrInvalidTickRange   = errors.New("invalid tick range")
	ErrZeroLiquidity      = errors.New("liquidity must be greater than zero")

	// ErrInsufficientLiquidity is returned when a burn exceeds the
	// position's liquidity.
	ErrInsufficientLiquidity = errors.New("insufficient position liquidity")
)
