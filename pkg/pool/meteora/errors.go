package meteora

import "errors"

// Error classes returned by the engine. Concrete errors wrap one of these and
// can be classified with errors.Is.
var (
	// ErrValidation rejects a request before any traversal: disabled pair,
	// pair not yet activated, malformed request.
	ErrValidation = errors.New("validation error")
	// ErrState flags inconsistent or incomplete snapshot data.
	ErrState = errors.New("state error")
	// ErrArithmetic is any checked overflow, underflow or division by zero.
	ErrArithmetic = errors.New("arithmetic error")
	// ErrLiquidityExhausted means the pool cannot fill the requested size.
	ErrLiquidityExhausted = errors.New("liquidity exhausted")
	// ErrIterationLimitExceeded means the traversal visited more bins than allowed.
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")
)
