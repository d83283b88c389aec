package meteora

import (
	"fmt"
	"math/big"
	"math/bits"

	"lukechampine.com/uint128"
)

// Rounding selects the rounding direction of fixed point divisions
type Rounding uint8

const (
	RoundingUp Rounding = iota
	RoundingDown
)

var bigOne = big.NewInt(1)

func safeAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d overflows u64", ErrArithmetic, a, b)
	}
	return sum, nil
}

func safeSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d underflows u64", ErrArithmetic, a, b)
	}
	return diff, nil
}

// mulDiv computes x * y / denominator with the requested rounding
func mulDiv(x, y, denominator *big.Int, rounding Rounding) (*big.Int, error) {
	if denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmetic)
	}
	prod := new(big.Int).Mul(x, y)
	if rounding == RoundingUp {
		prod.Add(prod, denominator)
		prod.Sub(prod, bigOne)
	}
	return prod.Quo(prod, denominator), nil
}

// castU64 narrows a non-negative big integer to uint64
func castU64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit in u64", ErrArithmetic, v.String())
	}
	return v.Uint64(), nil
}

// castU128 narrows a non-negative big integer to uint128
func castU128(v *big.Int) (uint128.Uint128, error) {
	if v.Sign() < 0 || v.BitLen() > 128 {
		return uint128.Zero, fmt.Errorf("%w: %s does not fit in u128", ErrArithmetic, v.String())
	}
	return uint128.FromBig(v), nil
}

// SafeMulShrCast computes (x * y) >> offset and casts the result to uint64
func SafeMulShrCast(x, y *big.Int, offset uint, rounding Rounding) (uint64, error) {
	denominator := new(big.Int).Lsh(bigOne, offset)
	result, err := mulDiv(x, y, denominator, rounding)
	if err != nil {
		return 0, err
	}
	return castU64(result)
}

// SafeShlDivCast computes (x << offset) / y and casts the result to uint64
func SafeShlDivCast(x, y *big.Int, offset uint, rounding Rounding) (uint64, error) {
	numerator := new(big.Int).Lsh(x, offset)
	result, err := mulDiv(numerator, bigOne, y, rounding)
	if err != nil {
		return 0, err
	}
	return castU64(result)
}

// mulShrU128 multiplies two Q64.64 values, keeping the result in Q64.64
func mulShrU128(x, y uint128.Uint128) (uint128.Uint128, error) {
	prod := new(big.Int).Mul(x.Big(), y.Big())
	prod.Rsh(prod, ScaleOffset)
	return castU128(prod)
}

func absInt64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
