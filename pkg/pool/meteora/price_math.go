package meteora

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"
)

// GetPriceFromID returns the Q64.64 price of a bin: (1 + binStep/10000)^binID.
//
// Some ports of this routine multiply instead of exponentiating; prices here
// always compound per bin, which is the only form consistent with a constant
// percentage step between adjacent bins.
func GetPriceFromID(binID int32, binStep uint16) (uint128.Uint128, error) {
	if binStep == 0 {
		return uint128.Zero, fmt.Errorf("%w: bin step is zero", ErrState)
	}
	bps := uint128.From64(uint64(binStep)).Lsh(ScaleOffset).Div64(BasisPointMax)
	base, err := castU128(new(big.Int).Add(One.Big(), bps.Big()))
	if err != nil {
		return uint128.Zero, err
	}
	return Pow(base, binID)
}

// Pow raises a Q64.64 base to a signed integer exponent by squaring.
// Bases of at least 1.0 are inverted first so every intermediate product stays
// below 2^128, and the result is inverted back at the end.
func Pow(base uint128.Uint128, exp int32) (uint128.Uint128, error) {
	if exp == 0 {
		return One, nil
	}
	invert := exp < 0
	absExp := absInt64(int64(exp))
	if absExp >= MaxExponential {
		return uint128.Zero, fmt.Errorf("%w: exponent %d out of range", ErrArithmetic, exp)
	}
	if base.IsZero() {
		return uint128.Zero, fmt.Errorf("%w: zero base", ErrArithmetic)
	}

	squaredBase := base
	result := One
	if squaredBase.Cmp(result) >= 0 {
		squaredBase = uint128.Max.Div(squaredBase)
		invert = !invert
	}

	var err error
	for bit := uint64(1); bit < MaxExponential; bit <<= 1 {
		if absExp&bit != 0 {
			if result, err = mulShrU128(result, squaredBase); err != nil {
				return uint128.Zero, err
			}
		}
		if squaredBase, err = mulShrU128(squaredBase, squaredBase); err != nil {
			return uint128.Zero, err
		}
	}

	if result.IsZero() {
		return uint128.Zero, fmt.Errorf("%w: price underflow for exponent %d", ErrArithmetic, exp)
	}
	if invert {
		result = uint128.Max.Div(result)
	}
	return result, nil
}

// GetIDFromPrice returns the bin id whose price is closest to the given Q64.64
// price, rounding down (or up when roundUp is set) when it falls between bins.
func GetIDFromPrice(price uint128.Uint128, binStep uint16, roundUp bool) (int32, error) {
	if price.IsZero() {
		return 0, fmt.Errorf("%w: zero price", ErrArithmetic)
	}
	if binStep == 0 {
		return 0, fmt.Errorf("%w: bin step is zero", ErrState)
	}

	ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(price.Big()), new(big.Float).SetInt(One.Big())).Float64()
	estimate := math.Floor(math.Log(ratio) / math.Log1p(float64(binStep)/BasisPointMax))
	if estimate < MinBinID {
		estimate = MinBinID
	}
	if estimate > MaxBinID {
		estimate = MaxBinID
	}
	id := int32(estimate)

	// the float estimate may be off by one in either direction
	for id > MinBinID {
		p, err := GetPriceFromID(id, binStep)
		if err != nil {
			return 0, err
		}
		if p.Cmp(price) <= 0 {
			break
		}
		id--
	}
	for id < MaxBinID {
		p, err := GetPriceFromID(id+1, binStep)
		if err != nil {
			return 0, err
		}
		if p.Cmp(price) > 0 {
			break
		}
		id++
	}

	if roundUp {
		p, err := GetPriceFromID(id, binStep)
		if err != nil {
			return 0, err
		}
		if !p.Equals(price) && id < MaxBinID {
			id++
		}
	}
	return id, nil
}

// PriceToDecimal converts a Q64.64 price (Y per X in base units) into a UI
// price adjusted for token decimals
func PriceToDecimal(price uint128.Uint128, decimalsX, decimalsY uint8) decimal.Decimal {
	raw := decimal.NewFromBigInt(price.Big(), 0).Div(decimal.NewFromBigInt(One.Big(), 0))
	return raw.Shift(int32(decimalsX) - int32(decimalsY))
}
