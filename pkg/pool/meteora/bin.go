package meteora

import (
	"fmt"
	"math/big"

	"lukechampine.com/uint128"
)

// Bin represents a liquidity bin in the Meteora DLMM protocol.
// Each bin holds reserves for a single price level.
type Bin struct {
	AmountX uint64
	AmountY uint64
	// Price is the Q64.64 price of the bin, zero until first computed
	Price                    uint128.Uint128
	LiquiditySupply          uint128.Uint128
	RewardPerTokenStored     [2]uint128.Uint128
	FeeAmountXPerTokenStored uint128.Uint128
	FeeAmountYPerTokenStored uint128.Uint128
	AmountXIn                uint128.Uint128
	AmountYIn                uint128.Uint128
}

// FeeModel computes trading fees for a single bin fill
type FeeModel interface {
	// ComputeFee returns the fee to add on top of a fee-exclusive amount
	ComputeFee(amount uint64) (uint64, error)
	// ComputeFeeFromAmount returns the fee contained in a fee-inclusive amount
	ComputeFeeFromAmount(amountWithFees uint64) (uint64, error)
	// ComputeProtocolFee returns the protocol share of a trading fee
	ComputeProtocolFee(fee uint64) (uint64, error)
}

// SwapResult represents the result of a swap against a single bin
type SwapResult struct {
	// Amount of token swapped into the bin (including fees)
	AmountInWithFees uint64
	// Amount of token swapped out from the bin
	AmountOut uint64
	// Swap fee, includes protocol and host fee
	Fee uint64
	// Protocol fee portion, net of host fee
	ProtocolFee uint64
	// Host (referral) fee carved out of the protocol fee
	HostFee uint64
}

// IsEmpty checks if the bin is empty for the specified token
func (bin *Bin) IsEmpty(isX bool) bool {
	if isX {
		return bin.AmountX == 0
	}
	return bin.AmountY == 0
}

// GetMaxAmountOut returns the maximum amount that can be swapped out for the given direction
func (bin *Bin) GetMaxAmountOut(swapForY bool) uint64 {
	if swapForY {
		return bin.AmountY
	}
	return bin.AmountX
}

// GetMaxAmountIn returns the fee-exclusive input that drains the bin, rounding up
func (bin *Bin) GetMaxAmountIn(price uint128.Uint128, swapForY bool) (uint64, error) {
	if swapForY {
		// amountY << SCALE_OFFSET / price
		return SafeShlDivCast(new(big.Int).SetUint64(bin.AmountY), price.Big(), ScaleOffset, RoundingUp)
	}
	// amountX * price >> SCALE_OFFSET
	return SafeMulShrCast(new(big.Int).SetUint64(bin.AmountX), price.Big(), ScaleOffset, RoundingUp)
}

// GetAmountOut converts a fee-exclusive input into output at the bin price, rounding down
func GetAmountOut(amountIn uint64, price uint128.Uint128, swapForY bool) (uint64, error) {
	if swapForY {
		return SafeMulShrCast(price.Big(), new(big.Int).SetUint64(amountIn), ScaleOffset, RoundingDown)
	}
	return SafeShlDivCast(new(big.Int).SetUint64(amountIn), price.Big(), ScaleOffset, RoundingDown)
}

// GetAmountIn returns the fee-exclusive input needed for an exact output, rounding up
func GetAmountIn(amountOut uint64, price uint128.Uint128, swapForY bool) (uint64, error) {
	if swapForY {
		return SafeShlDivCast(new(big.Int).SetUint64(amountOut), price.Big(), ScaleOffset, RoundingUp)
	}
	return SafeMulShrCast(new(big.Int).SetUint64(amountOut), price.Big(), ScaleOffset, RoundingUp)
}

// GetOrStoreBinPrice returns the cached bin price, computing and storing it on first use
func (bin *Bin) GetOrStoreBinPrice(id int32, binStep uint16) (uint128.Uint128, error) {
	if bin.Price.IsZero() {
		price, err := GetPriceFromID(id, binStep)
		if err != nil {
			return uint128.Zero, fmt.Errorf("failed to get price from id: %w", err)
		}
		bin.Price = price
	}
	return bin.Price, nil
}

// Swap fills as much of amountIn as this bin can absorb and moves the reserves.
// hostFeeBps, when set, is the share of the protocol fee paid to a referrer.
func (bin *Bin) Swap(amountIn uint64, price uint128.Uint128, swapForY bool, fees FeeModel, hostFeeBps *uint16) (*SwapResult, error) {
	maxAmountOut := bin.GetMaxAmountOut(swapForY)
	maxAmountIn, err := bin.GetMaxAmountIn(price, swapForY)
	if err != nil {
		return nil, fmt.Errorf("failed to get max amount in: %w", err)
	}
	maxFee, err := fees.ComputeFee(maxAmountIn)
	if err != nil {
		return nil, fmt.Errorf("failed to compute max fee: %w", err)
	}
	if maxAmountIn, err = safeAdd(maxAmountIn, maxFee); err != nil {
		return nil, err
	}

	var amountInWithFees, amountOut, fee uint64
	if amountIn >= maxAmountIn {
		amountInWithFees = maxAmountIn
		amountOut = maxAmountOut
		fee = maxFee
	} else {
		fee, err = fees.ComputeFeeFromAmount(amountIn)
		if err != nil {
			return nil, fmt.Errorf("failed to compute fee from amount: %w", err)
		}
		amountInAfterFee, err := safeSub(amountIn, fee)
		if err != nil {
			return nil, err
		}
		out, err := GetAmountOut(amountInAfterFee, price, swapForY)
		if err != nil {
			return nil, fmt.Errorf("failed to get amount out: %w", err)
		}
		amountInWithFees = amountIn
		amountOut = min(out, maxAmountOut)
	}

	protocolFee, err := fees.ComputeProtocolFee(fee)
	if err != nil {
		return nil, fmt.Errorf("failed to compute protocol fee: %w", err)
	}
	var hostFee uint64
	if hostFeeBps != nil {
		if hostFee, err = ComputeHostFee(protocolFee, *hostFeeBps); err != nil {
			return nil, err
		}
		protocolFee -= hostFee
	}

	amountIntoBin, err := safeSub(amountInWithFees, fee)
	if err != nil {
		return nil, err
	}
	if swapForY {
		if bin.AmountX, err = safeAdd(bin.AmountX, amountIntoBin); err != nil {
			return nil, err
		}
		if bin.AmountY, err = safeSub(bin.AmountY, amountOut); err != nil {
			return nil, err
		}
	} else {
		if bin.AmountY, err = safeAdd(bin.AmountY, amountIntoBin); err != nil {
			return nil, err
		}
		if bin.AmountX, err = safeSub(bin.AmountX, amountOut); err != nil {
			return nil, err
		}
	}

	return &SwapResult{
		AmountInWithFees: amountInWithFees,
		AmountOut:        amountOut,
		Fee:              fee,
		ProtocolFee:      protocolFee,
		HostFee:          hostFee,
	}, nil
}

// CreditFee adds the liquidity provider share of a fee to the per-token
// accumulator of the input side: fee << 64 / liquiditySupply.
func (bin *Bin) CreditFee(lpFee uint64, isX bool) error {
	if lpFee == 0 || bin.LiquiditySupply.IsZero() {
		return nil
	}
	perToken := new(big.Int).Lsh(new(big.Int).SetUint64(lpFee), ScaleOffset)
	perToken.Quo(perToken, bin.LiquiditySupply.Big())

	stored := bin.FeeAmountYPerTokenStored
	if isX {
		stored = bin.FeeAmountXPerTokenStored
	}
	updated, err := castU128(perToken.Add(perToken, stored.Big()))
	if err != nil {
		return err
	}
	if isX {
		bin.FeeAmountXPerTokenStored = updated
	} else {
		bin.FeeAmountYPerTokenStored = updated
	}
	return nil
}

// RecordAmountIn accumulates the fee-inclusive input swapped into the bin
func (bin *Bin) RecordAmountIn(amountInWithFees uint64, isX bool) error {
	total := new(big.Int).SetUint64(amountInWithFees)
	if isX {
		total.Add(total, bin.AmountXIn.Big())
	} else {
		total.Add(total, bin.AmountYIn.Big())
	}
	updated, err := castU128(total)
	if err != nil {
		return err
	}
	if isX {
		bin.AmountXIn = updated
	} else {
		bin.AmountYIn = updated
	}
	return nil
}
