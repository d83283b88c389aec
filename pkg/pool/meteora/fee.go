package meteora

import (
	"fmt"
	"math"
	"math/big"

	cosmosmath "cosmossdk.io/math"
	"github.com/yimingwow/dlmmquote/pkg/sol"
	"lukechampine.com/uint128"
)

// validateSwapActivation checks if the swap is allowed based on pair status and activation conditions
func (pair *LbPair) validateSwapActivation(clock sol.Clock) error {
	if pair.Status != uint8(PairStatusEnabled) {
		return fmt.Errorf("%w: pair is disabled", ErrValidation)
	}

	// For permissioned pairs, check activation point
	if pair.PairType == uint8(PairTypePermission) {
		var currentPoint uint64
		switch pair.ActivationType {
		case uint8(ActivationTypeSlot):
			currentPoint = clock.Slot
		case uint8(ActivationTypeTimestamp):
			currentPoint = clock.UnixTimestamp
		default:
			return fmt.Errorf("%w: invalid activation type %d", ErrValidation, pair.ActivationType)
		}
		if currentPoint < pair.ActivationPoint {
			return fmt.Errorf("%w: pair is not yet activated (current %d, activation point %d)",
				ErrValidation, currentPoint, pair.ActivationPoint)
		}
	}
	return nil
}

// UpdateReferences updates the volatility reference parameters based on elapsed time
func (pair *LbPair) UpdateReferences(currentTimestamp int64) error {
	elapsed := currentTimestamp - pair.VParameters.LastUpdateTimestamp
	if (currentTimestamp < 0) != (pair.VParameters.LastUpdateTimestamp < 0) &&
		(elapsed < 0) != (currentTimestamp < 0) {
		return fmt.Errorf("%w: elapsed time overflows i64", ErrArithmetic)
	}

	// Not high frequency trade
	if elapsed >= int64(pair.Parameters.FilterPeriod) {
		pair.VParameters.IndexReference = pair.ActiveID
		// filter period < t < decay period: decay the reference
		if elapsed < int64(pair.Parameters.DecayPeriod) {
			reference := uint64(pair.VParameters.VolatilityAccumulator) * uint64(pair.Parameters.ReductionFactor) / BasisPointMax
			if reference > math.MaxUint32 {
				return fmt.Errorf("%w: volatility reference %d overflows u32", ErrArithmetic, reference)
			}
			pair.VParameters.VolatilityReference = uint32(reference)
		} else {
			pair.VParameters.VolatilityReference = 0
		}
	}
	return nil
}

// UpdateVolatilityAccumulator updates the volatility accumulator from the distance
// between the active bin and the index reference
func (pair *LbPair) UpdateVolatilityAccumulator() error {
	deltaID := absInt64(int64(pair.VParameters.IndexReference) - int64(pair.ActiveID))
	accumulator, err := safeAdd(uint64(pair.VParameters.VolatilityReference), deltaID*BasisPointMax)
	if err != nil {
		return err
	}
	pair.VParameters.VolatilityAccumulator = uint32(min(accumulator, uint64(pair.Parameters.MaxVolatilityAccumulator)))
	return nil
}

// GetBaseFee returns baseFactor * binStep * 10 * 10^powerFactor
func (pair *LbPair) GetBaseFee() (*big.Int, error) {
	result := new(big.Int).SetUint64(uint64(pair.Parameters.BaseFactor))
	result.Mul(result, new(big.Int).SetUint64(uint64(pair.BinStep)))
	result.Mul(result, big.NewInt(10))
	powerOf10 := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(pair.Parameters.BaseFeePowerFactor)), nil)
	result.Mul(result, powerOf10)

	if result.BitLen() > 128 {
		return nil, fmt.Errorf("%w: base fee exceeds u128 range", ErrArithmetic)
	}
	return result, nil
}

// GetVariableFee gets the variable fee based on current volatility accumulator
func (pair *LbPair) GetVariableFee() (*big.Int, error) {
	return pair.ComputeVariableFee(pair.VParameters.VolatilityAccumulator)
}

// ComputeVariableFee returns ((va * binStep)^2 * variableFeeControl + 99_999_999_999) / 100_000_000_000
func (pair *LbPair) ComputeVariableFee(volatilityAccumulator uint32) (*big.Int, error) {
	if pair.Parameters.VariableFeeControl == 0 {
		return big.NewInt(0), nil
	}

	squareVfaBin := cosmosmath.NewIntFromUint64(uint64(volatilityAccumulator)).
		Mul(cosmosmath.NewIntFromUint64(uint64(pair.BinStep)))
	squareVfaBin = squareVfaBin.Mul(squareVfaBin)

	vFee := cosmosmath.NewIntFromUint64(uint64(pair.Parameters.VariableFeeControl)).Mul(squareVfaBin)
	scaledVFee := vFee.Add(cosmosmath.NewInt(VariableFeeOffset)).Quo(cosmosmath.NewInt(VariableFeeScale))
	if scaledVFee.BigInt().BitLen() > 128 {
		return nil, fmt.Errorf("%w: variable fee exceeds u128 range", ErrArithmetic)
	}
	return scaledVFee.BigInt(), nil
}

// GetTotalFee returns the fee rate in FeePrecision units, capped at MaxFeeRate
func (pair *LbPair) GetTotalFee() (uint64, error) {
	baseFee, err := pair.GetBaseFee()
	if err != nil {
		return 0, fmt.Errorf("failed to get base fee: %w", err)
	}
	variableFee, err := pair.GetVariableFee()
	if err != nil {
		return 0, fmt.Errorf("failed to get variable fee: %w", err)
	}
	totalFeeRate := new(big.Int).Add(baseFee, variableFee)
	if totalFeeRate.Cmp(big.NewInt(MaxFeeRate)) > 0 {
		return MaxFeeRate, nil
	}
	return totalFeeRate.Uint64(), nil
}

// ComputeFee returns the fee to charge on top of a fee-exclusive amount:
// ceil(amount * rate / (FeePrecision - rate))
func (pair *LbPair) ComputeFee(amount uint64) (uint64, error) {
	totalFeeRate, err := pair.GetTotalFee()
	if err != nil {
		return 0, err
	}
	denominator := new(big.Int).SetUint64(FeePrecision - totalFeeRate)
	fee, err := mulDiv(new(big.Int).SetUint64(amount), new(big.Int).SetUint64(totalFeeRate), denominator, RoundingUp)
	if err != nil {
		return 0, err
	}
	return castU64(fee)
}

// ComputeFeeFromAmount returns the fee contained in a fee-inclusive amount:
// ceil(amount * rate / FeePrecision)
func (pair *LbPair) ComputeFeeFromAmount(amountWithFees uint64) (uint64, error) {
	totalFeeRate, err := pair.GetTotalFee()
	if err != nil {
		return 0, err
	}
	fee, err := mulDiv(new(big.Int).SetUint64(amountWithFees), new(big.Int).SetUint64(totalFeeRate),
		big.NewInt(FeePrecision), RoundingUp)
	if err != nil {
		return 0, err
	}
	return castU64(fee)
}

// ComputeProtocolFee calculates the protocol fee from the total fee amount
func (pair *LbPair) ComputeProtocolFee(feeAmount uint64) (uint64, error) {
	protocolFee := uint128.From64(feeAmount).
		Mul64(uint64(pair.Parameters.ProtocolShare)).
		Div64(BasisPointMax)
	if protocolFee.Hi != 0 {
		return 0, fmt.Errorf("%w: protocol fee exceeds u64 range", ErrArithmetic)
	}
	return protocolFee.Lo, nil
}

// ComputeHostFee returns the referral share of a protocol fee. The result
// never exceeds the protocol fee it is carved from.
func ComputeHostFee(protocolFee uint64, hostFeeBps uint16) (uint64, error) {
	if hostFeeBps > BasisPointMax {
		return 0, fmt.Errorf("%w: host fee bps %d exceeds %d", ErrValidation, hostFeeBps, BasisPointMax)
	}
	hostFee := uint128.From64(protocolFee).Mul64(uint64(hostFeeBps)).Div64(BasisPointMax)
	return min(hostFee.Lo, protocolFee), nil
}

// AdvanceActiveBin moves the active bin one step in the swap direction,
// staying within the bin range configured on the pair
func (pair *LbPair) AdvanceActiveBin(swapForY bool) error {
	next := int64(pair.ActiveID) + 1
	if swapForY {
		next = int64(pair.ActiveID) - 1
	}
	if next < int64(pair.Parameters.MinBinID) || next > int64(pair.Parameters.MaxBinID) {
		return fmt.Errorf("%w: bin id %d out of range [%d, %d]",
			ErrLiquidityExhausted, next, pair.Parameters.MinBinID, pair.Parameters.MaxBinID)
	}
	pair.ActiveID = int32(next)
	return nil
}
