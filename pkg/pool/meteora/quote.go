package meteora

import (
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/yimingwow/dlmmquote/pkg/transferfee"
)

// QuoteOptions tunes a single quote or swap
type QuoteOptions struct {
	// MaxBinArrays bounds the traversal to MaxBinArrays * MaxBinPerArray bin
	// visits. Zero selects DefaultMaxBinArrays.
	MaxBinArrays int
	// HostFeeBps, when set, routes that share of the protocol fee to a referrer
	HostFeeBps *uint16
}

// QuoteResult describes the outcome of a quote. Amounts are what the trader
// sends and receives, so they include token transfer fees.
type QuoteResult struct {
	AmountIn  uint64
	AmountOut uint64
	// Fee is the total trading fee, protocol and host shares included
	Fee         uint64
	ProtocolFee uint64
	HostFee     uint64
	// Token-2022 transfer fees withheld on the way in and out
	TransferFeeIn  uint64
	TransferFeeOut uint64
	StartBinID     int32
	EndBinID       int32
	BinsVisited    int
}

// traversal walks bins of a working copy of the pool. The snapshot it was
// created from is never written.
type traversal struct {
	pool       *MeteoraDlmmPool
	pair       LbPair
	swapForY   bool
	hostFeeBps *uint16
	binArrays  map[int64]*BinArray
	current    *BinArray
	visits     int
	maxVisits  int
}

func (pool *MeteoraDlmmPool) newTraversal(swapForY bool, opts QuoteOptions) (*traversal, error) {
	if opts.HostFeeBps != nil && *opts.HostFeeBps > BasisPointMax {
		return nil, fmt.Errorf("%w: host fee bps %d exceeds %d", ErrValidation, *opts.HostFeeBps, BasisPointMax)
	}
	if opts.MaxBinArrays < 0 {
		return nil, fmt.Errorf("%w: negative max bin arrays %d", ErrValidation, opts.MaxBinArrays)
	}
	maxBinArrays := opts.MaxBinArrays
	if maxBinArrays == 0 {
		maxBinArrays = DefaultMaxBinArrays
	}
	if err := pool.Pair.validateSwapActivation(pool.Clock); err != nil {
		return nil, fmt.Errorf("swap activation validation failed: %w", err)
	}
	if pool.Pair.BinStep == 0 {
		return nil, fmt.Errorf("%w: pair %s has zero bin step", ErrState, pool.PoolId)
	}
	if activeID := pool.Pair.ActiveID; activeID < pool.Pair.Parameters.MinBinID || activeID > pool.Pair.Parameters.MaxBinID {
		return nil, fmt.Errorf("%w: active bin %d of pair %s outside [%d, %d]", ErrState,
			activeID, pool.PoolId, pool.Pair.Parameters.MinBinID, pool.Pair.Parameters.MaxBinID)
	}

	t := &traversal{
		pool:       pool,
		pair:       pool.Pair,
		swapForY:   swapForY,
		hostFeeBps: opts.HostFeeBps,
		binArrays:  make(map[int64]*BinArray),
		maxVisits:  maxBinArrays * MaxBinPerArray,
	}
	if err := t.pair.UpdateReferences(int64(pool.Clock.UnixTimestamp)); err != nil {
		return nil, fmt.Errorf("failed to update references: %w", err)
	}
	return t, nil
}

// binArray returns the working copy of a bin array, cloning it from the snapshot on first use
func (t *traversal) binArray(index int64) (*BinArray, error) {
	if binArray, ok := t.binArrays[index]; ok {
		return binArray, nil
	}
	snapshot, ok := t.pool.BinArrays[index]
	if !ok {
		return nil, fmt.Errorf("%w: bin array %d of pool %s marked populated but missing from snapshot",
			ErrState, index, t.pool.PoolId)
	}
	binArray := snapshot
	t.binArrays[index] = &binArray
	return &binArray, nil
}

// activeBin positions the traversal on the array holding the active bin and
// returns that bin. When the active array is empty the active bin jumps to
// the nearest edge of the next populated array.
func (t *traversal) activeBin() (*Bin, error) {
	withinRange := false
	if t.current != nil {
		var err error
		if withinRange, err = t.current.IsBinIDWithinRange(t.pair.ActiveID); err != nil {
			return nil, err
		}
	}
	if !withinRange {
		start := BinIDToBinArrayIndex(t.pair.ActiveID)
		next := NextPopulatedBinArrays(t.pair.Bitmap(), t.pool.BitmapExtension, start, t.swapForY, 1)
		if len(next) == 0 {
			return nil, fmt.Errorf("%w: no populated bin array from index %d", ErrLiquidityExhausted, start)
		}
		binArray, err := t.binArray(next[0])
		if err != nil {
			return nil, err
		}
		if next[0] != start {
			lower, upper, err := GetBinArrayLowerUpperBinID(next[0])
			if err != nil {
				return nil, err
			}
			jump := lower
			if t.swapForY {
				jump = upper
			}
			if jump < t.pair.Parameters.MinBinID || jump > t.pair.Parameters.MaxBinID {
				return nil, fmt.Errorf("%w: bin id %d out of range [%d, %d]",
					ErrLiquidityExhausted, jump, t.pair.Parameters.MinBinID, t.pair.Parameters.MaxBinID)
			}
			t.pair.ActiveID = jump
		}
		t.current = binArray
	}

	t.visits++
	if t.visits > t.maxVisits {
		return nil, fmt.Errorf("%w: visited more than %d bins", ErrIterationLimitExceeded, t.maxVisits)
	}
	if err := t.pair.UpdateVolatilityAccumulator(); err != nil {
		return nil, fmt.Errorf("failed to update volatility accumulator: %w", err)
	}
	bin, err := t.current.GetBinMut(t.pair.ActiveID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active bin: %w", err)
	}
	return bin, nil
}

// touchedBinArrays returns the modified working copies ordered by index
func (t *traversal) touchedBinArrays() []BinArray {
	indexes := make([]int64, 0, len(t.binArrays))
	for idx := range t.binArrays {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	binArrays := make([]BinArray, 0, len(indexes))
	for _, idx := range indexes {
		binArrays = append(binArrays, *t.binArrays[idx])
	}
	return binArrays
}

// mints returns the input and output mints for the swap direction
func (pool *MeteoraDlmmPool) mints(swapForY bool) (solana.PublicKey, solana.PublicKey) {
	if swapForY {
		return pool.Pair.TokenXMint, pool.Pair.TokenYMint
	}
	return pool.Pair.TokenYMint, pool.Pair.TokenXMint
}

// transferFees resolves the transfer fee schedules of the input and output mints
func (pool *MeteoraDlmmPool) transferFees(swapForY bool) (*transferfee.TransferFee, *transferfee.TransferFee, error) {
	if pool.TransferFees == nil {
		return nil, nil, fmt.Errorf("%w: no transfer fee resolver for pool %s", ErrState, pool.PoolId)
	}
	inMint, outMint := pool.mints(swapForY)
	inFee, err := pool.TransferFees.Resolve(inMint, pool.Clock.Epoch)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrState, err)
	}
	outFee, err := pool.TransferFees.Resolve(outMint, pool.Clock.Epoch)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrState, err)
	}
	return inFee, outFee, nil
}

// QuoteExactIn quotes the output for an exact input amount
func (pool *MeteoraDlmmPool) QuoteExactIn(amountIn uint64, swapForY bool, opts QuoteOptions) (*QuoteResult, error) {
	result, _, err := pool.swapExactIn(amountIn, swapForY, opts, false)
	return result, err
}

// swapExactIn fills amountIn bin by bin. With execute set the liquidity
// provider fee accumulators and protocol fees are booked on the working copy.
func (pool *MeteoraDlmmPool) swapExactIn(amountIn uint64, swapForY bool, opts QuoteOptions, execute bool) (*QuoteResult, *traversal, error) {
	if amountIn == 0 {
		return nil, nil, fmt.Errorf("%w: amount in must be positive", ErrValidation)
	}
	t, err := pool.newTraversal(swapForY, opts)
	if err != nil {
		return nil, nil, err
	}
	inFee, outFee, err := pool.transferFees(swapForY)
	if err != nil {
		return nil, nil, err
	}

	excludedIn, err := transferfee.CalculateExcludedAmount(inFee, amountIn)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrArithmetic, err)
	}
	result := &QuoteResult{
		AmountIn:      amountIn,
		TransferFeeIn: excludedIn.TransferFee,
		StartBinID:    t.pair.ActiveID,
	}

	var amountOut uint64
	amountLeft := excludedIn.Amount
	for amountLeft > 0 {
		bin, err := t.activeBin()
		if err != nil {
			return nil, nil, err
		}
		if !bin.IsEmpty(!swapForY) {
			price, err := bin.GetOrStoreBinPrice(t.pair.ActiveID, t.pair.BinStep)
			if err != nil {
				return nil, nil, err
			}
			swapResult, err := bin.Swap(amountLeft, price, swapForY, &t.pair, t.hostFeeBps)
			if err != nil {
				return nil, nil, fmt.Errorf("swap failed at bin %d: %w", t.pair.ActiveID, err)
			}
			if execute {
				if err := t.book(bin, swapResult); err != nil {
					return nil, nil, err
				}
			}
			amountLeft -= swapResult.AmountInWithFees
			if amountOut, err = safeAdd(amountOut, swapResult.AmountOut); err != nil {
				return nil, nil, err
			}
			result.Fee += swapResult.Fee
			result.ProtocolFee += swapResult.ProtocolFee
			result.HostFee += swapResult.HostFee
		}
		if amountLeft > 0 {
			if err := t.pair.AdvanceActiveBin(swapForY); err != nil {
				return nil, nil, fmt.Errorf("failed to advance active bin: %w", err)
			}
		}
	}

	excludedOut, err := transferfee.CalculateExcludedAmount(outFee, amountOut)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrArithmetic, err)
	}
	result.AmountOut = excludedOut.Amount
	result.TransferFeeOut = excludedOut.TransferFee
	result.EndBinID = t.pair.ActiveID
	result.BinsVisited = t.visits
	return result, t, nil
}

// QuoteExactOut quotes the input required to receive an exact output amount
func (pool *MeteoraDlmmPool) QuoteExactOut(amountOut uint64, swapForY bool, opts QuoteOptions) (*QuoteResult, error) {
	if amountOut == 0 {
		return nil, fmt.Errorf("%w: amount out must be positive", ErrValidation)
	}
	t, err := pool.newTraversal(swapForY, opts)
	if err != nil {
		return nil, err
	}
	inFee, outFee, err := pool.transferFees(swapForY)
	if err != nil {
		return nil, err
	}

	includedOut, err := transferfee.CalculateIncludedAmount(outFee, amountOut)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArithmetic, err)
	}
	result := &QuoteResult{
		AmountOut:      amountOut,
		TransferFeeOut: includedOut.TransferFee,
		StartBinID:     t.pair.ActiveID,
	}

	var amountIn, totalFee uint64
	remaining := includedOut.Amount
	for remaining > 0 {
		bin, err := t.activeBin()
		if err != nil {
			return nil, err
		}
		if !bin.IsEmpty(!swapForY) {
			price, err := bin.GetOrStoreBinPrice(t.pair.ActiveID, t.pair.BinStep)
			if err != nil {
				return nil, err
			}
			var binIn, binOut uint64
			if maxOut := bin.GetMaxAmountOut(swapForY); remaining >= maxOut {
				if binIn, err = bin.GetMaxAmountIn(price, swapForY); err != nil {
					return nil, fmt.Errorf("failed to get max amount in: %w", err)
				}
				binOut = maxOut
			} else {
				if binIn, err = GetAmountIn(remaining, price, swapForY); err != nil {
					return nil, fmt.Errorf("failed to get amount in: %w", err)
				}
				binOut = remaining
			}
			fee, err := t.pair.ComputeFee(binIn)
			if err != nil {
				return nil, fmt.Errorf("failed to compute fee: %w", err)
			}
			protocolFee, err := t.pair.ComputeProtocolFee(fee)
			if err != nil {
				return nil, fmt.Errorf("failed to compute protocol fee: %w", err)
			}
			if t.hostFeeBps != nil {
				hostFee, err := ComputeHostFee(protocolFee, *t.hostFeeBps)
				if err != nil {
					return nil, err
				}
				protocolFee -= hostFee
				result.HostFee += hostFee
			}
			result.ProtocolFee += protocolFee

			if amountIn, err = safeAdd(amountIn, binIn); err != nil {
				return nil, err
			}
			if totalFee, err = safeAdd(totalFee, fee); err != nil {
				return nil, err
			}
			remaining -= binOut
		}
		if remaining > 0 {
			if err := t.pair.AdvanceActiveBin(swapForY); err != nil {
				return nil, fmt.Errorf("failed to advance active bin: %w", err)
			}
		}
	}

	if amountIn, err = safeAdd(amountIn, totalFee); err != nil {
		return nil, err
	}
	includedIn, err := transferfee.CalculateIncludedAmount(inFee, amountIn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArithmetic, err)
	}
	result.AmountIn = includedIn.Amount
	result.TransferFeeIn = includedIn.TransferFee
	result.Fee = totalFee
	result.EndBinID = t.pair.ActiveID
	result.BinsVisited = t.visits
	return result, nil
}
