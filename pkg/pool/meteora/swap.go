package meteora

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// SwapDelta is the state change produced by executing a swap against a
// snapshot. Applying it to durable state is left to a committer.
type SwapDelta struct {
	PoolId   solana.PublicKey
	SwapForY bool
	Quote    QuoteResult
	// Pair carries the new active id, variable parameters and accrued protocol fees
	Pair LbPair
	// BinArrays holds every bin array the swap touched, ordered by index
	BinArrays []BinArray
}

// SwapExactIn executes an exact input swap on a working copy of the snapshot.
// The pool itself is left untouched; the resulting state is returned as a delta.
func (pool *MeteoraDlmmPool) SwapExactIn(amountIn uint64, swapForY bool, opts QuoteOptions) (*SwapDelta, error) {
	result, t, err := pool.swapExactIn(amountIn, swapForY, opts, true)
	if err != nil {
		return nil, err
	}
	t.pair.VParameters.LastUpdateTimestamp = int64(pool.Clock.UnixTimestamp)

	return &SwapDelta{
		PoolId:    pool.PoolId,
		SwapForY:  swapForY,
		Quote:     *result,
		Pair:      t.pair,
		BinArrays: t.touchedBinArrays(),
	}, nil
}

// book records a single bin fill: the fee-inclusive input on the bin, the
// liquidity provider fee on its fee-per-token accumulator and the protocol
// fee on the pair. The input token is X when swapping for Y.
func (t *traversal) book(bin *Bin, swapResult *SwapResult) error {
	isX := t.swapForY
	if err := bin.RecordAmountIn(swapResult.AmountInWithFees, isX); err != nil {
		return fmt.Errorf("failed to record amount in: %w", err)
	}

	lpFee, err := safeSub(swapResult.Fee, swapResult.ProtocolFee)
	if err != nil {
		return err
	}
	if lpFee, err = safeSub(lpFee, swapResult.HostFee); err != nil {
		return err
	}
	if err := bin.CreditFee(lpFee, isX); err != nil {
		return fmt.Errorf("failed to credit fee: %w", err)
	}

	if isX {
		t.pair.ProtocolFee.AmountX, err = safeAdd(t.pair.ProtocolFee.AmountX, swapResult.ProtocolFee)
	} else {
		t.pair.ProtocolFee.AmountY, err = safeAdd(t.pair.ProtocolFee.AmountY, swapResult.ProtocolFee)
	}
	return err
}

// Apply returns a new snapshot with the delta applied. Bin arrays not touched
// by the swap are shared with the receiver.
func (pool *MeteoraDlmmPool) Apply(delta *SwapDelta) (*MeteoraDlmmPool, error) {
	if !delta.PoolId.Equals(pool.PoolId) {
		return nil, fmt.Errorf("%w: delta for pool %s applied to %s", ErrState, delta.PoolId, pool.PoolId)
	}
	next := *pool
	next.Pair = delta.Pair
	next.BinArrays = make(map[int64]BinArray, len(pool.BinArrays))
	for idx, binArray := range pool.BinArrays {
		next.BinArrays[idx] = binArray
	}
	for _, binArray := range delta.BinArrays {
		next.BinArrays[binArray.Index] = binArray
	}
	return &next, nil
}
