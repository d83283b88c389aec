package store

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yimingwow/dlmmquote/pkg/pool/meteora"
	"github.com/yimingwow/dlmmquote/pkg/sol"
	"github.com/yimingwow/dlmmquote/pkg/transferfee"
	"lukechampine.com/uint128"
)

var (
	testPoolID = solana.MustPublicKeyFromBase58("5rCf1DM8LjKTw4YqhnoLcngyZYeNnQqztScTogYHAS6")
	testMintX  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testMintY  = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

// newTestPool returns a pool with Y liquidity in bin 0 and X liquidity in bin 100
func newTestPool(t *testing.T) *meteora.MeteoraDlmmPool {
	registry := transferfee.NewRegistry()
	registry.Add(&transferfee.Mint{Address: testMintX, Owner: transferfee.TokenProgramID, Decimals: 9})
	registry.Add(&transferfee.Mint{Address: testMintY, Owner: transferfee.TokenProgramID, Decimals: 6})

	pool := &meteora.MeteoraDlmmPool{
		PoolId: testPoolID,
		Pair: meteora.LbPair{
			Parameters: meteora.StaticParameters{
				BaseFactor:               10000,
				FilterPeriod:             30,
				DecayPeriod:              600,
				ReductionFactor:          5000,
				MaxVolatilityAccumulator: 350000,
				MinBinID:                 meteora.MinBinID,
				MaxBinID:                 meteora.MaxBinID,
				ProtocolShare:            500,
			},
			BinStep:    25,
			TokenXMint: testMintX,
			TokenYMint: testMintY,
		},
		BinArrays:    make(map[int64]meteora.BinArray),
		TransferFees: registry,
		Clock:        sol.Clock{Slot: 250_000_000, Epoch: 600, UnixTimestamp: 1_700_000_000},
	}
	for binID, reserves := range map[int32][2]uint64{0: {0, 1_000_000_000}, 100: {1_000_000_000, 0}} {
		idx := meteora.BinIDToBinArrayIndex(binID)
		binArray := meteora.BinArray{Index: idx, LbPair: testPoolID}
		b, err := binArray.GetBinMut(binID)
		require.NoError(t, err)
		b.AmountX, b.AmountY = reserves[0], reserves[1]
		b.LiquiditySupply = uint128.From64(1_000_000)
		pool.AddBinArray(binArray)
		pool.Pair.Bitmap().Set(idx, true)
	}
	return pool
}

func TestMemoryStoreCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	pool := newTestPool(t)
	s.Put(pool)

	snapshot, err := s.Snapshot(testPoolID)
	require.NoError(t, err)
	assert.Len(t, snapshot.BinArrays, 2)

	delta, err := snapshot.SwapExactIn(1_000_000, true, meteora.QuoteOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, delta))

	binArray, ok := s.BinArray(testPoolID, 0)
	require.True(t, ok)
	b, err := binArray.GetBin(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(997_500), b.AmountX)
	assert.Equal(t, uint64(1_000_000_000-997_500), b.AmountY)

	after, err := s.Snapshot(testPoolID)
	require.NoError(t, err)
	assert.Equal(t, uint64(125), after.Pair.ProtocolFee.AmountX)
	assert.Len(t, after.BinArrays, 2)

	// snapshots handed out earlier are unaffected
	stale := snapshot.BinArrays[0]
	b, err = stale.GetBin(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), b.AmountY)

	// a second swap continues from the committed state
	delta, err = after.SwapExactIn(1_000_000, true, meteora.QuoteOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, delta))
	after, err = s.Snapshot(testPoolID)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), after.Pair.ProtocolFee.AmountX)
}

func TestMemoryStoreRejects(t *testing.T) {
	s := NewMemoryStore()
	pool := newTestPool(t)

	_, err := s.Snapshot(testPoolID)
	assert.ErrorIs(t, err, ErrUnknownPool)

	delta, err := pool.SwapExactIn(1_000, true, meteora.QuoteOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, s.Commit(context.Background(), delta), ErrUnknownPool)

	s.Put(pool)
	foreign := *delta
	foreign.BinArrays = append([]meteora.BinArray{}, delta.BinArrays...)
	foreign.BinArrays[0].LbPair = testMintX
	assert.Error(t, s.Commit(context.Background(), &foreign))

	// nothing from the rejected delta was written
	after, err := s.Snapshot(testPoolID)
	require.NoError(t, err)
	assert.Zero(t, after.Pair.ProtocolFee.AmountX)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Commit(ctx, delta), context.Canceled)
}

func TestBuildDeltaBatch(t *testing.T) {
	pool := newTestPool(t)
	delta, err := pool.SwapExactIn(1_000_000, true, meteora.QuoteOptions{HostFeeBps: new(uint16)})
	require.NoError(t, err)

	batch, err := buildDeltaBatch(delta)
	require.NoError(t, err)
	// pair upsert, one row per bin of the touched array, swap record
	require.Equal(t, 1+meteora.MaxBinPerArray+1, batch.Len())

	pairArgs := batch.QueuedQueries[0].Arguments
	assert.Equal(t, testPoolID.String(), pairArgs[0])
	assert.Equal(t, int32(0), pairArgs[1])
	assert.Equal(t, "125", pairArgs[6])

	binArgs := batch.QueuedQueries[1].Arguments
	assert.Equal(t, int32(0), binArgs[1])
	assert.Equal(t, "997500", binArgs[2])
	assert.Equal(t, "1000000", binArgs[6])

	lastBin := batch.QueuedQueries[meteora.MaxBinPerArray].Arguments
	assert.Equal(t, int32(meteora.MaxBinPerArray-1), lastBin[1])

	swapArgs := batch.QueuedQueries[batch.Len()-1].Arguments
	assert.Equal(t, true, swapArgs[1])
	assert.Equal(t, "1000000", swapArgs[2])
	assert.Equal(t, "997500", swapArgs[3])
	assert.Equal(t, "2500", swapArgs[4])
}
