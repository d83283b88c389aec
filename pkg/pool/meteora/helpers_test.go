package meteora

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"github.com/yimingwow/dlmmquote/pkg/sol"
	"github.com/yimingwow/dlmmquote/pkg/transferfee"
	"lukechampine.com/uint128"
)

var (
	testPoolID = solana.MustPublicKeyFromBase58("5rCf1DM8LjKTw4YqhnoLcngyZYeNnQqztScTogYHAS6")
	testMintX  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testMintY  = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

const testLiquiditySupply = 1_000_000

// newTestPair returns an enabled permissionless pair with a 0.25% base fee
// and no variable fee
func newTestPair(activeID int32) LbPair {
	return LbPair{
		Discriminator: LbPairDiscriminator,
		Parameters: StaticParameters{
			BaseFactor:               10000,
			FilterPeriod:             30,
			DecayPeriod:              600,
			ReductionFactor:          5000,
			MaxVolatilityAccumulator: 350000,
			MinBinID:                 MinBinID,
			MaxBinID:                 MaxBinID,
			ProtocolShare:            500,
		},
		ActiveID:   activeID,
		BinStep:    25,
		Status:     uint8(PairStatusEnabled),
		PairType:   uint8(PairTypePermissionless),
		TokenXMint: testMintX,
		TokenYMint: testMintY,
	}
}

func newTestPool(activeID int32) *MeteoraDlmmPool {
	registry := transferfee.NewRegistry()
	registry.Add(&transferfee.Mint{Address: testMintX, Owner: transferfee.TokenProgramID, Decimals: 9})
	registry.Add(&transferfee.Mint{Address: testMintY, Owner: transferfee.TokenProgramID, Decimals: 6})
	return &MeteoraDlmmPool{
		PoolId:       testPoolID,
		Pair:         newTestPair(activeID),
		BinArrays:    make(map[int64]BinArray),
		TransferFees: registry,
		Clock: sol.Clock{
			Slot:          250_000_000,
			Epoch:         600,
			UnixTimestamp: 1_700_000_000,
		},
	}
}

// setBin stores reserves in a bin, creating its bin array and marking it populated
func setBin(t *testing.T, pool *MeteoraDlmmPool, binID int32, amountX, amountY uint64) {
	t.Helper()
	idx := BinIDToBinArrayIndex(binID)
	binArray, ok := pool.BinArrays[idx]
	if !ok {
		binArray = BinArray{Discriminator: BinArrayDiscriminator, Index: idx, LbPair: pool.PoolId}
	}
	b, err := binArray.GetBinMut(binID)
	require.NoError(t, err)
	b.AmountX = amountX
	b.AmountY = amountY
	b.LiquiditySupply = uint128.From64(testLiquiditySupply)
	pool.BinArrays[idx] = binArray

	if IsOverflowDefaultBinArrayBitmap(idx) {
		if pool.BitmapExtension == nil {
			pool.BitmapExtension = &BinArrayBitmapExtension{Discriminator: BitmapExtensionDiscriminator, LbPair: pool.PoolId}
		}
		require.NoError(t, pool.BitmapExtension.Set(idx, true))
	} else {
		pool.Pair.Bitmap().Set(idx, true)
	}
}

func getBin(t *testing.T, pool *MeteoraDlmmPool, binID int32) Bin {
	t.Helper()
	binArray, ok := pool.BinArrays[BinIDToBinArrayIndex(binID)]
	require.True(t, ok)
	b, err := binArray.GetBin(binID)
	require.NoError(t, err)
	return b
}

func u16(v uint16) *uint16 {
	return &v
}
