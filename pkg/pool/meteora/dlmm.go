package meteora

import (
	"context"
	"fmt"
	"sort"

	cosmosmath "cosmossdk.io/math"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/yimingwow/dlmmquote/pkg"
	"github.com/yimingwow/dlmmquote/pkg/sol"
	"github.com/yimingwow/dlmmquote/pkg/transferfee"
	"lukechampine.com/uint128"
)

// StaticParameters holds the fee configuration of a pair
type StaticParameters struct {
	BaseFactor               uint16
	FilterPeriod             uint16
	DecayPeriod              uint16
	ReductionFactor          uint16
	VariableFeeControl       uint32
	MaxVolatilityAccumulator uint32
	MinBinID                 int32
	MaxBinID                 int32
	ProtocolShare            uint16
	BaseFeePowerFactor       uint8
	Padding                  [5]uint8
}

// VariableParameters holds the volatility state driving the variable fee
type VariableParameters struct {
	VolatilityAccumulator uint32
	VolatilityReference   uint32
	IndexReference        int32
	Padding               [4]uint8
	LastUpdateTimestamp   int64
	Padding1              [8]uint8
}

// ProtocolFee holds protocol fees accrued per token
type ProtocolFee struct {
	AmountX uint64
	AmountY uint64
}

// RewardInfo describes a liquidity mining reward stream
type RewardInfo struct {
	Mint                                      solana.PublicKey
	Vault                                     solana.PublicKey
	Funder                                    solana.PublicKey
	RewardDuration                            uint64
	RewardDurationEnd                         uint64
	RewardRate                                uint128.Uint128
	LastUpdateTime                            uint64
	CumulativeSecondsWithEmptyLiquidityReward uint64
}

// LbPair is the on-chain state of a DLMM pair (904 bytes with discriminator)
type LbPair struct {
	Discriminator            [8]uint8
	Parameters               StaticParameters
	VParameters              VariableParameters
	BumpSeed                 [1]uint8
	BinStepSeed              [2]uint8
	PairType                 uint8
	ActiveID                 int32
	BinStep                  uint16
	Status                   uint8
	RequireBaseFactorSeed    uint8
	BaseFactorSeed           [2]uint8
	ActivationType           uint8
	CreatorPoolOnOffControl  uint8
	TokenXMint               solana.PublicKey
	TokenYMint               solana.PublicKey
	ReserveX                 solana.PublicKey
	ReserveY                 solana.PublicKey
	ProtocolFee              ProtocolFee
	Padding1                 [32]uint8
	RewardInfos              [2]RewardInfo
	Oracle                   solana.PublicKey
	BinArrayBitmap           [16]uint64
	LastUpdatedAt            int64
	Padding2                 [32]uint8
	PreActivationSwapAddress solana.PublicKey
	BaseKey                  solana.PublicKey
	ActivationPoint          uint64
	PreActivationDuration    uint64
	Padding3                 [8]uint8
	Padding4                 uint64
	Creator                  solana.PublicKey
	TokenMintXProgramFlag    uint8
	TokenMintYProgramFlag    uint8
	Reserved                 [22]uint8
}

// Decode deserializes account data into the pair
func (pair *LbPair) Decode(data []byte) error {
	if len(data) < LbPairAccountSize {
		return fmt.Errorf("%w: lb pair data too short: %d bytes", ErrState, len(data))
	}
	if err := bin.NewBorshDecoder(data).Decode(pair); err != nil {
		return fmt.Errorf("failed to decode lb pair: %w", err)
	}
	if pair.Discriminator != LbPairDiscriminator {
		return fmt.Errorf("%w: account is not an lb pair", ErrState)
	}
	return nil
}

// Bitmap returns the inline bin array bitmap of the pair
func (pair *LbPair) Bitmap() *BinArrayBitmap {
	return (*BinArrayBitmap)(&pair.BinArrayBitmap)
}

// MeteoraDlmmPool is a point-in-time snapshot of a DLMM pair together with
// every record a swap against it may touch. Bin arrays are keyed by index.
type MeteoraDlmmPool struct {
	PoolId             solana.PublicKey
	Pair               LbPair
	BinArrays          map[int64]BinArray
	BitmapExtensionKey solana.PublicKey
	BitmapExtension    *BinArrayBitmapExtension
	Clock              sol.Clock
	TransferFees       transferfee.Resolver
}

func (pool *MeteoraDlmmPool) ProtocolName() pkg.ProtocolName {
	return pkg.ProtocolNameMeteoraDlmm
}

func (pool *MeteoraDlmmPool) GetProgramID() solana.PublicKey {
	return MeteoraProgramID
}

// GetID returns the pool ID as a string
func (pool *MeteoraDlmmPool) GetID() string {
	return pool.PoolId.String()
}

// GetTokens returns the token mint addresses as strings
func (pool *MeteoraDlmmPool) GetTokens() (string, string) {
	return pool.Pair.TokenXMint.String(), pool.Pair.TokenYMint.String()
}

// Offset returns the byte offset of a field in the pair account data
func (pool *MeteoraDlmmPool) Offset(field string) uint64 {
	switch field {
	case "TokenXMint":
		return 88
	case "TokenYMint":
		return 120
	default:
		return 0
	}
}

// Quote returns the amount received for an exact input of inputMint
func (pool *MeteoraDlmmPool) Quote(ctx context.Context, inputMint string, inputAmount cosmosmath.Int) (cosmosmath.Int, error) {
	swapForY, err := pool.swapDirection(inputMint, true)
	if err != nil {
		return cosmosmath.ZeroInt(), err
	}
	if inputAmount.IsNegative() || !inputAmount.IsUint64() {
		return cosmosmath.ZeroInt(), fmt.Errorf("%w: input amount %s out of range", ErrValidation, inputAmount)
	}
	result, err := pool.QuoteExactIn(inputAmount.Uint64(), swapForY, QuoteOptions{})
	if err != nil {
		return cosmosmath.ZeroInt(), err
	}
	return cosmosmath.NewIntFromUint64(result.AmountOut), nil
}

// QuoteOut returns the input required to receive an exact amount of outputMint
func (pool *MeteoraDlmmPool) QuoteOut(ctx context.Context, outputMint string, outputAmount cosmosmath.Int) (cosmosmath.Int, error) {
	swapForY, err := pool.swapDirection(outputMint, false)
	if err != nil {
		return cosmosmath.ZeroInt(), err
	}
	if outputAmount.IsNegative() || !outputAmount.IsUint64() {
		return cosmosmath.ZeroInt(), fmt.Errorf("%w: output amount %s out of range", ErrValidation, outputAmount)
	}
	result, err := pool.QuoteExactOut(outputAmount.Uint64(), swapForY, QuoteOptions{})
	if err != nil {
		return cosmosmath.ZeroInt(), err
	}
	return cosmosmath.NewIntFromUint64(result.AmountIn), nil
}

// swapDirection resolves swapForY from the mint on the input (or output) side
func (pool *MeteoraDlmmPool) swapDirection(mint string, isInput bool) (bool, error) {
	switch mint {
	case pool.Pair.TokenXMint.String():
		return isInput, nil
	case pool.Pair.TokenYMint.String():
		return !isInput, nil
	default:
		return false, fmt.Errorf("%w: mint %s does not belong to pool %s", ErrValidation, mint, pool.PoolId)
	}
}

// BinArrayIndexesForSwap returns up to count populated bin array indexes a swap
// in the given direction will walk, starting at the array of the active bin
func (pool *MeteoraDlmmPool) BinArrayIndexesForSwap(swapForY bool, count int) []int64 {
	start := BinIDToBinArrayIndex(pool.Pair.ActiveID)
	return NextPopulatedBinArrays(pool.Pair.Bitmap(), pool.BitmapExtension, start, swapForY, count)
}

// GetBinArrayPubkeysForSwap derives the account addresses of the bin arrays a swap will need
func (pool *MeteoraDlmmPool) GetBinArrayPubkeysForSwap(swapForY bool, count int) ([]solana.PublicKey, []int64, error) {
	indexes := pool.BinArrayIndexesForSwap(swapForY, count)
	pubkeys := make([]solana.PublicKey, 0, len(indexes))
	for _, idx := range indexes {
		pda, err := DeriveBinArrayPDA(pool.PoolId, idx)
		if err != nil {
			return nil, nil, err
		}
		pubkeys = append(pubkeys, pda)
	}
	return pubkeys, indexes, nil
}

// AddBinArray inserts a bin array into the snapshot, keyed by its index
func (pool *MeteoraDlmmPool) AddBinArray(binArray BinArray) {
	if pool.BinArrays == nil {
		pool.BinArrays = make(map[int64]BinArray)
	}
	pool.BinArrays[binArray.Index] = binArray
}

// SortedBinArrayIndexes returns the indexes of the bin arrays held by the snapshot
func (pool *MeteoraDlmmPool) SortedBinArrayIndexes() []int64 {
	indexes := make([]int64, 0, len(pool.BinArrays))
	for idx := range pool.BinArrays {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	return indexes
}

// NewMeteoraDlmmPool decodes a pair account into an empty snapshot. Bin arrays,
// the bitmap extension, the clock and transfer fees are filled in by the supplier.
func NewMeteoraDlmmPool(poolID solana.PublicKey, data []byte) (*MeteoraDlmmPool, error) {
	pool := &MeteoraDlmmPool{
		PoolId:    poolID,
		BinArrays: make(map[int64]BinArray),
	}
	if err := pool.Pair.Decode(data); err != nil {
		return nil, err
	}
	extensionKey, err := DeriveBinArrayBitmapExtension(poolID)
	if err != nil {
		return nil, err
	}
	pool.BitmapExtensionKey = extensionKey
	return pool, nil
}

// SetBitmapExtension decodes and attaches the bitmap extension account
func (pool *MeteoraDlmmPool) SetBitmapExtension(data []byte) error {
	ext, err := ParseBinArrayBitmapExtension(data)
	if err != nil {
		return err
	}
	if !ext.LbPair.Equals(pool.PoolId) {
		return fmt.Errorf("%w: bitmap extension belongs to %s, not %s", ErrState, ext.LbPair, pool.PoolId)
	}
	pool.BitmapExtension = ext
	return nil
}

// AddBinArrayAccount decodes and inserts a bin array account
func (pool *MeteoraDlmmPool) AddBinArrayAccount(data []byte) error {
	binArray, err := ParseBinArray(data)
	if err != nil {
		return err
	}
	if !binArray.LbPair.Equals(pool.PoolId) {
		return fmt.Errorf("%w: bin array %d belongs to %s, not %s", ErrState, binArray.Index, binArray.LbPair, pool.PoolId)
	}
	pool.AddBinArray(binArray)
	return nil
}
