package meteora

import (
	"github.com/gagliardetto/solana-go"
	"github.com/yimingwow/dlmmquote/pkg/anchor"
	"lukechampine.com/uint128"
)

// Array and bitmap size constants
const (
	MaxBinPerArray              = 70
	BinArrayBitmapSize          = 512
	ExtensionBinArrayBitmapSize = 12
	// DefaultMaxBinArrays bounds a single traversal together with MaxBinPerArray
	DefaultMaxBinArrays = 512
)

// Bin ID range constants
const (
	MaxBinID = 443636
	MinBinID = -443636
)

// Resolution and precision constants
const (
	ScaleOffset    = 64
	BasisPointMax  = 10000
	FeePrecision   = 1_000_000_000
	MaxFeeRate     = 100_000_000
	MaxExponential = 0x80000
)

// Variable fee scaling: ((va * binStep)^2 * control + offset) / scale
const (
	VariableFeeScale  = 100_000_000_000
	VariableFeeOffset = VariableFeeScale - 1
)

// Account sizes including the 8 byte discriminator
const (
	LbPairAccountSize          = 904
	BinArrayAccountSize        = 10136
	BitmapExtensionAccountSize = 1576
)

var (
	// MeteoraProgramID is the main Meteora DLMM program ID
	MeteoraProgramID = solana.MustPublicKeyFromBase58("LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")

	// One represents 1.0 in Q64.64 (1 << ScaleOffset)
	One = uint128.From64(1).Lsh(ScaleOffset)

	binArraySeed = []byte("bin_array")
	bitmapSeed   = []byte("bitmap")

	LbPairDiscriminator          = anchor.AccountDiscriminator("LbPair")
	BinArrayDiscriminator        = anchor.AccountDiscriminator("BinArray")
	BitmapExtensionDiscriminator = anchor.AccountDiscriminator("BinArrayBitmapExtension")
)

// PairStatus represents the status of a trading pair
type PairStatus uint8

const (
	PairStatusEnabled PairStatus = iota
	PairStatusDisabled
)

// PairType represents the type of trading pair
type PairType uint8

const (
	PairTypePermissionless PairType = iota
	PairTypePermission
	PairTypeCustomizablePermissionless
	PairTypePermissionlessV2
)

// ActivationType represents how the activation point of a pair is measured
type ActivationType uint8

const (
	ActivationTypeSlot ActivationType = iota
	ActivationTypeTimestamp
)
