package meteora

import (
	"encoding/binary"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// BinArray represents a contiguous block of MaxBinPerArray liquidity bins.
// Array index i covers bin ids [i*70, i*70+69].
type BinArray struct {
	Discriminator [8]uint8
	Index         int64
	Version       uint8
	Padding       [7]uint8
	LbPair        solana.PublicKey
	Bins          [MaxBinPerArray]Bin
}

// BinIDToBinArrayIndex maps a bin id to the index of the array holding it,
// flooring toward negative infinity so that bin -1 lives in array -1.
func BinIDToBinArrayIndex(binID int32) int64 {
	idx := int64(binID) / MaxBinPerArray
	if binID < 0 && int64(binID)%MaxBinPerArray != 0 {
		idx--
	}
	return idx
}

// GetBinArrayLowerUpperBinID returns the inclusive bin id range covered by an array index
func GetBinArrayLowerUpperBinID(index int64) (int32, int32, error) {
	lower := index * MaxBinPerArray
	upper := lower + MaxBinPerArray - 1
	if lower < math.MinInt32 || upper > math.MaxInt32 {
		return 0, 0, fmt.Errorf("%w: bin array index %d out of range", ErrArithmetic, index)
	}
	return int32(lower), int32(upper), nil
}

// BinArrayIndexesCoverage returns, in ascending order, every bin array index
// touched by the inclusive bin id range [lowerBinID, upperBinID]
func BinArrayIndexesCoverage(lowerBinID, upperBinID int32) ([]int64, error) {
	if lowerBinID > upperBinID {
		return nil, fmt.Errorf("%w: lower bin id %d above upper bin id %d", ErrValidation, lowerBinID, upperBinID)
	}
	lowerIdx := BinIDToBinArrayIndex(lowerBinID)
	upperIdx := BinIDToBinArrayIndex(upperBinID)

	indexes := make([]int64, 0, upperIdx-lowerIdx+1)
	for i := lowerIdx; i <= upperIdx; i++ {
		indexes = append(indexes, i)
	}
	return indexes, nil
}

// IsBinIDWithinRange checks if the given bin id is covered by this bin array
func (binArray *BinArray) IsBinIDWithinRange(binID int32) (bool, error) {
	lowerBinID, upperBinID, err := GetBinArrayLowerUpperBinID(binArray.Index)
	if err != nil {
		return false, fmt.Errorf("failed to get bin array bounds: %w", err)
	}
	return binID >= lowerBinID && binID <= upperBinID, nil
}

// GetBinIndexInArray returns the position of a bin inside the array
func (binArray *BinArray) GetBinIndexInArray(binID int32) (int, error) {
	lowerBinID, upperBinID, err := GetBinArrayLowerUpperBinID(binArray.Index)
	if err != nil {
		return 0, fmt.Errorf("failed to get bin array bounds: %w", err)
	}
	if binID < lowerBinID || binID > upperBinID {
		return 0, fmt.Errorf("%w: bin id %d outside bin array %d [%d, %d]",
			ErrState, binID, binArray.Index, lowerBinID, upperBinID)
	}
	return int(binID - lowerBinID), nil
}

// GetBinMut returns a mutable reference to the bin with the given id
func (binArray *BinArray) GetBinMut(binID int32) (*Bin, error) {
	index, err := binArray.GetBinIndexInArray(binID)
	if err != nil {
		return nil, err
	}
	return &binArray.Bins[index], nil
}

// GetBin returns a copy of the bin with the given id
func (binArray *BinArray) GetBin(binID int32) (Bin, error) {
	b, err := binArray.GetBinMut(binID)
	if err != nil {
		return Bin{}, err
	}
	return *b, nil
}

// ParseBinArray deserializes account data into a BinArray
func ParseBinArray(data []byte) (BinArray, error) {
	if len(data) < BinArrayAccountSize {
		return BinArray{}, fmt.Errorf("%w: bin array data too short: %d bytes", ErrState, len(data))
	}
	var binArray BinArray
	if err := bin.NewBorshDecoder(data).Decode(&binArray); err != nil {
		return BinArray{}, fmt.Errorf("failed to decode bin array: %w", err)
	}
	if binArray.Discriminator != BinArrayDiscriminator {
		return BinArray{}, fmt.Errorf("%w: account is not a bin array", ErrState)
	}
	return binArray, nil
}

// DeriveBinArrayPDA derives the account address of the bin array with the given index
func DeriveBinArrayPDA(lbPair solana.PublicKey, index int64) (solana.PublicKey, error) {
	indexBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(indexBytes, uint64(index))
	pda, _, err := solana.FindProgramAddress([][]byte{binArraySeed, lbPair.Bytes(), indexBytes}, MeteoraProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive bin array pda: %w", err)
	}
	return pda, nil
}
