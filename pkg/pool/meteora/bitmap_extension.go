package meteora

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// BinArrayBitmapExtension tracks populated bin arrays beyond the inline bitmap.
// Each row covers 512 consecutive bin array indexes: positive rows start at
// index 512, negative rows start at index -513 and grow downward.
type BinArrayBitmapExtension struct {
	Discriminator          [8]uint8
	LbPair                 solana.PublicKey
	PositiveBinArrayBitmap [ExtensionBinArrayBitmapSize][8]uint64
	NegativeBinArrayBitmap [ExtensionBinArrayBitmapSize][8]uint64
}

// BitmapExtensionRange returns the inclusive bin array index range reachable through the extension
func BitmapExtensionRange() (int64, int64) {
	return -BinArrayBitmapSize * (ExtensionBinArrayBitmapSize + 1),
		BinArrayBitmapSize*(ExtensionBinArrayBitmapSize+1) - 1
}

// position locates a bin array index inside the extension
func (ext *BinArrayBitmapExtension) position(binArrayIndex int64) (*[8]uint64, int64, error) {
	minID, maxID := BitmapExtensionRange()
	if !IsOverflowDefaultBinArrayBitmap(binArrayIndex) || binArrayIndex < minID || binArrayIndex > maxID {
		return nil, 0, fmt.Errorf("%w: bin array index %d not covered by bitmap extension", ErrState, binArrayIndex)
	}
	if binArrayIndex > 0 {
		row := binArrayIndex/BinArrayBitmapSize - 1
		return &ext.PositiveBinArrayBitmap[row], binArrayIndex % BinArrayBitmapSize, nil
	}
	mirrored := -(binArrayIndex + 1)
	row := mirrored/BinArrayBitmapSize - 1
	return &ext.NegativeBinArrayBitmap[row], mirrored % BinArrayBitmapSize, nil
}

// IsSet reports whether the bin array index is marked populated
func (ext *BinArrayBitmapExtension) IsSet(binArrayIndex int64) bool {
	row, bit, err := ext.position(binArrayIndex)
	if err != nil {
		return false
	}
	return row[bit/64]&(1<<uint(bit%64)) != 0
}

// Set marks a bin array index beyond the inline range as populated or empty
func (ext *BinArrayBitmapExtension) Set(binArrayIndex int64, populated bool) error {
	row, bit, err := ext.position(binArrayIndex)
	if err != nil {
		return err
	}
	if populated {
		row[bit/64] |= 1 << uint(bit%64)
	} else {
		row[bit/64] &^= 1 << uint(bit%64)
	}
	return nil
}

// NextBinArrayIndexWithLiquidity searches the extension from startArrayIndex
// (inclusive) in the swap direction. A miss returns either the index where the
// search continues in the inline bitmap or an index past the extension range.
func (ext *BinArrayBitmapExtension) NextBinArrayIndexWithLiquidity(swapForY bool, startArrayIndex int64) (int64, bool) {
	minID, maxID := BitmapExtensionRange()
	start := min(max(startArrayIndex, minID), maxID)

	if startArrayIndex > 0 {
		if swapForY {
			for i := start; i >= BinArrayBitmapSize; i-- {
				if ext.IsSet(i) {
					return i, true
				}
			}
			return BinArrayBitmapSize - 1, false
		}
		for i := max(start, BinArrayBitmapSize); i <= maxID; i++ {
			if ext.IsSet(i) {
				return i, true
			}
		}
		return maxID + 1, false
	}

	if swapForY {
		for i := min(start, -BinArrayBitmapSize-1); i >= minID; i-- {
			if ext.IsSet(i) {
				return i, true
			}
		}
		return minID - 1, false
	}
	for i := start; i <= -BinArrayBitmapSize-1; i++ {
		if ext.IsSet(i) {
			return i, true
		}
	}
	return -BinArrayBitmapSize, false
}

// ParseBinArrayBitmapExtension deserializes account data into a BinArrayBitmapExtension
func ParseBinArrayBitmapExtension(data []byte) (*BinArrayBitmapExtension, error) {
	if len(data) < BitmapExtensionAccountSize {
		return nil, fmt.Errorf("%w: bitmap extension data too short: %d bytes", ErrState, len(data))
	}
	ext := &BinArrayBitmapExtension{}
	if err := bin.NewBorshDecoder(data).Decode(ext); err != nil {
		return nil, fmt.Errorf("failed to decode bitmap extension: %w", err)
	}
	if ext.Discriminator != BitmapExtensionDiscriminator {
		return nil, fmt.Errorf("%w: account is not a bitmap extension", ErrState)
	}
	return ext, nil
}

// DeriveBinArrayBitmapExtension derives the bitmap extension account of a pair
func DeriveBinArrayBitmapExtension(lbPair solana.PublicKey) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress([][]byte{bitmapSeed, lbPair.Bytes()}, MeteoraProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive bitmap extension pda: %w", err)
	}
	return pda, nil
}
