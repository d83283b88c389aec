package meteora

import (
	"math/bits"
)

// BinArrayBitmap is the inline bitmap stored on the pair. Bit i of the
// 1024-bit little-endian integer marks bin array index i-512 as populated.
type BinArrayBitmap [16]uint64

// BitmapRange returns the inclusive bin array index range of the inline bitmap
func BitmapRange() (int64, int64) {
	return -BinArrayBitmapSize, BinArrayBitmapSize - 1
}

// GetBinArrayOffset returns the bit position of a bin array index in the inline bitmap
func GetBinArrayOffset(binArrayIndex int64) int64 {
	return binArrayIndex + BinArrayBitmapSize
}

// IsOverflowDefaultBinArrayBitmap reports whether a bin array index lies outside the inline bitmap
func IsOverflowDefaultBinArrayBitmap(binArrayIndex int64) bool {
	minBitmapID, maxBitmapID := BitmapRange()
	return binArrayIndex > maxBitmapID || binArrayIndex < minBitmapID
}

// IsSet reports whether the bin array index is marked populated
func (bitmap *BinArrayBitmap) IsSet(binArrayIndex int64) bool {
	if IsOverflowDefaultBinArrayBitmap(binArrayIndex) {
		return false
	}
	offset := GetBinArrayOffset(binArrayIndex)
	return bitmap[offset/64]&(1<<uint(offset%64)) != 0
}

// Set marks a bin array index as populated or empty. Indexes outside the
// inline range are ignored; they belong in the extension.
func (bitmap *BinArrayBitmap) Set(binArrayIndex int64, populated bool) {
	if IsOverflowDefaultBinArrayBitmap(binArrayIndex) {
		return
	}
	offset := GetBinArrayOffset(binArrayIndex)
	if populated {
		bitmap[offset/64] |= 1 << uint(offset%64)
	} else {
		bitmap[offset/64] &^= 1 << uint(offset%64)
	}
}

// NextBinArrayIndexWithLiquidity searches the inline bitmap from startArrayIndex
// (inclusive) in the swap direction. When nothing is found it returns the first
// index past the inline range so the caller can continue in the extension.
func (bitmap *BinArrayBitmap) NextBinArrayIndexWithLiquidity(swapForY bool, startArrayIndex int64) (int64, bool) {
	minBitmapID, maxBitmapID := BitmapRange()
	switch {
	case swapForY && startArrayIndex < minBitmapID:
		return minBitmapID - 1, false
	case !swapForY && startArrayIndex > maxBitmapID:
		return maxBitmapID + 1, false
	case startArrayIndex > maxBitmapID:
		startArrayIndex = maxBitmapID
	case startArrayIndex < minBitmapID:
		startArrayIndex = minBitmapID
	}
	offset := GetBinArrayOffset(startArrayIndex)
	word := offset / 64
	bit := uint(offset % 64)

	if swapForY {
		mask := bitmap[word] & (^uint64(0) >> (63 - bit))
		for {
			if mask != 0 {
				pos := word*64 + int64(63-bits.LeadingZeros64(mask))
				return pos + minBitmapID, true
			}
			word--
			if word < 0 {
				return minBitmapID - 1, false
			}
			mask = bitmap[word]
		}
	}

	mask := bitmap[word] & (^uint64(0) << bit)
	for {
		if mask != 0 {
			pos := word*64 + int64(bits.TrailingZeros64(mask))
			return pos + minBitmapID, true
		}
		word++
		if word >= int64(len(bitmap)) {
			return maxBitmapID + 1, false
		}
		mask = bitmap[word]
	}
}

// NextPopulatedBinArrays walks the inline bitmap and, past its range, the
// extension, collecting up to count populated bin array indexes starting at
// startArrayIndex (inclusive) in the swap direction. Fewer results mean the
// pool runs out of liquidity in that direction.
func NextPopulatedBinArrays(bitmap *BinArrayBitmap, ext *BinArrayBitmapExtension, startArrayIndex int64, swapForY bool, count int) []int64 {
	if count <= 0 {
		return nil
	}
	minID, maxID := BitmapExtensionRange()
	step := int64(1)
	if swapForY {
		step = -1
	}

	result := make([]int64, 0, count)
	idx := startArrayIndex
	for len(result) < count && idx >= minID && idx <= maxID {
		var (
			next  int64
			found bool
		)
		if IsOverflowDefaultBinArrayBitmap(idx) {
			if ext == nil {
				break
			}
			next, found = ext.NextBinArrayIndexWithLiquidity(swapForY, idx)
		} else {
			next, found = bitmap.NextBinArrayIndexWithLiquidity(swapForY, idx)
		}
		if !found {
			// switch between inline bitmap and extension
			idx = next
			continue
		}
		result = append(result, next)
		idx = next + step
	}
	return result
}
