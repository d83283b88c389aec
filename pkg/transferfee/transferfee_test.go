package transferfee

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateFee(t *testing.T) {
	tests := []struct {
		name   string
		fee    TransferFee
		amount uint64
		want   uint64
	}{
		{"rounds up", TransferFee{MaximumFee: 1_000_000, BasisPoints: 100}, 1_011, 11},
		{"exact", TransferFee{MaximumFee: 1_000_000, BasisPoints: 100}, 1_000, 10},
		{"capped", TransferFee{MaximumFee: 5, BasisPoints: 100}, 1_000_000, 5},
		{"zero bps", TransferFee{MaximumFee: 5, BasisPoints: 0}, 1_000_000, 0},
		{"zero amount", TransferFee{MaximumFee: 5, BasisPoints: 100}, 0, 0},
		{"full bps", TransferFee{MaximumFee: 7, BasisPoints: MaxFeeBasisPoints}, 1_000, 7},
		{"full bps below maximum fee", TransferFee{MaximumFee: 7, BasisPoints: MaxFeeBasisPoints}, 3, 3},
		{"full bps never exceeds amount", TransferFee{MaximumFee: 1_000_000_000, BasisPoints: MaxFeeBasisPoints}, 1_000, 1_000},
		{"no overflow", TransferFee{MaximumFee: ^uint64(0), BasisPoints: 9_999}, ^uint64(0), 18_444_899_399_302_180_660},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.fee.CalculateFee(tt.amount))
		})
	}
}

func TestCalculatePreFeeAmount(t *testing.T) {
	fee := TransferFee{MaximumFee: 1_000_000, BasisPoints: 100}
	pre, err := fee.CalculatePreFeeAmount(1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_011), pre)

	inverse, err := fee.CalculateInverseFee(1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), inverse)

	capped := TransferFee{MaximumFee: 5, BasisPoints: 100}
	pre, err = capped.CalculatePreFeeAmount(1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_005), pre)

	full := TransferFee{MaximumFee: 7, BasisPoints: MaxFeeBasisPoints}
	pre, err = full.CalculatePreFeeAmount(1_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_007), pre)

	pre, err = fee.CalculatePreFeeAmount(0)
	require.NoError(t, err)
	assert.Zero(t, pre)

	huge := TransferFee{MaximumFee: 10, BasisPoints: MaxFeeBasisPoints}
	_, err = huge.CalculatePreFeeAmount(^uint64(0))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestPreFeeAmountRoundTrip(t *testing.T) {
	for _, bps := range []uint16{1, 25, 100, 333, 5_000, 9_999} {
		fee := TransferFee{MaximumFee: 1_000_000_000, BasisPoints: bps}
		for _, post := range []uint64{1, 7, 1_000, 123_456, 99_999_999} {
			pre, err := fee.CalculatePreFeeAmount(post)
			require.NoError(t, err)
			excluded, err := CalculateExcludedAmount(&fee, pre)
			require.NoError(t, err)
			assert.Equal(t, post, excluded.Amount, "bps %d post %d", bps, post)
		}
	}
}

func TestExcludedAndIncludedAmount(t *testing.T) {
	excluded, err := CalculateExcludedAmount(nil, 1_000)
	require.NoError(t, err)
	assert.Equal(t, ExcludedAmount{Amount: 1_000}, excluded)

	fee := &TransferFee{MaximumFee: 1_000_000, BasisPoints: 100}
	excluded, err = CalculateExcludedAmount(fee, 1_011)
	require.NoError(t, err)
	assert.Equal(t, ExcludedAmount{Amount: 1_000, TransferFee: 11}, excluded)

	// a 100% fee withholds the whole transfer and nothing more
	excluded, err = CalculateExcludedAmount(&TransferFee{MaximumFee: 1_000_000_000, BasisPoints: MaxFeeBasisPoints}, 1_000)
	require.NoError(t, err)
	assert.Equal(t, ExcludedAmount{Amount: 0, TransferFee: 1_000}, excluded)

	included, err := CalculateIncludedAmount(fee, 1_000)
	require.NoError(t, err)
	assert.Equal(t, IncludedAmount{Amount: 1_011, TransferFee: 11}, included)

	included, err = CalculateIncludedAmount(nil, 1_000)
	require.NoError(t, err)
	assert.Equal(t, IncludedAmount{Amount: 1_000}, included)

	included, err = CalculateIncludedAmount(fee, 0)
	require.NoError(t, err)
	assert.Equal(t, IncludedAmount{}, included)

	_, err = CalculateIncludedAmount(&TransferFee{MaximumFee: 10, BasisPoints: MaxFeeBasisPoints}, ^uint64(0)-5)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestFeeForEpoch(t *testing.T) {
	cfg := Config{
		OlderTransferFee: TransferFee{Epoch: 0, MaximumFee: 10, BasisPoints: 50},
		NewerTransferFee: TransferFee{Epoch: 10, MaximumFee: 20, BasisPoints: 100},
	}
	assert.Equal(t, cfg.OlderTransferFee, cfg.FeeForEpoch(9))
	assert.Equal(t, cfg.NewerTransferFee, cfg.FeeForEpoch(10))
	assert.Equal(t, cfg.NewerTransferFee, cfg.FeeForEpoch(11))
}
