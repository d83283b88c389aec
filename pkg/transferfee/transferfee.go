// Package transferfee implements Token-2022 transfer fee arithmetic and the
// mint registry the quote engine resolves fee schedules from.
package transferfee

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// MaxFeeBasisPoints is 100% expressed in basis points
const MaxFeeBasisPoints = 10_000

var (
	// ErrUnknownMint is returned when no fee schedule is registered for a mint
	ErrUnknownMint = errors.New("unknown mint")
	// ErrInvalidMint flags mint account data that cannot be parsed
	ErrInvalidMint = errors.New("invalid mint account")
	// ErrOverflow is returned when a fee amount does not fit in u64
	ErrOverflow = errors.New("transfer fee overflow")
)

// TransferFee is the fee schedule active from Epoch on
type TransferFee struct {
	Epoch       uint64
	MaximumFee  uint64
	BasisPoints uint16
}

// Config is the TransferFeeConfig mint extension
type Config struct {
	ConfigAuthority           solana.PublicKey
	WithdrawWithheldAuthority solana.PublicKey
	WithheldAmount            uint64
	OlderTransferFee          TransferFee
	NewerTransferFee          TransferFee
}

// FeeForEpoch selects the schedule in force at epoch
func (c *Config) FeeForEpoch(epoch uint64) TransferFee {
	if epoch >= c.NewerTransferFee.Epoch {
		return c.NewerTransferFee
	}
	return c.OlderTransferFee
}

// ExcludedAmount is what remains of a transfer after the fee is withheld
type ExcludedAmount struct {
	Amount      uint64
	TransferFee uint64
}

// IncludedAmount is what must be sent so that the recipient receives Amount - TransferFee
type IncludedAmount struct {
	Amount      uint64
	TransferFee uint64
}

// CalculateFee returns ceil(amount * bps / 10000), capped at the maximum fee.
// The fee never exceeds amount.
func (tf TransferFee) CalculateFee(amount uint64) uint64 {
	if tf.BasisPoints == 0 || amount == 0 {
		return 0
	}
	if tf.BasisPoints >= MaxFeeBasisPoints {
		return min(amount, tf.MaximumFee)
	}
	fee := new(big.Int).Mul(new(big.Int).SetUint64(amount), big.NewInt(int64(tf.BasisPoints)))
	fee.Add(fee, big.NewInt(MaxFeeBasisPoints-1))
	fee.Quo(fee, big.NewInt(MaxFeeBasisPoints))
	if !fee.IsUint64() || fee.Uint64() > tf.MaximumFee {
		return tf.MaximumFee
	}
	return fee.Uint64()
}

// CalculatePreFeeAmount returns the smallest gross amount whose fee leaves postFeeAmount
func (tf TransferFee) CalculatePreFeeAmount(postFeeAmount uint64) (uint64, error) {
	if postFeeAmount == 0 {
		return 0, nil
	}
	if tf.BasisPoints == 0 {
		return postFeeAmount, nil
	}
	post := new(big.Int).SetUint64(postFeeAmount)
	maxFee := new(big.Int).SetUint64(tf.MaximumFee)
	if tf.BasisPoints >= MaxFeeBasisPoints {
		return castU64(post.Add(post, maxFee))
	}

	oneInBps := big.NewInt(MaxFeeBasisPoints)
	denominator := new(big.Int).Sub(oneInBps, big.NewInt(int64(tf.BasisPoints)))
	rawPreFee := new(big.Int).Mul(post, oneInBps)
	rawPreFee.Add(rawPreFee, denominator)
	rawPreFee.Sub(rawPreFee, big.NewInt(1))
	rawPreFee.Quo(rawPreFee, denominator)

	if new(big.Int).Sub(rawPreFee, post).Cmp(maxFee) >= 0 {
		return castU64(post.Add(post, maxFee))
	}
	return castU64(rawPreFee)
}

// CalculateInverseFee returns the fee charged on the pre-fee amount of postFeeAmount
func (tf TransferFee) CalculateInverseFee(postFeeAmount uint64) (uint64, error) {
	preFeeAmount, err := tf.CalculatePreFeeAmount(postFeeAmount)
	if err != nil {
		return 0, err
	}
	return tf.CalculateFee(preFeeAmount), nil
}

// CalculateExcludedAmount deducts the transfer fee from a gross amount
func CalculateExcludedAmount(fee *TransferFee, amount uint64) (ExcludedAmount, error) {
	if fee == nil {
		return ExcludedAmount{Amount: amount}, nil
	}
	transferFee := fee.CalculateFee(amount)
	if transferFee > amount {
		return ExcludedAmount{}, fmt.Errorf("%w: fee %d exceeds amount %d", ErrOverflow, transferFee, amount)
	}
	return ExcludedAmount{Amount: amount - transferFee, TransferFee: transferFee}, nil
}

// CalculateIncludedAmount grosses up a net amount by the transfer fee
func CalculateIncludedAmount(fee *TransferFee, amount uint64) (IncludedAmount, error) {
	if fee == nil || amount == 0 {
		return IncludedAmount{Amount: amount}, nil
	}
	transferFee, err := fee.CalculateInverseFee(amount)
	if err != nil {
		return IncludedAmount{}, err
	}
	total := amount + transferFee
	if total < amount {
		return IncludedAmount{}, fmt.Errorf("%w: %d + %d", ErrOverflow, amount, transferFee)
	}
	return IncludedAmount{Amount: total, TransferFee: transferFee}, nil
}

func castU64(v *big.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, v.String())
	}
	return v.Uint64(), nil
}
