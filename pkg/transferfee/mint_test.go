package transferfee

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

func splMintData(decimals uint8) []byte {
	data := make([]byte, mintBaseSize)
	data[44] = decimals
	data[45] = 1
	return data
}

func appendExtension(data []byte, extType uint16, value []byte) []byte {
	data = binary.LittleEndian.AppendUint16(data, extType)
	data = binary.LittleEndian.AppendUint16(data, uint16(len(value)))
	return append(data, value...)
}

func encodeTransferFee(data []byte, fee TransferFee) []byte {
	data = binary.LittleEndian.AppendUint64(data, fee.Epoch)
	data = binary.LittleEndian.AppendUint64(data, fee.MaximumFee)
	return binary.LittleEndian.AppendUint16(data, fee.BasisPoints)
}

// token2022MintData lays out an extended mint carrying a close authority and
// a transfer fee config
func token2022MintData(decimals uint8, cfg Config) []byte {
	data := make([]byte, accountTypeOffset+1)
	copy(data, splMintData(decimals))
	data[accountTypeOffset] = accountTypeMint

	data = appendExtension(data, 3, make([]byte, 32))

	value := append([]byte{}, cfg.ConfigAuthority.Bytes()...)
	value = append(value, cfg.WithdrawWithheldAuthority.Bytes()...)
	value = binary.LittleEndian.AppendUint64(value, cfg.WithheldAmount)
	value = encodeTransferFee(value, cfg.OlderTransferFee)
	value = encodeTransferFee(value, cfg.NewerTransferFee)
	return appendExtension(data, extensionTransferFeeConfig, value)
}

func TestParseMint(t *testing.T) {
	t.Run("spl token", func(t *testing.T) {
		mint, err := ParseMint(testMint, TokenProgramID, splMintData(6))
		require.NoError(t, err)
		assert.Equal(t, uint8(6), mint.Decimals)
		assert.Nil(t, mint.TransferFees)
		assert.Equal(t, TokenProgramID, mint.Owner)
	})

	t.Run("token-2022 with transfer fee", func(t *testing.T) {
		cfg := Config{
			ConfigAuthority:  solana.SysVarClockPubkey,
			WithheldAmount:   42,
			OlderTransferFee: TransferFee{Epoch: 500, MaximumFee: 1_000, BasisPoints: 50},
			NewerTransferFee: TransferFee{Epoch: 600, MaximumFee: 5_000_000, BasisPoints: 100},
		}
		mint, err := ParseMint(testMint, Token2022ProgramID, token2022MintData(9, cfg))
		require.NoError(t, err)
		assert.Equal(t, uint8(9), mint.Decimals)
		require.NotNil(t, mint.TransferFees)
		assert.Equal(t, cfg, *mint.TransferFees)
	})

	t.Run("token-2022 without extensions", func(t *testing.T) {
		mint, err := ParseMint(testMint, Token2022ProgramID, splMintData(6))
		require.NoError(t, err)
		assert.Nil(t, mint.TransferFees)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseMint(testMint, TokenProgramID, make([]byte, 10))
		assert.ErrorIs(t, err, ErrInvalidMint)

		_, err = ParseMint(testMint, solana.SystemProgramID, splMintData(6))
		assert.ErrorIs(t, err, ErrInvalidMint)

		data := token2022MintData(6, Config{})
		data[accountTypeOffset] = 2
		_, err = ParseMint(testMint, Token2022ProgramID, data)
		assert.ErrorIs(t, err, ErrInvalidMint)

		data = token2022MintData(6, Config{})
		_, err = ParseMint(testMint, Token2022ProgramID, data[:len(data)-1])
		assert.ErrorIs(t, err, ErrInvalidMint)

		data = appendExtension(token2022MintData(6, Config{})[:accountTypeOffset+1], extensionTransferFeeConfig, make([]byte, 100))
		_, err = ParseMint(testMint, Token2022ProgramID, data)
		assert.ErrorIs(t, err, ErrInvalidMint)
	})
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Resolve(testMint, 0)
	assert.ErrorIs(t, err, ErrUnknownMint)

	_, err = registry.AddAccount(testMint, TokenProgramID, splMintData(6))
	require.NoError(t, err)
	fee, err := registry.Resolve(testMint, 600)
	require.NoError(t, err)
	assert.Nil(t, fee)

	cfg := Config{
		OlderTransferFee: TransferFee{Epoch: 0, MaximumFee: 1_000, BasisPoints: 50},
		NewerTransferFee: TransferFee{Epoch: 600, MaximumFee: 2_000, BasisPoints: 100},
	}
	mint, err := registry.AddAccount(testMint, Token2022ProgramID, token2022MintData(6, cfg))
	require.NoError(t, err)
	stored, ok := registry.Get(testMint)
	require.True(t, ok)
	assert.Same(t, mint, stored)

	fee, err = registry.Resolve(testMint, 599)
	require.NoError(t, err)
	assert.Equal(t, cfg.OlderTransferFee, *fee)
	fee, err = registry.Resolve(testMint, 600)
	require.NoError(t, err)
	assert.Equal(t, cfg.NewerTransferFee, *fee)

	_, err = registry.AddAccount(solana.SysVarClockPubkey, TokenProgramID, nil)
	assert.ErrorIs(t, err, ErrInvalidMint)
	_, ok = registry.Get(solana.SysVarClockPubkey)
	assert.False(t, ok)
}
