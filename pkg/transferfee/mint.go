package transferfee

import (
	"encoding/binary"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	// mintBaseSize is the length of an SPL mint without extensions
	mintBaseSize = 82
	// accountTypeOffset is where Token-2022 stores the account type of an extended mint
	accountTypeOffset = 165
	accountTypeMint   = 1

	extensionTransferFeeConfig = 1
	transferFeeConfigSize      = 108
)

var (
	TokenProgramID     = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
)

// Mint is the subset of mint state the quote engine needs
type Mint struct {
	Address      solana.PublicKey
	Owner        solana.PublicKey
	Decimals     uint8
	TransferFees *Config
}

// ParseMint decodes an SPL Token or Token-2022 mint account. Token-2022 mints
// are scanned for the TransferFeeConfig extension.
func ParseMint(address, owner solana.PublicKey, data []byte) (*Mint, error) {
	if len(data) < mintBaseSize {
		return nil, fmt.Errorf("%w: %s data too short: %d bytes", ErrInvalidMint, address, len(data))
	}
	mint := &Mint{
		Address:  address,
		Owner:    owner,
		Decimals: data[44],
	}
	switch {
	case owner.Equals(TokenProgramID):
		return mint, nil
	case owner.Equals(Token2022ProgramID):
	default:
		return nil, fmt.Errorf("%w: %s owned by %s", ErrInvalidMint, address, owner)
	}
	if len(data) <= accountTypeOffset {
		return mint, nil
	}
	if data[accountTypeOffset] != accountTypeMint {
		return nil, fmt.Errorf("%w: %s has account type %d", ErrInvalidMint, address, data[accountTypeOffset])
	}

	tlv := data[accountTypeOffset+1:]
	for len(tlv) >= 4 {
		extType := binary.LittleEndian.Uint16(tlv[0:2])
		length := int(binary.LittleEndian.Uint16(tlv[2:4]))
		if extType == 0 {
			break
		}
		if len(tlv) < 4+length {
			return nil, fmt.Errorf("%w: %s extension %d truncated", ErrInvalidMint, address, extType)
		}
		if extType == extensionTransferFeeConfig {
			if length != transferFeeConfigSize {
				return nil, fmt.Errorf("%w: %s transfer fee config has length %d", ErrInvalidMint, address, length)
			}
			cfg := &Config{}
			if err := bin.NewBinDecoder(tlv[4 : 4+length]).Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to decode transfer fee config of %s: %w", address, err)
			}
			mint.TransferFees = cfg
		}
		tlv = tlv[4+length:]
	}
	return mint, nil
}

// Resolver returns the transfer fee in force for a mint at an epoch.
// A nil fee with a nil error means the mint charges no transfer fee.
type Resolver interface {
	Resolve(mint solana.PublicKey, epoch uint64) (*TransferFee, error)
}

// Registry is a concurrency-safe Resolver fed from parsed mint accounts
type Registry struct {
	mu    sync.RWMutex
	mints map[solana.PublicKey]*Mint
}

func NewRegistry() *Registry {
	return &Registry{mints: make(map[solana.PublicKey]*Mint)}
}

// Add registers a parsed mint, replacing any previous entry
func (r *Registry) Add(mint *Mint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mints[mint.Address] = mint
}

// AddAccount parses and registers a raw mint account
func (r *Registry) AddAccount(address, owner solana.PublicKey, data []byte) (*Mint, error) {
	mint, err := ParseMint(address, owner, data)
	if err != nil {
		return nil, err
	}
	r.Add(mint)
	return mint, nil
}

// Get returns the registered mint
func (r *Registry) Get(address solana.PublicKey) (*Mint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mint, ok := r.mints[address]
	return mint, ok
}

func (r *Registry) Resolve(address solana.PublicKey, epoch uint64) (*TransferFee, error) {
	mint, ok := r.Get(address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMint, address)
	}
	if mint.TransferFees == nil {
		return nil, nil
	}
	fee := mint.TransferFees.FeeForEpoch(epoch)
	return &fee, nil
}
