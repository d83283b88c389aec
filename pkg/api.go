package pkg

import (
	"context"

	"cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

// ProtocolName represents the string name of AMM protocol
type ProtocolName string

const (
	ProtocolNameMeteoraDlmm ProtocolName = "meteora_dlmm"
)

// Pool is a point-in-time pool snapshot that can be quoted without I/O
type Pool interface {
	ProtocolName() ProtocolName
	GetProgramID() solana.PublicKey
	GetID() string
	GetTokens() (baseMint, quoteMint string)
	// Quote returns the amount received for an exact input of inputMint
	Quote(ctx context.Context, inputMint string, inputAmount math.Int) (math.Int, error)
	// QuoteOut returns the input required to receive an exact amount of outputMint
	QuoteOut(ctx context.Context, outputMint string, outputAmount math.Int) (math.Int, error)
}

// Protocol builds pool snapshots from chain state
type Protocol interface {
	ProtocolName() ProtocolName
	FetchPoolsByPair(ctx context.Context, baseMint, quoteMint string) ([]Pool, error)
	FetchPoolByID(ctx context.Context, poolID string) (Pool, error)
}
