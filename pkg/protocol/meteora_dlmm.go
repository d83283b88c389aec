// Package protocol builds pool snapshots from live chain state
package protocol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/yimingwow/dlmmquote/pkg"
	"github.com/yimingwow/dlmmquote/pkg/pool/meteora"
	"github.com/yimingwow/dlmmquote/pkg/sol"
	"github.com/yimingwow/dlmmquote/pkg/transferfee"
	"go.uber.org/zap"
)

const (
	// DefaultBinArraysPerSide is how many populated bin arrays are fetched in each swap direction
	DefaultBinArraysPerSide = 3
	// maxAccountsPerRequest is the getMultipleAccounts limit
	maxAccountsPerRequest = 100
)

// MeteoraDlmmProtocol handles interactions with Meteora DLMM (Dynamic Liquidity Market Maker) pools
type MeteoraDlmmProtocol struct {
	SolClient        *sol.Client
	Logger           *zap.Logger
	BinArraysPerSide int
}

// NewMeteoraDlmm creates a new MeteoraDlmmProtocol instance
func NewMeteoraDlmm(solClient *sol.Client, logger *zap.Logger) *MeteoraDlmmProtocol {
	return &MeteoraDlmmProtocol{
		SolClient:        solClient,
		Logger:           logger,
		BinArraysPerSide: DefaultBinArraysPerSide,
	}
}

func (protocol *MeteoraDlmmProtocol) ProtocolName() pkg.ProtocolName {
	return pkg.ProtocolNameMeteoraDlmm
}

// FetchPoolsByPair retrieves all Meteora DLMM pools for a given token pair
func (protocol *MeteoraDlmmProtocol) FetchPoolsByPair(ctx context.Context, baseMint string, quoteMint string) ([]pkg.Pool, error) {
	base, err := solana.PublicKeyFromBase58(baseMint)
	if err != nil {
		return nil, fmt.Errorf("invalid base mint %q: %w", baseMint, err)
	}
	quote, err := solana.PublicKeyFromBase58(quoteMint)
	if err != nil {
		return nil, fmt.Errorf("invalid quote mint %q: %w", quoteMint, err)
	}

	programAccounts, err := protocol.getMeteoraDlmmPoolAccountsByTokenPair(ctx, base, quote)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pools with baseMint as TokenX: %w", err)
	}

	pools := make([]pkg.Pool, 0, len(programAccounts))
	for _, account := range programAccounts {
		pool, err := protocol.buildSnapshot(ctx, account.Pubkey, account.Account.Data.GetBinary())
		if err != nil {
			// Skip pools that can't be decoded or completed
			protocol.Logger.Warn("skipping pool", zap.Stringer("pool", account.Pubkey), zap.Error(err))
			continue
		}
		pools = append(pools, pool)
	}
	protocol.Logger.Info("fetched pools",
		zap.String("base_mint", baseMint),
		zap.String("quote_mint", quoteMint),
		zap.Int("count", len(pools)))
	return pools, nil
}

// getMeteoraDlmmPoolAccountsByTokenPair retrieves pool accounts for a specific token pair configuration
func (protocol *MeteoraDlmmProtocol) getMeteoraDlmmPoolAccountsByTokenPair(ctx context.Context, baseMint, quoteMint solana.PublicKey) (rpc.GetProgramAccountsResult, error) {
	var poolLayout meteora.MeteoraDlmmPool
	result, err := protocol.SolClient.GetProgramAccountsWithOpts(ctx, meteora.MeteoraProgramID, &rpc.GetProgramAccountsOpts{
		Filters: []rpc.RPCFilter{
			{
				DataSize: meteora.LbPairAccountSize,
			},
			{
				Memcmp: &rpc.RPCFilterMemcmp{
					Offset: poolLayout.Offset("TokenXMint"),
					Bytes:  baseMint.Bytes(),
				},
			},
			{
				Memcmp: &rpc.RPCFilterMemcmp{
					Offset: poolLayout.Offset("TokenYMint"),
					Bytes:  quoteMint.Bytes(),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get program accounts: %w", err)
	}
	return result, nil
}

// FetchPoolByID retrieves a specific Meteora DLMM pool by its ID
func (protocol *MeteoraDlmmProtocol) FetchPoolByID(ctx context.Context, poolID string) (pkg.Pool, error) {
	return protocol.FetchSnapshot(ctx, poolID)
}

// FetchSnapshot builds a complete snapshot of one pool
func (protocol *MeteoraDlmmProtocol) FetchSnapshot(ctx context.Context, poolID string) (*meteora.MeteoraDlmmPool, error) {
	poolKey, err := solana.PublicKeyFromBase58(poolID)
	if err != nil {
		return nil, fmt.Errorf("invalid pool id %q: %w", poolID, err)
	}
	account, err := protocol.SolClient.GetAccountInfoWithOpts(ctx, poolKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get pool account: %w", err)
	}
	if account.Value == nil {
		return nil, fmt.Errorf("pool account %s not found", poolID)
	}
	return protocol.buildSnapshot(ctx, poolKey, account.Value.Data.GetBinary())
}

// buildSnapshot completes a decoded pair with its bitmap extension, token
// mints, the clock and the bin arrays a swap in either direction will walk
func (protocol *MeteoraDlmmProtocol) buildSnapshot(ctx context.Context, poolKey solana.PublicKey, data []byte) (*meteora.MeteoraDlmmPool, error) {
	pool, err := meteora.NewMeteoraDlmmPool(poolKey, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pool data: %w", err)
	}

	keys := []solana.PublicKey{
		pool.BitmapExtensionKey,
		pool.Pair.TokenXMint,
		pool.Pair.TokenYMint,
		solana.SysVarClockPubkey,
	}
	accounts, err := protocol.getMultipleAccounts(ctx, keys)
	if err != nil {
		return nil, err
	}
	if ext := accounts[0]; ext != nil {
		if err := pool.SetBitmapExtension(ext.Data.GetBinary()); err != nil {
			return nil, err
		}
	}

	registry := transferfee.NewRegistry()
	for i, mint := range []solana.PublicKey{pool.Pair.TokenXMint, pool.Pair.TokenYMint} {
		account := accounts[1+i]
		if account == nil {
			return nil, fmt.Errorf("mint account %s not found", mint)
		}
		if _, err := registry.AddAccount(mint, account.Owner, account.Data.GetBinary()); err != nil {
			return nil, err
		}
	}
	pool.TransferFees = registry

	if accounts[3] == nil {
		return nil, fmt.Errorf("clock account not found in the network")
	}
	clock, err := sol.ParseClock(accounts[3].Data.GetBinary())
	if err != nil {
		return nil, err
	}
	pool.Clock = *clock

	if err := protocol.fetchBinArrays(ctx, pool); err != nil {
		return nil, fmt.Errorf("failed to get bin array for swap: %w", err)
	}
	protocol.Logger.Debug("built pool snapshot",
		zap.Stringer("pool", poolKey),
		zap.Int32("active_id", pool.Pair.ActiveID),
		zap.Int("bin_arrays", len(pool.BinArrays)),
		zap.Bool("bitmap_extension", pool.BitmapExtension != nil))
	return pool, nil
}

// fetchBinArrays loads the populated bin arrays on both sides of the active bin
func (protocol *MeteoraDlmmProtocol) fetchBinArrays(ctx context.Context, pool *meteora.MeteoraDlmmPool) error {
	perSide := protocol.BinArraysPerSide
	if perSide <= 0 {
		perSide = DefaultBinArraysPerSide
	}
	seen := make(map[int64]struct{})
	var keys []solana.PublicKey
	for _, swapForY := range []bool{true, false} {
		pubkeys, indexes, err := pool.GetBinArrayPubkeysForSwap(swapForY, perSide)
		if err != nil {
			return err
		}
		for i, idx := range indexes {
			if _, ok := seen[idx]; ok {
				continue
			}
			seen[idx] = struct{}{}
			keys = append(keys, pubkeys[i])
		}
	}

	accounts, err := protocol.getMultipleAccounts(ctx, keys)
	if err != nil {
		return err
	}
	for i, account := range accounts {
		if account == nil {
			// the engine fails with a state error if it ever needs this array
			protocol.Logger.Warn("bin array account missing", zap.Stringer("bin_array", keys[i]))
			continue
		}
		if err := pool.AddBinArrayAccount(account.Data.GetBinary()); err != nil {
			return err
		}
	}
	return nil
}

// getMultipleAccounts fetches accounts in batches, preserving order. Missing accounts are nil.
func (protocol *MeteoraDlmmProtocol) getMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*rpc.Account, error) {
	accounts := make([]*rpc.Account, 0, len(keys))
	for start := 0; start < len(keys); start += maxAccountsPerRequest {
		end := min(start+maxAccountsPerRequest, len(keys))
		result, err := protocol.SolClient.GetMultipleAccountsWithOpts(ctx, keys[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to get multiple accounts: %w", err)
		}
		if len(result.Value) != end-start {
			return nil, fmt.Errorf("expected %d accounts, got %d", end-start, len(result.Value))
		}
		accounts = append(accounts, result.Value...)
	}
	return accounts, nil
}
