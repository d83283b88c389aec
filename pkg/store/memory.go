package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/yimingwow/dlmmquote/pkg/pool/meteora"
)

// binArrayKey identifies a bin array by its pool and index
type binArrayKey struct {
	pool  solana.PublicKey
	index int64
}

// MemoryStore is an in-memory arena of pool records keyed by pool id and of
// bin arrays keyed by (pool id, array index)
type MemoryStore struct {
	mu        sync.RWMutex
	pools     map[solana.PublicKey]meteora.MeteoraDlmmPool
	binArrays map[binArrayKey]meteora.BinArray
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:     make(map[solana.PublicKey]meteora.MeteoraDlmmPool),
		binArrays: make(map[binArrayKey]meteora.BinArray),
	}
}

// Put stores a snapshot, replacing the pool record and every bin array it carries
func (s *MemoryStore) Put(pool *meteora.MeteoraDlmmPool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := *pool
	record.BinArrays = nil
	s.pools[pool.PoolId] = record
	for idx, binArray := range pool.BinArrays {
		s.binArrays[binArrayKey{pool: pool.PoolId, index: idx}] = binArray
	}
}

// Snapshot returns an independent copy of the stored pool and its bin arrays
func (s *MemoryStore) Snapshot(poolID solana.PublicKey) (*meteora.MeteoraDlmmPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPool, poolID)
	}
	pool := record
	pool.BinArrays = make(map[int64]meteora.BinArray)
	for key, binArray := range s.binArrays {
		if key.pool.Equals(poolID) {
			pool.BinArrays[key.index] = binArray
		}
	}
	return &pool, nil
}

// BinArray returns a stored bin array
func (s *MemoryStore) BinArray(poolID solana.PublicKey, index int64) (meteora.BinArray, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	binArray, ok := s.binArrays[binArrayKey{pool: poolID, index: index}]
	return binArray, ok
}

// Commit applies a delta atomically with respect to other store operations
func (s *MemoryStore) Commit(ctx context.Context, delta *meteora.SwapDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.pools[delta.PoolId]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPool, delta.PoolId)
	}
	for _, binArray := range delta.BinArrays {
		if !binArray.LbPair.Equals(delta.PoolId) {
			return fmt.Errorf("bin array %d belongs to %s, not %s", binArray.Index, binArray.LbPair, delta.PoolId)
		}
	}

	record.Pair = delta.Pair
	s.pools[delta.PoolId] = record
	for _, binArray := range delta.BinArrays {
		s.binArrays[binArrayKey{pool: delta.PoolId, index: binArray.Index}] = binArray
	}
	return nil
}
