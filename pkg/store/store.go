// Package store applies swap deltas to durable pool state.
package store

import (
	"context"
	"errors"

	"github.com/yimingwow/dlmmquote/pkg/pool/meteora"
)

// ErrUnknownPool is returned when a delta targets a pool the store never saw
var ErrUnknownPool = errors.New("unknown pool")

// Committer commits a swap delta to durable reserve state. A delta is applied
// completely or not at all.
type Committer interface {
	Commit(ctx context.Context, delta *meteora.SwapDelta) error
}
