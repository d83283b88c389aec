package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/yimingwow/dlmmquote/pkg"
	"go.uber.org/zap"
)

// ErrNoRoute is returned when no pool can serve a request
var ErrNoRoute = errors.New("no route found")

type SimpleRouter struct {
	Protocols []pkg.Protocol
	Pools     []pkg.Pool
	logger    *zap.Logger
	metrics   *Metrics
}

func NewSimpleRouter(logger *zap.Logger, metrics *Metrics, protocols ...pkg.Protocol) *SimpleRouter {
	return &SimpleRouter{
		Protocols: protocols,
		Pools:     []pkg.Pool{},
		logger:    logger,
		metrics:   metrics,
	}
}

// AddPools adds pool snapshots obtained elsewhere
func (r *SimpleRouter) AddPools(pools ...pkg.Pool) {
	r.Pools = append(r.Pools, pools...)
	r.trackPools()
}

func (r *SimpleRouter) QueryAllPools(ctx context.Context, baseMint, quoteMint string) error {
	var allPools []pkg.Pool

	// Loop through each protocol sequentially
	for _, proto := range r.Protocols {
		r.logger.Info("fetching pools", zap.String("protocol", string(proto.ProtocolName())))
		pools, err := proto.FetchPoolsByPair(ctx, baseMint, quoteMint)
		if err != nil {
			r.logger.Warn("error fetching pools from protocol",
				zap.String("protocol", string(proto.ProtocolName())), zap.Error(err))
			continue
		}
		allPools = append(allPools, pools...)
	}

	r.Pools = allPools
	r.trackPools()
	return nil
}

func (r *SimpleRouter) trackPools() {
	if r.metrics != nil {
		r.metrics.poolsTracked.Set(float64(len(r.Pools)))
	}
}

type quoteResult struct {
	pool   pkg.Pool
	amount math.Int
	err    error
}

// quoteAll runs quote against every pool concurrently
func (r *SimpleRouter) quoteAll(quote func(pkg.Pool) (math.Int, error)) []quoteResult {
	resultChan := make(chan quoteResult, len(r.Pools))
	var wg sync.WaitGroup

	for _, pool := range r.Pools {
		wg.Add(1)
		go func(p pkg.Pool) {
			defer wg.Done()
			start := time.Now()
			amount, err := quote(p)
			r.observe(p, start, err)
			resultChan <- quoteResult{pool: p, amount: amount, err: err}
		}(pool)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]quoteResult, 0, len(r.Pools))
	for result := range resultChan {
		if result.err != nil {
			r.logger.Debug("error quoting pool", zap.String("pool", result.pool.GetID()), zap.Error(result.err))
			continue
		}
		results = append(results, result)
	}
	return results
}

func (r *SimpleRouter) observe(p pkg.Pool, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	protocol := string(p.ProtocolName())
	r.metrics.quoteDuration.WithLabelValues(protocol).Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.metrics.quotesTotal.WithLabelValues(protocol, result).Inc()
}

// GetBestPool returns the pool giving the largest output for an exact input
func (r *SimpleRouter) GetBestPool(ctx context.Context, tokenIn string, amountIn math.Int) (pkg.Pool, math.Int, error) {
	results := r.quoteAll(func(p pkg.Pool) (math.Int, error) {
		return p.Quote(ctx, tokenIn, amountIn)
	})

	var best pkg.Pool
	maxOut := math.ZeroInt()
	for _, result := range results {
		if result.amount.GT(maxOut) {
			maxOut = result.amount
			best = result.pool
		}
	}
	if best == nil {
		return nil, math.ZeroInt(), fmt.Errorf("%w for %s %s", ErrNoRoute, amountIn, tokenIn)
	}
	r.logger.Info("best pool",
		zap.String("pool", best.GetID()),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", maxOut.String()))
	return best, maxOut, nil
}

// GetBestPoolExactOut returns the pool requiring the smallest input for an exact output
func (r *SimpleRouter) GetBestPoolExactOut(ctx context.Context, tokenOut string, amountOut math.Int) (pkg.Pool, math.Int, error) {
	results := r.quoteAll(func(p pkg.Pool) (math.Int, error) {
		return p.QuoteOut(ctx, tokenOut, amountOut)
	})

	var (
		best  pkg.Pool
		minIn math.Int
	)
	for _, result := range results {
		if best == nil || result.amount.LT(minIn) {
			minIn = result.amount
			best = result.pool
		}
	}
	if best == nil {
		return nil, math.ZeroInt(), fmt.Errorf("%w for %s %s out", ErrNoRoute, amountOut, tokenOut)
	}
	r.logger.Info("best pool",
		zap.String("pool", best.GetID()),
		zap.String("amount_in", minIn.String()),
		zap.String("amount_out", amountOut.String()))
	return best, minIn, nil
}
