package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yimingwow/dlmmquote/pkg/config"
	"github.com/yimingwow/dlmmquote/pkg/pool/meteora"
	"github.com/yimingwow/dlmmquote/pkg/protocol"
	"github.com/yimingwow/dlmmquote/pkg/router"
	"github.com/yimingwow/dlmmquote/pkg/snapshot"
	"github.com/yimingwow/dlmmquote/pkg/sol"
	"github.com/yimingwow/dlmmquote/pkg/store"
)

func main() {
	root := &cobra.Command{
		Use:          "dlmmquote",
		Short:        "Meteora DLMM quote and swap engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote an exact-in or exact-out swap against one pool",
		RunE:  runQuote,
	}
	addPoolFlags(quoteCmd.Flags())
	quoteCmd.Flags().Bool("exact-out", false, "treat amount as the exact output")
	root.AddCommand(quoteCmd)

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Execute an exact-in swap against a snapshot and commit the resulting state",
		RunE:  runSwap,
	}
	addPoolFlags(swapCmd.Flags())
	swapCmd.Flags().String("pg-dsn", "", "Postgres DSN, in-memory store when empty")
	root.AddCommand(swapCmd)

	routeCmd := &cobra.Command{
		Use:   "route",
		Short: "Quote every pool of a token pair and pick the best one",
		RunE:  runRoute,
	}
	routeCmd.Flags().String("rpc", "", "Solana RPC URL")
	routeCmd.Flags().Int("rps", 20, "RPC requests per second")
	routeCmd.Flags().String("base-mint", "", "token X mint")
	routeCmd.Flags().String("quote-mint", "", "token Y mint")
	routeCmd.Flags().Uint64("amount", 0, "amount in smallest units")
	routeCmd.Flags().Bool("swap-for-y", true, "sell token X for token Y")
	routeCmd.Flags().Bool("exact-out", false, "treat amount as the exact output")
	routeCmd.Flags().Int("bin-arrays-per-side", protocol.DefaultBinArraysPerSide, "bin arrays fetched per swap direction")
	routeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(routeCmd)

	priceCmd := &cobra.Command{
		Use:   "price <bin-id>",
		Short: "Print the price of a bin",
		Args:  cobra.ExactArgs(1),
		RunE:  runPrice,
	}
	priceCmd.Flags().Uint16("bin-step", 25, "bin step in basis points")
	priceCmd.Flags().Uint8("decimals-x", 9, "token X decimals")
	priceCmd.Flags().Uint8("decimals-y", 6, "token Y decimals")
	root.AddCommand(priceCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPoolFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "Solana RPC URL")
	flags.Int("rps", 20, "RPC requests per second")
	flags.String("pool", "", "lb pair address")
	flags.String("snapshot", "", "JSON snapshot dump, used instead of RPC when set")
	flags.Uint64("amount", 0, "amount in smallest units")
	flags.Bool("swap-for-y", true, "sell token X for token Y")
	flags.Int("max-bin-arrays", meteora.DefaultMaxBinArrays, "traversal cap in bin arrays")
	flags.Int("bin-arrays-per-side", protocol.DefaultBinArraysPerSide, "bin arrays fetched per swap direction")
	flags.Int("host-fee-bps", -1, "referral share of the protocol fee in bps, disabled when negative")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// loadPool reads the pool from a snapshot dump or, without one, from RPC
func loadPool(ctx context.Context, cfg config.Config, logger *zap.Logger) (*meteora.MeteoraDlmmPool, error) {
	if cfg.Snapshot != "" {
		pool, err := snapshot.LoadFile(cfg.Snapshot, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded snapshot", zap.String("path", cfg.Snapshot), zap.String("pool", pool.GetID()))
		return pool, nil
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url or snapshot is required")
	}
	if cfg.Pool == "" {
		return nil, fmt.Errorf("pool address is required")
	}
	supplier := protocol.NewMeteoraDlmm(sol.NewClient(cfg.RPCURL, cfg.RPS), logger)
	supplier.BinArraysPerSide = cfg.BinArraysPerSide
	return supplier.FetchSnapshot(ctx, cfg.Pool)
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := loadPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	opts := meteora.QuoteOptions{MaxBinArrays: cfg.MaxBinArrays, HostFeeBps: cfg.HostFeeBps}

	var result *meteora.QuoteResult
	if cfg.ExactOut {
		result, err = pool.QuoteExactOut(cfg.Amount, cfg.SwapForY, opts)
	} else {
		result, err = pool.QuoteExactIn(cfg.Amount, cfg.SwapForY, opts)
	}
	if err != nil {
		logQuoteError(logger, err)
		return err
	}
	logQuote(logger, pool, cfg, result)
	return nil
}

func runSwap(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := loadPool(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var committer store.Committer
	if cfg.PGDSN != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pgStore.Close()
		if err := pgStore.Migrate(ctx); err != nil {
			return err
		}
		committer = pgStore
	} else {
		memStore := store.NewMemoryStore()
		memStore.Put(pool)
		committer = memStore
	}

	delta, err := pool.SwapExactIn(cfg.Amount, cfg.SwapForY, meteora.QuoteOptions{
		MaxBinArrays: cfg.MaxBinArrays,
		HostFeeBps:   cfg.HostFeeBps,
	})
	if err != nil {
		logQuoteError(logger, err)
		return err
	}
	if err := committer.Commit(ctx, delta); err != nil {
		return fmt.Errorf("commit swap: %w", err)
	}
	logQuote(logger, pool, cfg, &delta.Quote)
	logger.Info("swap committed",
		zap.String("pool", pool.GetID()),
		zap.Int32("active_id", delta.Pair.ActiveID),
		zap.Int("bin_arrays", len(delta.BinArrays)),
		zap.Uint64("protocol_fee_x", delta.Pair.ProtocolFee.AmountX),
		zap.Uint64("protocol_fee_y", delta.Pair.ProtocolFee.AmountY))
	return nil
}

func runRoute(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.BaseMint == "" || cfg.QuoteMint == "" {
		return fmt.Errorf("base-mint and quote-mint are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supplier := protocol.NewMeteoraDlmm(sol.NewClient(cfg.RPCURL, cfg.RPS), logger)
	supplier.BinArraysPerSide = cfg.BinArraysPerSide
	r := router.NewSimpleRouter(logger, router.NewMetrics(prometheus.DefaultRegisterer), supplier)
	if err := r.QueryAllPools(ctx, cfg.BaseMint, cfg.QuoteMint); err != nil {
		return err
	}

	inMint, outMint := cfg.BaseMint, cfg.QuoteMint
	if !cfg.SwapForY {
		inMint, outMint = outMint, inMint
	}
	amount := math.NewIntFromUint64(cfg.Amount)
	if cfg.ExactOut {
		_, _, err = r.GetBestPoolExactOut(ctx, outMint, amount)
	} else {
		_, _, err = r.GetBestPool(ctx, inMint, amount)
	}
	return err
}

func runPrice(cmd *cobra.Command, args []string) error {
	binID, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid bin id %q: %w", args[0], err)
	}
	binStep, _ := cmd.Flags().GetUint16("bin-step")
	decimalsX, _ := cmd.Flags().GetUint8("decimals-x")
	decimalsY, _ := cmd.Flags().GetUint8("decimals-y")

	price, err := meteora.GetPriceFromID(int32(binID), binStep)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "bin %d: q64.64 %s, price %s\n",
		binID, price.String(), meteora.PriceToDecimal(price, decimalsX, decimalsY).String())
	return nil
}

func logQuote(logger *zap.Logger, pool *meteora.MeteoraDlmmPool, cfg config.Config, result *meteora.QuoteResult) {
	logger.Info("quote",
		zap.String("pool", pool.GetID()),
		zap.Bool("swap_for_y", cfg.SwapForY),
		zap.Bool("exact_out", cfg.ExactOut),
		zap.Uint64("amount_in", result.AmountIn),
		zap.Uint64("amount_out", result.AmountOut),
		zap.Uint64("fee", result.Fee),
		zap.Uint64("protocol_fee", result.ProtocolFee),
		zap.Uint64("host_fee", result.HostFee),
		zap.Uint64("transfer_fee_in", result.TransferFeeIn),
		zap.Uint64("transfer_fee_out", result.TransferFeeOut),
		zap.Int32("start_bin_id", result.StartBinID),
		zap.Int32("end_bin_id", result.EndBinID),
		zap.Int("bins_visited", result.BinsVisited))
}

func logQuoteError(logger *zap.Logger, err error) {
	class := "unknown"
	switch {
	case errors.Is(err, meteora.ErrValidation):
		class = "validation"
	case errors.Is(err, meteora.ErrState):
		class = "state"
	case errors.Is(err, meteora.ErrArithmetic):
		class = "arithmetic"
	case errors.Is(err, meteora.ErrLiquidityExhausted):
		class = "liquidity_exhausted"
	case errors.Is(err, meteora.ErrIterationLimitExceeded):
		class = "iteration_limit"
	}
	logger.Error("quote failed", zap.String("class", class), zap.Error(err))
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
