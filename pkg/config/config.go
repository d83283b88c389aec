package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	RPS              int
	Pool             string
	Snapshot         string
	BaseMint         string
	QuoteMint        string
	Amount           uint64
	SwapForY         bool
	ExactOut         bool
	MaxBinArrays     int
	BinArraysPerSide int
	// HostFeeBps is nil when no referral fee applies
	HostFeeBps *uint16
	PGDSN      string
	LogLevel   string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DLMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rps", 20)
	v.SetDefault("swap-for-y", true)
	v.SetDefault("max-bin-arrays", 512)
	v.SetDefault("bin-arrays-per-side", 3)
	v.SetDefault("host-fee-bps", -1)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		RPS:              v.GetInt("rps"),
		Pool:             v.GetString("pool"),
		Snapshot:         v.GetString("snapshot"),
		BaseMint:         v.GetString("base-mint"),
		QuoteMint:        v.GetString("quote-mint"),
		Amount:           v.GetUint64("amount"),
		SwapForY:         v.GetBool("swap-for-y"),
		ExactOut:         v.GetBool("exact-out"),
		MaxBinArrays:     v.GetInt("max-bin-arrays"),
		BinArraysPerSide: v.GetInt("bin-arrays-per-side"),
		PGDSN:            v.GetString("pg-dsn"),
		LogLevel:         v.GetString("log-level"),
	}

	if hostFeeBps := v.GetInt("host-fee-bps"); hostFeeBps >= 0 {
		if hostFeeBps > math.MaxUint16 {
			return Config{}, fmt.Errorf("host-fee-bps %d out of range", hostFeeBps)
		}
		bps := uint16(hostFeeBps)
		cfg.HostFeeBps = &bps
	}
	if cfg.MaxBinArrays < 0 {
		return Config{}, fmt.Errorf("max-bin-arrays must not be negative, got %d", cfg.MaxBinArrays)
	}

	return cfg, nil
}
