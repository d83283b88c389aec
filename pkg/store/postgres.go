package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yimingwow/dlmmquote/pkg/pool/meteora"
)

// Schema creates the tables the Postgres store writes to
const Schema = `
CREATE TABLE IF NOT EXISTS dlmm_pairs (
	pool_address          TEXT PRIMARY KEY,
	active_id             INTEGER NOT NULL,
	volatility_accumulator BIGINT NOT NULL,
	volatility_reference  BIGINT NOT NULL,
	index_reference       INTEGER NOT NULL,
	last_update_timestamp BIGINT NOT NULL,
	protocol_fee_x        NUMERIC(20, 0) NOT NULL,
	protocol_fee_y        NUMERIC(20, 0) NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS dlmm_bins (
	pool_address     TEXT NOT NULL,
	bin_id           INTEGER NOT NULL,
	amount_x         NUMERIC(20, 0) NOT NULL,
	amount_y         NUMERIC(20, 0) NOT NULL,
	fee_x_per_token  NUMERIC(39, 0) NOT NULL,
	fee_y_per_token  NUMERIC(39, 0) NOT NULL,
	amount_x_in      NUMERIC(39, 0) NOT NULL,
	amount_y_in      NUMERIC(39, 0) NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_address, bin_id)
);
CREATE TABLE IF NOT EXISTS dlmm_swaps (
	id            BIGSERIAL PRIMARY KEY,
	pool_address  TEXT NOT NULL,
	swap_for_y    BOOLEAN NOT NULL,
	amount_in     NUMERIC(20, 0) NOT NULL,
	amount_out    NUMERIC(20, 0) NOT NULL,
	fee           NUMERIC(20, 0) NOT NULL,
	protocol_fee  NUMERIC(20, 0) NOT NULL,
	host_fee      NUMERIC(20, 0) NOT NULL,
	start_bin_id  INTEGER NOT NULL,
	end_bin_id    INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// PostgresStore commits swap deltas to Postgres, one transaction per delta
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the schema if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Commit writes the pair state, every bin of the touched bin arrays and a swap record
func (s *PostgresStore) Commit(ctx context.Context, delta *meteora.SwapDelta) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch, err := buildDeltaBatch(delta)
		if err != nil {
			return err
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to commit delta for %s: %w", delta.PoolId, err)
			}
		}
		return br.Close()
	})
}

func buildDeltaBatch(delta *meteora.SwapDelta) (*pgx.Batch, error) {
	poolAddress := delta.PoolId.String()
	pair := delta.Pair
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO dlmm_pairs (
			pool_address, active_id, volatility_accumulator, volatility_reference, index_reference,
			last_update_timestamp, protocol_fee_x, protocol_fee_y, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, now())
		ON CONFLICT (pool_address)
		DO UPDATE SET
			active_id = EXCLUDED.active_id,
			volatility_accumulator = EXCLUDED.volatility_accumulator,
			volatility_reference = EXCLUDED.volatility_reference,
			index_reference = EXCLUDED.index_reference,
			last_update_timestamp = EXCLUDED.last_update_timestamp,
			protocol_fee_x = EXCLUDED.protocol_fee_x,
			protocol_fee_y = EXCLUDED.protocol_fee_y,
			updated_at = now()
	`,
		poolAddress,
		pair.ActiveID,
		int64(pair.VParameters.VolatilityAccumulator),
		int64(pair.VParameters.VolatilityReference),
		pair.VParameters.IndexReference,
		pair.VParameters.LastUpdateTimestamp,
		strconv.FormatUint(pair.ProtocolFee.AmountX, 10),
		strconv.FormatUint(pair.ProtocolFee.AmountY, 10),
	)

	for _, binArray := range delta.BinArrays {
		lower, _, err := meteora.GetBinArrayLowerUpperBinID(binArray.Index)
		if err != nil {
			return nil, err
		}
		for i, b := range binArray.Bins {
			batch.Queue(`
				INSERT INTO dlmm_bins (
					pool_address, bin_id, amount_x, amount_y, fee_x_per_token, fee_y_per_token,
					amount_x_in, amount_y_in, updated_at
				) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, now())
				ON CONFLICT (pool_address, bin_id)
				DO UPDATE SET
					amount_x = EXCLUDED.amount_x,
					amount_y = EXCLUDED.amount_y,
					fee_x_per_token = EXCLUDED.fee_x_per_token,
					fee_y_per_token = EXCLUDED.fee_y_per_token,
					amount_x_in = EXCLUDED.amount_x_in,
					amount_y_in = EXCLUDED.amount_y_in,
					updated_at = now()
			`,
				poolAddress,
				lower+int32(i),
				strconv.FormatUint(b.AmountX, 10),
				strconv.FormatUint(b.AmountY, 10),
				b.FeeAmountXPerTokenStored.String(),
				b.FeeAmountYPerTokenStored.String(),
				b.AmountXIn.String(),
				b.AmountYIn.String(),
			)
		}
	}

	q := delta.Quote
	batch.Queue(`
		INSERT INTO dlmm_swaps (
			pool_address, swap_for_y, amount_in, amount_out, fee, protocol_fee, host_fee, start_bin_id, end_bin_id
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9)
	`,
		poolAddress,
		delta.SwapForY,
		strconv.FormatUint(q.AmountIn, 10),
		strconv.FormatUint(q.AmountOut, 10),
		strconv.FormatUint(q.Fee, 10),
		strconv.FormatUint(q.ProtocolFee, 10),
		strconv.FormatUint(q.HostFee, 10),
		q.StartBinID,
		q.EndBinID,
	)
	return batch, nil
}
