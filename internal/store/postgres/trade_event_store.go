package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictfi/predict-go/internal/domain"
)

// TradeEventStore implements domain.TradeEventStore using PostgreSQL. It is
// an analytics sink for the indexer; position reconstruction replays chain
// logs directly and never reads from here.
type TradeEventStore struct {
	pool *pgxpool.Pool
}

// NewTradeEventStore creates a TradeEventStore backed by the given pool.
func NewTradeEventStore(pool *pgxpool.Pool) *TradeEventStore {
	return &TradeEventStore{pool: pool}
}

const tradeEventCols = `chain_id, market, trader, side, outcome_index,
	shares, amount, fee, block_number, tx_hash, log_index, ts`

func scanTradeEvents(rows pgx.Rows) ([]domain.TradeEvent, error) {
	var events []domain.TradeEvent
	for rows.Next() {
		var (
			e                  domain.TradeEvent
			market, trader     string
			side, txHash       string
			shares, amount     string
			fee                string
			outcomeIdx, logIdx int64
		)
		if err := rows.Scan(
			&e.ChainID, &market, &trader, &side, &outcomeIdx,
			&shares, &amount, &fee, &e.BlockNumber, &txHash, &logIdx, &e.Timestamp,
		); err != nil {
			return nil, err
		}

		e.Market = common.HexToAddress(market)
		e.Trader = common.HexToAddress(trader)
		e.Side = domain.TradeSide(side)
		e.OutcomeIndex = uint64(outcomeIdx)
		e.TxHash = common.HexToHash(txHash)
		e.LogIndex = uint(logIdx)

		var ok bool
		if e.Shares, ok = new(big.Int).SetString(shares, 10); !ok {
			return nil, fmt.Errorf("postgres: malformed shares %q", shares)
		}
		if e.Amount, ok = new(big.Int).SetString(amount, 10); !ok {
			return nil, fmt.Errorf("postgres: malformed amount %q", amount)
		}
		if e.Fee, ok = new(big.Int).SetString(fee, 10); !ok {
			return nil, fmt.Errorf("postgres: malformed fee %q", fee)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// InsertBatch inserts events efficiently using pgx Batch. Duplicates (same
// chain, tx hash, and log index) are silently skipped via ON CONFLICT DO
// NOTHING, so re-scanning an already-indexed block range is harmless.
func (s *TradeEventStore) InsertBatch(ctx context.Context, events []domain.TradeEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trade_events (
			chain_id, market, trader, side, outcome_index,
			shares, amount, fee, block_number, tx_hash, log_index, ts
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12
		) ON CONFLICT (chain_id, tx_hash, log_index) DO NOTHING`

	for _, e := range events {
		batch.Queue(query,
			e.ChainID, e.Market.Hex(), e.Trader.Hex(), string(e.Side), int64(e.OutcomeIndex),
			e.Shares.String(), e.Amount.String(), e.Fee.String(),
			e.BlockNumber, e.TxHash.Hex(), int64(e.LogIndex), e.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade event batch item %d: %w", i, err)
		}
	}
	return nil
}

// LastBlock returns the highest indexed block number for a market, or 0 when
// no events exist. The indexer resumes its scan from here.
func (s *TradeEventStore) LastBlock(ctx context.Context, chainID uint64, market common.Address) (uint64, error) {
	var block *int64
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(block_number) FROM trade_events WHERE chain_id = $1 AND market = $2",
		chainID, market.Hex(),
	).Scan(&block)
	if err != nil {
		return 0, fmt.Errorf("postgres: last indexed block: %w", err)
	}
	if block == nil {
		return 0, nil
	}
	return uint64(*block), nil
}

// ListByMarket returns indexed events for a market with pagination and
// optional time filtering.
func (s *TradeEventStore) ListByMarket(ctx context.Context, chainID uint64, market common.Address, opts domain.ListOpts) ([]domain.TradeEvent, error) {
	query := `SELECT ` + tradeEventCols + ` FROM trade_events WHERE chain_id = $1 AND market = $2`
	args := []any{chainID, market.Hex()}

	query, args = applyListOpts(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade events by market: %w", err)
	}
	defer rows.Close()

	events, err := scanTradeEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade events by market: %w", err)
	}
	return events, nil
}

// ListByTrader returns indexed events for a trader across all markets, with
// pagination and optional time filtering.
func (s *TradeEventStore) ListByTrader(ctx context.Context, chainID uint64, trader common.Address, opts domain.ListOpts) ([]domain.TradeEvent, error) {
	query := `SELECT ` + tradeEventCols + ` FROM trade_events WHERE chain_id = $1 AND trader = $2`
	args := []any{chainID, trader.Hex()}

	query, args = applyListOpts(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade events by trader: %w", err)
	}
	defer rows.Close()

	events, err := scanTradeEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade events by trader: %w", err)
	}
	return events, nil
}

// applyListOpts appends the shared time-filter, ordering, and pagination
// clauses.
func applyListOpts(query string, args []any, opts domain.ListOpts) (string, []any) {
	argIdx := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND ts >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY ts DESC, log_index DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// ListBefore returns all events with a timestamp strictly before the cutoff,
// oldest first, for archiving.
func (s *TradeEventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeEvent, error) {
	query := `SELECT ` + tradeEventCols + ` FROM trade_events WHERE ts < $1 ORDER BY ts ASC, log_index ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade events before: %w", err)
	}
	defer rows.Close()
	return scanTradeEvents(rows)
}

// DeleteBefore deletes all events older than the cutoff. Returns the number
// deleted.
func (s *TradeEventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trade_events WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trade events before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeEventStore = (*TradeEventStore)(nil)
