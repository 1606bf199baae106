// Package postgres commits a bundle to PostgreSQL through a pgx connection
// pool. A commit is a single transaction: TRUNCATE every table, then COPY
// the bars and batch-insert the rest.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mdbundle/internal/config"
	"mdbundle/internal/files"
	"mdbundle/internal/store"
	"mdbundle/pkg/contracts/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	sid             BIGINT PRIMARY KEY,
	symbol          TEXT NOT NULL UNIQUE,
	asset_name      TEXT NOT NULL,
	start_date      DATE NOT NULL,
	end_date        DATE NOT NULL,
	auto_close_date DATE NOT NULL,
	exchange        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS daily_bars (
	sid    BIGINT NOT NULL,
	date   DATE NOT NULL,
	open   DOUBLE PRECISION NOT NULL,
	high   DOUBLE PRECISION NOT NULL,
	low    DOUBLE PRECISION NOT NULL,
	close  DOUBLE PRECISION NOT NULL,
	volume DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (sid, date)
);
CREATE TABLE IF NOT EXISTS splits (
	sid            BIGINT NOT NULL,
	ratio          DOUBLE PRECISION NOT NULL,
	effective_date DATE NOT NULL
);
CREATE TABLE IF NOT EXISTS mergers (
	sid            BIGINT NOT NULL,
	ratio          DOUBLE PRECISION NOT NULL,
	effective_date DATE NOT NULL
);
CREATE TABLE IF NOT EXISTS dividends (
	sid           BIGINT NOT NULL,
	amount        DOUBLE PRECISION NOT NULL,
	ex_date       DATE NOT NULL,
	declared_date DATE,
	record_date   DATE,
	pay_date      DATE
);`

// Store is a Postgres-backed bundle
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Bundle = (*Store)(nil)

// Open connects with cfg and ensures the schema
func Open(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool and ensures the schema
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", classify(err))
	}
	return &Store{pool: pool}, nil
}

// Pool exposes the pool for read-side queries
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// LoadRegistry reads the assets table in sid order. An empty table is
// NotFound.
func (s *Store) LoadRegistry(ctx context.Context) ([]domain.SymbolRecord, files.Existence, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sid, symbol, asset_name, start_date, end_date, auto_close_date, exchange
		FROM assets ORDER BY sid`)
	if err != nil {
		return nil, files.Error, fmt.Errorf("query assets: %w", classify(err))
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SymbolRecord, error) {
		var rec domain.SymbolRecord
		err := row.Scan(&rec.SID, &rec.Symbol, &rec.DisplayName,
			&rec.FirstSeen, &rec.LastSeen, &rec.AutoClose, &rec.Exchange)
		rec.FirstSeen = rec.FirstSeen.UTC()
		rec.LastSeen = rec.LastSeen.UTC()
		rec.AutoClose = rec.AutoClose.UTC()
		return rec, err
	})
	if err != nil {
		return nil, files.Error, fmt.Errorf("read assets: %w", classify(err))
	}

	if len(records) == 0 {
		return nil, files.NotFound, nil
	}
	return records, files.Found, nil
}

// Commit replaces all five tables in one transaction
func (s *Store) Commit(ctx context.Context, snap store.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	start := time.Now()
	var n int64
	tables := []string{store.TableAssets, store.TableBars, store.TableSplits, store.TableMergers, store.TableDividends}
	err := s.inTx(ctx, tables, func(tx pgx.Tx) error {
		if err := insertAssets(ctx, tx, snap.Registry); err != nil {
			return err
		}
		var err error
		if n, err = copyBars(ctx, tx, snap.Bars); err != nil {
			return err
		}
		return insertAdjustments(ctx, tx, snap.Adjustments)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "bundle_snapshot_committed",
		slog.Int("symbols", len(snap.Bars)),
		slog.Int64("bars", n),
		slog.Int("assets", len(snap.Registry)),
		slog.Int("events", snap.Adjustments.Len()),
		slog.Duration("latency", time.Since(start)))
	return nil
}

func copyBars(ctx context.Context, tx pgx.Tx, bars []domain.SymbolBars) (int64, error) {
	rows := make([][]any, 0)
	for _, sb := range bars {
		for _, b := range sb.Series.Bars {
			rows = append(rows, []any{sb.SID, b.Session, b.Open, b.High, b.Low, b.Close, b.Volume})
		}
	}
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{store.TableBars},
		[]string{"sid", "date", "open", "high", "low", "close", "volume"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy bars: %w", err)
	}
	return n, nil
}

func insertAssets(ctx context.Context, tx pgx.Tx, records []domain.SymbolRecord) error {
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO assets (sid, symbol, asset_name, start_date, end_date, auto_close_date, exchange)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, rec.SID, rec.Symbol, rec.DisplayName, rec.FirstSeen, rec.LastSeen, rec.AutoClose, rec.Exchange)
	}
	return sendBatch(ctx, tx, batch)
}

func insertAdjustments(ctx context.Context, tx pgx.Tx, set domain.AdjustmentSet) error {
	batch := &pgx.Batch{}
	for _, sp := range set.Splits {
		batch.Queue(`INSERT INTO splits (sid, ratio, effective_date) VALUES ($1, $2, $3)`,
			sp.SID, sp.Ratio, sp.EffectiveDate)
	}
	for _, m := range set.Mergers {
		batch.Queue(`INSERT INTO mergers (sid, ratio, effective_date) VALUES ($1, $2, $3)`,
			m.SID, m.Ratio, m.EffectiveDate)
	}
	for _, d := range set.Dividends {
		batch.Queue(`
			INSERT INTO dividends (sid, amount, ex_date, declared_date, record_date, pay_date)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, d.SID, d.Amount, d.ExDate, d.DeclaredDate, d.RecordDate, d.PayDate)
	}
	return sendBatch(ctx, tx, batch)
}

// Close closes the pool
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// inTx truncates tables and runs fill in the same transaction
func (s *Store) inTx(ctx context.Context, tables []string, fill func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(tables))
	for _, t := range tables {
		ids = append(ids, pgx.Identifier{t}.Sanitize())
	}
	if _, err := tx.Exec(ctx, "TRUNCATE "+strings.Join(ids, ", ")); err != nil {
		return fmt.Errorf("truncate tables: %w", classify(err))
	}
	if err := fill(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("batch insert %d: %w", i, err)
		}
	}
	return results.Close()
}
