// Package duckdb commits a bundle to the tables of a single DuckDB file.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"mdbundle/internal/files"
	"mdbundle/internal/store"
	"mdbundle/pkg/contracts/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS assets (
		sid BIGINT PRIMARY KEY,
		symbol VARCHAR NOT NULL,
		asset_name VARCHAR NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		auto_close_date DATE NOT NULL,
		exchange VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_bars (
		sid BIGINT NOT NULL,
		date DATE NOT NULL,
		open DOUBLE NOT NULL,
		high DOUBLE NOT NULL,
		low DOUBLE NOT NULL,
		close DOUBLE NOT NULL,
		volume DOUBLE NOT NULL,
		PRIMARY KEY (sid, date)
	)`,
	`CREATE TABLE IF NOT EXISTS splits (
		sid BIGINT NOT NULL,
		ratio DOUBLE NOT NULL,
		effective_date DATE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mergers (
		sid BIGINT NOT NULL,
		ratio DOUBLE NOT NULL,
		effective_date DATE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dividends (
		sid BIGINT NOT NULL,
		amount DOUBLE NOT NULL,
		ex_date DATE NOT NULL,
		declared_date DATE,
		record_date DATE,
		pay_date DATE
	)`,
}

// Store is a DuckDB-backed bundle
type Store struct {
	db   *sql.DB
	path string
}

var _ store.Bundle = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.InfoContext(ctx, "opening_duckdb", slog.String("path", path))
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DuckDB: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// DB exposes the underlying handle for read-side queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// LoadRegistry reads the assets table in sid order. An empty table is
// NotFound.
func (s *Store) LoadRegistry(ctx context.Context) ([]domain.SymbolRecord, files.Existence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sid, symbol, asset_name, start_date, end_date, auto_close_date, exchange
		FROM assets ORDER BY sid`)
	if err != nil {
		return nil, files.Error, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var records []domain.SymbolRecord
	for rows.Next() {
		var rec domain.SymbolRecord
		if err := rows.Scan(&rec.SID, &rec.Symbol, &rec.DisplayName,
			&rec.FirstSeen, &rec.LastSeen, &rec.AutoClose, &rec.Exchange); err != nil {
			return nil, files.Error, fmt.Errorf("failed to scan asset: %w", err)
		}
		rec.FirstSeen = rec.FirstSeen.UTC()
		rec.LastSeen = rec.LastSeen.UTC()
		rec.AutoClose = rec.AutoClose.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, files.Error, fmt.Errorf("failed to read assets: %w", err)
	}

	if len(records) == 0 {
		return nil, files.NotFound, nil
	}
	return records, files.Found, nil
}

// Commit replaces bars, registry and adjustments in a single transaction.
// A failure leaves every table as the previous commit left it.
func (s *Store) Commit(ctx context.Context, snap store.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	start := time.Now()
	var bars int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertAssets(ctx, tx, snap.Registry); err != nil {
			return err
		}
		var err error
		if bars, err = insertBars(ctx, tx, snap.Bars); err != nil {
			return err
		}
		return insertAdjustments(ctx, tx, snap.Adjustments)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "bundle_snapshot_committed",
		slog.String("path", s.path),
		slog.Int("symbols", len(snap.Bars)),
		slog.Int("bars", bars),
		slog.Int("assets", len(snap.Registry)),
		slog.Int("events", snap.Adjustments.Len()),
		slog.Duration("latency", time.Since(start)))
	return nil
}

func insertBars(ctx context.Context, tx *sql.Tx, bars []domain.SymbolBars) (int, error) {
	count := 0
	err := refill(ctx, tx, store.TableBars,
		`INSERT INTO daily_bars (sid, date, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, sb := range bars {
				for _, b := range sb.Series.Bars {
					if _, err := stmt.ExecContext(ctx, sb.SID, b.Session, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
						return fmt.Errorf("failed to insert bar sid=%d date=%s: %w", sb.SID, b.Session.Format("2006-01-02"), err)
					}
					count++
				}
			}
			return nil
		})
	return count, err
}

func insertAssets(ctx context.Context, tx *sql.Tx, records []domain.SymbolRecord) error {
	return refill(ctx, tx, store.TableAssets,
		`INSERT INTO assets (sid, symbol, asset_name, start_date, end_date, auto_close_date, exchange) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, rec := range records {
				if _, err := stmt.ExecContext(ctx, rec.SID, rec.Symbol, rec.DisplayName,
					rec.FirstSeen, rec.LastSeen, rec.AutoClose, rec.Exchange); err != nil {
					return fmt.Errorf("failed to insert asset %s: %w", rec.Symbol, err)
				}
			}
			return nil
		})
}

func insertAdjustments(ctx context.Context, tx *sql.Tx, set domain.AdjustmentSet) error {
	for _, table := range []string{store.TableSplits, store.TableMergers, store.TableDividends} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, sp := range set.Splits {
		if _, err := tx.ExecContext(ctx, `INSERT INTO splits (sid, ratio, effective_date) VALUES (?, ?, ?)`,
			sp.SID, sp.Ratio, sp.EffectiveDate); err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}
	for _, m := range set.Mergers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO mergers (sid, ratio, effective_date) VALUES (?, ?, ?)`,
			m.SID, m.Ratio, m.EffectiveDate); err != nil {
			return fmt.Errorf("failed to insert merger: %w", err)
		}
	}
	for _, d := range set.Dividends {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dividends (sid, amount, ex_date, declared_date, record_date, pay_date)
			VALUES (?, ?, ?, ?, ?, ?)`,
			d.SID, d.Amount, d.ExDate,
			store.NullDate(d.DeclaredDate), store.NullDate(d.RecordDate), store.NullDate(d.PayDate)); err != nil {
			return fmt.Errorf("failed to insert dividend: %w", err)
		}
	}
	return nil
}

// ReadDividends returns the dividends table ordered by (sid, ex_date)
func (s *Store) ReadDividends(ctx context.Context) ([]domain.Dividend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sid, amount, ex_date, declared_date, record_date, pay_date
		FROM dividends ORDER BY sid, ex_date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	var out []domain.Dividend
	for rows.Next() {
		var (
			d                         domain.Dividend
			declared, record, payDate sql.NullTime
		)
		if err := rows.Scan(&d.SID, &d.Amount, &d.ExDate, &declared, &record, &payDate); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		d.ExDate = d.ExDate.UTC()
		d.DeclaredDate = optional(declared)
		d.RecordDate = optional(record)
		d.PayDate = optional(payDate)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close DuckDB: %w", err)
	}
	return nil
}

// inTx runs fn in a transaction that is committed only if fn succeeds
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// refill clears table and runs fill with a prepared insert inside tx
func refill(ctx context.Context, tx *sql.Tx, table, insert string, fill func(*sql.Stmt) error) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()
	return fill(stmt)
}

func optional(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return store.OptionalDate(&t.Time)
}
