// Package store defines the destination a bundle run commits to.
//
// Three backends implement Bundle: csvstore (the default, one CSV file per
// table), duckdb (one DuckDB database file) and postgres. A commit replaces
// every table at once: readers see either the previous snapshot or the new
// one, never a mix.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mdbundle/internal/files"
	"mdbundle/pkg/contracts/domain"
)

// Table names shared by the SQL backends
const (
	TableBars      = "daily_bars"
	TableAssets    = "assets"
	TableSplits    = "splits"
	TableMergers   = "mergers"
	TableDividends = "dividends"
)

// ErrTransient marks a failure that may succeed when the write is retried,
// such as a dropped database connection.
var ErrTransient = errors.New("transient store failure")

// Snapshot is everything one run publishes
type Snapshot struct {
	Bars        []domain.SymbolBars
	Registry    []domain.SymbolRecord
	Adjustments domain.AdjustmentSet
}

// Validate checks the snapshot is internally consistent: series in ascending
// sid order, registry sids contiguous from 0, and every bar series and
// adjustment pointing at a registered sid.
func (s Snapshot) Validate() error {
	if err := checkOrder(s.Bars); err != nil {
		return err
	}
	for i, rec := range s.Registry {
		if rec.SID != int64(i) {
			return fmt.Errorf("registry row %d carries sid %d", i, rec.SID)
		}
	}
	n := int64(len(s.Registry))
	for _, sb := range s.Bars {
		if sb.SID < 0 || sb.SID >= n {
			return fmt.Errorf("bar series for unregistered sid %d", sb.SID)
		}
	}
	var sids []int64
	for _, sp := range s.Adjustments.Splits {
		sids = append(sids, sp.SID)
	}
	for _, m := range s.Adjustments.Mergers {
		sids = append(sids, m.SID)
	}
	for _, d := range s.Adjustments.Dividends {
		sids = append(sids, d.SID)
	}
	for _, sid := range sids {
		if sid < 0 || sid >= n {
			return fmt.Errorf("adjustment for unregistered sid %d", sid)
		}
	}
	return nil
}

// Bundle is the set of tables a run reads the previous registry from and
// commits its outputs to.
type Bundle interface {
	// LoadRegistry returns the persisted registry in sid order. NotFound
	// means no registry was ever committed.
	LoadRegistry(ctx context.Context) ([]domain.SymbolRecord, files.Existence, error)

	// Commit replaces bars, registry and adjustments together. On error the
	// previous snapshot is left in place.
	Commit(ctx context.Context, snap Snapshot) error

	Close() error
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// NullDate converts an optional date to a value the SQL drivers bind as NULL
// when absent.
func NullDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// OptionalDate converts a scanned nullable date back to a pointer.
func OptionalDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := t.UTC()
	return &d
}

func checkOrder(bars []domain.SymbolBars) error {
	for i := 1; i < len(bars); i++ {
		if bars[i].SID <= bars[i-1].SID {
			return fmt.Errorf("bar series out of order: sid %d follows sid %d", bars[i].SID, bars[i-1].SID)
		}
	}
	return nil
}
