// Package registry maintains the symbol registry of a bundle: the stable sid
// of every symbol ever ingested and the session window it has been seen in.
//
// Upsert is the only mutator and is serialised by a mutex. The orchestrator
// runs every upsert before the parallel align/extract phase, which then only
// reads.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "mdbundle/internal/errors"
	"mdbundle/pkg/contracts/domain"
)

// Registry maps symbols to SymbolRecords. The zero value is not usable; call
// New.
type Registry struct {
	mu       sync.RWMutex
	records  []domain.SymbolRecord // index == sid
	bySymbol map[string]int64
	exchange string
}

// New returns an empty registry. exchange is recorded on records created
// without one.
func New(exchange string) *Registry {
	return &Registry{
		records:  make([]domain.SymbolRecord, 0),
		bySymbol: make(map[string]int64),
		exchange: exchange,
	}
}

// Load restores a persisted registry. Records must carry sids 0..n-1 with no
// gaps and no repeated symbol.
func Load(exchange string, records []domain.SymbolRecord) (*Registry, error) {
	r := New(exchange)

	sorted := make([]domain.SymbolRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SID < sorted[j].SID })

	for i, rec := range sorted {
		if rec.SID != int64(i) {
			return nil, apperrors.NewAppValidationError(
				fmt.Sprintf("registry sid %d at position %d: sids must be contiguous from 0", rec.SID, i))
		}
		if _, dup := r.bySymbol[rec.Symbol]; dup {
			return nil, apperrors.NewAppValidationError("duplicate registry symbol " + rec.Symbol)
		}
		if rec.LastSeen.Before(rec.FirstSeen) {
			return nil, apperrors.NewAppValidationError(
				fmt.Sprintf("registry symbol %s has end_date before start_date", rec.Symbol))
		}
		rec.AutoClose = domain.AutoCloseFor(rec.LastSeen)
		r.records = append(r.records, rec)
		r.bySymbol[rec.Symbol] = rec.SID
	}
	return r, nil
}

// Upsert records a sighting of symbol on session and returns its sid.
//
// An unseen symbol is appended with sid equal to the current registry size.
// A known symbol keeps its sid; only its first/last seen bounds widen, and
// auto_close moves only when last_seen does. A session already inside the
// window leaves the record untouched.
func (r *Registry) Upsert(symbol, displayName, exchange string, session time.Time) (int64, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return -1, apperrors.NewAppValidationError("symbol cannot be empty")
	}
	if session.IsZero() {
		return -1, apperrors.NewAppValidationError("session date required for " + symbol)
	}
	y, m, d := session.Date()
	session = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	r.mu.Lock()
	defer r.mu.Unlock()

	sid, ok := r.bySymbol[symbol]
	if !ok {
		if exchange == "" {
			exchange = r.exchange
		}
		if displayName == "" {
			displayName = symbol
		}
		sid = int64(len(r.records))
		r.records = append(r.records, domain.SymbolRecord{
			SID:         sid,
			Symbol:      symbol,
			DisplayName: displayName,
			FirstSeen:   session,
			LastSeen:    session,
			AutoClose:   domain.AutoCloseFor(session),
			Exchange:    exchange,
		})
		r.bySymbol[symbol] = sid
		return sid, nil
	}

	rec := &r.records[sid]
	if session.Before(rec.FirstSeen) {
		rec.FirstSeen = session
	}
	if session.After(rec.LastSeen) {
		rec.LastSeen = session
		rec.AutoClose = domain.AutoCloseFor(session)
	}
	return sid, nil
}

// UpsertRange records the earliest and latest sessions of one symbol in a
// single call.
func (r *Registry) UpsertRange(symbol, displayName, exchange string, first, last time.Time) (int64, error) {
	sid, err := r.Upsert(symbol, displayName, exchange, first)
	if err != nil {
		return sid, err
	}
	if last.Equal(first) {
		return sid, nil
	}
	return r.Upsert(symbol, displayName, exchange, last)
}

// Contains reports whether symbol has a record
func (r *Registry) Contains(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySymbol[symbol]
	return ok
}

// Lookup returns the record of symbol, or an error matching
// apperrors.ErrNotFound.
func (r *Registry) Lookup(symbol string) (domain.SymbolRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sid, ok := r.bySymbol[symbol]
	if !ok {
		return domain.SymbolRecord{}, apperrors.NewNotFoundError("symbol " + symbol)
	}
	return r.records[sid], nil
}

// LookupSID returns the record with the given sid.
func (r *Registry) LookupSID(sid int64) (domain.SymbolRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sid < 0 || sid >= int64(len(r.records)) {
		return domain.SymbolRecord{}, apperrors.NewNotFoundError(fmt.Sprintf("sid %d", sid))
	}
	return r.records[sid], nil
}

// Len returns the number of records
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Records returns a copy of every record in sid order.
func (r *Registry) Records() []domain.SymbolRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SymbolRecord, len(r.records))
	copy(out, r.records)
	return out
}
