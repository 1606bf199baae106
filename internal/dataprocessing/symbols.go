package dataprocessing

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	apperrors "mdbundle/internal/errors"
	"mdbundle/internal/files"
	"mdbundle/pkg/contracts/domain"
)

// Header names of the optional symbol list and ticker change files
const (
	SymbolListHeader = "symbol"
	OldSymbolHeader  = "old_symbol"
	NewSymbolHeader  = "new_symbol"
)

// DuplicateRow identifies a (ticker, date) pair that appeared more than once
type DuplicateRow struct {
	Ticker string
	Date   time.Time
}

// Err returns the duplicate as a DUPLICATE_SESSION error for logging
func (d DuplicateRow) Err() error {
	return apperrors.NewDuplicateSessionError(d.Ticker, d.Date.Format("2006-01-02"))
}

// TickerNormalizer rewrites vendor tickers into bundle symbols and restricts
// rows to the configured universe.
type TickerNormalizer struct {
	strip    string
	renames  map[string]string
	universe map[string]struct{} // nil means every symbol
}

// NewTickerNormalizer creates a normalizer. strip lists characters removed
// from every ticker; renames maps old tickers to new ones; a nil universe
// admits every symbol.
func NewTickerNormalizer(strip string, renames map[string]string, universe map[string]struct{}) *TickerNormalizer {
	if renames == nil {
		renames = map[string]string{}
	}
	return &TickerNormalizer{strip: strip, renames: renames, universe: universe}
}

// Symbol returns the normalised form of ticker
func (n *TickerNormalizer) Symbol(ticker string) string {
	s := strings.TrimSpace(ticker)
	if n.strip != "" {
		s = strings.Map(func(r rune) rune {
			if strings.ContainsRune(n.strip, r) {
				return -1
			}
			return r
		}, s)
	}
	// follow chains such as A -> B -> C, stopping on a cycle
	seen := map[string]bool{s: true}
	for {
		next, ok := n.renames[s]
		if !ok || seen[next] {
			break
		}
		seen[next] = true
		s = next
	}
	return s
}

// Admits reports whether symbol belongs to the run's universe
func (n *TickerNormalizer) Admits(symbol string) bool {
	if n.universe == nil {
		return true
	}
	_, ok := n.universe[symbol]
	return ok
}

// Apply normalises the ticker of every row and drops rows outside the
// universe. It returns the kept rows and the number filtered out.
func (n *TickerNormalizer) Apply(rows []domain.RawBar) ([]domain.RawBar, int) {
	kept := rows[:0:0]
	filtered := 0
	for _, row := range rows {
		row.Ticker = n.Symbol(row.Ticker)
		if row.Ticker == "" || !n.Admits(row.Ticker) {
			filtered++
			continue
		}
		kept = append(kept, row)
	}
	return kept, filtered
}

// Dedupe keeps the last row of every (ticker, date) pair, preserving the
// position of that last occurrence, and reports each dropped duplicate.
func Dedupe(rows []domain.RawBar) ([]domain.RawBar, []DuplicateRow) {
	type key struct {
		ticker string
		date   time.Time
	}
	last := make(map[key]int, len(rows))
	for i, row := range rows {
		last[key{row.Ticker, row.Date}] = i
	}

	out := make([]domain.RawBar, 0, len(last))
	var dups []DuplicateRow
	for i, row := range rows {
		if last[key{row.Ticker, row.Date}] != i {
			dups = append(dups, DuplicateRow{Ticker: row.Ticker, Date: row.Date})
			continue
		}
		out = append(out, row)
	}
	return out, dups
}

// GroupBySymbol splits rows per ticker, each group sorted by date
func GroupBySymbol(rows []domain.RawBar) map[string][]domain.RawBar {
	groups := make(map[string][]domain.RawBar)
	for _, row := range rows {
		groups[row.Ticker] = append(groups[row.Ticker], row)
	}
	for _, g := range groups {
		SortRawBars(g)
	}
	return groups
}

// SortedSymbols returns the keys of groups in ascending order
func SortedSymbols(groups map[string][]domain.RawBar) []string {
	out := make([]string, 0, len(groups))
	for s := range groups {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// LoadSymbolList reads the optional symbol universe file. An absent path or
// file yields NotFound and a nil set.
func LoadSymbolList(path string) (map[string]struct{}, files.Existence, error) {
	if path == "" {
		return nil, files.NotFound, nil
	}
	records, state, err := readKeyedCSV(path, []string{SymbolListHeader})
	if state != files.Found {
		return nil, state, err
	}

	set := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if s := strings.TrimSpace(rec[0]); s != "" {
			set[s] = struct{}{}
		}
	}
	return set, files.Found, nil
}

// LoadTickerChanges reads the optional old_symbol,new_symbol rename file.
func LoadTickerChanges(path string) (map[string]string, files.Existence, error) {
	if path == "" {
		return nil, files.NotFound, nil
	}
	records, state, err := readKeyedCSV(path, []string{OldSymbolHeader, NewSymbolHeader})
	if state != files.Found {
		return nil, state, err
	}

	renames := make(map[string]string, len(records))
	for _, rec := range records {
		oldSym, newSym := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		if oldSym == "" || newSym == "" || oldSym == newSym {
			continue
		}
		renames[oldSym] = newSym
	}
	return renames, files.Found, nil
}

// readKeyedCSV returns the named columns of every row of a CSV file.
func readKeyedCSV(path string, columns []string) ([][]string, files.Existence, error) {
	state, err := files.FileExists(path)
	if state != files.Found {
		return nil, state, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, files.Error, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, files.Found, nil
	}
	if err != nil {
		return nil, files.Error, apperrors.NewParsingError("failed to read "+path, err)
	}

	idx := make([]int, len(columns))
	for i, col := range columns {
		idx[i] = -1
		for j, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == col {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, files.Error, apperrors.NewMissingColumnError(path, col)
		}
	}

	var out [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, files.Error, apperrors.NewParsingError("failed to read "+path, err)
		}
		row := make([]string, len(columns))
		for i, j := range idx {
			if j < len(record) {
				row[i] = record[j]
			}
		}
		out = append(out, row)
	}
	return out, files.Found, nil
}
