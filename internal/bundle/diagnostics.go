package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"mdbundle/internal/adjustments"
	"mdbundle/internal/files"
	"mdbundle/pkg/contracts"
	"mdbundle/pkg/contracts/domain"
)

// DiagnosticsFile is written into the bundle directory after each commit
const DiagnosticsFile = "diagnostics.json"

// Diagnostics summarises the soft outcomes of a run
type Diagnostics struct {
	RunID   string `json:"run_id"`
	Bundle  string `json:"bundle"`
	Format  string `json:"format"`
	Version string `json:"version"`

	FilesRead      int      `json:"files_read"`
	UnmatchedFiles []string `json:"unmatched_files,omitempty"`
	RowsRead       int      `json:"rows_read"`
	RowsSkipped    int      `json:"rows_skipped"`
	RowsFiltered   int      `json:"rows_filtered"`
	DuplicateRows  int      `json:"duplicate_rows"`

	Sessions    int `json:"sessions"`
	NewSessions int `json:"new_sessions"`

	SymbolsRead    int      `json:"symbols_read"`
	SymbolsActive  int      `json:"symbols_active"`
	SymbolsSkipped int      `json:"symbols_skipped"`
	SkippedSymbols []string `json:"skipped_symbols"`
	CarriedOver    int      `json:"carried_over,omitempty"`

	BarsWritten    int `json:"bars_written"`
	FilledSessions int `json:"filled_sessions"`

	EventsWritten map[domain.AdjustmentKind]int `json:"events_written"`
	EventsDropped adjustments.Tally             `json:"events_dropped"`
}

func newDiagnostics(runID, bundle string) *Diagnostics {
	return &Diagnostics{
		RunID:          runID,
		Bundle:         bundle,
		Format:         contracts.BundleFormatVersion,
		Version:        contracts.Version,
		SkippedSymbols: []string{},
		EventsWritten: map[domain.AdjustmentKind]int{
			domain.AdjustmentSplit:    0,
			domain.AdjustmentMerger:   0,
			domain.AdjustmentDividend: 0,
		},
	}
}

// skip records a symbol left out of the run's writes
func (d *Diagnostics) skip(symbol string) {
	d.SymbolsSkipped++
	d.SkippedSymbols = append(d.SkippedSymbols, symbol)
	sort.Strings(d.SkippedSymbols)
}

// write stores the summary as indented JSON in dir
func (d *Diagnostics) write(dir string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}
	return files.WriteFileAtomic(filepath.Join(dir, DiagnosticsFile), func(f *os.File) error {
		_, err := f.Write(append(data, '\n'))
		return err
	})
}

// ReadDiagnostics loads the summary of the last committed run in dir
func ReadDiagnostics(dir string) (*Diagnostics, files.Existence, error) {
	path := filepath.Join(dir, DiagnosticsFile)
	state, err := files.FileExists(path)
	if state != files.Found {
		return nil, state, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, files.Error, fmt.Errorf("failed to read diagnostics: %w", err)
	}
	var d Diagnostics
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, files.Error, fmt.Errorf("failed to decode diagnostics: %w", err)
	}
	return &d, files.Found, nil
}
