// Package csvstore commits a bundle as plain CSV files under one directory.
package csvstore

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mdbundle/internal/exporter"
	"mdbundle/internal/files"
	"mdbundle/internal/store"
	"mdbundle/pkg/contracts/domain"
)

// Store writes bundle tables with the exporter's CSV writer
type Store struct {
	dir string
}

var _ store.Bundle = (*Store)(nil)

// New creates a CSV store rooted at dir. The directory is created on first
// write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the bundle directory
func (s *Store) Dir() string {
	return s.dir
}

// LoadRegistry reads assets.csv. The sid of each record is its row ordinal.
func (s *Store) LoadRegistry(ctx context.Context) ([]domain.SymbolRecord, files.Existence, error) {
	path := filepath.Join(s.dir, exporter.AssetsFile)
	state, err := files.FileExists(path)
	if state != files.Found {
		return nil, state, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, files.Error, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, files.Error, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(rows) == 0 || strings.Join(rows[0], ",") != strings.Join(exporter.AssetHeaders, ",") {
		return nil, files.Error, fmt.Errorf("%s: unexpected header", path)
	}

	records := make([]domain.SymbolRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseAsset(int64(i), row)
		if err != nil {
			return nil, files.Error, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		records = append(records, rec)
	}

	slog.DebugContext(ctx, "registry_loaded",
		slog.String("path", path),
		slog.Int("records", len(records)))
	return records, files.Found, nil
}

// committed lists what a commit publishes, relative to the bundle directory
var committed = []string{
	exporter.BarsDir,
	exporter.AssetsFile,
	exporter.SplitsFile,
	exporter.MergersFile,
	exporter.DividendsFile,
}

// Commit builds every table in a staging directory beside the bundle and
// then publishes them together. A failure at any point leaves the previous
// tables in place.
func (s *Store) Commit(ctx context.Context, snap store.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	staging, err := os.MkdirTemp(s.dir, ".commit-*")
	if err != nil {
		return fmt.Errorf("failed to create commit staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	built := exporter.NewBundleExporter(staging)
	if err := os.MkdirAll(filepath.Join(staging, exporter.BarsDir), 0755); err != nil {
		return fmt.Errorf("failed to create bar directory: %w", err)
	}
	if err := built.ExportBars(snap.Bars); err != nil {
		return err
	}
	if err := built.ExportAssets(snap.Registry); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := built.ExportAdjustments(snap.Adjustments); err != nil {
		return err
	}

	if err := files.PublishEntries(staging, s.dir, committed); err != nil {
		return fmt.Errorf("failed to publish bundle: %w", err)
	}

	slog.InfoContext(ctx, "bundle_snapshot_committed",
		slog.String("dir", s.dir),
		slog.Int("symbols", len(snap.Bars)),
		slog.Int("assets", len(snap.Registry)),
		slog.Int("events", snap.Adjustments.Len()))
	return nil
}

// Close is a no-op; every commit is complete when it returns.
func (s *Store) Close() error {
	return nil
}

func parseAsset(sid int64, row []string) (domain.SymbolRecord, error) {
	if len(row) != len(exporter.AssetHeaders) {
		return domain.SymbolRecord{}, fmt.Errorf("expected %d fields, got %d", len(exporter.AssetHeaders), len(row))
	}

	var dates [3]time.Time
	for i, cell := range row[2:5] {
		d, err := time.Parse(exporter.DateLayout, cell)
		if err != nil {
			return domain.SymbolRecord{}, fmt.Errorf("invalid %s %q", exporter.AssetHeaders[i+2], cell)
		}
		dates[i] = d
	}

	return domain.SymbolRecord{
		SID:         sid,
		Symbol:      row[0],
		DisplayName: row[1],
		FirstSeen:   dates[0],
		LastSeen:    dates[1],
		AutoClose:   dates[2],
		Exchange:    row[5],
	}, nil
}
