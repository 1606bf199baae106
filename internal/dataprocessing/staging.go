package dataprocessing

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "mdbundle/internal/errors"
	"mdbundle/internal/exporter"
	"mdbundle/internal/files"
	"mdbundle/pkg/contracts/domain"
)

// StagingHeaders is the column layout of a staged per-symbol file
var StagingHeaders = []string{
	"date", "ticker", "name", "exchange", "open", "high", "low", "close", "volume",
	"split_ratio", "dividend_amount", "adjusted_close", "unadjusted_close",
}

// Stager keeps the full raw history of every symbol as one CSV per symbol,
// so a run that only receives new files still sees every earlier row.
type Stager struct {
	dir       string
	csvWriter *exporter.CSVWriter
}

// NewStager creates a stager over dir
func NewStager(dir string) *Stager {
	return &Stager{dir: dir, csvWriter: exporter.NewCSVWriter(dir)}
}

// Dir returns the staging directory
func (s *Stager) Dir() string {
	return s.dir
}

// Merge folds incoming rows into the staged history of their symbols. An
// incoming row replaces a staged row with the same date. Returns the number
// of symbol files rewritten.
func (s *Stager) Merge(incoming map[string][]domain.RawBar) (int, error) {
	written := 0
	for _, symbol := range SortedSymbols(incoming) {
		if symbol == "" {
			return written, apperrors.NewAppValidationError("cannot stage rows without a ticker")
		}

		existing, state, err := s.readSymbol(symbol)
		if state == files.Error {
			return written, err
		}

		merged, _ := Dedupe(append(existing, incoming[symbol]...))
		SortRawBars(merged)

		records := make([][]string, 0, len(merged))
		for _, row := range merged {
			records = append(records, rawBarToCSVRow(row))
		}
		if err := s.csvWriter.WriteSimpleCSV(stagingFile(symbol), StagingHeaders, records); err != nil {
			return written, apperrors.NewStorageError("failed to stage "+symbol, err)
		}
		written++
	}
	return written, nil
}

// LoadAll returns the staged history of every symbol. A missing staging
// directory is NotFound with no rows.
func (s *Stager) LoadAll() (map[string][]domain.RawBar, files.Existence, error) {
	state, err := files.DirExists(s.dir)
	if state != files.Found {
		return nil, state, err
	}

	found, err := files.NewDiscovery("").FindFilesByPattern(s.dir, "*.csv")
	if err != nil {
		return nil, files.Error, err
	}

	out := make(map[string][]domain.RawBar, len(found))
	for _, f := range found {
		rows, err := readStagedFile(f.Path)
		if err != nil {
			return nil, files.Error, err
		}
		for _, row := range rows {
			out[row.Ticker] = append(out[row.Ticker], row)
		}
	}
	for _, rows := range out {
		SortRawBars(rows)
	}
	return out, files.Found, nil
}

func (s *Stager) readSymbol(symbol string) ([]domain.RawBar, files.Existence, error) {
	path := filepath.Join(s.dir, stagingFile(symbol))
	state, err := files.FileExists(path)
	if state != files.Found {
		return nil, state, err
	}
	rows, err := readStagedFile(path)
	if err != nil {
		return nil, files.Error, err
	}
	return rows, files.Found, nil
}

func readStagedFile(path string) ([]domain.RawBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(StagingHeaders)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewParsingError("invalid staged file "+path, err)
	}
	if strings.Join(header, ",") != strings.Join(StagingHeaders, ",") {
		return nil, apperrors.NewParsingError("unexpected staged header in "+path, nil)
	}

	var rows []domain.RawBar
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError("invalid staged file "+path, err)
		}
		row, err := csvRowToRawBar(record)
		if err != nil {
			return nil, apperrors.NewParsingError("invalid staged row in "+path, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func rawBarToCSVRow(r domain.RawBar) []string {
	return []string{
		exporter.FormatDate(r.Date),
		r.Ticker,
		r.Name,
		r.Exchange,
		exporter.FormatFloat(r.Open),
		exporter.FormatFloat(r.High),
		exporter.FormatFloat(r.Low),
		exporter.FormatFloat(r.Close),
		exporter.FormatFloat(r.Volume),
		exporter.FormatFloat(r.SplitRatio),
		exporter.FormatFloat(r.DividendAmount),
		exporter.FormatFloat(r.AdjustedClose),
		exporter.FormatFloat(r.UnadjustedClose),
	}
}

func csvRowToRawBar(record []string) (domain.RawBar, error) {
	date, err := time.Parse(exporter.DateLayout, record[0])
	if err != nil {
		return domain.RawBar{}, err
	}
	row := domain.NewRawBar(date, record[1])
	row.Name = record[2]
	row.Exchange = record[3]

	fields := []*float64{
		&row.Open, &row.High, &row.Low, &row.Close, &row.Volume,
		&row.SplitRatio, &row.DividendAmount, &row.AdjustedClose, &row.UnadjustedClose,
	}
	for i, dst := range fields {
		v, err := exporter.ParseFloat(record[i+4])
		if err != nil {
			return domain.RawBar{}, fmt.Errorf("column %s: %w", StagingHeaders[i+4], err)
		}
		*dst = v
	}
	return row, nil
}

// stagingFile names the staged file of symbol. The ticker is path-escaped
// and a leading character that would hide the file is escaped too; the
// ticker column inside the file stays authoritative.
func stagingFile(symbol string) string {
	name := url.PathEscape(symbol)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		name = fmt.Sprintf("%%%02X", name[0]) + name[1:]
	}
	return name + ".csv"
}
