package dataprocessing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"mdbundle/internal/calendar"
	"mdbundle/internal/config"
	apperrors "mdbundle/internal/errors"
	"mdbundle/pkg/contracts/domain"
)

// ParseResult holds the rows read from one feed file
type ParseResult struct {
	Path string
	Feed string
	Rows []domain.RawBar
	// Skipped counts rows with no usable date or ticker; SkippedLines holds
	// their 1-based line numbers.
	Skipped      int
	SkippedLines []int
}

// ParseFile reads a vendor feed file through its schema mapping. Columns are
// located by exact header text; a mapped column absent from the header is a
// MissingInput error for the file.
func ParseFile(path string, schema config.FeedSchema) (*ParseResult, error) {
	var (
		table [][]string
		lines []int
		err   error
	)
	switch schema.Format {
	case config.FormatXLSX:
		table, lines, err = readXLSX(path, schema.Sheet)
	default:
		table, lines, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}

	result := &ParseResult{Path: path, Feed: schema.Name}
	if len(table) == 0 {
		return nil, apperrors.NewMissingColumnError(path, schema.DateColumn)
	}

	columnMap, err := mapColumns(path, table[0], schema)
	if err != nil {
		return nil, err
	}

	for i, row := range table[1:] {
		line := lines[i+1]
		if isBlank(row) {
			continue
		}

		bar, ok := parseRow(row, columnMap, schema)
		if !ok {
			result.Skipped++
			result.SkippedLines = append(result.SkippedLines, line)
			continue
		}
		result.Rows = append(result.Rows, bar)
	}
	return result, nil
}

// readCSV returns the records of path and the 1-based line each starts on.
// Blank lines are not records.
func readCSV(path string) ([][]string, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, apperrors.NewMissingInputError(path, err)
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		table [][]string
		lines []int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, apperrors.NewParsingError("failed to read "+path, err)
		}
		line, _ := reader.FieldPos(0)
		table = append(table, record)
		lines = append(lines, line)
	}
	if len(table) > 0 && len(table[0]) > 0 {
		table[0][0] = strings.TrimPrefix(table[0][0], "\ufeff")
	}
	return table, lines, nil
}

// readXLSX returns the rows of sheet; GetRows keeps empty rows, so the
// line of row i is i+1.
func readXLSX(path, sheet string) ([][]string, []int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, apperrors.NewMissingInputError(path, err)
		}
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, nil, apperrors.NewMissingInputError(fmt.Sprintf("%s sheet %q", path, sheet), err)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, apperrors.NewParsingError("failed to read sheet "+sheet, err)
	}
	lines := make([]int, len(rows))
	for i := range rows {
		lines[i] = i + 1
	}
	return rows, lines, nil
}

// columnIndexes holds the position of each mapped column, -1 when unmapped
type columnIndexes struct {
	date, ticker, name                    int
	open, high, low, close, volume        int
	split, dividend, adjusted, unadjusted int
}

func mapColumns(path string, header []string, schema config.FeedSchema) (columnIndexes, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := positions[h]; !dup {
			positions[h] = i
		}
	}

	for _, col := range schema.Columns() {
		if _, ok := positions[col]; !ok {
			return columnIndexes{}, apperrors.NewMissingColumnError(path, col)
		}
	}

	lookup := func(name string) int {
		if name == "" {
			return -1
		}
		return positions[name]
	}
	adj := schema.Adjustments
	return columnIndexes{
		date:       lookup(schema.DateColumn),
		ticker:     lookup(schema.TickerColumn),
		name:       lookup(schema.NameColumn),
		open:       lookup(schema.OpenColumn),
		high:       lookup(schema.HighColumn),
		low:        lookup(schema.LowColumn),
		close:      lookup(schema.CloseColumn),
		volume:     lookup(schema.VolumeColumn),
		split:      lookup(adj.SplitColumn),
		dividend:   lookup(adj.DividendColumn),
		adjusted:   lookup(adj.AdjustedCloseColumn),
		unadjusted: lookup(adj.UnadjustedCloseColumn),
	}, nil
}

func parseRow(row []string, cols columnIndexes, schema config.FeedSchema) (domain.RawBar, bool) {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}
	number := func(idx int) float64 {
		s := strings.ReplaceAll(cell(idx), ",", "")
		if s == "" {
			return math.NaN()
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return v
	}

	ticker := cell(cols.ticker)
	date, err := time.Parse(schema.DateLayout, cell(cols.date))
	if err != nil || ticker == "" {
		return domain.RawBar{}, false
	}

	bar := domain.NewRawBar(calendar.Normalize(date), ticker)
	bar.Name = cell(cols.name)
	bar.Exchange = schema.Exchange
	bar.Open = number(cols.open)
	bar.High = number(cols.high)
	bar.Low = number(cols.low)
	bar.Close = number(cols.close)
	bar.Volume = number(cols.volume)
	bar.SplitRatio = splitRatio(number(cols.split), schema.Adjustments.SplitConvention)
	bar.DividendAmount = number(cols.dividend)
	bar.AdjustedClose = number(cols.adjusted)
	bar.UnadjustedClose = number(cols.unadjusted)
	return bar, true
}

// splitRatio converts a split cell to the price-multiplier convention used
// by RawBar.SplitRatio. A multiplier of 2 (two new shares per old share)
// becomes a price ratio of 0.5.
func splitRatio(v float64, convention string) float64 {
	if math.IsNaN(v) || convention != config.SplitConventionMultiplier {
		return v
	}
	if v <= 0 {
		return math.NaN()
	}
	return 1 / v
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
