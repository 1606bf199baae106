package calendar

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	apperrors "mdbundle/internal/errors"
	"mdbundle/internal/files"
)

// BusinessDaysHeader is the single column of the business-day list file.
const BusinessDaysHeader = "dates"

// LoadBusinessDays reads the persisted business-day list. A missing file is
// reported as files.NotFound with no dates and no error.
func LoadBusinessDays(path string) ([]time.Time, files.Existence, error) {
	state, err := files.FileExists(path)
	if state != files.Found {
		return nil, state, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, files.Error, fmt.Errorf("failed to open business days %s: %w", path, err)
	}
	defer f.Close()

	dates, err := readBusinessDays(f)
	if err != nil {
		return nil, files.Error, apperrors.NewParsingError("invalid business-day list "+path, err)
	}
	return dates, files.Found, nil
}

func readBusinessDays(r io.Reader) ([]time.Time, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == BusinessDaysHeader {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("missing %q column", BusinessDaysHeader)
	}

	var dates []time.Time
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if col >= len(record) || strings.TrimSpace(record[col]) == "" {
			continue
		}
		d, err := parseDay(record[col])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// parseDay accepts a plain date or a date with a time part.
func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{dateLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return Normalize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// SaveBusinessDays rewrites the business-day list from the calendar sessions.
func SaveBusinessDays(path string, cal *Calendar) error {
	return files.WriteFileAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write([]string{BusinessDaysHeader}); err != nil {
			return err
		}
		for _, s := range cal.sessions {
			if err := w.Write([]string{s.Format(dateLayout)}); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}
