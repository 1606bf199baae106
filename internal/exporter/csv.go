package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"mdbundle/internal/files"
)

// utf8BOM lets spreadsheet tools detect the encoding
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter writes bundle and staging tables under one directory. Each file
// replaces its predecessor atomically.
type CSVWriter struct {
	baseDir string
}

func NewCSVWriter(baseDir string) *CSVWriter {
	return &CSVWriter{baseDir: baseDir}
}

// WriteOptions describes one table
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool
}

// WriteCSV replaces filePath, relative to the base directory unless absolute,
// with the table in options.
func (w *CSVWriter) WriteCSV(filePath string, options WriteOptions) error {
	path := w.resolvePath(filePath)
	slog.Debug("writing_csv",
		slog.String("file_path", path),
		slog.Int("record_count", len(options.Records)))

	return files.WriteFileAtomic(path, func(f *os.File) error {
		if options.BOMPrefix {
			if _, err := f.Write(utf8BOM); err != nil {
				return fmt.Errorf("failed to write BOM: %w", err)
			}
		}
		return writeTable(f, options.Headers, options.Records)
	})
}

// WriteSimpleCSV is WriteCSV without a BOM
func (w *CSVWriter) WriteSimpleCSV(filePath string, headers []string, records [][]string) error {
	return w.WriteCSV(filePath, WriteOptions{Headers: headers, Records: records})
}

func writeTable(out io.Writer, headers []string, records [][]string) error {
	cw := csv.NewWriter(out)
	if len(headers) > 0 {
		if err := cw.Write(headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range records {
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// StreamWriter writes one table row by row. The target path is untouched
// until Close succeeds.
type StreamWriter struct {
	out *files.AtomicFile
	csv *csv.Writer
}

// CreateStreamWriter starts a streamed table at filePath
func (w *CSVWriter) CreateStreamWriter(filePath string, headers []string) (*StreamWriter, error) {
	out, err := files.CreateAtomic(w.resolvePath(filePath))
	if err != nil {
		return nil, err
	}
	s := &StreamWriter{out: out, csv: csv.NewWriter(out)}
	if len(headers) > 0 {
		if err := s.csv.Write(headers); err != nil {
			out.Abort()
			return nil, fmt.Errorf("failed to write headers: %w", err)
		}
	}
	return s, nil
}

func (s *StreamWriter) WriteRecord(record []string) error {
	return s.csv.Write(record)
}

// Close flushes the stream and publishes it at the target path
func (s *StreamWriter) Close() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		s.out.Abort()
		return err
	}
	return s.out.Commit()
}

// Abort discards everything written so far
func (s *StreamWriter) Abort() {
	s.out.Abort()
}

func (w *CSVWriter) resolvePath(filePath string) string {
	if filepath.IsAbs(filePath) || w.baseDir == "" {
		return filePath
	}
	return filepath.Join(w.baseDir, filePath)
}
