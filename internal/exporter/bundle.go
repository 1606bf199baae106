package exporter

import (
	"fmt"
	"path/filepath"

	"mdbundle/pkg/contracts/domain"
)

// Bundle file names, relative to the bundle directory
const (
	BarsDir       = "daily"
	AssetsFile    = "assets.csv"
	SplitsFile    = "splits.csv"
	MergersFile   = "mergers.csv"
	DividendsFile = "dividends.csv"
)

// Table headers of the bundle CSVs
var (
	BarHeaders      = []string{"date", "open", "high", "low", "close", "volume"}
	AssetHeaders    = []string{"symbol", "asset_name", "start_date", "end_date", "auto_close_date", "exchange"}
	SplitHeaders    = []string{"sid", "ratio", "effective_date"}
	MergerHeaders   = []string{"sid", "ratio", "effective_date"}
	DividendHeaders = []string{"sid", "amount", "ex_date", "declared_date", "record_date", "pay_date"}
)

// BundleExporter writes the tables of a bundle as CSV files under one
// directory.
type BundleExporter struct {
	csvWriter *CSVWriter
}

// NewBundleExporter creates an exporter writing under dir
func NewBundleExporter(dir string) *BundleExporter {
	return &BundleExporter{
		csvWriter: NewCSVWriter(dir),
	}
}

// BarFile returns the path of a sid's bar file relative to the bundle
// directory.
func BarFile(sid int64) string {
	return filepath.Join(BarsDir, fmt.Sprintf("%d.csv", sid))
}

// ExportBars streams one CSV per symbol into daily/<sid>.csv.
func (b *BundleExporter) ExportBars(series []domain.SymbolBars) error {
	for _, sb := range series {
		stream, err := b.csvWriter.CreateStreamWriter(BarFile(sb.SID), BarHeaders)
		if err != nil {
			return fmt.Errorf("failed to create bar file for sid %d: %w", sb.SID, err)
		}
		for _, bar := range sb.Series.Bars {
			if err := stream.WriteRecord(BarToCSVRow(bar)); err != nil {
				stream.Abort()
				return fmt.Errorf("failed to write bar for sid %d: %w", sb.SID, err)
			}
		}
		if err := stream.Close(); err != nil {
			return fmt.Errorf("failed to close bar file for sid %d: %w", sb.SID, err)
		}
	}
	return nil
}

// ExportAssets writes the registry. Rows are in sid order; the sid is the
// row ordinal.
func (b *BundleExporter) ExportAssets(records []domain.SymbolRecord) error {
	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		if rec.SID != int64(i) {
			return fmt.Errorf("registry row %d carries sid %d", i, rec.SID)
		}
		rows = append(rows, AssetToCSVRow(rec))
	}
	return b.csvWriter.WriteSimpleCSV(AssetsFile, AssetHeaders, rows)
}

// ExportAdjustments writes the splits, mergers and dividends tables in that
// order.
func (b *BundleExporter) ExportAdjustments(set domain.AdjustmentSet) error {
	splits := make([][]string, 0, len(set.Splits))
	for _, s := range set.Splits {
		splits = append(splits, []string{FormatInt(s.SID), FormatFloat(s.Ratio), FormatDate(s.EffectiveDate)})
	}
	if err := b.csvWriter.WriteSimpleCSV(SplitsFile, SplitHeaders, splits); err != nil {
		return fmt.Errorf("failed to write splits: %w", err)
	}

	mergers := make([][]string, 0, len(set.Mergers))
	for _, m := range set.Mergers {
		mergers = append(mergers, []string{FormatInt(m.SID), FormatFloat(m.Ratio), FormatDate(m.EffectiveDate)})
	}
	if err := b.csvWriter.WriteSimpleCSV(MergersFile, MergerHeaders, mergers); err != nil {
		return fmt.Errorf("failed to write mergers: %w", err)
	}

	dividends := make([][]string, 0, len(set.Dividends))
	for _, d := range set.Dividends {
		dividends = append(dividends, []string{
			FormatInt(d.SID),
			FormatFloat(d.Amount),
			FormatDate(d.ExDate),
			FormatOptionalDate(d.DeclaredDate),
			FormatOptionalDate(d.RecordDate),
			FormatOptionalDate(d.PayDate),
		})
	}
	if err := b.csvWriter.WriteSimpleCSV(DividendsFile, DividendHeaders, dividends); err != nil {
		return fmt.Errorf("failed to write dividends: %w", err)
	}
	return nil
}

// BarToCSVRow converts an aligned bar to a CSV row
func BarToCSVRow(bar domain.Bar) []string {
	return []string{
		FormatDate(bar.Session),
		FormatFloat(bar.Open),
		FormatFloat(bar.High),
		FormatFloat(bar.Low),
		FormatFloat(bar.Close),
		FormatFloat(bar.Volume),
	}
}

// AssetToCSVRow converts a registry record to a CSV row
func AssetToCSVRow(rec domain.SymbolRecord) []string {
	return []string{
		rec.Symbol,
		rec.DisplayName,
		FormatDate(rec.FirstSeen),
		FormatDate(rec.LastSeen),
		FormatDate(rec.AutoClose),
		rec.Exchange,
	}
}
