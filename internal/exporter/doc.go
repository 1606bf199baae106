// Package exporter writes bundle tables as CSV files.
//
// CSVWriter is the low-level writer: every file it produces is written to a
// temporary sibling first and renamed into place. BundleExporter lays the
// bundle out on top of it:
//
//	daily/<sid>.csv   date,open,high,low,close,volume
//	assets.csv        symbol,asset_name,start_date,end_date,auto_close_date,exchange
//	splits.csv        sid,ratio,effective_date
//	mergers.csv       sid,ratio,effective_date
//	dividends.csv     sid,amount,ex_date,declared_date,record_date,pay_date
//
// Floats use the shortest round-tripping representation, so exporting the
// same values twice yields identical bytes.
//
// Example usage:
//
//	exp := exporter.NewBundleExporter("data/bundle/default")
//	if err := exp.ExportAssets(registry.Records()); err != nil {
//		return err
//	}
package exporter
