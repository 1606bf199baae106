// Package dataprocessing turns vendor feed files into calendar-aligned bar
// series.
//
// # Architecture
//
//  1. Parser: ParseFile reads a CSV or Excel feed through its schema mapping
//     into RawBar rows. Missing numeric cells are NaN.
//  2. Normalisation: TickerNormalizer strips ticker characters, applies
//     ticker changes and restricts rows to the symbol universe. Dedupe keeps
//     the last row of every (ticker, date) pair.
//  3. Staging: Stager merges each run's rows into one CSV per symbol so the
//     next run sees the whole history.
//  4. Aligner: Align reindexes one symbol's rows onto calendar sessions,
//     forward-filling then back-filling gaps. CarryOver builds a single
//     session from the latest earlier row.
//
// # Usage
//
//	res, err := dataprocessing.ParseFile(path, schema)
//	rows, dups := dataprocessing.Dedupe(res.Rows)
//	groups := dataprocessing.GroupBySymbol(rows)
//
//	aligner := dataprocessing.NewAligner(dataprocessing.AlignOptions{})
//	for _, sym := range dataprocessing.SortedSymbols(groups) {
//		window := dataprocessing.WindowFor(cal, groups[sym])
//		series, err := aligner.Align(sym, groups[sym], window)
//		...
//	}
//
// # Error Handling
//
// A feed file that lacks a mapped column fails with a MissingInput error.
// Rows without a parseable date or a ticker are skipped and counted in
// ParseResult.Skipped. A symbol with no recoverable session fails Align with
// an EmptySeries error, which callers treat as a soft skip.
package dataprocessing
