// Package bundle runs one ingestion of vendor feeds into a bundle.
//
// A run is a fixed graph of operations steps:
//
//	discover -> calendar -> registry -> align -> adjustments -> commit
//
// discover parses the feed files and folds them into the per-symbol staging
// area. calendar merges the observed sessions into the persisted business-day
// list. registry upserts every symbol, single-threaded, before align and
// adjustments fan out per symbol. commit overwrites the bar store, the
// registry table and the three adjustment tables, in that order.
//
// Hard errors (missing input, no calendar evidence) stop the run before
// commit, so nothing destructive happens. Symbols that align to zero
// sessions and events outside a symbol's window are soft: they are counted
// in the run Diagnostics, never returned.
package bundle
