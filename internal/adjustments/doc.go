// Package adjustments derives split, merger and dividend events from vendor
// rows and reconciles them against the symbol registry.
//
// Two derivation modes are supported per feed. Explicit mode reads
// split_ratio and dividend_amount columns. Inference mode compares the
// adjustment factor unadjusted_close / adjusted_close of consecutive rows
// and classifies each change with Classify.
//
// Every derived event passes through Filter before it is written: events for
// unknown sids, dates outside the symbol's validity window, or symbols
// skipped in the current run are dropped and counted in a Tally.
package adjustments
