// Package config loads the ingestion settings and the feed schema mapping.
//
// # Configuration Sources
//
// Settings are resolved in increasing precedence:
//
//	1. Default values
//	2. The YAML file (mdbundle.yaml, configs/mdbundle.yaml, or -config)
//	3. Environment variables prefixed with MDB_
//
// Environment keys follow the YAML nesting:
//
//	MDB_PATHS_INPUT_DIR=/srv/incoming
//	MDB_BUNDLE_WORKERS=8
//	MDB_STORE_DRIVER=duckdb
//	MDB_TELEMETRY_METRICS_ENABLED=true
//
// # Feed Schemas
//
// The schema mapping file (paths.feed_schemas) is versioned and read
// strictly: unknown keys are rejected. Each feed maps a vendor layout onto
// raw rows by exact header text:
//
//	version: 1
//	feeds:
//	  - name: daily
//	    format: csv
//	    pattern: "prices_*.csv"
//	    exchange: XNYS
//	    date_column: Date
//	    ticker_column: Ticker
//	    open_column: Open
//	    ...
//
// # Validation
//
// Both files are validated with go-playground/validator after loading.
// Field errors are reported with their YAML key, e.g. "bundle.workers".
package config
