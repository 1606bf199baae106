package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdbundle/internal/shared/testutil"
)

type cliFixture struct {
	root       string
	configFile string
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	root := t.TempDir()
	f := &cliFixture{root: root, configFile: filepath.Join(root, "mdbundle.yaml")}

	testutil.WriteFile(t, filepath.Join(root, "feeds.yaml"),
		"version: 1",
		"feeds:",
		"  - name: daily",
		"    format: csv",
		`    pattern: "prices_*.csv"`,
		"    exchange: XTST",
		"    date_column: Date",
		"    ticker_column: Ticker",
		"    open_column: Open",
		"    high_column: High",
		"    low_column: Low",
		"    close_column: Close",
		"    volume_column: Volume",
	)
	testutil.WriteFile(t, f.configFile,
		"logging:",
		"  level: error",
		"paths:",
		fmt.Sprintf("  input_dir: %s", filepath.Join(root, "incoming")),
		fmt.Sprintf("  staging_dir: %s", filepath.Join(root, "staging")),
		fmt.Sprintf("  bundle_dir: %s", filepath.Join(root, "bundle")),
		fmt.Sprintf("  business_days: %s", filepath.Join(root, "meta", "bizdays.csv")),
		fmt.Sprintf("  feed_schemas: %s", filepath.Join(root, "feeds.yaml")),
		fmt.Sprintf("  metrics_file: %s", filepath.Join(root, "metrics", "bundle.prom")),
		"bundle:",
		"  name: cli",
		"telemetry:",
		"  metrics_enabled: true",
	)
	testutil.WriteFile(t, filepath.Join(root, "incoming", "prices_jan.csv"),
		"Date,Ticker,Open,High,Low,Close,Volume",
		"2024-01-02,ABC,10,11,9,10.5,100",
		"2024-01-04,ABC,11,12,10,11.5,",
	)
	return f
}

func (f *cliFixture) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-config", f.configFile}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_CommitsBundle(t *testing.T) {
	f := newCLIFixture(t)

	code, stdout, stderr := f.run(t, "-run-id", "cli-run")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "bundle cli committed: run cli-run, 1 symbols active")

	assert.FileExists(t, filepath.Join(f.root, "bundle", "assets.csv"))
	assert.FileExists(t, filepath.Join(f.root, "bundle", "daily", "0.csv"))
	assert.FileExists(t, filepath.Join(f.root, "bundle", "diagnostics.json"))

	metrics := testutil.ReadFile(t, filepath.Join(f.root, "metrics", "bundle.prom"))
	assert.Contains(t, metrics, "bundle_runs_total")
}

func TestRun_FlagOverrides(t *testing.T) {
	f := newCLIFixture(t)
	altBundle := filepath.Join(f.root, "alt")

	code, _, stderr := f.run(t, "-bundle", altBundle, "-zero-volume")
	require.Equal(t, exitOK, code, stderr)

	// 2024-01-03 is not a session; both written rows were observed
	lines := testutil.ReadLines(t, filepath.Join(altBundle, "daily", "0.csv"))
	assert.Len(t, lines, 3)
	assert.NoDirExists(t, filepath.Join(f.root, "bundle"))
}

func TestRun_HardErrorExitsOne(t *testing.T) {
	f := newCLIFixture(t)

	code, _, stderr := f.run(t, "-input", filepath.Join(f.root, "missing"))
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "aborted")
	assert.NoDirExists(t, filepath.Join(f.root, "bundle"))
}

func TestRun_UsageErrors(t *testing.T) {
	f := newCLIFixture(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown flag", []string{"-nope"}, exitUsage},
		{"stray argument", []string{"extra"}, exitUsage},
		{"bad carry-to date", []string{"-carry-to", "04/01/2024"}, exitUsage},
		{"unknown store", []string{"-store", "parquet"}, exitError},
		{"missing feed schemas", []string{"-feeds", filepath.Join(f.root, "none.yaml")}, exitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := f.run(t, tt.args...)
			assert.Equal(t, tt.want, code, stderr)
		})
	}
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-version"}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(stdout.String(), "mdbundle ingest v"))
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseFlags(strings.Fields("-config c.yaml -store duckdb -carry-to 2024-01-05 -zero-volume"), &stderr)
	require.NoError(t, err)
	assert.Equal(t, "c.yaml", opts.configFile)
	assert.Equal(t, "duckdb", opts.driver)
	assert.Equal(t, "2024-01-05", opts.carryTo)
	assert.True(t, opts.zeroVolume)
}
