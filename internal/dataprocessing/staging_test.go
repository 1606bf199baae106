package dataprocessing

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdbundle/internal/files"
	"mdbundle/pkg/contracts/domain"
)

func TestStager_MergeAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "staging")
	stager := NewStager(dir)

	all, state, err := stager.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, files.NotFound, state)
	assert.Empty(t, all)

	first := map[string][]domain.RawBar{
		"ABC": {
			bar("2024-01-03", "ABC", 2, 2, 2, 2, 20),
			bar("2024-01-02", "ABC", 1, 1, 1, 1, 10),
		},
	}
	n, err := stager.Merge(first)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// second batch overrides 01-03 and adds a new day and a new symbol
	revised := bar("2024-01-03", "ABC", 3, 3, 3, 3, 30)
	revised.DividendAmount = 0.25
	second := map[string][]domain.RawBar{
		"ABC": {revised, bar("2024-01-04", "ABC", 4, 4, 4, 4, 40)},
		"XYZ": {bar("2024-01-04", "XYZ", 9, 9, 9, 9, 90)},
	}
	n, err = stager.Merge(second)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, state, err = stager.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, files.Found, state)
	require.Len(t, all["ABC"], 3)
	require.Len(t, all["XYZ"], 1)

	abc := all["ABC"]
	assert.Equal(t, day("2024-01-02"), abc[0].Date)
	assert.Equal(t, 3.0, abc[1].Close)
	assert.Equal(t, 0.25, abc[1].DividendAmount)
	assert.True(t, math.IsNaN(abc[0].DividendAmount), "missing values survive a round trip")
	assert.Equal(t, day("2024-01-04"), abc[2].Date)
}

func TestStager_Deterministic(t *testing.T) {
	dir := t.TempDir()
	stager := NewStager(dir)
	rows := map[string][]domain.RawBar{"ABC": {bar("2024-01-02", "ABC", 1.1, 1.2, 1.0, 1.15, 1e6)}}

	_, err := stager.Merge(rows)
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(dir, "ABC.csv"))
	require.NoError(t, err)

	_, err = stager.Merge(rows)
	require.NoError(t, err)
	after, err := os.ReadFile(filepath.Join(dir, "ABC.csv"))
	require.NoError(t, err)

	assert.Equal(t, string(before), string(after))
}

func TestStager_PathLikeTickers(t *testing.T) {
	dir := t.TempDir()
	stager := NewStager(dir)

	tickers := []string{"BRK/B", "../evil", ".X", `A\B`, "~$LOCK"}
	incoming := map[string][]domain.RawBar{}
	for _, tk := range tickers {
		incoming[tk] = []domain.RawBar{bar("2024-01-02", tk, 1, 1, 1, 1, 1)}
	}

	n, err := stager.Merge(incoming)
	require.NoError(t, err)
	assert.Equal(t, len(tickers), n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, len(tickers), "one flat file per ticker")
	for _, e := range entries {
		assert.False(t, e.IsDir())
		assert.False(t, strings.HasPrefix(e.Name(), "."), e.Name())
		assert.False(t, strings.HasPrefix(e.Name(), "~"), e.Name())
	}

	all, state, err := stager.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, files.Found, state)
	for _, tk := range tickers {
		require.Len(t, all[tk], 1, tk)
		assert.Equal(t, tk, all[tk][0].Ticker)
	}
}

func TestStager_KeepsExchange(t *testing.T) {
	stager := NewStager(t.TempDir())

	row := bar("2024-01-02", "IBM", 1, 1, 1, 1, 1)
	row.Exchange = "XNYS"
	_, err := stager.Merge(map[string][]domain.RawBar{"IBM": {row}})
	require.NoError(t, err)

	all, _, err := stager.LoadAll()
	require.NoError(t, err)
	require.Len(t, all["IBM"], 1)
	assert.Equal(t, "XNYS", all["IBM"][0].Exchange)
}

func TestStager_RejectsEmptyTicker(t *testing.T) {
	_, err := NewStager(t.TempDir()).Merge(map[string][]domain.RawBar{
		"": {bar("2024-01-02", "", 1, 1, 1, 1, 1)},
	})
	assert.Error(t, err)
}
