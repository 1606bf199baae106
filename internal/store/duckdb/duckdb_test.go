package duckdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdbundle/internal/files"
	"mdbundle/internal/store"
	"mdbundle/pkg/contracts/domain"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "bundle", "bundle.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	records, state, err := s.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Equal(t, files.NotFound, state)
	assert.Empty(t, records)

	want := []domain.SymbolRecord{
		{SID: 0, Symbol: "ABC", DisplayName: "ABC Corp", FirstSeen: day("2024-01-02"), LastSeen: day("2024-01-05"), AutoClose: day("2024-01-06"), Exchange: "XNSE"},
		{SID: 1, Symbol: "XYZ", DisplayName: "XYZ", FirstSeen: day("2024-01-03"), LastSeen: day("2024-01-03"), AutoClose: day("2024-01-04"), Exchange: "XNSE"},
	}
	require.NoError(t, s.Commit(ctx, store.Snapshot{Registry: want}))

	got, state, err := s.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Equal(t, files.Found, state)
	assert.Equal(t, want, got)

	// second commit replaces, never appends
	require.NoError(t, s.Commit(ctx, store.Snapshot{Registry: want[:1]}))
	got, _, err = s.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_CommitRejectsSIDGap(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.Commit(ctx, store.Snapshot{Registry: []domain.SymbolRecord{
		{SID: 3, Symbol: "ABC", FirstSeen: day("2024-01-02"), LastSeen: day("2024-01-02"), AutoClose: day("2024-01-03")},
	}})
	assert.Error(t, err)

	_, state, err := s.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Equal(t, files.NotFound, state, "nothing committed")
}

func registry(symbols ...string) []domain.SymbolRecord {
	out := make([]domain.SymbolRecord, 0, len(symbols))
	for i, sym := range symbols {
		out = append(out, domain.SymbolRecord{SID: int64(i), Symbol: sym, DisplayName: sym,
			FirstSeen: day("2024-01-02"), LastSeen: day("2024-01-03"), AutoClose: day("2024-01-04"), Exchange: "XNSE"})
	}
	return out
}

func TestStore_CommitBars(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	reg := registry("ABC", "DEF", "XYZ")

	bars := []domain.SymbolBars{
		{SID: 0, Series: domain.AlignedSeries{Symbol: "ABC", Bars: []domain.Bar{
			{Session: day("2024-01-02"), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
			{Session: day("2024-01-03"), Open: 1.5, High: 2, Low: 1, Close: 1.75, Volume: 0},
		}}},
		{SID: 2, Series: domain.AlignedSeries{Symbol: "XYZ", Bars: []domain.Bar{
			{Session: day("2024-01-03"), Open: 5, High: 5, Low: 5, Close: 5, Volume: 1},
		}}},
	}
	require.NoError(t, s.Commit(ctx, store.Snapshot{Bars: bars, Registry: reg}))

	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM daily_bars`).Scan(&count))
	assert.Equal(t, 3, count)

	var close float64
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT close FROM daily_bars WHERE sid = 0 AND date = DATE '2024-01-03'`).Scan(&close))
	assert.Equal(t, 1.75, close)

	require.NoError(t, s.Commit(ctx, store.Snapshot{Bars: bars[1:], Registry: reg}))
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM daily_bars`).Scan(&count))
	assert.Equal(t, 1, count)

	assert.Error(t, s.Commit(ctx, store.Snapshot{Bars: []domain.SymbolBars{bars[1], bars[0]}, Registry: reg}))
}

func TestStore_CommitAdjustments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	pay := day("2024-02-01")
	set := domain.AdjustmentSet{
		Splits:  []domain.Split{{SID: 0, EffectiveDate: day("2024-01-10"), Ratio: 0.5}},
		Mergers: []domain.Merger{{SID: 1, EffectiveDate: day("2024-01-11"), Ratio: 0.7}},
		Dividends: []domain.Dividend{
			{SID: 0, ExDate: day("2024-01-12"), Amount: 12.5},
			{SID: 1, ExDate: day("2024-01-15"), Amount: 0.25, PayDate: &pay},
		},
	}
	require.NoError(t, s.Commit(ctx, store.Snapshot{Registry: registry("ABC", "XYZ"), Adjustments: set}))

	dividends, err := s.ReadDividends(ctx)
	require.NoError(t, err)
	assert.Equal(t, set.Dividends, dividends)

	var splits, mergers int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM splits`).Scan(&splits))
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT count(*) FROM mergers`).Scan(&mergers))
	assert.Equal(t, 1, splits)
	assert.Equal(t, 1, mergers)

	require.NoError(t, s.Commit(ctx, store.Snapshot{Registry: registry("ABC", "XYZ")}))
	dividends, err = s.ReadDividends(ctx)
	require.NoError(t, err)
	assert.Empty(t, dividends)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bundle.duckdb")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, store.Snapshot{Registry: registry("ABC")}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	records, state, err := s.LoadRegistry(ctx)
	require.NoError(t, err)
	assert.Equal(t, files.Found, state)
	require.Len(t, records, 1)
	assert.Equal(t, "ABC", records[0].Symbol)
}

func TestStore_CommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	abc := domain.SymbolRecord{SID: 0, Symbol: "ABC", DisplayName: "ABC", FirstSeen: day("2024-01-02"), LastSeen: day("2024-01-02"), AutoClose: day("2024-01-03"), Exchange: "XNSE"}
	bar := domain.Bar{Session: day("2024-01-02"), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 100}
	require.NoError(t, s.Commit(ctx, store.Snapshot{
		Bars:     []domain.SymbolBars{{SID: 0, Series: domain.AlignedSeries{Bars: []domain.Bar{bar}}}},
		Registry: []domain.SymbolRecord{abc},
		Adjustments: domain.AdjustmentSet{
			Dividends: []domain.Dividend{{SID: 0, ExDate: day("2024-01-02"), Amount: 1}},
		},
	}))

	// the registry insert succeeds, then a duplicate session breaks the bar insert
	next := abc
	next.SID, next.Symbol = 1, "NEW"
	err := s.Commit(ctx, store.Snapshot{
		Bars: []domain.SymbolBars{
			{SID: 0, Series: domain.AlignedSeries{Bars: []domain.Bar{bar}}},
			{SID: 1, Series: domain.AlignedSeries{Bars: []domain.Bar{bar, bar}}},
		},
		Registry: []domain.SymbolRecord{abc, next},
	})
	require.Error(t, err)

	records, _, err := s.LoadRegistry(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ABC", records[0].Symbol)

	var bars int
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT count(*) FROM daily_bars").Scan(&bars))
	assert.Equal(t, 1, bars)

	dividends, err := s.ReadDividends(ctx)
	require.NoError(t, err)
	assert.Len(t, dividends, 1)
}

func TestStore_CommitRejectsUnregisteredSID(t *testing.T) {
	s := openTestStore(t)

	err := s.Commit(context.Background(), store.Snapshot{
		Adjustments: domain.AdjustmentSet{
			Splits: []domain.Split{{SID: 3, EffectiveDate: day("2024-01-02"), Ratio: 0.5}},
		},
	})
	assert.ErrorContains(t, err, "unregistered sid 3")
}
