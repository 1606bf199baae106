package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mdbundle/internal/errors"
	"mdbundle/pkg/contracts/domain"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func assertInvariants(t *testing.T, r *Registry) {
	t.Helper()
	for i, rec := range r.Records() {
		assert.Equal(t, int64(i), rec.SID)
		assert.False(t, rec.LastSeen.Before(rec.FirstSeen), "%s: first_seen after last_seen", rec.Symbol)
		assert.Equal(t, rec.LastSeen.AddDate(0, 0, 1), rec.AutoClose, "%s: auto_close", rec.Symbol)
	}
}

func TestUpsert_FirstSighting(t *testing.T) {
	r := New("XNSE")

	sid, err := r.Upsert("ABC", "ABC Corp", "", date("2024-01-02"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), sid)

	rec, err := r.Lookup("ABC")
	require.NoError(t, err)
	assert.Equal(t, date("2024-01-02"), rec.FirstSeen)
	assert.Equal(t, date("2024-01-02"), rec.LastSeen)
	assert.Equal(t, date("2024-01-03"), rec.AutoClose)
	assert.Equal(t, "XNSE", rec.Exchange)
	assert.Equal(t, "ABC Corp", rec.DisplayName)

	sid, err = r.Upsert("XYZ", "", "NYSE", date("2024-01-05"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), sid, "sid is the registry size before insert")

	rec, err = r.Lookup("XYZ")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", rec.DisplayName, "display name defaults to the symbol")
	assert.Equal(t, "NYSE", rec.Exchange)

	assertInvariants(t, r)
}

func TestUpsert_LaterSighting(t *testing.T) {
	r := New("XNSE")
	sid, err := r.Upsert("ABC", "ABC Corp", "", date("2024-01-02"))
	require.NoError(t, err)

	again, err := r.Upsert("ABC", "ABC Corp", "", date("2024-02-15"))
	require.NoError(t, err)
	assert.Equal(t, sid, again)

	rec, err := r.Lookup("ABC")
	require.NoError(t, err)
	assert.Equal(t, date("2024-01-02"), rec.FirstSeen)
	assert.Equal(t, date("2024-02-15"), rec.LastSeen)
	assert.Equal(t, date("2024-02-16"), rec.AutoClose)

	// an earlier sighting widens first_seen only
	_, err = r.Upsert("ABC", "ABC Corp", "", date("2023-12-28"))
	require.NoError(t, err)
	rec, err = r.Lookup("ABC")
	require.NoError(t, err)
	assert.Equal(t, date("2023-12-28"), rec.FirstSeen)
	assert.Equal(t, date("2024-02-16"), rec.AutoClose)

	assertInvariants(t, r)
}

func TestUpsert_Idempotent(t *testing.T) {
	r := New("XNSE")
	_, err := r.UpsertRange("ABC", "ABC Corp", "", date("2024-01-02"), date("2024-01-31"))
	require.NoError(t, err)
	before := r.Records()

	for _, d := range []string{"2024-01-02", "2024-01-15", "2024-01-31"} {
		_, err := r.Upsert("ABC", "Renamed", "NYSE", date(d))
		require.NoError(t, err)
	}

	assert.Equal(t, before, r.Records())
}

func TestUpsert_TimeOfDayIgnored(t *testing.T) {
	r := New("")
	_, err := r.Upsert("ABC", "", "", time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	rec, err := r.Lookup("ABC")
	require.NoError(t, err)
	assert.Equal(t, date("2024-01-02"), rec.FirstSeen)
}

func TestUpsert_Invalid(t *testing.T) {
	r := New("")

	_, err := r.Upsert("  ", "", "", date("2024-01-02"))
	assert.True(t, errors.Is(err, &apperrors.AppError{Type: apperrors.ErrTypeValidation}))

	_, err = r.Upsert("ABC", "", "", time.Time{})
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestLookup_NotFound(t *testing.T) {
	r := New("")

	_, err := r.Lookup("MISSING")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.False(t, r.Contains("MISSING"))

	_, err = r.LookupSID(3)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestLoad(t *testing.T) {
	persisted := []domain.SymbolRecord{
		{SID: 1, Symbol: "XYZ", FirstSeen: date("2024-01-03"), LastSeen: date("2024-01-04"), Exchange: "XNSE"},
		{SID: 0, Symbol: "ABC", FirstSeen: date("2024-01-02"), LastSeen: date("2024-01-05"), Exchange: "XNSE"},
	}

	r, err := Load("XNSE", persisted)
	require.NoError(t, err)
	records := r.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "ABC", records[0].Symbol)
	assert.Equal(t, "XYZ", records[1].Symbol)

	sid, err := r.Upsert("NEW", "", "", date("2024-01-08"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), sid)

	rec, err := r.LookupSID(0)
	require.NoError(t, err)
	assert.Equal(t, date("2024-01-06"), rec.AutoClose, "auto_close recomputed on load")

	assertInvariants(t, r)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		records []domain.SymbolRecord
	}{
		{
			name: "sid gap",
			records: []domain.SymbolRecord{
				{SID: 0, Symbol: "A", FirstSeen: date("2024-01-02"), LastSeen: date("2024-01-02")},
				{SID: 2, Symbol: "B", FirstSeen: date("2024-01-02"), LastSeen: date("2024-01-02")},
			},
		},
		{
			name: "duplicate symbol",
			records: []domain.SymbolRecord{
				{SID: 0, Symbol: "A", FirstSeen: date("2024-01-02"), LastSeen: date("2024-01-02")},
				{SID: 1, Symbol: "A", FirstSeen: date("2024-01-02"), LastSeen: date("2024-01-02")},
			},
		},
		{
			name: "inverted window",
			records: []domain.SymbolRecord{
				{SID: 0, Symbol: "A", FirstSeen: date("2024-01-05"), LastSeen: date("2024-01-02")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("", tt.records)
			assert.Error(t, err)
		})
	}
}

func TestUpsert_Concurrent(t *testing.T) {
	r := New("XNSE")
	symbols := []string{"A", "B", "C", "D", "E", "F", "G", "H"}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for _, s := range symbols {
				_, err := r.Upsert(s, "", "", date("2024-01-02").AddDate(0, 0, offset))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, len(symbols), r.Len())
	for _, s := range symbols {
		rec, err := r.Lookup(s)
		require.NoError(t, err)
		assert.Equal(t, date("2024-01-02"), rec.FirstSeen)
		assert.Equal(t, date("2024-01-05"), rec.LastSeen)
	}
	assertInvariants(t, r)
}
