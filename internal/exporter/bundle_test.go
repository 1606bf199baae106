package exporter

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdbundle/pkg/contracts/domain"
)

func d(s string) time.Time {
	t, _ := time.Parse(DateLayout, s)
	return t
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{13.4, "13.4"},
		{100, "100"},
		{0.1 + 0.2, "0.30000000000000004"},
		{math.Copysign(0, -1), "0"},
		{math.NaN(), ""},
		{1e-7, "0.0000001"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFloat(tt.in))
	}

	for _, v := range []float64{13.4, 0.1 + 0.2, 123456.789, 1e-7} {
		back, err := ParseFloat(FormatFloat(v))
		require.NoError(t, err)
		assert.Equal(t, v, back)
	}

	nan, err := ParseFloat("")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(nan))
}

func TestOptionalDate(t *testing.T) {
	assert.Equal(t, "", FormatOptionalDate(nil))

	day := d("2024-03-01")
	assert.Equal(t, "2024-03-01", FormatOptionalDate(&day))

	got, err := ParseOptionalDate("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseOptionalDate("2024-03-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, day, *got)
}

func TestBundleExporter(t *testing.T) {
	dir := t.TempDir()
	exp := NewBundleExporter(dir)

	bars := []domain.SymbolBars{{
		SID: 0,
		Series: domain.AlignedSeries{
			Symbol: "ABC",
			Bars: []domain.Bar{
				{Session: d("2024-01-02"), Open: 10, High: 11, Low: 9.5, Close: 10.5, Volume: 1000},
				{Session: d("2024-01-03"), Open: 10.5, High: 10.5, Low: 10.5, Close: 10.5, Volume: 1000, Filled: true},
			},
		},
	}}
	require.NoError(t, exp.ExportBars(bars))

	data, err := os.ReadFile(filepath.Join(dir, "daily", "0.csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"date,open,high,low,close,volume\n"+
			"2024-01-02,10,11,9.5,10.5,1000\n"+
			"2024-01-03,10.5,10.5,10.5,10.5,1000\n",
		string(data))

	records := []domain.SymbolRecord{
		{SID: 0, Symbol: "ABC", DisplayName: "ABC Corp", FirstSeen: d("2024-01-02"), LastSeen: d("2024-01-03"), AutoClose: d("2024-01-04"), Exchange: "XNSE"},
	}
	require.NoError(t, exp.ExportAssets(records))

	data, err = os.ReadFile(filepath.Join(dir, AssetsFile))
	require.NoError(t, err)
	assert.Equal(t,
		"symbol,asset_name,start_date,end_date,auto_close_date,exchange\n"+
			"ABC,ABC Corp,2024-01-02,2024-01-03,2024-01-04,XNSE\n",
		string(data))

	set := domain.AdjustmentSet{
		Splits:    []domain.Split{{SID: 0, EffectiveDate: d("2024-01-03"), Ratio: 0.5}},
		Dividends: []domain.Dividend{{SID: 0, ExDate: d("2024-01-02"), Amount: 12.5}},
	}
	require.NoError(t, exp.ExportAdjustments(set))

	data, err = os.ReadFile(filepath.Join(dir, SplitsFile))
	require.NoError(t, err)
	assert.Equal(t, "sid,ratio,effective_date\n0,0.5,2024-01-03\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, MergersFile))
	require.NoError(t, err)
	assert.Equal(t, "sid,ratio,effective_date\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, DividendsFile))
	require.NoError(t, err)
	assert.Equal(t, "sid,amount,ex_date,declared_date,record_date,pay_date\n0,12.5,2024-01-02,,,\n", string(data))
}

func TestBundleExporter_AssetsRequireOrdinalSIDs(t *testing.T) {
	exp := NewBundleExporter(t.TempDir())
	err := exp.ExportAssets([]domain.SymbolRecord{{SID: 1, Symbol: "ABC"}})
	assert.Error(t, err)
}
