package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mdbundle/pkg/contracts/domain"
)

func TestSnapshotValidate(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	reg := []domain.SymbolRecord{{SID: 0, Symbol: "ABC"}, {SID: 1, Symbol: "XYZ"}}

	tests := []struct {
		name    string
		snap    Snapshot
		wantErr string
	}{
		{"empty", Snapshot{}, ""},
		{"consistent", Snapshot{
			Bars:        []domain.SymbolBars{{SID: 0}, {SID: 1}},
			Registry:    reg,
			Adjustments: domain.AdjustmentSet{Dividends: []domain.Dividend{{SID: 1, ExDate: day, Amount: 1}}},
		}, ""},
		{"bars out of order", Snapshot{Bars: []domain.SymbolBars{{SID: 1}, {SID: 0}}, Registry: reg}, "out of order"},
		{"sid gap", Snapshot{Registry: []domain.SymbolRecord{{SID: 0}, {SID: 2}}}, "row 1 carries sid 2"},
		{"bars for unknown sid", Snapshot{Bars: []domain.SymbolBars{{SID: 2}}, Registry: reg}, "unregistered sid 2"},
		{"split for unknown sid", Snapshot{
			Registry:    reg,
			Adjustments: domain.AdjustmentSet{Splits: []domain.Split{{SID: 5, EffectiveDate: day, Ratio: 0.5}}},
		}, "unregistered sid 5"},
		{"merger for unknown sid", Snapshot{
			Adjustments: domain.AdjustmentSet{Mergers: []domain.Merger{{SID: 0, EffectiveDate: day, Ratio: 0.5}}},
		}, "unregistered sid 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
