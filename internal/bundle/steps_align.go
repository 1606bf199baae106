package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"mdbundle/internal/adjustments"
	"mdbundle/internal/calendar"
	"mdbundle/internal/dataprocessing"
	apperrors "mdbundle/internal/errors"
	"mdbundle/internal/operations"
	"mdbundle/internal/registry"
	"mdbundle/pkg/contracts/domain"
)

// progressEvery is how often the per-symbol fan-out logs progress
const progressEvery = 100

// alignStep aligns every symbol onto the calendar in parallel
type alignStep struct {
	operations.BaseStage
	o       *Orchestrator
	logger  *slog.Logger
	carryTo time.Time
}

func newAlignStep(o *Orchestrator, carryTo time.Time) *alignStep {
	return &alignStep{
		BaseStage: operations.NewBaseStage(operations.StepIDAlign, operations.StepNameAlign,
			[]string{operations.StepIDRegistry, operations.StepIDCalendar}),
		o:       o,
		logger:  o.logger.With(slog.String("step", operations.StepIDAlign)),
		carryTo: carryTo,
	}
}

type alignOutcome struct {
	bars  domain.SymbolBars
	stats dataprocessing.AlignStats
	ok    bool
}

// Execute reads the calendar and registry only. Symbols with no recoverable
// session are skipped: they stay in the registry but leave the active set.
func (s *alignStep) Execute(ctx context.Context, state *operations.OperationState) error {
	diag, err := operations.ContextValue[*Diagnostics](state, keyDiagnostics)
	if err != nil {
		return err
	}
	prices, err := operations.ContextValue[feedRows](state, keyPrices)
	if err != nil {
		return err
	}
	cal, err := operations.ContextValue[*calendar.Calendar](state, keyCalendar)
	if err != nil {
		return err
	}
	reg, err := operations.ContextValue[*registry.Registry](state, keyRegistry)
	if err != nil {
		return err
	}
	sids, err := operations.ContextValue[map[string]int64](state, keySIDs)
	if err != nil {
		return err
	}

	symbols := runSymbols(prices, sids)
	aligner := dataprocessing.NewAligner(dataprocessing.AlignOptions{
		ZeroFillVolume: s.o.cfg.Bundle.ZeroFillVolume,
	})
	progress := operations.NewProgressTracker(s.ID(), len(symbols))
	results := make([]alignOutcome, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(s.o.cfg.Bundle.Workers))
	for i, symbol := range symbols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows := prices[symbol]
			series, stats, err := aligner.AlignWithStats(symbol, rows, dataprocessing.WindowFor(cal, rows))
			switch {
			case errors.Is(err, apperrors.ErrEmptySeries):
			case err != nil:
				return fmt.Errorf("failed to align %s: %w", symbol, err)
			default:
				results[i] = alignOutcome{
					bars:  domain.SymbolBars{SID: sids[symbol], Series: series},
					stats: stats,
					ok:    true,
				}
			}
			if p := progress.Increment(symbol); p.Done%progressEvery == 0 {
				s.logger.DebugContext(gctx, "align_progress",
					slog.Int("done", p.Done),
					slog.Int("total", p.Total),
					slog.Float64("percent", p.Percent),
					slog.Duration("eta", p.ETA))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	active := make(map[int64]bool, len(symbols))
	bars := make([]domain.SymbolBars, 0, len(symbols))
	diag.SymbolsSkipped, diag.SkippedSymbols, diag.FilledSessions = 0, []string{}, 0
	for i, r := range results {
		if !r.ok {
			diag.skip(symbols[i])
			s.logger.WarnContext(ctx, "symbol_skipped",
				slog.String("symbol", symbols[i]),
				slog.Int64("sid", sids[symbols[i]]),
				slog.String("reason", string(apperrors.ErrTypeEmptySeries)))
			continue
		}
		bars = append(bars, r.bars)
		active[r.bars.SID] = true
		diag.FilledSessions += r.stats.Filled()
	}

	if !s.carryTo.IsZero() {
		carried, err := s.carryOver(ctx, bars, prices, cal, reg)
		if err != nil {
			return err
		}
		diag.CarriedOver = carried
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].SID < bars[j].SID })
	diag.SymbolsActive = len(bars)

	if m := s.o.metrics(); m != nil {
		m.RecordSymbols(ctx, "active", len(bars))
		m.RecordSymbols(ctx, "skipped", diag.SymbolsSkipped)
	}

	state.SetContext(keyBars, bars)
	state.SetContext(keyActive, active)
	state.GetStage(s.ID()).SetMetadata("active", len(bars))
	state.GetStage(s.ID()).SetMetadata("skipped", diag.SymbolsSkipped)

	s.logger.InfoContext(ctx, "symbols_aligned",
		slog.Int("active", len(bars)),
		slog.Int("skipped", diag.SymbolsSkipped),
		slog.Int("filled_sessions", diag.FilledSessions),
		slog.Duration("elapsed", progress.Elapsed()))
	return nil
}

// carryOver appends one carried bar to every series whose last session
// immediately precedes the target, and widens the symbol's registry window
// to it. Runs after the parallel phase, so the registry has a single writer.
func (s *alignStep) carryOver(ctx context.Context, bars []domain.SymbolBars, prices feedRows, cal *calendar.Calendar, reg *registry.Registry) (int, error) {
	target := calendar.Normalize(s.carryTo)
	if !cal.Contains(target) {
		return 0, apperrors.NewAppValidationError(
			fmt.Sprintf("carry-over target %s is not a calendar session", target.Format("2006-01-02")))
	}

	carried := 0
	for i := range bars {
		series := &bars[i].Series
		last := series.Bars[len(series.Bars)-1].Session
		window := cal.Window(last, target)
		if len(window) != 2 || !window[1].Equal(target) {
			continue
		}

		bar, err := dataprocessing.CarryOver(series.Symbol, prices[series.Symbol], cal, target)
		if err != nil {
			return carried, err
		}
		series.Bars = append(series.Bars, bar)
		if _, err := reg.Upsert(series.Symbol, "", "", target); err != nil {
			return carried, err
		}
		carried++
	}

	s.logger.InfoContext(ctx, "sessions_carried_over",
		slog.String("target", target.Format("2006-01-02")),
		slog.Int("symbols", carried))
	return carried, nil
}

// adjustmentsStep extracts and filters corporate actions
type adjustmentsStep struct {
	operations.BaseStage
	o      *Orchestrator
	logger *slog.Logger
}

func newAdjustmentsStep(o *Orchestrator) *adjustmentsStep {
	return &adjustmentsStep{
		BaseStage: operations.NewBaseStage(operations.StepIDAdjustments, operations.StepNameAdjustments,
			[]string{operations.StepIDAlign}),
		o:      o,
		logger: o.logger.With(slog.String("step", operations.StepIDAdjustments)),
	}
}

// Execute runs both extraction modes over each active symbol's staged rows;
// the feed's mode already cleared the columns it does not use. Rows of the
// corporate-action feeds are keyed by ticker and may name symbols the
// registry never saw.
func (s *adjustmentsStep) Execute(ctx context.Context, state *operations.OperationState) error {
	diag, err := operations.ContextValue[*Diagnostics](state, keyDiagnostics)
	if err != nil {
		return err
	}
	prices, err := operations.ContextValue[feedRows](state, keyPrices)
	if err != nil {
		return err
	}
	actions, err := operations.ContextValue[feedRows](state, keyActions)
	if err != nil {
		return err
	}
	reg, err := operations.ContextValue[*registry.Registry](state, keyRegistry)
	if err != nil {
		return err
	}
	sids, err := operations.ContextValue[map[string]int64](state, keySIDs)
	if err != nil {
		return err
	}
	active, err := operations.ContextValue[map[int64]bool](state, keyActive)
	if err != nil {
		return err
	}

	var symbols []string
	for _, symbol := range runSymbols(prices, sids) {
		if active[sids[symbol]] {
			symbols = append(symbols, symbol)
		}
	}

	extractor := adjustments.NewExtractor(s.o.cfg.Bundle.Tolerance)
	sets := make([]domain.AdjustmentSet, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(s.o.cfg.Bundle.Workers))
	for i, symbol := range symbols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sid, rows := sids[symbol], prices[symbol]
			set := extractor.ExtractExplicit(sid, rows)
			set.Append(extractor.ExtractInferred(sid, rows))
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var all domain.AdjustmentSet
	for _, set := range sets {
		all.Append(set)
	}
	for _, symbol := range dataprocessing.SortedSymbols(actions) {
		sid := int64(-1)
		if rec, err := reg.Lookup(symbol); err == nil {
			sid = rec.SID
		}
		all.Append(extractor.ExtractExplicit(sid, actions[symbol]))
	}

	kept, tally := adjustments.Filter(all, reg, active)
	diag.EventsDropped = tally

	if m := s.o.metrics(); m != nil {
		m.RecordAdjustments(ctx, string(domain.AdjustmentSplit), "kept", len(kept.Splits))
		m.RecordAdjustments(ctx, string(domain.AdjustmentMerger), "kept", len(kept.Mergers))
		m.RecordAdjustments(ctx, string(domain.AdjustmentDividend), "kept", len(kept.Dividends))
		m.RecordAdjustments(ctx, "any", "unknown_symbol", tally.UnknownSymbol)
		m.RecordAdjustments(ctx, "any", "stale_window", tally.StaleWindow)
		m.RecordAdjustments(ctx, "any", "inactive", tally.Inactive)
	}
	if tally.Total() > 0 {
		s.logger.InfoContext(ctx, "adjustments_dropped",
			slog.Int("unknown_symbol", tally.UnknownSymbol),
			slog.Int("stale_window", tally.StaleWindow),
			slog.Int("inactive", tally.Inactive))
	}

	state.SetContext(keyAdjustments, kept)
	state.GetStage(s.ID()).SetMetadata("events", kept.Len())

	s.logger.InfoContext(ctx, "adjustments_extracted",
		slog.Int("extracted", all.Len()),
		slog.Int("splits", len(kept.Splits)),
		slog.Int("mergers", len(kept.Mergers)),
		slog.Int("dividends", len(kept.Dividends)))
	return nil
}

// runSymbols returns the symbols of this run that hold a sid, sorted
func runSymbols(prices feedRows, sids map[string]int64) []string {
	var out []string
	for _, symbol := range dataprocessing.SortedSymbols(prices) {
		if _, ok := sids[symbol]; ok {
			out = append(out, symbol)
		}
	}
	return out
}

func workers(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
