package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"time"

	"mdbundle/internal/calendar"
	"mdbundle/internal/config"
	"mdbundle/internal/dataprocessing"
	apperrors "mdbundle/internal/errors"
	"mdbundle/internal/files"
	"mdbundle/internal/operations"
	"mdbundle/internal/registry"
	"mdbundle/pkg/contracts/domain"
)

// Keys of the values steps exchange through the operation state
const (
	keyDiagnostics = "diagnostics"
	keyPrices      = "prices"
	keyActions     = "actions"
	keyCalendar    = "calendar"
	keyNewSessions = "new_sessions"
	keyRegistry    = "registry"
	keySIDs        = "sids"
	keyBars        = "bars"
	keyActive      = "active"
	keyAdjustments = "adjustments"
)

// actionsDir is the staging subdirectory of corporate-action feed rows
const actionsDir = "actions"

// feedRows is the staged input of a run: the full history of every symbol
type feedRows map[string][]domain.RawBar

// discoverStep parses the feed files and folds them into staging
type discoverStep struct {
	operations.BaseStage
	o      *Orchestrator
	logger *slog.Logger
}

func newDiscoverStep(o *Orchestrator) *discoverStep {
	return &discoverStep{
		BaseStage: operations.NewBaseStage(operations.StepIDDiscover, operations.StepNameDiscover, nil),
		o:         o,
		logger:    o.logger.With(slog.String("step", operations.StepIDDiscover)),
	}
}

// Execute reads every matched feed file. Any missing input aborts the run
// before staging is touched.
func (s *discoverStep) Execute(ctx context.Context, state *operations.OperationState) error {
	diag, err := operations.ContextValue[*Diagnostics](state, keyDiagnostics)
	if err != nil {
		return err
	}
	paths := s.o.cfg.Paths

	dirState, err := files.DirExists(paths.InputDir)
	switch dirState {
	case files.NotFound:
		return apperrors.NewMissingInputError(paths.InputDir, err)
	case files.Error:
		return fmt.Errorf("failed to check input directory: %w", err)
	}

	universe, err := loadOptional(paths.SymbolList, dataprocessing.LoadSymbolList)
	if err != nil {
		return err
	}
	renames, err := loadOptional(paths.TickerChanges, dataprocessing.LoadTickerChanges)
	if err != nil {
		return err
	}
	normalizer := dataprocessing.NewTickerNormalizer(s.o.cfg.Bundle.TickerStrip, renames, universe)

	matched, unmatched, err := files.NewDiscovery("").FindFeedFiles(paths.InputDir, s.o.schemas)
	if err != nil {
		return apperrors.NewMissingInputError(paths.InputDir, err)
	}
	for _, name := range unmatched {
		s.logger.WarnContext(ctx, "feed_file_unmatched", slog.String("file", name))
	}
	diag.UnmatchedFiles = unmatched

	var prices, actions []domain.RawBar
	for _, f := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		parsed, err := dataprocessing.ParseFile(f.Path, f.Schema)
		if err != nil {
			return err
		}
		for _, line := range parsed.SkippedLines {
			s.logger.WarnContext(ctx, "feed_row_skipped",
				slog.String("file", f.Path),
				slog.Int("line", line),
				slog.String("feed", f.Schema.Name))
		}
		s.logger.DebugContext(ctx, "feed_file_parsed",
			slog.String("file", f.Path),
			slog.String("feed", f.Schema.Name),
			slog.String("exchange", f.Schema.Exchange),
			slog.Int("rows", len(parsed.Rows)),
			slog.Int("skipped", parsed.Skipped))
		diag.FilesRead++
		diag.RowsRead += len(parsed.Rows)
		diag.RowsSkipped += parsed.Skipped

		rows := applyMode(parsed.Rows, f.Schema.Adjustments.Mode)
		if f.Schema.Role == config.RoleActions {
			actions = append(actions, rows...)
		} else {
			prices = append(prices, rows...)
		}
	}

	var filtered int
	prices, filtered = normalizer.Apply(prices)
	diag.RowsFiltered += filtered
	actions, filtered = normalizer.Apply(actions)
	diag.RowsFiltered += filtered

	prices, dups := dataprocessing.Dedupe(prices)
	actions, actionDups := dataprocessing.Dedupe(actions)
	dups = append(dups, actionDups...)
	diag.DuplicateRows = len(dups)
	for _, d := range dups {
		s.logger.WarnContext(ctx, "duplicate_session",
			slog.String("symbol", d.Ticker),
			slog.String("date", d.Date.Format("2006-01-02")),
			slog.String("error", d.Err().Error()))
	}
	if m := s.o.metrics(); m != nil && len(dups) > 0 {
		m.DuplicateRows.Add(ctx, int64(len(dups)))
	}

	priceRows, err := s.stage(paths.StagingDir, dataprocessing.GroupBySymbol(prices))
	if err != nil {
		return err
	}
	actionRows, err := s.stage(stagingSubdir(paths.StagingDir, actionsDir), dataprocessing.GroupBySymbol(actions))
	if err != nil {
		return err
	}

	state.SetContext(keyPrices, priceRows)
	state.SetContext(keyActions, actionRows)
	state.GetStage(s.ID()).SetMetadata("files", len(matched))
	state.GetStage(s.ID()).SetMetadata("symbols", len(priceRows))

	s.logger.InfoContext(ctx, "feeds_discovered",
		slog.Int("files", len(matched)),
		slog.Int("unmatched", len(unmatched)),
		slog.Int("rows", diag.RowsRead),
		slog.Int("symbols", len(priceRows)),
		slog.Int("action_symbols", len(actionRows)))
	return nil
}

// stage merges incoming into the staging directory and returns the full
// staged history. Without a staging directory the incoming rows are the
// history.
func (s *discoverStep) stage(dir string, incoming feedRows) (feedRows, error) {
	if dir == "" {
		return incoming, nil
	}

	stager := dataprocessing.NewStager(dir)
	if _, err := stager.Merge(incoming); err != nil {
		return nil, err
	}
	all, state, err := stager.LoadAll()
	switch state {
	case files.Found:
		return all, nil
	case files.NotFound:
		return feedRows{}, nil
	default:
		return nil, fmt.Errorf("failed to load staging %s: %w", dir, err)
	}
}

func stagingSubdir(dir, sub string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, sub)
}

// loadOptional reads an optional input file. An unset path is skipped; a
// set path that does not exist is missing input.
func loadOptional[T any](path string, load func(string) (T, files.Existence, error)) (T, error) {
	var zero T
	if path == "" {
		return zero, nil
	}
	v, state, err := load(path)
	switch state {
	case files.Found:
		return v, nil
	case files.NotFound:
		return zero, apperrors.NewMissingInputError(path, err)
	default:
		return zero, err
	}
}

// applyMode clears the adjustment columns a feed's mode does not use, so a
// staged row carries only the evidence its feed declared.
func applyMode(rows []domain.RawBar, mode string) []domain.RawBar {
	nan := math.NaN()
	for i := range rows {
		r := &rows[i]
		if mode != config.AdjustmentModeExplicit {
			r.SplitRatio, r.DividendAmount = nan, nan
		}
		if mode != config.AdjustmentModeInference {
			r.AdjustedClose, r.UnadjustedClose = nan, nan
		}
	}
	return rows
}

// calendarStep merges observed sessions into the persisted business days
type calendarStep struct {
	operations.BaseStage
	o      *Orchestrator
	logger *slog.Logger
}

func newCalendarStep(o *Orchestrator) *calendarStep {
	return &calendarStep{
		BaseStage: operations.NewBaseStage(operations.StepIDCalendar, operations.StepNameCalendar,
			[]string{operations.StepIDDiscover}),
		o:      o,
		logger: o.logger.With(slog.String("step", operations.StepIDCalendar)),
	}
}

// Execute builds the run calendar. With no persisted list and no observed
// rows the run aborts with ErrMissingCalendarInput.
func (s *calendarStep) Execute(ctx context.Context, state *operations.OperationState) error {
	diag, err := operations.ContextValue[*Diagnostics](state, keyDiagnostics)
	if err != nil {
		return err
	}
	prices, err := operations.ContextValue[feedRows](state, keyPrices)
	if err != nil {
		return err
	}

	var observed []time.Time
	for _, rows := range prices {
		for _, r := range rows {
			observed = append(observed, r.Date)
		}
	}

	path := s.o.cfg.Paths.BusinessDays
	persisted, existence, err := calendar.LoadBusinessDays(path)
	if existence == files.Error {
		return err
	}

	var (
		cal   *calendar.Calendar
		added []time.Time
	)
	switch {
	case len(persisted) > 0:
		base, err := calendar.Build(persisted)
		if err != nil {
			return err
		}
		cal, added, err = base.Merge(observed)
		if err != nil {
			return err
		}
	case len(observed) > 0:
		cal, err = calendar.Build(observed)
		if err != nil {
			return err
		}
		added = cal.Sessions()
	default:
		return apperrors.ErrMissingCalendarInput
	}

	diag.Sessions = cal.Len()
	diag.NewSessions = len(added)
	if m := s.o.metrics(); m != nil && len(added) > 0 {
		m.NewSessions.Add(ctx, int64(len(added)))
	}

	state.SetContext(keyCalendar, cal)
	state.SetContext(keyNewSessions, added)
	state.GetStage(s.ID()).SetMetadata("sessions", cal.Len())

	s.logger.InfoContext(ctx, "calendar_built",
		slog.String("business_days", path),
		slog.String("persisted", existence.String()),
		slog.Int("sessions", cal.Len()),
		slog.Int("new_sessions", len(added)),
		slog.String("first", cal.First().Format("2006-01-02")),
		slog.String("last", cal.Last().Format("2006-01-02")))
	return nil
}

// registryStep loads the persisted registry and upserts every symbol
type registryStep struct {
	operations.BaseStage
	o      *Orchestrator
	logger *slog.Logger
}

func newRegistryStep(o *Orchestrator) *registryStep {
	return &registryStep{
		BaseStage: operations.NewBaseStage(operations.StepIDRegistry, operations.StepNameRegistry,
			[]string{operations.StepIDCalendar}),
		o:      o,
		logger: o.logger.With(slog.String("step", operations.StepIDRegistry)),
	}
}

// Execute is the only writer of the registry in a run. Symbols are upserted
// in name order so first sightings get deterministic sids.
func (s *registryStep) Execute(ctx context.Context, state *operations.OperationState) error {
	diag, err := operations.ContextValue[*Diagnostics](state, keyDiagnostics)
	if err != nil {
		return err
	}
	prices, err := operations.ContextValue[feedRows](state, keyPrices)
	if err != nil {
		return err
	}

	records, existence, err := s.o.store.LoadRegistry(ctx)
	var reg *registry.Registry
	switch existence {
	case files.Found:
		reg, err = registry.Load(s.o.exchange(), records)
		if err != nil {
			return err
		}
	case files.NotFound:
		reg = registry.New(s.o.exchange())
	default:
		return fmt.Errorf("failed to load registry: %w", err)
	}
	before := reg.Len()

	sids := make(map[string]int64, len(prices))
	for _, symbol := range dataprocessing.SortedSymbols(prices) {
		rows := prices[symbol]
		if len(rows) == 0 {
			continue
		}
		first, last := dateSpan(rows)
		sid, err := reg.UpsertRange(symbol, displayName(rows), exchangeOf(rows), first, last)
		if err != nil {
			return err
		}
		sids[symbol] = sid
	}
	diag.SymbolsRead = len(sids)

	state.SetContext(keyRegistry, reg)
	state.SetContext(keySIDs, sids)
	state.GetStage(s.ID()).SetMetadata("new_symbols", reg.Len()-before)

	s.logger.InfoContext(ctx, "registry_updated",
		slog.String("persisted", existence.String()),
		slog.Int("records", reg.Len()),
		slog.Int("new_symbols", reg.Len()-before),
		slog.Int("symbols_in_run", len(sids)))
	return nil
}

// dateSpan returns the earliest and latest row dates
func dateSpan(rows []domain.RawBar) (time.Time, time.Time) {
	first, last := rows[0].Date, rows[0].Date
	for _, r := range rows[1:] {
		if r.Date.Before(first) {
			first = r.Date
		}
		if r.Date.After(last) {
			last = r.Date
		}
	}
	return first, last
}

// displayName returns the name on the latest row that has one
func displayName(rows []domain.RawBar) string {
	return latest(rows, func(r domain.RawBar) string { return r.Name })
}

// exchangeOf returns the exchange of the feed that last supplied the symbol.
// Empty falls back to the registry default.
func exchangeOf(rows []domain.RawBar) string {
	return latest(rows, func(r domain.RawBar) string { return r.Exchange })
}

// latest returns the non-empty field value of the most recent row
func latest(rows []domain.RawBar, field func(domain.RawBar) string) string {
	sorted := make([]domain.RawBar, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	for i := len(sorted) - 1; i >= 0; i-- {
		if v := field(sorted[i]); v != "" {
			return v
		}
	}
	return ""
}
