package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mdbundle/internal/calendar"
	apperrors "mdbundle/internal/errors"
	"mdbundle/internal/operations"
	"mdbundle/internal/registry"
	"mdbundle/internal/store"
	"mdbundle/pkg/contracts/domain"
)

// commitStep overwrites the store tables in their fixed order
type commitStep struct {
	operations.BaseStage
	o      *Orchestrator
	logger *slog.Logger
}

func newCommitStep(o *Orchestrator) *commitStep {
	return &commitStep{
		BaseStage: operations.NewBaseStage(operations.StepIDCommit, operations.StepNameCommit,
			[]string{operations.StepIDAlign, operations.StepIDAdjustments}),
		o:      o,
		logger: o.logger.With(slog.String("step", operations.StepIDCommit)),
	}
}

// Validate refuses to start a commit without the outputs of every earlier
// step.
func (s *commitStep) Validate(state *operations.OperationState) error {
	for _, key := range []string{keyBars, keyRegistry, keyAdjustments, keyCalendar} {
		if _, ok := state.GetContext(key); !ok {
			return fmt.Errorf("nothing to commit: %s missing", key)
		}
	}
	return nil
}

// Execute writes bars, then the registry, then the adjustment tables. Each
// write replaces its table. Transient store failures are retryable: the
// whole sequence is re-run, which the destructive writes make safe.
func (s *commitStep) Execute(ctx context.Context, state *operations.OperationState) error {
	diag, err := operations.ContextValue[*Diagnostics](state, keyDiagnostics)
	if err != nil {
		return err
	}
	bars, err := operations.ContextValue[[]domain.SymbolBars](state, keyBars)
	if err != nil {
		return err
	}
	reg, err := operations.ContextValue[*registry.Registry](state, keyRegistry)
	if err != nil {
		return err
	}
	kept, err := operations.ContextValue[domain.AdjustmentSet](state, keyAdjustments)
	if err != nil {
		return err
	}
	cal, err := operations.ContextValue[*calendar.Calendar](state, keyCalendar)
	if err != nil {
		return err
	}
	added, err := operations.ContextValue[[]time.Time](state, keyNewSessions)
	if err != nil {
		return err
	}

	snap := store.Snapshot{Bars: bars, Registry: reg.Records(), Adjustments: kept}
	if err := s.o.store.Commit(ctx, snap); err != nil {
		return s.storeError(err)
	}

	if len(added) > 0 {
		if err := calendar.SaveBusinessDays(s.o.cfg.Paths.BusinessDays, cal); err != nil {
			return apperrors.NewStorageError("failed to save business days", err)
		}
	}

	written := 0
	for _, sb := range bars {
		written += sb.Series.Len()
	}
	diag.BarsWritten = written
	diag.EventsWritten[domain.AdjustmentSplit] = len(kept.Splits)
	diag.EventsWritten[domain.AdjustmentMerger] = len(kept.Mergers)
	diag.EventsWritten[domain.AdjustmentDividend] = len(kept.Dividends)

	if m := s.o.metrics(); m != nil {
		m.BarsWritten.Add(ctx, int64(written))
	}

	if err := diag.write(s.o.cfg.Paths.BundleDir); err != nil {
		// the tables are committed; a lost summary is not worth failing for
		s.logger.WarnContext(ctx, "diagnostics_write_failed", slog.String("error", err.Error()))
	}

	state.GetStage(s.ID()).SetMetadata("bars", written)
	s.logger.InfoContext(ctx, "bundle_committed",
		slog.Int("symbols", len(bars)),
		slog.Int("bars", written),
		slog.Int("registry_records", reg.Len()),
		slog.Int("events", kept.Len()),
		slog.Bool("business_days_updated", len(added) > 0))
	return nil
}

// storeError marks transient store failures retryable for the manager
func (s *commitStep) storeError(err error) error {
	if store.IsTransient(err) {
		return operations.NewExecutionError(s.ID(), fmt.Errorf("commit bundle: %w", err), true)
	}
	return apperrors.NewStorageError("failed to commit bundle", err)
}
