package operations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStep struct {
	BaseStage
}

func (s *stubStep) Execute(context.Context, *OperationState) error { return nil }

func newStub(id string, deps ...string) *stubStep {
	return &stubStep{BaseStage: NewBaseStage(id, id, deps)}
}

func ids(steps []Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID()
	}
	return out
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(newStub("discover")))
	assert.Error(t, r.Register(newStub("discover")), "duplicate id")
	assert.Error(t, r.Register(newStub("")), "empty id")
	assert.Error(t, r.Register(nil))

	assert.True(t, r.Has("discover"))
	assert.False(t, r.Has("commit"))
	assert.Equal(t, 1, r.Count())

	s, err := r.Get("discover")
	require.NoError(t, err)
	assert.Equal(t, "discover", s.Name())

	_, err = r.Get("commit")
	assert.Error(t, err)
}

func TestRegistry_GetDependencyOrder(t *testing.T) {
	tests := []struct {
		name    string
		steps   []*stubStep
		want    []string
		wantErr bool
	}{
		{
			name:  "registration order without dependencies",
			steps: []*stubStep{newStub("a"), newStub("b"), newStub("c")},
			want:  []string{"a", "b", "c"},
		},
		{
			name: "bundle run",
			steps: []*stubStep{
				newStub(StepIDCommit, StepIDAlign, StepIDAdjustments),
				newStub(StepIDAdjustments, StepIDAlign),
				newStub(StepIDAlign, StepIDRegistry, StepIDCalendar),
				newStub(StepIDRegistry, StepIDCalendar),
				newStub(StepIDCalendar, StepIDDiscover),
				newStub(StepIDDiscover),
			},
			want: []string{StepIDDiscover, StepIDCalendar, StepIDRegistry, StepIDAlign, StepIDAdjustments, StepIDCommit},
		},
		{
			name:    "unknown dependency",
			steps:   []*stubStep{newStub("a", "missing")},
			wantErr: true,
		},
		{
			name:    "cycle",
			steps:   []*stubStep{newStub("a", "c"), newStub("b", "a"), newStub("c", "b")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, s := range tt.steps {
				require.NoError(t, r.Register(s))
			}

			got, err := r.GetDependencyOrder()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestRegistry_GetDependents(t *testing.T) {
	r := NewRegistry()
	for _, s := range []*stubStep{
		newStub("discover"),
		newStub("calendar", "discover"),
		newStub("align", "calendar"),
		newStub("report"),
	} {
		require.NoError(t, r.Register(s))
	}

	assert.Equal(t, []string{"calendar", "align"}, r.GetDependents("discover"))
	assert.Equal(t, []string{"align"}, r.GetDependents("calendar"))
	assert.Empty(t, r.GetDependents("report"))
}

func TestContextValue(t *testing.T) {
	state := NewOperationState("run")
	state.SetContext("count", 3)

	n, err := ContextValue[int](state, "count")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = ContextValue[string](state, "count")
	assert.Error(t, err)

	_, err = ContextValue[int](state, "missing")
	assert.Error(t, err)
}

func TestStepState_Lifecycle(t *testing.T) {
	s := NewStepState("align", "Bar Alignment")
	assert.Equal(t, StepStatusPending, s.GetStatus())
	assert.Zero(t, s.Duration())

	s.Start()
	s.Start()
	assert.Equal(t, 2, s.Attempts)
	assert.Equal(t, StepStatusActive, s.GetStatus())

	s.SetMetadata("symbols", 4)
	s.Complete()
	assert.Equal(t, StepStatusCompleted, s.GetStatus())
	assert.Equal(t, 4, s.Metadata["symbols"])

	s.Skip("not needed")
	assert.Equal(t, StepStatusSkipped, s.GetStatus())
	assert.Equal(t, "not needed", s.Message)
}

func TestProgressTracker(t *testing.T) {
	p := NewProgressTracker(StepIDAlign, 4)
	assert.Equal(t, StepIDAlign, p.Step())
	assert.Zero(t, p.Snapshot().ETA)

	start := p.started
	p.now = func() time.Time { return start.Add(2 * time.Second) }

	assert.Equal(t, 2*time.Second, p.Elapsed())
	assert.Equal(t, 1, p.Increment("ABC").Done)
	pr := p.Increment("XYZ")
	assert.Equal(t, 2, pr.Done)
	assert.Equal(t, 4, pr.Total)
	assert.Equal(t, 50.0, pr.Percent)
	assert.Equal(t, "XYZ", pr.Last)
	assert.Equal(t, 2*time.Second, pr.ETA, "one second per item, two left")
	assert.False(t, pr.Complete())

	p.Increment("")
	pr = p.Increment("")
	assert.True(t, pr.Complete())
	assert.Zero(t, pr.ETA)
}

func TestConfig_StageTimeout(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, DefaultCommitTimeout, cfg.GetStageTimeout(StepIDCommit))
	assert.Equal(t, DefaultStepTimeout, cfg.GetStageTimeout(StepIDAlign))

	cfg.SetStageTimeout(StepIDAlign, 0)
	assert.Equal(t, DefaultStepTimeout, cfg.GetStageTimeout(StepIDAlign), "zero falls back to default")
	cfg.SetStageTimeout(StepIDAlign, time.Minute)
	assert.Equal(t, time.Minute, cfg.GetStageTimeout(StepIDAlign))
}

func TestManager_RetryDelay(t *testing.T) {
	m := NewManager(nil, nil, nil)
	cfg := RetryConfig{InitialDelay: 100, MaxDelay: 350, Multiplier: 2}

	assert.EqualValues(t, 100, m.calculateRetryDelay(1, cfg))
	assert.EqualValues(t, 200, m.calculateRetryDelay(2, cfg))
	assert.EqualValues(t, 350, m.calculateRetryDelay(3, cfg))
}
