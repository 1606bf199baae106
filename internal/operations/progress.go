package operations

import (
	"sync"
	"time"
)

// Progress is a point-in-time view of a ProgressTracker
type Progress struct {
	Done    int
	Total   int
	Percent float64
	// ETA extrapolates the rate so far; zero until the first item is done
	ETA  time.Duration
	Last string
}

// Complete reports whether every expected item is counted
func (p Progress) Complete() bool { return p.Done >= p.Total }

// ProgressTracker counts finished items of a fan-out step. Workers may call
// Increment concurrently.
type ProgressTracker struct {
	step    string
	total   int
	started time.Time
	now     func() time.Time

	mu   sync.Mutex
	done int
	last string
}

func NewProgressTracker(step string, total int) *ProgressTracker {
	return &ProgressTracker{step: step, total: total, started: time.Now(), now: time.Now}
}

// Step is the id of the step being tracked
func (p *ProgressTracker) Step() string { return p.step }

// Increment counts one finished item, named item, and returns the progress
// including it.
func (p *ProgressTracker) Increment(item string) Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.last = item
	return p.snapshot()
}

// Elapsed is the time since the tracker was created
func (p *ProgressTracker) Elapsed() time.Duration {
	return p.now().Sub(p.started)
}

func (p *ProgressTracker) Snapshot() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *ProgressTracker) snapshot() Progress {
	pr := Progress{Done: p.done, Total: p.total, Last: p.last}
	if p.total > 0 {
		pr.Percent = float64(p.done) / float64(p.total) * 100
	}
	if p.done > 0 && p.done < p.total {
		perItem := p.now().Sub(p.started) / time.Duration(p.done)
		pr.ETA = perItem * time.Duration(p.total-p.done)
	}
	return pr
}
