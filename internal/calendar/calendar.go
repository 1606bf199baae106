// Package calendar derives the trading-session calendar of a bundle from
// observed business-day evidence.
//
// A Calendar is an immutable value: build one per run and pass it to every
// component that needs it. There is no process-wide calendar registry.
package calendar

import (
	"sort"
	"time"

	apperrors "mdbundle/internal/errors"
)

const dateLayout = "2006-01-02"

// Calendar is an ordered set of unique session dates.
type Calendar struct {
	sessions []time.Time
	index    map[time.Time]int
}

// Build deduplicates and sorts dates into a calendar. Times are truncated to
// UTC midnight. Empty input fails with ErrEmptyCalendar.
func Build(dates []time.Time) (*Calendar, error) {
	if len(dates) == 0 {
		return nil, apperrors.ErrEmptyCalendar
	}

	seen := make(map[time.Time]struct{}, len(dates))
	sessions := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := Normalize(d)
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		sessions = append(sessions, day)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Before(sessions[j])
	})

	index := make(map[time.Time]int, len(sessions))
	for i, s := range sessions {
		index[s] = i
	}

	return &Calendar{sessions: sessions, index: index}, nil
}

// Normalize truncates t to midnight UTC of its calendar date.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Len returns the number of sessions
func (c *Calendar) Len() int {
	return len(c.sessions)
}

// Sessions returns a copy of the ordered session list
func (c *Calendar) Sessions() []time.Time {
	out := make([]time.Time, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// First returns the earliest session
func (c *Calendar) First() time.Time {
	return c.sessions[0]
}

// Last returns the latest session
func (c *Calendar) Last() time.Time {
	return c.sessions[len(c.sessions)-1]
}

// Contains reports whether d is a session
func (c *Calendar) Contains(d time.Time) bool {
	_, ok := c.index[Normalize(d)]
	return ok
}

// Window returns the sessions in [from, to], inclusive. The bounds need not
// be sessions themselves.
func (c *Calendar) Window(from, to time.Time) []time.Time {
	from, to = Normalize(from), Normalize(to)
	if to.Before(from) {
		return nil
	}

	lo := sort.Search(len(c.sessions), func(i int) bool {
		return !c.sessions[i].Before(from)
	})
	hi := sort.Search(len(c.sessions), func(i int) bool {
		return c.sessions[i].After(to)
	})
	if lo >= hi {
		return nil
	}

	out := make([]time.Time, hi-lo)
	copy(out, c.sessions[lo:hi])
	return out
}

// Holidays returns every calendar day in [First, Last] that is not a session.
func (c *Calendar) Holidays() []time.Time {
	var out []time.Time
	for i := 1; i < len(c.sessions); i++ {
		for d := c.sessions[i-1].AddDate(0, 0, 1); d.Before(c.sessions[i]); d = d.AddDate(0, 0, 1) {
			out = append(out, d)
		}
	}
	return out
}

// IsHoliday reports whether d falls inside the calendar span without being a
// session.
func (c *Calendar) IsHoliday(d time.Time) bool {
	d = Normalize(d)
	if d.Before(c.First()) || d.After(c.Last()) {
		return false
	}
	return !c.Contains(d)
}

// Merge returns a calendar holding the sessions of c plus dates, and the
// dates that were not already sessions. c is unchanged.
func (c *Calendar) Merge(dates []time.Time) (*Calendar, []time.Time, error) {
	var added []time.Time
	seen := make(map[time.Time]struct{})
	for _, d := range dates {
		day := Normalize(d)
		if c.Contains(day) {
			continue
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		added = append(added, day)
	}
	sort.Slice(added, func(i, j int) bool { return added[i].Before(added[j]) })

	merged, err := Build(append(c.Sessions(), added...))
	if err != nil {
		return nil, nil, err
	}
	return merged, added, nil
}
