// Package backfill computes the bounded range of missing days a sync pass
// should attempt to fill.
package backfill

import (
	"cloud.google.com/go/civil"
)

// Policy bounds how far back a stream is allowed to backfill.
type Policy struct {
	// BaselineWindowDays bounds the first-run historical pull: a brand-new
	// stream fills at most [today-BaselineWindowDays, today]. Guards against
	// unbounded pulls from a rate-limited provider.
	BaselineWindowDays int

	// MaxGapDays is the "reasonable backfill" threshold. When the gap since
	// the latest stored date exceeds it, the pass fills only today instead
	// of bursting expensive calls after a long absence. Zero disables the
	// rule (the stream always fills up to the baseline bound).
	MaxGapDays int
}

// Range returns the dates a sync pass should attempt, oldest first, always
// ending at today. hasLatest is false for a brand-new stream. Dates already
// present in the store are the caller's concern to skip; the policy itself
// is pure.
func (p Policy) Range(latest civil.Date, hasLatest bool, today civil.Date) []civil.Date {
	start := today.AddDays(-p.BaselineWindowDays)

	if hasLatest {
		if p.MaxGapDays > 0 && today.DaysSince(latest) > p.MaxGapDays {
			return []civil.Date{today}
		}
		if next := latest.AddDays(1); next.After(start) {
			start = next
		}
	}

	if start.After(today) {
		// Stream already has today; nothing to backfill.
		return nil
	}

	dates := make([]civil.Date, 0, today.DaysSince(start)+1)
	for d := start; !d.After(today); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}
