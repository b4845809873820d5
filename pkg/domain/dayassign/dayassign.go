// Package dayassign maps timestamped provider records to the local calendar
// date that owns them. A sleep session is attributed to the day the person
// woke up; per-day aggregates keep the provider's reported date.
package dayassign

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/vitalsync/agent/pkg/types"
)

const millisPerHour = 60 * 60 * 1000

// Assigner determines which local calendar date owns a raw record.
// The second return is false when the record cannot be assigned
// (e.g. no parsable end timestamp); such records are skipped, never
// defaulted to "today".
type Assigner interface {
	AssignDay(rec types.RawRecord, deviceZone *time.Location) (civil.Date, bool)
}

// IntervalEnd attributes an interval record to the local date of its end
// instant. The record's own reported timezone offset wins when present;
// the device zone is the fallback.
type IntervalEnd struct{}

func (IntervalEnd) AssignDay(rec types.RawRecord, deviceZone *time.Location) (civil.Date, bool) {
	if rec.End.IsZero() {
		return civil.Date{}, false
	}
	loc := deviceZone
	if loc == nil {
		loc = time.UTC
	}
	if rec.TimezoneKnown {
		loc = time.FixedZone("record", rec.TimezoneOffsetMinutes*60)
	}
	return civil.DateOf(rec.End.In(loc)), true
}

// ReportedDate is the identity assignment for metrics the provider already
// aggregates per local day (e.g. daily screen time).
type ReportedDate struct{}

func (ReportedDate) AssignDay(rec types.RawRecord, _ *time.Location) (civil.Date, bool) {
	if !rec.ReportedDate.IsValid() {
		return civil.Date{}, false
	}
	return rec.ReportedDate, true
}

// SelectForDay picks the record that best represents the target day among a
// fetch window's candidates. A record whose computed day exactly equals the
// target wins; with several exact matches, or with none at all, the latest
// end instant decides. Unassignable records are ignored.
func SelectForDay(records []types.RawRecord, target civil.Date, a Assigner, deviceZone *time.Location) (types.RawRecord, bool) {
	var exact, fallback types.RawRecord
	var haveExact, haveFallback bool

	for _, rec := range records {
		day, ok := a.AssignDay(rec, deviceZone)
		if !ok {
			continue
		}
		if day == target {
			if !haveExact || rec.End.After(exact.End) {
				exact = rec
				haveExact = true
			}
			continue
		}
		if !haveFallback || rec.End.After(fallback.End) {
			fallback = rec
			haveFallback = true
		}
	}

	if haveExact {
		return exact, true
	}
	return fallback, haveFallback
}

// Hours normalizes a record's duration to hours. The top-level duration
// field takes priority; stage durations are summed from millisecond fields
// when it is absent or zero.
func Hours(rec types.RawRecord) float64 {
	ms := rec.DurationMillis
	if ms == 0 {
		for _, v := range rec.StageMillis {
			ms += v
		}
	}
	return float64(ms) / millisPerHour
}
