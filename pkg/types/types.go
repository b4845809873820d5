// Package types holds the plain domain types shared across the sync engine.
package types

import (
	"time"

	"cloud.google.com/go/civil"
)

// RawRecord is a single measurement as returned by a provider, before
// day assignment. It is transient: one sync pass reduces a fetch window's
// records to zero or more DayRows and discards them.
type RawRecord struct {
	// Start and End are absolute instants. End is zero when the provider
	// response had no parsable end timestamp; such records are skipped.
	Start time.Time
	End   time.Time

	// TimezoneOffsetMinutes is the provider-reported local offset at the
	// time of the record. Zero plus TimezoneKnown=false means "unknown";
	// day assignment then falls back to the device zone.
	TimezoneOffsetMinutes int
	TimezoneKnown         bool

	// ReportedDate is set for metrics the provider already aggregates per
	// local day (e.g. screen time). Day assignment is then the identity.
	ReportedDate civil.Date

	// DurationMillis is the provider's top-level duration, when present.
	DurationMillis int64

	// StageMillis breaks the record into sub-interval durations (e.g. sleep
	// stages). Summed as a fallback when DurationMillis is absent or zero.
	StageMillis map[string]int64

	// Values carries additional numeric fields (steps, calories, ...).
	Values map[string]float64

	// RecordID is the provider's native identifier, kept for idempotency
	// bookkeeping and debugging, never used as the join key.
	RecordID string
}

// DayRow is one stored daily measurement, keyed by (metric, source, date)
// within a user. Date is a derived local calendar date, never a timestamp
// taken verbatim from the provider.
type DayRow struct {
	Date      civil.Date
	Metric    string
	Source    string
	Value     float64 // primary value, hours for duration metrics
	Values    map[string]float64
	RecordID  string
	UpdatedAt time.Time
}

// Integration holds a user's linked provider credentials.
type Integration struct {
	Enabled      bool
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	LastUsedAt   time.Time
}

// MetricSettings is the per-metric enablement config owned by the settings
// UI. The engine only reads it.
type MetricSettings struct {
	Enabled           bool
	PreferredSource   string
	PermissionGranted bool
}

// UserRecord is the per-user document in the remote store.
type UserRecord struct {
	ID           string
	Timezone     string // IANA name of the device zone, e.g. "Europe/London"
	Integrations map[string]*Integration
	Metrics      map[string]*MetricSettings
}

// SyncRunRecord is an auditable record of one sync job invocation.
type SyncRunRecord struct {
	RunID       string
	JobName     string
	Metric      string
	Source      string
	Status      string // started | success | retryable | permanent
	Error       string
	// Reason records why a run resolved without doing work, e.g. a skip
	// for a disabled metric. Distinct from Error, which carries failures.
	Reason      string
	DaysWritten int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Zone resolves the user's device timezone, falling back to UTC.
func (u *UserRecord) Zone() *time.Location {
	if u == nil || u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Metric returns the settings for a metric, or nil if never configured.
func (u *UserRecord) Metric(name string) *MetricSettings {
	if u == nil || u.Metrics == nil {
		return nil
	}
	return u.Metrics[name]
}

// Integration returns a provider integration, or nil if not linked.
func (u *UserRecord) Integration(provider string) *Integration {
	if u == nil || u.Integrations == nil {
		return nil
	}
	return u.Integrations[provider]
}
