package shared

const (
	ProjectID = "vitalsync-project" // Can be overridden by env var in main if needed

	TopicDaySynced  = "topic-metric-day-synced" // Downstream aggregation entry point
	TopicSyncFailed = "topic-metric-sync-failed"

	CollectionUsers      = "users"
	CollectionMetricDays = "metric_days"
	CollectionSyncRuns   = "sync_runs"
)

// Metric identifies a logical daily metric tracked by the app.
type Metric string

const (
	MetricSleep      Metric = "sleep"
	MetricScreenTime Metric = "screen_time"
	MetricActivity   Metric = "activity"
)

// Source distinguishes competing providers for the same logical metric.
// A (user, metric, source) tuple identifies one metric stream.
const (
	SourceFitbit    = "fitbit"
	SourceWellbeing = "wellbeing"
	SourceManual    = "manual"
)

// AllMetrics lists every metric the engine knows how to sync.
var AllMetrics = []Metric{MetricSleep, MetricScreenTime, MetricActivity}
