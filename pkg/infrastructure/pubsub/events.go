package pubsub

import (
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Event types emitted by the sync engine.
const (
	EventTypeDaySynced  = "app.vitalsync.metric.day_synced.v1"
	EventTypeSyncFailed = "app.vitalsync.metric.sync_failed.v1"

	EventSourceSyncEngine = "urn:vitalsync:sync-engine"
)

// NewCloudEvent creates a standardized CloudEvent v1.0
func NewCloudEvent(source, eventType string, data interface{}) (cloudevents.Event, error) {
	e := cloudevents.NewEvent()
	e.SetSpecVersion("1.0")
	e.SetType(eventType)
	e.SetSource(source)

	if err := e.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return e, err
	}

	return e, nil
}
