package firestore

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/vitalsync/agent/pkg/types"
)

// Converters translate between plain domain types and Firestore maps with
// snake_case keys. Hand-written so the stored schema never drifts silently
// with a struct rename.

func UserToFirestore(u *types.UserRecord) map[string]interface{} {
	m := map[string]interface{}{
		"id":       u.ID,
		"timezone": u.Timezone,
	}
	if u.Integrations != nil {
		integrations := map[string]interface{}{}
		for name, in := range u.Integrations {
			integrations[name] = map[string]interface{}{
				"enabled":       in.Enabled,
				"access_token":  in.AccessToken,
				"refresh_token": in.RefreshToken,
				"expires_at":    in.ExpiresAt,
				"last_used_at":  in.LastUsedAt,
			}
		}
		m["integrations"] = integrations
	}
	if u.Metrics != nil {
		metrics := map[string]interface{}{}
		for name, ms := range u.Metrics {
			metrics[name] = map[string]interface{}{
				"enabled":            ms.Enabled,
				"preferred_source":   ms.PreferredSource,
				"permission_granted": ms.PermissionGranted,
			}
		}
		m["metrics"] = metrics
	}
	return m
}

func FirestoreToUser(data map[string]interface{}) *types.UserRecord {
	u := &types.UserRecord{
		ID:       asString(data["id"]),
		Timezone: asString(data["timezone"]),
	}
	if raw, ok := data["integrations"].(map[string]interface{}); ok {
		u.Integrations = map[string]*types.Integration{}
		for name, v := range raw {
			fields, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			u.Integrations[name] = &types.Integration{
				Enabled:      asBool(fields["enabled"]),
				AccessToken:  asString(fields["access_token"]),
				RefreshToken: asString(fields["refresh_token"]),
				ExpiresAt:    asTime(fields["expires_at"]),
				LastUsedAt:   asTime(fields["last_used_at"]),
			}
		}
	}
	if raw, ok := data["metrics"].(map[string]interface{}); ok {
		u.Metrics = map[string]*types.MetricSettings{}
		for name, v := range raw {
			fields, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			u.Metrics[name] = &types.MetricSettings{
				Enabled:           asBool(fields["enabled"]),
				PreferredSource:   asString(fields["preferred_source"]),
				PermissionGranted: asBool(fields["permission_granted"]),
			}
		}
	}
	return u
}

func DayRowToFirestore(r *types.DayRow) map[string]interface{} {
	m := map[string]interface{}{
		"date":       r.Date.String(),
		"metric":     r.Metric,
		"source":     r.Source,
		"value":      r.Value,
		"updated_at": r.UpdatedAt,
	}
	if r.RecordID != "" {
		m["record_id"] = r.RecordID
	}
	if len(r.Values) > 0 {
		values := map[string]interface{}{}
		for k, v := range r.Values {
			values[k] = v
		}
		m["values"] = values
	}
	return m
}

func FirestoreToDayRow(data map[string]interface{}) *types.DayRow {
	r := &types.DayRow{
		Metric:    asString(data["metric"]),
		Source:    asString(data["source"]),
		Value:     asFloat(data["value"]),
		RecordID:  asString(data["record_id"]),
		UpdatedAt: asTime(data["updated_at"]),
	}
	if d, err := civil.ParseDate(asString(data["date"])); err == nil {
		r.Date = d
	}
	if raw, ok := data["values"].(map[string]interface{}); ok {
		r.Values = map[string]float64{}
		for k, v := range raw {
			r.Values[k] = asFloat(v)
		}
	}
	return r
}

func SyncRunToFirestore(r *types.SyncRunRecord) map[string]interface{} {
	return map[string]interface{}{
		"run_id":       r.RunID,
		"job_name":     r.JobName,
		"metric":       r.Metric,
		"source":       r.Source,
		"status":       r.Status,
		"error":        r.Error,
		"reason":       r.Reason,
		"days_written": r.DaysWritten,
		"started_at":   r.StartedAt,
		"finished_at":  r.FinishedAt,
	}
}

func FirestoreToSyncRun(data map[string]interface{}) *types.SyncRunRecord {
	return &types.SyncRunRecord{
		RunID:       asString(data["run_id"]),
		JobName:     asString(data["job_name"]),
		Metric:      asString(data["metric"]),
		Source:      asString(data["source"]),
		Status:      asString(data["status"]),
		Error:       asString(data["error"]),
		Reason:      asString(data["reason"]),
		DaysWritten: int(asFloat(data["days_written"])),
		StartedAt:   asTime(data["started_at"]),
		FinishedAt:  asTime(data["finished_at"]),
	}
}

// --- loose accessors ---
// Firestore hands back interface{} values; numbers may arrive as int64 or
// float64 depending on how they were written.

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func asTime(v interface{}) time.Time {
	t, _ := v.(time.Time)
	return t
}
