package firestore

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsync/agent/pkg/types"
)

func TestFirestoreToDayRowLooseNumericTypes(t *testing.T) {
	// Integer-valued fields come back as int64 when another writer stored
	// them without a decimal part.
	row := FirestoreToDayRow(map[string]interface{}{
		"date":   "2024-03-05",
		"metric": "activity",
		"source": "fitbit",
		"value":  int64(10432),
		"values": map[string]interface{}{
			"steps":    int64(10432),
			"calories": 2210.5,
		},
	})

	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 5}, row.Date)
	assert.Equal(t, float64(10432), row.Value)
	assert.Equal(t, float64(10432), row.Values["steps"])
	assert.Equal(t, 2210.5, row.Values["calories"])
}

func TestFirestoreToDayRowIgnoresBadDate(t *testing.T) {
	row := FirestoreToDayRow(map[string]interface{}{
		"date":   "not-a-date",
		"metric": "sleep",
	})

	assert.True(t, row.Date == civil.Date{}, "malformed date must decode to the zero date")
	assert.Equal(t, "sleep", row.Metric)
}

func TestUserConvertersPreserveIntegrationsAndMetrics(t *testing.T) {
	expires := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	user := &types.UserRecord{
		ID:       "user-1",
		Timezone: "Europe/London",
		Integrations: map[string]*types.Integration{
			"fitbit": {Enabled: true, AccessToken: "at", RefreshToken: "rt", ExpiresAt: expires},
		},
		Metrics: map[string]*types.MetricSettings{
			"sleep": {Enabled: true, PreferredSource: "fitbit", PermissionGranted: true},
		},
	}

	decoded := FirestoreToUser(UserToFirestore(user))

	require.NotNil(t, decoded.Integration("fitbit"))
	assert.Equal(t, "at", decoded.Integration("fitbit").AccessToken)
	assert.Equal(t, expires, decoded.Integration("fitbit").ExpiresAt)

	require.NotNil(t, decoded.Metric("sleep"))
	assert.True(t, decoded.Metric("sleep").PermissionGranted)
	assert.Equal(t, "Europe/London", decoded.Timezone)
}

func TestFirestoreToUserToleratesPartialDocuments(t *testing.T) {
	user := FirestoreToUser(map[string]interface{}{
		"id": "user-1",
		"integrations": map[string]interface{}{
			"fitbit":    "corrupt-entry",
			"wellbeing": map[string]interface{}{"enabled": true, "access_token": "tok"},
		},
	})

	assert.Nil(t, user.Integration("fitbit"), "corrupt entries are skipped, not fatal")
	require.NotNil(t, user.Integration("wellbeing"))
	assert.Equal(t, "tok", user.Integration("wellbeing").AccessToken)
}

func TestDayRowID(t *testing.T) {
	id := DayRowID("sleep", "fitbit", civil.Date{Year: 2024, Month: 3, Day: 5})
	assert.Equal(t, "sleep_fitbit_2024-03-05", id)
}
