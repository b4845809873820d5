package firestore

import (
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatesFromMapKeepsDottedFieldPaths(t *testing.T) {
	// Token refresh writes leaves inside the integrations map. Each dotted
	// key must become a field path the SDK resolves into nested components;
	// a Set-with-merge would instead create one top-level field literally
	// named "integrations.fitbit.access_token" and the stored integration
	// would never see the new token.
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	updates := UpdatesFromMap(map[string]interface{}{
		"integrations.fitbit.access_token": "new-token",
		"integrations.fitbit.expires_at":   now,
	})

	require.Len(t, updates, 2)
	assert.Equal(t, firestore.Update{Path: "integrations.fitbit.access_token", Value: "new-token"}, updates[0])
	assert.Equal(t, firestore.Update{Path: "integrations.fitbit.expires_at", Value: now}, updates[1])
}

func TestUpdatesFromMapDeterministicOrder(t *testing.T) {
	m := map[string]interface{}{
		"status":       "success",
		"days_written": 3,
		"finished_at":  time.Now(),
	}

	first := UpdatesFromMap(m)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, UpdatesFromMap(m))
	}

	paths := []string{first[0].Path, first[1].Path, first[2].Path}
	assert.Equal(t, []string{"days_written", "finished_at", "status"}, paths)
}
