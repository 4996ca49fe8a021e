package db

import (
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-aidr/missions"
	"go-aidr/types"
)

func TestDecodeGeometry(t *testing.T) {
	coords, err := decodeGeometry(`[[[-74.0,40.7],[-74.1,40.7],[-74.1,40.8],[-74.0,40.7]]]`)
	require.NoError(t, err)
	require.Len(t, coords, 1)
	assert.Len(t, coords[0], 4)
	assert.Equal(t, []float64{-74.1, 40.8}, coords[0][2])

	coords, err = decodeGeometry("")
	require.NoError(t, err)
	assert.Nil(t, coords)

	_, err = decodeGeometry("{not json")
	assert.Error(t, err)
}

func TestMissionUpdates(t *testing.T) {
	at := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	approved := missions.Decision{
		MissionID:  "m1",
		Kind:       missions.DecisionApproved,
		ResourceID: "r1",
		Mission:    types.Mission{ID: "m1", Status: types.MissionApproved, ApprovalTimestamp: &at},
	}
	assert.Equal(t, []firestore.Update{
		{Path: "status", Value: "approved"},
		{Path: "assignedResourceId", Value: "r1"},
		{Path: "approvalTimestamp", Value: &at},
	}, missionUpdates(approved))

	rejected := missions.Decision{
		MissionID: "m2",
		Kind:      missions.DecisionRejected,
		Mission:   types.Mission{ID: "m2", Status: types.MissionRejected},
	}
	assert.Equal(t, []firestore.Update{{Path: "status", Value: "rejected"}}, missionUpdates(rejected))
}

func TestSnapshotReadsAreNewestFirst(t *testing.T) {
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	incidents := []types.Incident{
		{ID: "a", Timestamp: base},
		{ID: "b", Timestamp: base.Add(2 * time.Hour)},
		{ID: "c"},
		{ID: "d", Timestamp: base.Add(time.Hour)},
	}
	sortIncidents(incidents)
	ids := make([]string, 0, len(incidents))
	for _, inc := range incidents {
		ids = append(ids, inc.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids, "missing timestamps sort last")

	missions := []types.Mission{
		{ID: "m1", CreationTimestamp: base},
		{ID: "m2", CreationTimestamp: base.Add(time.Minute)},
	}
	sortMissions(missions)
	assert.Equal(t, "m2", missions[0].ID)
	assert.Equal(t, "m1", missions[1].ID)
}
