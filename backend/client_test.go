package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"go-aidr/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"))
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/api/v1/", 2, zap.NewNop())
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = 5 * time.Millisecond
	return c
}

func TestFetchTasksMapsWireShape(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tasks/", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id":7,"disaster_id":2,"title":"Evacuate block","description":null,"task_type":"rescue",
			 "priority":4,"status":"in_progress","assigned_resources":"1, 3,","estimated_duration":45,
			 "latitude":40.71,"longitude":-74.0,"created_at":"2025-03-14T09:26:53.123456","updated_at":null},
			{"id":8,"disaster_id":2,"title":"Survey","task_type":"assessment","priority":1,
			 "latitude":40.7,"longitude":-74.1,"created_at":"2025-03-14T10:00:00Z"},
			{"id":9,"disaster_id":2,"title":"Broken","task_type":"assessment","priority":1,"status":"lost",
			 "latitude":0,"longitude":0,"created_at":"2025-03-14T10:00:00Z"}
		]`))
	}))

	tasks, err := c.FetchTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2, "invalid status is skipped")

	first := tasks[0]
	assert.Equal(t, "7", first.ID)
	assert.Equal(t, "2", first.DisasterID)
	assert.Equal(t, types.TaskRescue, first.Type)
	assert.Equal(t, types.Priority(8), first.Priority)
	assert.Equal(t, types.TaskInProgress, first.Status)
	assert.Equal(t, []string{"1", "3"}, first.AssignedResources)
	require.NotNil(t, first.EstimatedDuration)
	assert.Equal(t, 45, *first.EstimatedDuration)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 26, 53, 123456000, time.UTC), first.CreatedAt)
	assert.Nil(t, first.UpdatedAt)

	assert.Equal(t, types.TaskPending, tasks[1].Status, "missing status defaults to pending")
	assert.Equal(t, types.Priority(2), tasks[1].Priority)
}

func TestFetchResourcesAndReports(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/resources/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1,"name":"Mobile Medical Unit","resource_type":"medical","status":"deployed","capacity":20,"current_load":5,"latitude":40.7589,"longitude":-73.9851},
			{"id":"r-2","name":"Team Alpha","resource_type":"personnel","capacity":10,"latitude":1,"longitude":2}
		]`))
	})
	mux.HandleFunc("/api/v1/damage-reports/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":3,"disaster_id":1,"damage_type":"flood","severity":4,"source":"drone","confidence":0.8,"verified":true,"latitude":1,"longitude":2,"created_at":"2025-03-14 09:00:00"}]`))
	})
	mux.HandleFunc("/api/v1/disasters/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":"Harbor flood","event_type":"flood","severity":5,"status":"active","latitude":1,"longitude":2,"created_at":"2025-03-14T08:00:00+02:00"}]`))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	res, err := c.FetchResources(ctx)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "1", res[0].ID)
	assert.Equal(t, types.ResourceDeployed, res[0].Status)
	assert.Equal(t, types.Capabilities{Capacity: 20, CurrentLoad: 5}, res[0].Capabilities)
	assert.Equal(t, "r-2", res[1].ID)
	assert.Equal(t, types.ResourceAvailable, res[1].Status)

	reports, err := c.FetchDamageReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "flood", reports[0].DamageType)
	assert.Equal(t, types.LatLng{Lat: 1, Lng: 2}, reports[0].Location)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), reports[0].CreatedAt)

	disasters, err := c.FetchDisasters(ctx)
	require.NoError(t, err)
	require.Len(t, disasters, 1)
	assert.Equal(t, time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC), disasters[0].CreatedAt)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))

	tasks, err := c.FetchTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.EqualValues(t, 3, hits.Load())
}

func TestFetchGivesUpWithStatusError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	}))

	_, err := c.FetchDisasters(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "db down", se.Body)
}

func TestSetTaskStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/tasks/7", r.URL.Path)
		if r.URL.Query().Get("status") != "completed" {
			http.Error(w, `{"detail":"Task not found"}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":7,"status":"completed"}`))
	}))

	require.NoError(t, c.SetTaskStatus(context.Background(), "7", types.TaskCompleted))

	err := c.SetTaskStatus(context.Background(), "7", types.TaskPending)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestTriggerAgentIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/agents/start/damage_assessment", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := c.TriggerAgent(context.Background(), types.AgentDamageAssessment)
	require.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}
