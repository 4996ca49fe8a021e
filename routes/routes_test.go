package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-aidr/agents"
	"go-aidr/handlers"
	"go-aidr/missions"
	"go-aidr/snapshot"
	"go-aidr/store"
	"go-aidr/summarization"
	"go-aidr/tasks"
	"go-aidr/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeConfirmer struct{ err error }

func (f fakeConfirmer) SetTaskStatus(context.Context, string, types.TaskStatus) error { return f.err }

type fakeTrigger struct {
	mu    sync.Mutex
	calls []types.AgentType
	err   error
}

func (f *fakeTrigger) TriggerAgent(_ context.Context, a types.AgentType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, a)
	return f.err
}

type fakeSource struct {
	snap store.Snapshot
	err  error
}

func (fakeSource) Name() string { return "fake" }

func (f fakeSource) Load(context.Context) (store.Snapshot, error) { return f.snap, f.err }

type fakeBriefer struct{}

func (fakeBriefer) Brief(_ context.Context, v store.View) (summarization.Briefing, error) {
	return summarization.Briefing{Summary: "All quiet.", Version: v.Version}, nil
}

type fixture struct {
	engine  *gin.Engine
	store   *store.Store
	h       *handlers.Handlers
	trigger *fakeTrigger
}

func seed() store.Snapshot {
	return store.Snapshot{
		Resources: []types.Resource{
			{ID: "r1", Name: "Engine 7", Type: types.ResourceFire, Status: types.ResourceAvailable, CurrentLocation: types.LatLng{Lat: 34.1, Lng: -118.3}},
			{ID: "r2", Name: "Medic 1", Type: types.ResourceMedical, Status: types.ResourceAvailable, CurrentLocation: types.LatLng{Lat: 34.06, Lng: -118.25}},
		},
		Missions: []types.Mission{
			{ID: "m1", Type: types.MissionRescue, Status: types.MissionRecommended, Priority: 8, TargetLocation: types.LatLng{Lat: 34.05, Lng: -118.24}},
			{ID: "m2", Type: types.MissionFirefighting, Status: types.MissionRecommended, Priority: 5},
		},
		Tasks: []types.Task{
			{ID: "t1", Title: "Clear road", Type: types.TaskLogistics, Priority: 4, Status: types.TaskPending},
		},
	}
}

func newFixture(t *testing.T, confirmErr error, sourceErr error) *fixture {
	t.Helper()
	log := zap.NewNop()
	s := store.New()
	s.ReplaceSnapshot(seed())

	trig := &fakeTrigger{}
	h := handlers.New(log)
	h.Store = s
	h.Missions = missions.New(s, log)
	h.Tasks = tasks.New(s, fakeConfirmer{err: confirmErr}, log)
	h.Agents = agents.New(s, trig, log)
	h.Snapshot = snapshot.NewLoader(s, log, []snapshot.Source{fakeSource{snap: seed(), err: sourceErr}})
	t.Cleanup(h.Close)

	return &fixture{engine: SetupRouter(h, log), store: s, h: h, trigger: trig}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestBannerHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Go AIDR")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"disconnected"`)

	w = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStateAndCollections(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(http.MethodGet, "/api/aidr/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	var v store.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Len(t, v.PendingMissions, 2)
	assert.Len(t, v.Resources, 2)
	assert.NotNil(t, v.Incidents)

	w = f.do(http.MethodGet, "/api/aidr/incidents", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	for _, p := range []string{"resources", "missions/pending", "missions/active", "damage-areas", "tasks", "damage-reports", "disasters", "connection"} {
		w = f.do(http.MethodGet, "/api/aidr/"+p, "")
		assert.Equal(t, http.StatusOK, w.Code, p)
	}
}

func TestApproveAndReject(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(http.MethodPost, "/api/aidr/missions/m1/approve", `{"resource_id":"r2"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var m types.Mission
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, types.MissionApproved, m.Status)
	assert.Equal(t, "r2", m.AssignedResourceID)

	w = f.do(http.MethodGet, "/api/aidr/missions/active", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"assignedResource":{"id":"r2"`)

	w = f.do(http.MethodPost, "/api/aidr/missions/m1/approve", `{"resource_id":"r2"}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "no longer pending")

	w = f.do(http.MethodPost, "/api/aidr/missions/m2/approve", `{"resource_id":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/aidr/missions/m2/approve", `{"resource_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/aidr/missions/m2/approve", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/aidr/missions/m2/reject", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.store.PendingMissions())

	w = f.do(http.MethodPost, "/api/aidr/missions/m2/reject", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCandidates(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(http.MethodGet, "/api/aidr/missions/m1/candidates", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cands []missions.Candidate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cands))
	require.Len(t, cands, 2)
	assert.Equal(t, "r2", cands[0].Resource.ID, "nearest first")

	w = f.do(http.MethodGet, "/api/aidr/missions/nope/candidates", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateTaskStatus(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(http.MethodPut, "/api/aidr/tasks/t1?status=in_progress", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, _ := f.store.Task("t1")
	assert.Equal(t, types.TaskInProgress, got.Status)

	w = f.do(http.MethodPut, "/api/aidr/tasks/t1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/api/aidr/tasks/t1?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/api/aidr/tasks/missing?status=completed", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateTaskStatusUnconfirmed(t *testing.T) {
	f := newFixture(t, errors.New("backend down"), nil)

	w := f.do(http.MethodPut, "/api/aidr/tasks/t1?status=in_progress", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"task"`)

	got, _ := f.store.Task("t1")
	assert.Equal(t, types.TaskPending, got.Status, "reverted")
	assert.Equal(t, tasks.ConfirmFailedMsg, f.store.Err())
}

func TestAgents(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(http.MethodGet, "/api/aidr/agents", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stages []agents.StageView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stages))
	require.Len(t, stages, 3)
	assert.Equal(t, "Start Monitoring", stages[0].Label)

	w = f.do(http.MethodPost, "/api/aidr/agents/damage_assessment/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/aidr/agents/weather/start", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/aidr/agents/social_media/start", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []types.AgentType{types.AgentSocialMedia}, f.trigger.calls)

	w = f.do(http.MethodPost, "/api/aidr/agents/social_media/start", "")
	assert.Equal(t, http.StatusConflict, w.Code, "start already in flight")
}

func TestAgentTriggerFailure(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.trigger.err = errors.New("connection refused")

	w := f.do(http.MethodPost, "/api/aidr/agents/social_media/start", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestResync(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.store.RejectMission("m2")
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/api/aidr/resync", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.store.PendingMissions(), 2)

	f = newFixture(t, nil, errors.New("firestore unavailable"))
	w = f.do(http.MethodPost, "/api/aidr/resync", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "Failed to load initial data", f.store.Err())
}

func TestBriefing(t *testing.T) {
	f := newFixture(t, nil, nil)

	w := f.do(http.MethodGet, "/api/aidr/briefing", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	f.h.Briefer = fakeBriefer{}
	w = f.do(http.MethodGet, "/api/aidr/briefing", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "All quiet.")
}

func TestStreamForwardsChanges(t *testing.T) {
	f := newFixture(t, nil, nil)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/aidr/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first store.Change
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, store.ChangeSnapshot, first.Kind)
	assert.Equal(t, f.store.Version(), first.Version)

	f.store.UpsertResource(types.Resource{ID: "r3", Type: types.ResourcePolice, Status: types.ResourceAvailable})

	var next store.Change
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, store.ChangeResource, next.Kind)
	assert.Equal(t, "r3", next.ID)

	f.h.Close()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
