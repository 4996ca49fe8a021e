package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"go-aidr/store"
	"go-aidr/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockAPI struct{ mock.Mock }

func (m *mockAPI) FetchDisasters(ctx context.Context) ([]types.Disaster, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]types.Disaster)
	return out, args.Error(1)
}

func (m *mockAPI) FetchDamageReports(ctx context.Context) ([]types.DamageReport, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]types.DamageReport)
	return out, args.Error(1)
}

func (m *mockAPI) FetchResources(ctx context.Context) ([]types.Resource, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]types.Resource)
	return out, args.Error(1)
}

func (m *mockAPI) FetchTasks(ctx context.Context) ([]types.Task, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]types.Task)
	return out, args.Error(1)
}

type fakeSource struct {
	name       string
	snap       store.Snapshot
	err        error
	sawLoading bool
	st         *store.Store
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Load(context.Context) (store.Snapshot, error) {
	f.sawLoading = f.st.View().Loading
	return f.snap, f.err
}

func resource(id string) types.Resource {
	return types.Resource{ID: id, Name: id, Type: types.ResourceMedical, Status: types.ResourceAvailable}
}

func TestLoadAppliesAllSources(t *testing.T) {
	s := store.New()
	s.UpsertResource(resource("old"))
	s.SetTasks([]types.Task{{ID: "stale", Status: types.TaskPending}})

	api := &mockAPI{}
	api.On("FetchDisasters", mock.Anything).Return([]types.Disaster{{ID: "d1"}}, nil)
	api.On("FetchDamageReports", mock.Anything).Return(nil, nil)
	api.On("FetchResources", mock.Anything).Return([]types.Resource{resource("r1")}, nil)
	api.On("FetchTasks", mock.Anything).Return([]types.Task{}, nil)

	fs := &fakeSource{name: "firestore", st: s, snap: store.Snapshot{
		Missions:  []types.Mission{{ID: "m1", Status: types.MissionRecommended, Priority: 3}},
		Incidents: []types.Incident{{ID: "i1", Status: types.IncidentUnverified}},
	}}
	l := NewLoader(s, zap.NewNop(), []Source{RESTSource{API: api}, fs})
	defer l.Close()

	require.NoError(t, l.Load(context.Background()))
	api.AssertExpectations(t)

	assert.True(t, fs.sawLoading)
	v := s.View()
	assert.False(t, v.Loading)
	assert.Empty(t, v.Error)
	require.Len(t, v.Resources, 2, "resources are merged by id")
	assert.Equal(t, "old", v.Resources[0].ID)
	assert.Equal(t, "r1", v.Resources[1].ID)
	assert.Empty(t, v.Tasks, "an empty fetch clears the collection")
	assert.Len(t, v.Disasters, 1)
	assert.Len(t, v.PendingMissions, 1)
	assert.Len(t, v.Incidents, 1)
}

func TestLoadFailureKeepsOtherSources(t *testing.T) {
	s := store.New()
	s.UpsertResource(resource("kept"))

	api := &mockAPI{}
	api.On("FetchDisasters", mock.Anything).Return([]types.Disaster{}, nil)
	api.On("FetchDamageReports", mock.Anything).Return([]types.DamageReport{}, nil)
	api.On("FetchResources", mock.Anything).Return(nil, errors.New("connection refused"))
	api.On("FetchTasks", mock.Anything).Return([]types.Task{}, nil)

	fs := &fakeSource{name: "firestore", st: s, snap: store.Snapshot{
		Incidents: []types.Incident{{ID: "i1", Status: types.IncidentVerified}},
	}}
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	l := NewLoader(s, zap.NewNop(), []Source{RESTSource{API: api}, fs}, WithTracerProvider(tp))
	defer l.Close()

	err := l.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rest")

	v := s.View()
	assert.Equal(t, loadFailedMsg, v.Error)
	assert.False(t, v.Loading)
	require.Len(t, v.Resources, 1)
	assert.Equal(t, "kept", v.Resources[0].ID, "failed source leaves its collections alone")
	assert.Len(t, v.Incidents, 1)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "snapshot.Load", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestRefetchTasksReplacesCollection(t *testing.T) {
	s := store.New()
	api := &mockAPI{}
	api.On("FetchTasks", mock.Anything).Return([]types.Task{{ID: "t1", Status: types.TaskPending}}, nil).Once()
	api.On("FetchDamageReports", mock.Anything).Return([]types.DamageReport{{ID: "dr1"}}, nil).Once()

	l := NewLoader(s, zap.NewNop(), nil, WithRefetchAPI(api))
	defer l.Close()

	l.RefetchTasks()
	l.RefetchDamageReports()
	l.Wait()

	require.Len(t, s.Tasks(), 1)
	assert.Equal(t, "t1", s.Tasks()[0].ID)
	require.Len(t, s.DamageReports(), 1)
	api.AssertExpectations(t)
}

func TestRefetchCoalescesBursts(t *testing.T) {
	s := store.New()
	api := &mockAPI{}
	started := make(chan struct{})
	release := make(chan struct{})
	api.On("FetchTasks", mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return([]types.Task{{ID: "first", Status: types.TaskPending}}, nil).Once()
	api.On("FetchTasks", mock.Anything).Return([]types.Task{{ID: "second", Status: types.TaskPending}}, nil).Once()

	l := NewLoader(s, zap.NewNop(), nil, WithRefetchAPI(api))
	defer l.Close()

	l.RefetchTasks()
	<-started
	l.RefetchTasks()
	l.RefetchTasks()
	l.RefetchTasks()
	close(release)
	l.Wait()

	api.AssertNumberOfCalls(t, "FetchTasks", 2)
	require.Len(t, s.Tasks(), 1)
	assert.Equal(t, "second", s.Tasks()[0].ID)
}

func TestRefetchFailureKeepsCollection(t *testing.T) {
	s := store.New()
	s.SetTasks([]types.Task{{ID: "t0", Status: types.TaskPending}})
	api := &mockAPI{}
	api.On("FetchTasks", mock.Anything).Return(nil, errors.New("timeout"))

	l := NewLoader(s, zap.NewNop(), nil, WithRefetchAPI(api))
	defer l.Close()

	l.RefetchTasks()
	l.Wait()
	require.Len(t, s.Tasks(), 1)
	assert.Equal(t, "t0", s.Tasks()[0].ID)
}

func TestRefetchWithoutAPIIsNoop(t *testing.T) {
	s := store.New()
	l := NewLoader(s, zap.NewNop(), nil)
	l.RefetchTasks()
	l.Close()
	assert.Equal(t, uint64(0), s.Version())
}
