package summarization

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-aidr/store"
	"go-aidr/types"
)

type fakeCompleter struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func view() store.View {
	return store.View{
		Version: 42,
		Incidents: []types.Incident{
			{ID: "i1", Status: types.IncidentUnverified, ExtractedData: types.ExtractedData{IncidentType: "flood", LocationString: "Red Hook", Urgency: 2}},
			{ID: "i2", Status: types.IncidentVerified, ExtractedData: types.ExtractedData{IncidentType: "fire", Urgency: 5},
				Location: types.LatLng{Lat: 40.7, Lng: -74}},
		},
		PendingMissions: []types.Mission{{ID: "m1", Type: types.MissionRescue, Priority: 8, RecommendationReason: "people trapped"}},
		ActiveMissions:  []types.Mission{{ID: "m2", Type: types.MissionFirefighting, Status: types.MissionInProgress, AssignedResourceID: "r1"}},
		Resources: []types.Resource{
			{ID: "r1", Status: types.ResourceOnSite},
			{ID: "r2", Status: types.ResourceAvailable},
		},
		Tasks:       []types.Task{{ID: "t1", Status: types.TaskPending}, {ID: "t2", Status: types.TaskPending}},
		DamageAreas: []types.DamageArea{{ID: "a1", DamageLevel: 0.4}, {ID: "a2", DamageLevel: 0.9}},
		AgentStatuses: map[types.AgentType]types.AgentStatus{
			types.AgentSocialMedia: {AgentType: types.AgentSocialMedia, Status: types.AgentCompleted, Message: "done"},
		},
	}
}

func TestBuildBriefingPrompt(t *testing.T) {
	p := BuildBriefingPrompt(view())

	assert.Contains(t, p, "INCIDENTS (2 total)")
	assert.Less(t, strings.Index(p, "fire"), strings.Index(p, "flood"), "most urgent first")
	assert.Contains(t, p, "fire at 40.7000,-74.0000")
	assert.Contains(t, p, "MISSIONS: 1 awaiting decision, 1 active")
	assert.Contains(t, p, "people trapped")
	assert.Contains(t, p, "RESOURCES: 1 of 2 available")
	assert.Contains(t, p, "TASKS: 2 pending, 0 in progress, 0 completed")
	assert.Contains(t, p, "worst level 0.90")
	assert.Contains(t, p, "AGENT social_media: completed done")
}

func TestBuildBriefingPromptCapsIncidents(t *testing.T) {
	v := store.View{}
	for i := 0; i < 40; i++ {
		v.Incidents = append(v.Incidents, types.Incident{ID: fmt.Sprint(i), ExtractedData: types.ExtractedData{Urgency: 1}})
	}
	p := BuildBriefingPrompt(v)
	assert.Contains(t, p, "... 25 more")
	assert.LessOrEqual(t, len(p), maxPromptLength)
}

func TestBrief(t *testing.T) {
	fc := &fakeCompleter{resp: openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "  Fire downtown is the priority.  "}},
	}}}
	b := NewBriefer(fc, zap.NewNop())

	got, err := b.Brief(context.Background(), view())
	require.NoError(t, err)
	assert.Equal(t, "Fire downtown is the priority.", got.Summary)
	assert.Equal(t, uint64(42), got.Version)
	assert.Equal(t, openai.GPT4oMini, fc.req.Model)
	require.Len(t, fc.req.Messages, 2)
	assert.Contains(t, fc.req.Messages[1].Content, "INCIDENTS")
}

func TestBriefErrors(t *testing.T) {
	b := NewBriefer(&fakeCompleter{}, zap.NewNop())
	_, err := b.Brief(context.Background(), view())
	assert.ErrorIs(t, err, ErrEmptyResponse)

	b = NewBriefer(&fakeCompleter{err: errors.New("429")}, zap.NewNop())
	_, err = b.Brief(context.Background(), view())
	assert.Error(t, err)
}
