package summarization

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"go-aidr/store"
	"go-aidr/types"
)

const (
	maxIncidentsInPrompt = 15
	maxPromptLength      = 15000 // Rough character limit for prompt
)

var ErrEmptyResponse = errors.New("openai returned empty response or choices")

// Completer is the subset of *openai.Client used here.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Briefing struct {
	Summary     string    `json:"summary"`
	Version     uint64    `json:"version"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Briefer turns the current operational picture into a short situation
// report for the operator.
type Briefer struct {
	client Completer
	log    *zap.Logger
	now    func() time.Time
}

func NewBriefer(client Completer, logger *zap.Logger) *Briefer {
	return &Briefer{client: client, log: logger.Named("summarization"), now: time.Now}
}

func (b *Briefer) Brief(ctx context.Context, v store.View) (Briefing, error) {
	prompt := BuildBriefingPrompt(v)
	b.log.Debug("Requesting briefing", zap.Uint64("version", v.Version), zap.Int("promptLength", len(prompt)))

	resp, err := b.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4oMini,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an assistant that briefs disaster-response coordinators on the current operational picture concisely.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   250,
			N:           1,
			Temperature: 0.3,
		},
	)
	if err != nil {
		return Briefing{}, fmt.Errorf("openai chat completion error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Briefing{}, ErrEmptyResponse
	}

	return Briefing{
		Summary:     strings.TrimSpace(resp.Choices[0].Message.Content),
		Version:     v.Version,
		GeneratedAt: b.now().UTC(),
	}, nil
}

// BuildBriefingPrompt renders the view as plain text. The most urgent
// incidents come first and are capped.
func BuildBriefingPrompt(v store.View) string {
	var sb strings.Builder
	sb.WriteString("Summarize the current disaster-response situation below. Highlight the most urgent incidents, " +
		"missions awaiting a decision, and anything blocked. Provide 3-5 sentences maximum.\n\n")

	incidents := append([]types.Incident(nil), v.Incidents...)
	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].ExtractedData.Urgency > incidents[j].ExtractedData.Urgency
	})
	fmt.Fprintf(&sb, "INCIDENTS (%d total):\n", len(incidents))
	for i, inc := range incidents {
		if i == maxIncidentsInPrompt {
			fmt.Fprintf(&sb, "- ... %d more\n", len(incidents)-i)
			break
		}
		where := inc.ExtractedData.LocationString
		if where == "" && !inc.Location.IsZero() {
			where = fmt.Sprintf("%.4f,%.4f", inc.Location.Lat, inc.Location.Lng)
		}
		fmt.Fprintf(&sb, "- [urgency %d, %s] %s at %s\n",
			inc.ExtractedData.Urgency, inc.Status, orUnknown(inc.ExtractedData.IncidentType), orUnknown(where))
	}

	fmt.Fprintf(&sb, "\nMISSIONS: %d awaiting decision, %d active\n", len(v.PendingMissions), len(v.ActiveMissions))
	for _, m := range v.PendingMissions {
		fmt.Fprintf(&sb, "- pending %s (priority %d): %s\n", m.Type, m.Priority, m.RecommendationReason)
	}
	for _, m := range v.ActiveMissions {
		fmt.Fprintf(&sb, "- %s %s assigned to %s\n", m.Status, m.Type, orUnknown(m.AssignedResourceID))
	}

	available := 0
	for _, r := range v.Resources {
		if r.Available() {
			available++
		}
	}
	fmt.Fprintf(&sb, "\nRESOURCES: %d of %d available\n", available, len(v.Resources))

	counts := map[types.TaskStatus]int{}
	for _, t := range v.Tasks {
		counts[t.Status]++
	}
	fmt.Fprintf(&sb, "TASKS: %d pending, %d in progress, %d completed\n",
		counts[types.TaskPending], counts[types.TaskInProgress], counts[types.TaskCompleted])

	if len(v.DamageAreas) > 0 {
		worst := 0.0
		for _, a := range v.DamageAreas {
			if a.DamageLevel > worst {
				worst = a.DamageLevel
			}
		}
		fmt.Fprintf(&sb, "DAMAGE AREAS: %d assessed, worst level %.2f\n", len(v.DamageAreas), worst)
	}

	agentTypes := make([]string, 0, len(v.AgentStatuses))
	for t := range v.AgentStatuses {
		agentTypes = append(agentTypes, string(t))
	}
	sort.Strings(agentTypes)
	for _, t := range agentTypes {
		st := v.AgentStatuses[types.AgentType(t)]
		fmt.Fprintf(&sb, "AGENT %s: %s %s\n", t, st.Status, st.Message)
	}

	prompt := sb.String()
	if len(prompt) > maxPromptLength {
		prompt = prompt[:maxPromptLength]
	}
	return prompt
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
