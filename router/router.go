// Package router decodes push messages into domain events and applies them to
// the store, one message at a time, in arrival order.
package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"go-aidr/metrics"
	"go-aidr/types"
)

var (
	// ErrMalformed marks a message that is not a JSON event envelope.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownEvent marks an envelope whose tag this build does not know.
	ErrUnknownEvent = errors.New("unknown event kind")
)

type Kind string

const (
	KindNewIncident         Kind = "new_incident"
	KindResourceUpdate      Kind = "resource_update"
	KindNewRecommendation   Kind = "new_recommendation"
	KindDamageAreaUpdate    Kind = "damage_area_update"
	KindAgentStatusUpdate   Kind = "agent_status_update"
	KindDamageReportChanged Kind = "damage_report_changed"
	KindTaskChanged         Kind = "task_changed"
	KindMissionUpdate       Kind = "mission_update"
)

// aliases maps every tag the backends send onto a Kind. Tags are compared
// after lower-casing and turning '-' into '_'.
var aliases = map[string]Kind{
	"new_incident":          KindNewIncident,
	"resource_update":       KindResourceUpdate,
	"new_recommendation":    KindNewRecommendation,
	"map_update":            KindDamageAreaUpdate,
	"damage_area_update":    KindDamageAreaUpdate,
	"agent_update":          KindAgentStatusUpdate,
	"agent_status_update":   KindAgentStatusUpdate,
	"damage_report":         KindDamageReportChanged,
	"damage_report_changed": KindDamageReportChanged,
	"new_task":              KindTaskChanged,
	"task_changed":          KindTaskChanged,
	"mission_update":        KindMissionUpdate,
}

func ParseKind(tag string) (Kind, bool) {
	k, ok := aliases[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "-", "_")]
	return k, ok
}

// Store is the subset of store mutations the router drives.
type Store interface {
	AddIncident(types.Incident) bool
	UpsertResource(types.Resource)
	AddRecommendation(types.Mission) bool
	SetDamageAreas([]types.DamageArea)
	UpsertAgentStatus(types.AgentStatus) types.AgentStatus
}

// Refetcher reloads collections the backend only announces changes for.
// Implementations must not block the caller.
type Refetcher interface {
	RefetchDamageReports()
	RefetchTasks()
}

// MissionAdvancer applies backend-confirmed progress to an active mission.
type MissionAdvancer interface {
	AdvanceStatus(missionID string, status types.MissionStatus) (types.Mission, error)
}

// Enricher fills in derived data for a freshly stored incident. Implementations
// must not block the caller.
type Enricher interface {
	Enrich(types.Incident)
}

type Router struct {
	store    Store
	refetch  Refetcher
	missions MissionAdvancer
	enricher Enricher
	log      *zap.Logger
}

type Option func(*Router)

func WithRefetcher(r Refetcher) Option { return func(rt *Router) { rt.refetch = r } }

func WithMissionAdvancer(m MissionAdvancer) Option { return func(rt *Router) { rt.missions = m } }

func WithEnricher(e Enricher) Option { return func(rt *Router) { rt.enricher = e } }

func New(store Store, logger *zap.Logger, opts ...Option) *Router {
	r := &Router{store: store, log: logger.Named("router")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// envelope covers both wire shapes: {event_type, payload} from the emergency
// feed and {type, agent_type, status, message, data} from the agent backend.
type envelope struct {
	EventType string          `json:"event_type"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Data      json.RawMessage `json:"data"`
	AgentType string          `json:"agent_type"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
}

func (e envelope) tag() string {
	if e.EventType != "" {
		return e.EventType
	}
	return e.Type
}

func (e envelope) body() json.RawMessage {
	if len(e.Payload) > 0 && !bytes.Equal(e.Payload, []byte("null")) {
		return e.Payload
	}
	return e.Data
}

type agentWire struct {
	AgentType string          `json:"agent_type"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

type missionUpdateWire struct {
	ID     string              `json:"id"`
	Status types.MissionStatus `json:"status"`
}

// Handle routes one raw message. Failures are logged and counted; nothing a
// message contains can make Handle panic or stop the caller's read loop.
func (r *Router) Handle(raw []byte) {
	kind, err := r.Route(raw)
	switch {
	case err == nil:
		metrics.EventsApplied.WithLabelValues(string(kind)).Inc()
	case errors.Is(err, ErrUnknownEvent):
		metrics.EventsDropped.WithLabelValues("unknown").Inc()
		r.log.Info("Ignoring unknown event", zap.Error(err))
	case errors.Is(err, ErrMalformed):
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		r.log.Warn("Dropping malformed message", zap.Error(err))
	default:
		metrics.EventsDropped.WithLabelValues("invalid").Inc()
		r.log.Warn("Dropping event", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Route decodes and applies one message, returning the kind it was routed as.
func (r *Router) Route(raw []byte) (Kind, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	tag := env.tag()
	if tag == "" {
		return "", fmt.Errorf("%w: no event_type or type", ErrMalformed)
	}
	kind, ok := ParseKind(tag)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, tag)
	}
	return kind, r.apply(kind, env)
}

func (r *Router) apply(kind Kind, env envelope) error {
	body := env.body()

	switch kind {
	case KindNewIncident:
		var inc types.Incident
		if err := decode(body, &inc); err != nil {
			return err
		}
		if err := inc.Validate(); err != nil {
			return err
		}
		r.store.AddIncident(inc)
		if r.enricher != nil && inc.Location.IsZero() && inc.ExtractedData.LocationString != "" {
			r.enricher.Enrich(inc)
		}

	case KindResourceUpdate:
		var res types.Resource
		if err := decode(body, &res); err != nil {
			return err
		}
		if err := res.Validate(); err != nil {
			return err
		}
		r.store.UpsertResource(res)

	case KindNewRecommendation:
		var m types.Mission
		if err := decode(body, &m); err != nil {
			return err
		}
		if err := m.Validate(); err != nil {
			return err
		}
		if !r.store.AddRecommendation(m) {
			r.log.Debug("Recommendation for active mission ignored", zap.String("mission", m.ID))
		}

	case KindDamageAreaUpdate:
		var areas []types.DamageArea
		if err := decode(body, &areas); err != nil {
			return err
		}
		if areas == nil {
			areas = []types.DamageArea{}
		}
		for i := range areas {
			if err := areas[i].Validate(); err != nil {
				return err
			}
		}
		r.store.SetDamageAreas(areas)

	case KindAgentStatusUpdate:
		w := agentWire{AgentType: env.AgentType, Status: env.Status, Message: env.Message, Data: env.Data}
		if w.AgentType == "" {
			// the status came wrapped in a payload instead of at the top level
			if err := decode(env.Payload, &w); err != nil {
				return err
			}
		}
		st := types.AgentStatus{
			AgentType: types.AgentType(w.AgentType),
			Status:    types.ParseAgentState(w.Status),
			Message:   w.Message,
			Data:      w.Data,
		}
		if st.AgentType == "" {
			return fmt.Errorf("agent status: missing agent_type: %w", types.ErrInvalidValue)
		}
		if !st.AgentType.Valid() {
			return fmt.Errorf("agent status: unknown agent_type %q: %w", st.AgentType, types.ErrInvalidValue)
		}
		if st.Status == "" {
			return fmt.Errorf("agent %s: missing status: %w", st.AgentType, types.ErrInvalidValue)
		}
		r.store.UpsertAgentStatus(st)

	case KindDamageReportChanged:
		if r.refetch != nil {
			r.refetch.RefetchDamageReports()
		}

	case KindTaskChanged:
		if r.refetch != nil {
			r.refetch.RefetchTasks()
		}

	case KindMissionUpdate:
		var w missionUpdateWire
		if err := decode(body, &w); err != nil {
			return err
		}
		if r.missions == nil {
			return nil
		}
		if _, err := r.missions.AdvanceStatus(w.ID, w.Status); err != nil {
			return err
		}
	}
	return nil
}

func decode(body json.RawMessage, v any) error {
	if len(body) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
