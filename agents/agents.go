// Package agents gates starts of the three-stage processing pipeline
// (monitor, assess, plan) on the statuses the stages report.
package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"go-aidr/metrics"
	"go-aidr/types"
)

var (
	ErrUnknownStage   = errors.New("unknown pipeline stage")
	ErrPrerequisites  = errors.New("earlier stages have not finished")
	ErrAlreadyRunning = errors.New("stage is already running")
	ErrStartInFlight  = errors.New("a start for this stage is already in flight")
)

// A trigger acknowledged by the backend but never followed by a status
// report stops blocking new starts after this long.
const inFlightTimeout = 2 * time.Minute

type Stage struct {
	Type        types.AgentType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Sequence    int             `json:"sequence"`
}

// Pipeline is the fixed stage order.
var Pipeline = []Stage{
	{Type: types.AgentSocialMedia, Name: "Social Media Monitor", Description: "Scans social media for disaster reports", Sequence: 1},
	{Type: types.AgentDamageAssessment, Name: "Damage Assessment", Description: "Analyzes damage reports and creates tasks", Sequence: 2},
	{Type: types.AgentResourcePlanning, Name: "Resource Planning", Description: "Allocates resources to emergency tasks", Sequence: 3},
}

func lookup(t types.AgentType) (Stage, bool) {
	for _, s := range Pipeline {
		if s.Type == t {
			return s, true
		}
	}
	return Stage{}, false
}

type Store interface {
	AgentStatuses() map[types.AgentType]types.AgentStatus
}

type Trigger interface {
	TriggerAgent(ctx context.Context, agent types.AgentType) error
}

type Sequencer struct {
	store   Store
	trigger Trigger
	log     *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time

	mu       sync.Mutex
	inflight map[types.AgentType]time.Time
}

type Option func(*Sequencer)

// WithClock must read the same clock the store stamps receipts with.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Sequencer) { s.tracer = tp.Tracer("go-aidr/agents") }
}

func New(store Store, trigger Trigger, logger *zap.Logger, opts ...Option) *Sequencer {
	s := &Sequencer{
		store:    store,
		trigger:  trigger,
		log:      logger.Named("agents"),
		tracer:   otel.Tracer("go-aidr/agents"),
		now:      time.Now,
		inflight: make(map[types.AgentType]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanStart reports whether stage may be started now.
func (s *Sequencer) CanStart(stage types.AgentType) bool {
	st, ok := lookup(stage)
	if !ok {
		return false
	}
	statuses := s.store.AgentStatuses()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkLocked(st, statuses) == nil
}

// Start triggers stage. The stage's progress is not assumed; it arrives as
// status reports. Only one start per stage is in flight at a time.
func (s *Sequencer) Start(ctx context.Context, stage types.AgentType) error {
	ctx, span := s.tracer.Start(ctx, "agents.Start", trace.WithAttributes(
		attribute.String("agent.type", string(stage)),
	))
	defer span.End()

	st, ok := lookup(stage)
	if !ok {
		err := fmt.Errorf("%q: %w", stage, ErrUnknownStage)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	statuses := s.store.AgentStatuses()
	s.mu.Lock()
	if err := s.checkLocked(st, statuses); err != nil {
		s.mu.Unlock()
		metrics.AgentStarts.WithLabelValues(string(stage), "refused").Inc()
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("start %s: %w", stage, err)
	}
	started := s.now().UTC()
	s.inflight[stage] = started
	s.mu.Unlock()

	s.log.Info("Starting agent", zap.String("stage", string(stage)), zap.Int("sequence", st.Sequence))
	if err := s.trigger.TriggerAgent(ctx, stage); err != nil {
		s.mu.Lock()
		if s.inflight[stage].Equal(started) {
			delete(s.inflight, stage)
		}
		s.mu.Unlock()

		metrics.AgentStarts.WithLabelValues(string(stage), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("Agent trigger failed", zap.String("stage", string(stage)), zap.Error(err))
		return fmt.Errorf("start %s: %w", stage, err)
	}

	metrics.AgentStarts.WithLabelValues(string(stage), "ok").Inc()
	return nil
}

// checkLocked applies the gating rules. statuses must have been read before
// s.mu was taken.
func (s *Sequencer) checkLocked(stage Stage, statuses map[types.AgentType]types.AgentStatus) error {
	if s.inFlightLocked(stage.Type, statuses[stage.Type]) {
		return ErrStartInFlight
	}
	if status(statuses, stage.Type).Running() {
		return ErrAlreadyRunning
	}
	for _, prev := range Pipeline {
		if prev.Sequence >= stage.Sequence {
			continue
		}
		if !status(statuses, prev.Type).Done() {
			return ErrPrerequisites
		}
	}
	return nil
}

// inFlightLocked clears the marker once a status was received after the
// start, or once it has gone stale.
func (s *Sequencer) inFlightLocked(t types.AgentType, st types.AgentStatus) bool {
	started, ok := s.inflight[t]
	if !ok {
		return false
	}
	if st.LastUpdate.After(started) || s.now().Sub(started) > inFlightTimeout {
		delete(s.inflight, t)
		return false
	}
	return true
}

func status(statuses map[types.AgentType]types.AgentStatus, t types.AgentType) types.AgentState {
	if st, ok := statuses[t]; ok && st.Status != "" {
		return st.Status
	}
	return types.AgentIdle
}

// StageView is one pipeline stage as an operator console shows it.
type StageView struct {
	Stage
	Status     types.AgentState `json:"status"`
	Message    string           `json:"message,omitempty"`
	LastUpdate *time.Time       `json:"lastUpdate,omitempty"`
	CanStart   bool             `json:"canStart"`
	Running    bool             `json:"running"`
	Starting   bool             `json:"starting"`
	Label      string           `json:"label"`
}

// Stages derives the view of every stage from one read of the store.
func (s *Sequencer) Stages() []StageView {
	statuses := s.store.AgentStatuses()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StageView, 0, len(Pipeline))
	for _, st := range Pipeline {
		rec := statuses[st.Type]
		v := StageView{
			Stage:    st,
			Status:   status(statuses, st.Type),
			Message:  rec.Message,
			Starting: s.inFlightLocked(st.Type, rec),
		}
		if !rec.LastUpdate.IsZero() {
			at := rec.LastUpdate
			v.LastUpdate = &at
		}
		v.Running = v.Status.Running()
		v.CanStart = s.checkLocked(st, statuses) == nil
		v.Label = label(v)
		out = append(out, v)
	}
	return out
}

func label(v StageView) string {
	switch {
	case v.Starting || v.Status == types.AgentStarting:
		return "Starting..."
	case v.Running:
		return "Running"
	case v.Status == types.AgentCompleted:
		return "Completed"
	case v.Status == types.AgentWaiting:
		return "Waiting"
	case v.Status == types.AgentError:
		return "Error - Retry"
	case v.Sequence == 1:
		return "Start Monitoring"
	case !v.CanStart:
		return "Waiting for Prerequisites"
	}
	return "Run " + v.Name
}
