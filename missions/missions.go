// Package missions applies operator decisions and backend progress to
// missions held in the store.
package missions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"go-aidr/metrics"
	"go-aidr/store"
	"go-aidr/types"
)

var (
	ErrNoResourceSelected  = errors.New("no resource selected")
	ErrResourceUnavailable = errors.New("resource is not available")
	ErrUnknownMission      = errors.New("mission not found")
)

var errUnchanged = errors.New("unchanged")

type Store interface {
	ApproveMission(missionID, resourceID string, check func(types.Resource) error) (types.Mission, error)
	RejectMission(missionID string) (types.Mission, error)
	UpdateActiveMission(missionID string, fn func(*types.Mission) error) (types.Mission, error)
	Mission(id string) (m types.Mission, active bool, ok bool)
	Resources() []types.Resource
}

type DecisionKind string

const (
	DecisionApproved DecisionKind = "approved"
	DecisionRejected DecisionKind = "rejected"
)

// Decision is one operator action, as kept in the decision ledger.
type Decision struct {
	ID         string        `json:"id" firestore:"-"`
	MissionID  string        `json:"missionId" firestore:"missionId"`
	Kind       DecisionKind  `json:"decision" firestore:"decision"`
	ResourceID string        `json:"resourceId,omitempty" firestore:"resourceId,omitempty"`
	Mission    types.Mission `json:"mission" firestore:"mission"`
	DecidedAt  time.Time     `json:"decidedAt" firestore:"decidedAt"`
}

// Recorder persists decisions. It is called after the store has changed and
// its failures never undo the decision.
type Recorder interface {
	RecordDecision(ctx context.Context, d Decision) error
}

// Candidate is an available resource with its distance to the mission target.
type Candidate struct {
	Resource   types.Resource `json:"resource"`
	DistanceKM float64        `json:"distanceKm"`
}

type Controller struct {
	store  Store
	rec    Recorder
	strict bool
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

type Option func(*Controller)

func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.rec = r }
}

// StrictAvailability refuses approvals that assign a resource whose status
// is not available.
func StrictAvailability(on bool) Option {
	return func(c *Controller) { c.strict = on }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Controller) { c.tracer = tp.Tracer("go-aidr/missions") }
}

func New(s Store, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:  s,
		log:    logger.Named("missions"),
		tracer: otel.Tracer("go-aidr/missions"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Approve assigns resourceID to a pending mission and moves it to the active
// list. The store is untouched on any error.
func (c *Controller) Approve(ctx context.Context, missionID, resourceID string) (types.Mission, error) {
	ctx, span := c.tracer.Start(ctx, "missions.Approve", trace.WithAttributes(
		attribute.String("mission.id", missionID),
		attribute.String("resource.id", resourceID),
	))
	defer span.End()

	if resourceID == "" {
		return c.fail(span, DecisionApproved, missionID, ErrNoResourceSelected)
	}

	var check func(types.Resource) error
	if c.strict {
		check = func(r types.Resource) error {
			if !r.Available() {
				return fmt.Errorf("resource %s is %s: %w", r.ID, r.Status, ErrResourceUnavailable)
			}
			return nil
		}
	}

	m, err := c.store.ApproveMission(missionID, resourceID, check)
	if err != nil {
		return c.fail(span, DecisionApproved, missionID, err)
	}

	metrics.MissionDecisions.WithLabelValues(string(DecisionApproved), "ok").Inc()
	c.log.Info("Mission approved", zap.String("mission", missionID), zap.String("resource", resourceID))
	c.record(ctx, DecisionApproved, m)
	return m, nil
}

// Reject drops a pending recommendation.
func (c *Controller) Reject(ctx context.Context, missionID string) (types.Mission, error) {
	ctx, span := c.tracer.Start(ctx, "missions.Reject", trace.WithAttributes(
		attribute.String("mission.id", missionID),
	))
	defer span.End()

	m, err := c.store.RejectMission(missionID)
	if err != nil {
		return c.fail(span, DecisionRejected, missionID, err)
	}

	metrics.MissionDecisions.WithLabelValues(string(DecisionRejected), "ok").Inc()
	c.log.Info("Mission rejected", zap.String("mission", missionID))
	c.record(ctx, DecisionRejected, m)
	return m, nil
}

// AdvanceStatus applies backend-confirmed progress to an active mission in
// place. Repeating the current status is accepted and changes nothing.
func (c *Controller) AdvanceStatus(missionID string, status types.MissionStatus) (types.Mission, error) {
	if !status.Valid() {
		return types.Mission{}, fmt.Errorf("mission %s: status %q: %w", missionID, status, types.ErrInvalidValue)
	}

	var current types.Mission
	m, err := c.store.UpdateActiveMission(missionID, func(m *types.Mission) error {
		current = *m
		if m.Status == status {
			return errUnchanged
		}
		if !m.Status.CanTransition(status) {
			return fmt.Errorf("mission %s %s -> %s: %w", missionID, m.Status, status, types.ErrInvalidTransition)
		}
		m.Status = status
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return current, nil
	}
	if err != nil {
		return types.Mission{}, err
	}
	c.log.Info("Mission advanced", zap.String("mission", missionID), zap.String("status", string(status)))
	return m, nil
}

// Candidates lists the available resources nearest the mission target first.
// A mission without a target keeps the store's resource order.
func (c *Controller) Candidates(missionID string) ([]Candidate, error) {
	m, _, ok := c.store.Mission(missionID)
	if !ok {
		return nil, fmt.Errorf("mission %s: %w", missionID, ErrUnknownMission)
	}

	out := make([]Candidate, 0)
	for _, r := range c.store.Resources() {
		if !r.Available() {
			continue
		}
		cand := Candidate{Resource: r}
		if !m.TargetLocation.IsZero() && !r.CurrentLocation.IsZero() {
			cand.DistanceKM = m.TargetLocation.DistanceKM(r.CurrentLocation)
		}
		out = append(out, cand)
	}
	if !m.TargetLocation.IsZero() {
		sort.SliceStable(out, func(i, j int) bool {
			// resources with no known position go last
			ui, uj := out[i].Resource.CurrentLocation.IsZero(), out[j].Resource.CurrentLocation.IsZero()
			if ui != uj {
				return uj
			}
			return out[i].DistanceKM < out[j].DistanceKM
		})
	}
	return out, nil
}

func (c *Controller) fail(span trace.Span, kind DecisionKind, missionID string, err error) (types.Mission, error) {
	metrics.MissionDecisions.WithLabelValues(string(kind), "rejected").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.log.Warn("Mission decision refused", zap.String("decision", string(kind)),
		zap.String("mission", missionID), zap.Error(err))
	return types.Mission{}, err
}

func (c *Controller) record(ctx context.Context, kind DecisionKind, m types.Mission) {
	if c.rec == nil {
		return
	}
	d := Decision{
		ID:         uuid.NewString(),
		MissionID:  m.ID,
		Kind:       kind,
		ResourceID: m.AssignedResourceID,
		Mission:    m,
		DecidedAt:  c.now().UTC(),
	}
	if err := c.rec.RecordDecision(ctx, d); err != nil {
		c.log.Error("Failed to record decision", zap.String("mission", m.ID), zap.Error(err))
	}
}

// IsNotFound reports whether err means the mission or resource does not exist
// where the operation needed it.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrMissionNotPending) ||
		errors.Is(err, store.ErrMissionNotActive) ||
		errors.Is(err, ErrUnknownMission)
}
