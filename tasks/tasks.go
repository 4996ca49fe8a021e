// Package tasks changes task status optimistically and reconciles the change
// with the backend's confirmation.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"go-aidr/metrics"
	"go-aidr/types"
)

// ConfirmFailedMsg is written to the store's error field when the backend
// refuses or cannot be reached.
const ConfirmFailedMsg = "Failed to update task status"

const confirmTimeout = 15 * time.Second

var ErrConfirmationFailed = errors.New("backend did not confirm task status")

var errSuperseded = errors.New("superseded")

type RollbackPolicy string

const (
	// RollbackRevert restores the previous status unless the task has changed
	// again since the optimistic update.
	RollbackRevert RollbackPolicy = "revert"
	// RollbackKeep leaves the optimistic status in place and only reports.
	RollbackKeep RollbackPolicy = "keep"
)

func ParseRollbackPolicy(s string) (RollbackPolicy, error) {
	switch p := RollbackPolicy(s); p {
	case RollbackRevert, RollbackKeep:
		return p, nil
	case "":
		return RollbackRevert, nil
	}
	return "", fmt.Errorf("rollback policy %q: want revert or keep", s)
}

type Store interface {
	UpdateTask(taskID string, fn func(*types.Task) error) (before, after types.Task, err error)
	SetError(msg string)
	Err() string
}

type Confirmer interface {
	SetTaskStatus(ctx context.Context, id string, status types.TaskStatus) error
}

type Controller struct {
	store   Store
	api     Confirmer
	policy  RollbackPolicy
	log     *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
	timeout time.Duration
}

type Option func(*Controller)

func WithRollback(p RollbackPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Controller) { c.tracer = tp.Tracer("go-aidr/tasks") }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func New(s Store, api Confirmer, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:   s,
		api:     api,
		policy:  RollbackRevert,
		log:     logger.Named("tasks"),
		tracer:  otel.Tracer("go-aidr/tasks"),
		now:     time.Now,
		timeout: confirmTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetStatus moves a task to status in the store at once, then asks the
// backend to confirm. The returned task is what the store holds afterwards.
// A refused transition changes nothing. A failed confirmation sets the
// store's error and, under the revert policy, rolls the task back.
func (c *Controller) SetStatus(ctx context.Context, taskID string, status types.TaskStatus) (types.Task, error) {
	ctx, span := c.tracer.Start(ctx, "tasks.SetStatus", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.String("task.status", string(status)),
	))
	defer span.End()

	if !status.Valid() {
		err := fmt.Errorf("task %s: status %q: %w", taskID, status, types.ErrInvalidValue)
		span.SetStatus(codes.Error, err.Error())
		return types.Task{}, err
	}

	stamp := c.now().UTC()
	before, after, err := c.store.UpdateTask(taskID, func(t *types.Task) error {
		if !t.Status.CanTransition(status) {
			return fmt.Errorf("task %s %s -> %s: %w", taskID, t.Status, status, types.ErrInvalidTransition)
		}
		t.Status = status
		t.UpdatedAt = &stamp
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return types.Task{}, err
	}

	// The confirmation outlives the caller: an operator closing the request
	// must not turn an accepted change into a rollback.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	confirmErr := c.api.SetTaskStatus(cctx, taskID, status)
	if confirmErr == nil {
		metrics.TaskConfirmations.WithLabelValues("ok").Inc()
		if c.store.Err() == ConfirmFailedMsg {
			c.store.SetError("")
		}
		c.log.Info("Task status confirmed", zap.String("task", taskID), zap.String("status", string(status)))
		return after, nil
	}

	span.RecordError(confirmErr)
	span.SetStatus(codes.Error, confirmErr.Error())
	c.store.SetError(ConfirmFailedMsg)
	c.log.Error("Task status not confirmed", zap.String("task", taskID),
		zap.String("status", string(status)), zap.Error(confirmErr))

	result := after
	if c.policy == RollbackRevert {
		result = c.revert(taskID, before, after)
	} else {
		metrics.TaskConfirmations.WithLabelValues("failed").Inc()
	}
	return result, fmt.Errorf("task %s -> %s: %w: %w", taskID, status, ErrConfirmationFailed, confirmErr)
}

// revert puts before's status back only if the task still holds the
// optimistic value.
func (c *Controller) revert(taskID string, before, optimistic types.Task) types.Task {
	_, reverted, err := c.store.UpdateTask(taskID, func(t *types.Task) error {
		if t.Status != optimistic.Status || !sameTime(t.UpdatedAt, optimistic.UpdatedAt) {
			return errSuperseded
		}
		t.Status = before.Status
		t.UpdatedAt = before.UpdatedAt
		return nil
	})
	switch {
	case err == nil:
		metrics.TaskConfirmations.WithLabelValues("reverted").Inc()
		c.log.Info("Task status reverted", zap.String("task", taskID), zap.String("status", string(before.Status)))
		return reverted
	case errors.Is(err, errSuperseded):
		metrics.TaskConfirmations.WithLabelValues("failed").Inc()
		c.log.Info("Task changed since update, not reverting", zap.String("task", taskID))
		return reverted
	default:
		// task vanished, e.g. replaced by a refetch
		metrics.TaskConfirmations.WithLabelValues("failed").Inc()
		return types.Task{}
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
