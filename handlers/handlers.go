// Package handlers exposes the store and the operator controllers over HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"go-aidr/agents"
	"go-aidr/missions"
	"go-aidr/store"
	"go-aidr/summarization"
	"go-aidr/tasks"
	"go-aidr/types"
)

type MissionController interface {
	Approve(ctx context.Context, missionID, resourceID string) (types.Mission, error)
	Reject(ctx context.Context, missionID string) (types.Mission, error)
	Candidates(missionID string) ([]missions.Candidate, error)
}

type TaskController interface {
	SetStatus(ctx context.Context, taskID string, status types.TaskStatus) (types.Task, error)
}

type AgentSequencer interface {
	Stages() []agents.StageView
	Start(ctx context.Context, stage types.AgentType) error
}

type SnapshotLoader interface {
	Load(ctx context.Context) error
}

type Briefer interface {
	Brief(ctx context.Context, v store.View) (summarization.Briefing, error)
}

// Handlers holds what the routes need. Briefer may be nil when no OpenAI key
// is configured.
type Handlers struct {
	Store    *store.Store
	Missions MissionController
	Tasks    TaskController
	Agents   AgentSequencer
	Snapshot SnapshotLoader
	Briefer  Briefer

	log      *zap.Logger
	upgrader websocket.Upgrader
	quit     chan struct{}
}

func New(logger *zap.Logger) *Handlers {
	return &Handlers{
		log: logger.Named("handlers"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the dashboard is served from a different origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}
}

// Close ends every open change stream.
func (h *Handlers) Close() {
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
}

// statusFor maps domain errors onto HTTP status codes. Errors it does not
// recognise get fallback.
func statusFor(err error, fallback int) int {
	switch {
	case errors.Is(err, types.ErrInvalidValue),
		errors.Is(err, missions.ErrNoResourceSelected):
		return http.StatusBadRequest
	case missions.IsNotFound(err),
		errors.Is(err, store.ErrUnknownResource),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, agents.ErrUnknownStage):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidTransition),
		errors.Is(err, missions.ErrResourceUnavailable),
		errors.Is(err, agents.ErrPrerequisites),
		errors.Is(err, agents.ErrAlreadyRunning),
		errors.Is(err, agents.ErrStartInFlight):
		return http.StatusConflict
	case errors.Is(err, tasks.ErrConfirmationFailed):
		return http.StatusBadGateway
	}
	return fallback
}

func (h *Handlers) fail(c *gin.Context, err error, fallback int) {
	code := statusFor(err, fallback)
	if code >= http.StatusInternalServerError {
		h.log.Error("Request failed", zap.String("path", c.FullPath()), zap.Int("status", code), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
