package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"go-aidr/agents"
	"go-aidr/missions"
	"go-aidr/store"
	"go-aidr/tasks"
	"go-aidr/types"
)

func TestStatusFor(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("op: %w", err) }

	for err, want := range map[error]int{
		wrap(types.ErrInvalidValue):           http.StatusBadRequest,
		missions.ErrNoResourceSelected:        http.StatusBadRequest,
		wrap(store.ErrMissionNotPending):      http.StatusNotFound,
		wrap(store.ErrUnknownResource):        http.StatusNotFound,
		wrap(store.ErrTaskNotFound):           http.StatusNotFound,
		wrap(agents.ErrUnknownStage):          http.StatusNotFound,
		wrap(types.ErrInvalidTransition):      http.StatusConflict,
		wrap(missions.ErrResourceUnavailable): http.StatusConflict,
		wrap(agents.ErrPrerequisites):         http.StatusConflict,
		wrap(agents.ErrStartInFlight):         http.StatusConflict,
		wrap(tasks.ErrConfirmationFailed):     http.StatusBadGateway,
	} {
		assert.Equal(t, want, statusFor(err, http.StatusTeapot), err.Error())
	}
	assert.Equal(t, http.StatusTeapot, statusFor(errors.New("boom"), http.StatusTeapot))
}

func TestCloseIsIdempotent(t *testing.T) {
	h := New(zap.NewNop())
	h.Close()
	assert.NotPanics(t, h.Close)
}
