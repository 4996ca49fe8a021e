package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-aidr/tasks"
	"go-aidr/types"
)

// UpdateTaskStatus handles PUT /tasks/:id?status=. When the backend does not
// confirm, the response is 502 and still carries the task as the store now
// holds it.
func (h *Handlers) UpdateTaskStatus(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status query parameter is required"})
		return
	}

	t, err := h.Tasks.SetStatus(c.Request.Context(), c.Param("id"), types.TaskStatus(status))
	if errors.Is(err, tasks.ErrConfirmationFailed) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "task": t})
		return
	}
	if err != nil {
		h.fail(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, t)
}
