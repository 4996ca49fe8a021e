package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-aidr/types"
)

func (h *Handlers) GetAgents(c *gin.Context) {
	c.JSON(http.StatusOK, h.Agents.Stages())
}

// StartAgent triggers a pipeline stage. A refused start is a conflict; a
// trigger the backend rejected is a bad gateway.
func (h *Handlers) StartAgent(c *gin.Context) {
	stage := types.AgentType(c.Param("type"))
	if err := h.Agents.Start(c.Request.Context(), stage); err != nil {
		h.fail(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "started", "agent_type": stage})
}
