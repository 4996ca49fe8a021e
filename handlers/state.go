package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-aidr/types"
)

func (h *Handlers) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.View())
}

func (h *Handlers) GetConnection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state": h.Store.Connection(),
		"error": h.Store.Err(),
	})
}

func (h *Handlers) GetIncidents(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Incidents())
}

func (h *Handlers) GetResources(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Resources())
}

func (h *Handlers) GetPendingMissions(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.PendingMissions())
}

// GetActiveMissions includes each mission's assigned resource, resolved at
// read time. A stale assignment is reported rather than hidden.
func (h *Handlers) GetActiveMissions(c *gin.Context) {
	type activeMission struct {
		types.Mission
		Resource      *types.Resource `json:"assignedResource,omitempty"`
		StaleResource bool            `json:"staleResource,omitempty"`
	}
	ms := h.Store.ActiveMissions()
	out := make([]activeMission, 0, len(ms))
	for _, m := range ms {
		am := activeMission{Mission: m}
		if r, ok := h.Store.AssignedResource(m); ok {
			am.Resource = &r
		} else if m.AssignedResourceID != "" {
			am.StaleResource = true
		}
		out = append(out, am)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handlers) GetDamageAreas(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.DamageAreas())
}

func (h *Handlers) GetTasks(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Tasks())
}

func (h *Handlers) GetDamageReports(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.DamageReports())
}

func (h *Handlers) GetDisasters(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Disasters())
}
