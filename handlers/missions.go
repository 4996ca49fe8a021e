package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type approveRequest struct {
	ResourceID string `json:"resource_id"`
}

// ApproveMission handles POST /missions/:id/approve with {"resource_id": "..."}.
func (h *Handlers) ApproveMission(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.Missions.Approve(c.Request.Context(), c.Param("id"), req.ResourceID)
	if err != nil {
		h.fail(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handlers) RejectMission(c *gin.Context) {
	m, err := h.Missions.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *Handlers) MissionCandidates(c *gin.Context) {
	cands, err := h.Missions.Candidates(c.Param("id"))
	if err != nil {
		h.fail(c, err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, cands)
}
