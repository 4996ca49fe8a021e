package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Resync reloads the snapshot synchronously. Partial failures are reported
// with 502; whatever loaded has already been applied.
func (h *Handlers) Resync(c *gin.Context) {
	if err := h.Snapshot.Load(c.Request.Context()); err != nil {
		h.fail(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": h.Store.Version()})
}

func (h *Handlers) GetBriefing(c *gin.Context) {
	if h.Briefer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "briefing is not configured"})
		return
	}
	b, err := h.Briefer.Brief(c.Request.Context(), h.Store.View())
	if err != nil {
		h.fail(c, err, http.StatusBadGateway)
		return
	}
	c.JSON(http.StatusOK, b)
}
