package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"go-aidr/handlers"
)

func SetupRouter(h *handlers.Handlers, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger(logger), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Hello, welcome to Go AIDR!",
		})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connection": h.Store.Connection()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// api routes
	api := r.Group("/api/aidr")
	{
		api.GET("/state", h.GetState)
		api.GET("/connection", h.GetConnection)
		api.GET("/incidents", h.GetIncidents)
		api.GET("/resources", h.GetResources)
		api.GET("/damage-areas", h.GetDamageAreas)
		api.GET("/damage-reports", h.GetDamageReports)
		api.GET("/disasters", h.GetDisasters)

		api.GET("/missions/pending", h.GetPendingMissions)
		api.GET("/missions/active", h.GetActiveMissions)
		api.POST("/missions/:id/approve", h.ApproveMission)
		api.POST("/missions/:id/reject", h.RejectMission)
		api.GET("/missions/:id/candidates", h.MissionCandidates)

		api.GET("/tasks", h.GetTasks)
		api.PUT("/tasks/:id", h.UpdateTaskStatus)

		api.GET("/agents", h.GetAgents)
		api.POST("/agents/:type/start", h.StartAgent)

		api.POST("/resync", h.Resync)
		api.GET("/briefing", h.GetBriefing)
		api.GET("/stream", h.Stream)
	}

	return r
}
