package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"response-service/internal/config"
	"response-service/internal/db"
	"response-service/internal/orchestrator"
	"response-service/internal/ws"
)

func NewRouter(dbConn *db.DB, orch *orchestrator.Orchestrator, hub *ws.Hub, logger *logrus.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(dbConn, orch, hub, logger)
	api := r.Group(cfg.API.BasePath)
	{
		// Assessments (manual injection, returns the decision)
		api.POST("/assessments", h.SubmitAssessment)

		// Corrective actions
		api.GET("/actions/:id", h.GetAction)
		api.GET("/actions/asset/:asset_id", h.GetActionsByAsset)

		// Delivery audit
		api.GET("/deliveries/:request_id", h.GetDeliveryAttempts)

		// In-app notification feed
		api.GET("/notifications/user/:user_id", h.GetNotificationsByUser)

		// Preferences
		api.GET("/preferences/user/:user_id", h.GetPreferencesByUser)
		api.PUT("/preferences/user/:user_id", h.UpsertPreference)

		// Live in-app delivery
		api.GET("/ws", h.WebSocket)
	}
	return r
}
