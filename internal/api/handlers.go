package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"response-service/internal/db"
	"response-service/internal/models"
	"response-service/internal/orchestrator"
	"response-service/internal/ws"
)

type Handler struct {
	db     *db.DB
	orch   *orchestrator.Orchestrator
	hub    *ws.Hub
	logger *logrus.Logger
}

func NewHandler(db *db.DB, orch *orchestrator.Orchestrator, hub *ws.Hub, logger *logrus.Logger) *Handler {
	return &Handler{db: db, orch: orch, hub: hub, logger: logger}
}

// SubmitAssessment runs one assessment through the orchestrator and returns
// the decision. Used for manual injection and for upstreams without Kafka.
func (h *Handler) SubmitAssessment(c *gin.Context) {
	var a models.RiskAssessment
	if err := c.ShouldBindJSON(&a); err != nil {
		h.logger.Errorf("Invalid request body for assessment: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	decision, err := h.orch.OnAssessment(c.Request.Context(), a)
	if err != nil {
		if errors.Is(err, orchestrator.ErrContractViolation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Errorf("Assessment processing failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process assessment"})
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (h *Handler) GetAction(c *gin.Context) {
	id := c.Param("id")
	action, err := h.db.GetAction(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to get action %s: %v", id, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Action not found"})
		return
	}
	c.JSON(http.StatusOK, action)
}

func (h *Handler) GetActionsByAsset(c *gin.Context) {
	assetID := c.Param("asset_id")
	limit, offset := pagination(c)

	actions, err := h.db.GetActionsByAsset(c.Request.Context(), assetID, limit, offset)
	if err != nil {
		h.logger.Errorf("Failed to get actions for asset %s: %v", assetID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get actions"})
		return
	}
	c.JSON(http.StatusOK, actions)
}

func (h *Handler) GetDeliveryAttempts(c *gin.Context) {
	requestID := c.Param("request_id")
	attempts, err := h.db.GetDeliveryAttemptsByRequest(c.Request.Context(), requestID)
	if err != nil {
		h.logger.Errorf("Failed to get delivery attempts for request %s: %v", requestID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get delivery attempts"})
		return
	}
	c.JSON(http.StatusOK, attempts)
}

func (h *Handler) GetNotificationsByUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
		return
	}
	limit, offset := pagination(c)

	list, err := h.db.GetInAppNotificationsByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Errorf("Failed to get notifications for user_id %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notifications"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetPreferencesByUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
		return
	}

	prefs, err := h.db.GetPreferencesByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("Failed to get preferences for user_id %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get preferences"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) UpsertPreference(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user_id"})
		return
	}

	var p models.Preference
	if err := c.ShouldBindJSON(&p); err != nil {
		h.logger.Errorf("Invalid request body for preference: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	p.UserID = userID

	if err := h.db.UpsertPreference(c.Request.Context(), p); err != nil {
		h.logger.Errorf("Failed to upsert preference for user_id %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preference"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
