package event

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/live-queue-system/pkg/database"
	"github.com/live-queue-system/pkg/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the read-only event routes for any authed caller.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	events := r.Group("/events")
	{
		events.GET("/code/:code", h.getEventByCode)
		events.GET("/:id", h.getEvent)
	}
}

// RegisterDJRoutes mounts the event lifecycle routes for the DJ.
func (h *Handler) RegisterDJRoutes(r *gin.RouterGroup) {
	events := r.Group("/events")
	{
		events.POST("/", h.createEvent)
		events.PUT("/:id/settings", h.updateSettings)
		events.POST("/:id/end", h.endEvent)
		events.POST("/:id/cancel", h.cancelEvent)
	}
}

type CreateEventRequest struct {
	Name             string `json:"name" binding:"required"`
	TippingEnabled   bool   `json:"tipping_enabled"`
	ApprovalRequired bool   `json:"approval_required"`
	MaxQueueSize     int    `json:"max_queue_size"`
}

func (h *Handler) createEvent(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	djID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	event, err := h.service.CreateEvent(c.Request.Context(), djID, req.Name, Settings{
		TippingEnabled:   req.TippingEnabled,
		ApprovalRequired: req.ApprovalRequired,
		MaxQueueSize:     req.MaxQueueSize,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, event)
}

func (h *Handler) getEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	event, err := h.service.GetEvent(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *Handler) getEventByCode(c *gin.Context) {
	event, err := h.service.GetEventByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, event)
}

type UpdateSettingsRequest struct {
	TippingEnabled   bool `json:"tipping_enabled"`
	ApprovalRequired bool `json:"approval_required"`
	MaxQueueSize     int  `json:"max_queue_size"`
}

func (h *Handler) updateSettings(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	djID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.service.UpdateSettings(c.Request.Context(), eventID, djID, Settings{
		TippingEnabled:   req.TippingEnabled,
		ApprovalRequired: req.ApprovalRequired,
		MaxQueueSize:     req.MaxQueueSize,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *Handler) endEvent(c *gin.Context) {
	h.closeEvent(c, h.service.EndEvent)
}

func (h *Handler) cancelEvent(c *gin.Context) {
	h.closeEvent(c, h.service.CancelEvent)
}

func (h *Handler) closeEvent(c *gin.Context, close func(ctx context.Context, eventID, djID uuid.UUID) (*models.Event, error)) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	djID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	event, err := close(c.Request.Context(), eventID, djID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrEventNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotEventDJ):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrEventEnded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
