package moderation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/live-queue-system/internal/request"
	"github.com/live-queue-system/pkg/database"
)

type Handler struct {
	service  *Service
	requests *request.Service
}

func NewHandler(service *Service, requests *request.Service) *Handler {
	return &Handler{service: service, requests: requests}
}

// RegisterRoutes mounts the DJ-facing moderation routes; callers must carry
// the DJ role.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	mod := r.Group("/events/:id/moderation")
	{
		mod.GET("/pending", h.listPending)
		mod.POST("/requests/:requestId/approve", h.approve)
		mod.POST("/requests/:requestId/reject", h.reject)
		mod.POST("/batch", h.batch)
		mod.GET("/blocklist", h.listBlocklist)
		mod.PATCH("/blocklist", h.updateBlocklist)
	}
}

func (h *Handler) listPending(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	pending, err := h.requests.ListPending(c.Request.Context(), eventID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pending)
}

func (h *Handler) approve(c *gin.Context) {
	h.decide(c, ActionApprove)
}

func (h *Handler) reject(c *gin.Context) {
	h.decide(c, ActionReject)
}

func (h *Handler) decide(c *gin.Context, action Action) {
	requestID, err := uuid.Parse(c.Param("requestId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	moderatorID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	var decideErr error
	switch action {
	case ActionApprove:
		decideErr = h.service.Approve(c.Request.Context(), requestID, moderatorID)
	case ActionReject:
		decideErr = h.service.Reject(c.Request.Context(), requestID, moderatorID)
	}
	if decideErr != nil {
		h.writeError(c, decideErr)
		return
	}

	c.Status(http.StatusOK)
}

type BatchRequest struct {
	RequestIDs []uuid.UUID `json:"request_ids" binding:"required,min=1"`
	Action     Action      `json:"action" binding:"required,oneof=approve reject"`
}

func (h *Handler) batch(c *gin.Context) {
	moderatorID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results := h.service.BatchModerate(c.Request.Context(), req.RequestIDs, moderatorID, req.Action)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) listBlocklist(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	moderatorID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	entries, err := h.service.ListBlocklist(c.Request.Context(), eventID, moderatorID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *Handler) updateBlocklist(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	moderatorID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
		return
	}

	var patch BlocklistPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.UpdateBlocklist(c.Request.Context(), eventID, moderatorID, patch); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrEventNotFound), errors.Is(err, database.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotEventDJ):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, request.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrInvalidTransition), errors.Is(err, request.ErrRequestExpired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
