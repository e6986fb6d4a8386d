package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/live-queue-system/internal/event"
	"github.com/live-queue-system/pkg/jwt"
)

type Handler struct {
	tokens *jwt.Manager
	events *event.Service
}

func NewHandler(tokens *jwt.Manager, events *event.Service) *Handler {
	return &Handler{tokens: tokens, events: events}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, joinGate gin.HandlerFunc) {
	auth := r.Group("/auth")
	{
		auth.POST("/dj", h.djLogin)
		auth.POST("/join", joinGate, h.join)
	}
}

type DJLoginRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// djLogin issues a DJ token. Identity management proper lives outside this
// service; the token just names the DJ for event ownership checks.
func (h *Handler) djLogin(c *gin.Context) {
	var req DJLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := uuid.New()
	token, err := h.tokens.GenerateToken(userID.String(), "dj")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":        token,
		"user_id":      userID,
		"display_name": req.DisplayName,
	})
}

type JoinRequest struct {
	Code        string `json:"code" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
}

// join resolves an event by its join code and issues an attendee token.
func (h *Handler) join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev, err := h.events.GetEventByCode(c.Request.Context(), req.Code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}

	userID := uuid.New()
	token, err := h.tokens.GenerateToken(userID.String(), "attendee")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":        token,
		"user_id":      userID,
		"display_name": req.DisplayName,
		"event":        ev,
	})
}
