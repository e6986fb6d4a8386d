package payment

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/live-queue-system/internal/gateway"
	"github.com/live-queue-system/internal/request"
	"github.com/live-queue-system/pkg/database"
)

type Handler struct {
	service *Service
	gateway *gateway.Client
}

func NewHandler(service *Service, gateway *gateway.Client) *Handler {
	return &Handler{service: service, gateway: gateway}
}

// RegisterWebhook mounts the gateway-facing webhook route; it is not behind
// the auth middleware since the gateway authenticates via signature.
func (h *Handler) RegisterWebhook(r *gin.RouterGroup) {
	r.POST("/payments/webhook", h.handleWebhook)
}

// RegisterRoutes mounts the attendee-facing tip route behind its admission
// gate.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, tipGate gin.HandlerFunc) {
	r.POST("/events/:id/requests/:requestId/tip", tipGate, h.createTip)
}

type webhookPayload struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	RequestID     string `json:"request_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required"`
	Currency      string `json:"currency" binding:"required"`
}

func (h *Handler) handleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	signature := c.GetHeader("X-Gateway-Signature")
	if !h.gateway.VerifySignature(body, signature) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requestID, err := uuid.Parse(payload.RequestID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}
	if payload.Amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	applied, err := h.service.ApplyConfirmedPayment(c.Request.Context(), Confirmation{
		TransactionID: payload.TransactionID,
		RequestID:     requestID,
		Amount:        payload.Amount,
		Currency:      payload.Currency,
	})
	if err != nil {
		switch {
		case errors.Is(err, database.ErrRequestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		case errors.Is(err, ErrRequestTerminal):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, request.ErrVersionConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"applied": applied})
}

type createTipRequest struct {
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency" binding:"required"`
}

// createTip opens a payment flow with the gateway; the tip only boosts the
// request once the gateway confirms via webhook.
func (h *Handler) createTip(c *gin.Context) {
	eventID := c.Param("id")
	requestID := c.Param("requestId")
	userID := c.GetString("user_id")

	var req createTipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	intent, err := h.gateway.CreateTipIntent(c.Request.Context(), eventID, requestID, userID, req.Amount, req.Currency)
	if err != nil {
		log.Printf("Failed to create tip intent: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
		return
	}

	c.JSON(http.StatusCreated, intent)
}
