package handlers

import (
	"net/http"
	"strconv"

	"sms-relay-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 100

// SendRequest is the body of POST /api/sms/send
type SendRequest struct {
	Recipient      string `json:"recipient"`
	Message        string `json:"message"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
}

// SMSHandler handles outbound messages and account queries
type SMSHandler struct {
	messageService MessageServiceInterface
}

// NewSMSHandler creates a new SMS handler
func NewSMSHandler(messageService MessageServiceInterface) *SMSHandler {
	return &SMSHandler{messageService: messageService}
}

// Send relays one SMS through the carrier (POST /api/sms/send)
// A failed attempt still leaves a stored record; its ID is returned with the error
func (h *SMSHandler) Send(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid send request", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if req.Recipient == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Recipient is required"})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}

	outcome, err := h.messageService.SendMessage(c.Request.Context(), userID, req.Recipient, req.Message, req.ConversationID)
	if err != nil {
		var extra gin.H
		if outcome != nil && outcome.Message != nil {
			extra = gin.H{
				"sms_id":          outcome.Message.ID,
				"conversation_id": outcome.Message.ConversationID,
				"delivery_status": outcome.DeliveryStatus,
			}
		}
		respondError(c, err, extra)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sms":                outcome.Message.ToResponse(outcome.Message.SenderPhone),
		"conversation_id":    outcome.Conversation.ID,
		"carrier_message_id": outcome.CarrierMessageID,
		"delivery_status":    outcome.DeliveryStatus,
	})
}

// History lists the user's messages, newest first (GET /api/sms/history)
func (h *SMSHandler) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit value"})
			return
		}
		limit = l
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		o, err := strconv.Atoi(offsetStr)
		if err != nil || o < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset value"})
			return
		}
		offset = o
	}

	messages, err := h.messageService.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, messages)
}

// Balance reports the carrier account balance (GET /api/sms/balance)
// An unavailable balance is reported as null, never as an error
func (h *SMSHandler) Balance(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": h.messageService.CheckBalance(c.Request.Context())})
}
