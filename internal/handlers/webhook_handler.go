package handlers

import (
	"net/http"

	"sms-relay-server/internal/models"
	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DeliveryReceiptRequest is the carrier's delivery-info notification
type DeliveryReceiptRequest struct {
	Notification struct {
		DeliveryInfo struct {
			MessageID      string `json:"messageId"`
			Address        string `json:"address"`
			DeliveryStatus string `json:"deliveryStatus"`
		} `json:"deliveryInfo"`
	} `json:"deliveryInfoNotification"`
}

// InboundSMSRequest is the carrier's inbound-message notification
type InboundSMSRequest struct {
	Notification struct {
		Message struct {
			SenderAddress      string `json:"senderAddress"`
			DestinationAddress string `json:"destinationAddress"`
			Message            string `json:"message"`
			DateTime           string `json:"dateTime"`
			MessageID          string `json:"messageId"`
		} `json:"inboundSMSMessage"`
	} `json:"inboundSMSMessageNotification"`
}

// WebhookHandler receives carrier callbacks. The routes are public
type WebhookHandler struct {
	messageService MessageServiceInterface
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(messageService MessageServiceInterface) *WebhookHandler {
	return &WebhookHandler{messageService: messageService}
}

// DeliveryReceipt applies a delivery report (POST /api/sms/delivery-receipt)
// Reports for unknown messages are acknowledged so the carrier stops retrying
func (h *WebhookHandler) DeliveryReceipt(c *gin.Context) {
	var req DeliveryReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid delivery receipt", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	info := req.Notification.DeliveryInfo
	logger.Info("Delivery receipt received",
		zap.String("carrier_message_id", info.MessageID),
		zap.String("status", info.DeliveryStatus),
	)

	msg, err := h.messageService.ApplyDeliveryReceipt(c.Request.Context(), info.MessageID, info.DeliveryStatus, info.Address)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	resp := gin.H{"status": "received", "tracked": msg != nil}
	if msg != nil {
		resp["sms_id"] = msg.ID
		resp["delivery_status"] = msg.Status.State
	}
	c.JSON(http.StatusOK, resp)
}

// ReceiveSMS ingests an inbound message (POST /api/sms/receive-webhook)
func (h *WebhookHandler) ReceiveSMS(c *gin.Context) {
	var req InboundSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid inbound SMS webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	in := req.Notification.Message
	outcome, err := h.messageService.IngestInbound(c.Request.Context(), services.InboundSMS{
		SenderAddress:      in.SenderAddress,
		DestinationAddress: in.DestinationAddress,
		Body:               in.Message,
		CarrierMessageID:   in.MessageID,
		DateTime:           in.DateTime,
	})
	if err != nil {
		var extra gin.H
		if models.KindOf(err) == models.KindValidation {
			extra = gin.H{"required": []string{"senderAddress", "destinationAddress", "message"}}
		}
		respondError(c, err, extra)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "received",
		"sms_id":          outcome.Message.ID,
		"conversation_id": outcome.Conversation.ID,
		"sender":          outcome.Message.SenderPhone,
		"recipient":       outcome.Message.RecipientPhone,
		"duplicate":       outcome.Duplicate,
	})
}

// DescribeReceiveSMS documents the expected inbound payload (GET /api/sms/receive-webhook)
func (h *WebhookHandler) DescribeReceiveSMS(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "active",
		"endpoint": "POST /api/sms/receive-webhook",
		"expected_format": gin.H{
			"inboundSMSMessageNotification": gin.H{
				"inboundSMSMessage": gin.H{
					"senderAddress":      "tel:+221XXXXXXXXX",
					"destinationAddress": "tel:+221XXXXXXXXX",
					"message":            "text",
					"dateTime":           "2025-01-01T12:00:00Z",
					"messageId":          "unique_id",
				},
			},
		},
	})
}
