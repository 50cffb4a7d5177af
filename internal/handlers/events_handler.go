package handlers

import (
	"io"
	"net/http"
	"time"

	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultPingInterval keeps idle event streams alive through proxies.
const DefaultPingInterval = 30 * time.Second

// EventsHandler streams a user's real-time events as Server-Sent Events
type EventsHandler struct {
	subscriber   EventSubscriber
	pingInterval time.Duration
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(subscriber EventSubscriber, pingInterval time.Duration) *EventsHandler {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &EventsHandler{subscriber: subscriber, pingInterval: pingInterval}
}

// Stream handles GET /api/events
func (h *EventsHandler) Stream(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	// The server write timeout would cut long-lived streams.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("Cannot clear write deadline for event stream", zap.Error(err))
	}

	ctx := c.Request.Context()
	events, subID := h.subscriber.Subscribe(ctx, userID)
	defer h.subscriber.Unsubscribe(userID, subID)

	logger.Info("Event stream opened", zap.String("user_id", userID), zap.String("sub_id", subID))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent(string(models.EventConnectionEstablished), models.Event{
		ID:        subID,
		Type:      models.EventConnectionEstablished,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	})
	c.Writer.Flush()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, open := <-events:
			if !open {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		case t := <-ticker.C:
			c.SSEvent(string(models.EventPing), models.Event{
				Type:      models.EventPing,
				UserID:    userID,
				Timestamp: t.UTC(),
			})
			return true
		}
	})

	logger.Info("Event stream closed", zap.String("user_id", userID), zap.String("sub_id", subID))
}
