// Package notify fans real-time events out to the live connections of a user.
package notify

import (
	"context"
	"errors"

	"sms-relay-server/internal/models"
)

var (
	// ErrQueueFull is returned when the dispatch queue cannot take another event.
	ErrQueueFull = errors.New("notification queue is full")
	// ErrClosed is returned after the sink has been closed.
	ErrClosed = errors.New("notification sink is closed")
)

// Sink accepts events for delivery to every subscriber of userID. Publish
// never blocks on delivery.
type Sink interface {
	Publish(ctx context.Context, userID string, event models.Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, models.Event) error { return nil }
