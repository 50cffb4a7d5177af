package notify

import (
	"context"
	"sync"
	"time"

	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultQueueSize        = 1024
	DefaultSubscriberBuffer = 64
)

type envelope struct {
	userID string
	event  models.Event
}

// Broadcaster is an in-memory Sink. Publish enqueues; a single dispatch loop
// started with Run delivers to each subscriber of the user. Subscribers whose
// buffers are full miss the event.
type Broadcaster struct {
	queue     chan envelope
	bufSize   int
	done      chan struct{}
	closeOnce sync.Once

	mu          sync.RWMutex
	closed      bool
	subscribers map[string]map[string]chan models.Event // userID -> subID -> ch
}

// NewBroadcaster creates a broadcaster. Non-positive sizes use the defaults.
func NewBroadcaster(queueSize, subscriberBuffer int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if subscriberBuffer <= 0 {
		subscriberBuffer = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		queue:       make(chan envelope, queueSize),
		bufSize:     subscriberBuffer,
		done:        make(chan struct{}),
		subscribers: make(map[string]map[string]chan models.Event),
	}
}

// Publish enqueues event for userID. It fills in the event ID, user and
// timestamp when unset.
func (b *Broadcaster) Publish(ctx context.Context, userID string, event models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.UserID == "" {
		event.UserID = userID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	select {
	case b.queue <- envelope{userID: userID, event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run dispatches queued events until ctx is done or the broadcaster closes.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case env := <-b.queue:
			b.dispatch(env.userID, env.event)
		}
	}
}

func (b *Broadcaster) dispatch(userID string, event models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Sends are non-blocking, so holding the read lock keeps Unsubscribe
	// from closing a channel mid-send.
	for subID, ch := range b.subscribers[userID] {
		select {
		case ch <- event:
		default:
			logger.Debug("Dropped event for slow subscriber",
				zap.String("user_id", userID),
				zap.String("sub_id", subID),
				zap.String("event_id", event.ID))
		}
	}
}

// Subscribe registers a connection of userID. The returned channel is closed
// when ctx is done, on Unsubscribe, or when the broadcaster closes.
func (b *Broadcaster) Subscribe(ctx context.Context, userID string) (<-chan models.Event, string) {
	subID := uuid.New().String()
	ch := make(chan models.Event, b.bufSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[userID]; !ok {
		b.subscribers[userID] = make(map[string]chan models.Event)
	}
	b.subscribers[userID][subID] = ch
	b.mu.Unlock()

	logger.Debug("Subscriber added", zap.String("user_id", userID), zap.String("sub_id", subID))

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(userID, subID)
		case <-b.done:
		}
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(userID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[userID]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, userID)
	}

	logger.Debug("Subscriber removed", zap.String("user_id", userID), zap.String("sub_id", subID))
}

// Subscribers returns the number of live subscriptions of userID.
func (b *Broadcaster) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[userID])
}

// Close stops dispatching and closes every subscriber channel. Events still
// queued are discarded.
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for userID, subs := range b.subscribers {
			for subID, ch := range subs {
				close(ch)
				delete(subs, subID)
			}
			delete(b.subscribers, userID)
		}
		b.mu.Unlock()
		close(b.done)
		logger.Debug("Broadcaster closed")
	})
}
