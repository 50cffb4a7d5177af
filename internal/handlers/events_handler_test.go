package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sms-relay-server/internal/models"
	"sms-relay-server/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	name string
	data string
}

// readEvent reads the next "event:/data:" frame from an SSE stream.
func readEvent(t *testing.T, sc *bufio.Scanner) sseEvent {
	t.Helper()
	var ev sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && ev.name != "":
			return ev
		}
	}
	require.NoError(t, sc.Err())
	t.Fatal("stream ended before a complete event")
	return ev
}

func startEventServer(t *testing.T, userID string, ping time.Duration) (*httptest.Server, *notify.Broadcaster) {
	t.Helper()

	b := notify.NewBroadcaster(16, 16)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	r := newTestEngine(userID)
	r.GET("/api/events", NewEventsHandler(b, ping).Stream)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		cancel()
		b.Close()
	})
	return srv, b
}

func openStream(t *testing.T, srv *httptest.Server) (*http.Response, *bufio.Scanner) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	return resp, bufio.NewScanner(resp.Body)
}

func TestEventsHandler_StreamsUserEvents(t *testing.T) {
	srv, b := startEventServer(t, testUserID, time.Hour)

	resp, sc := openStream(t, srv)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	first := readEvent(t, sc)
	assert.Equal(t, string(models.EventConnectionEstablished), first.name)
	assert.Equal(t, 1, b.Subscribers(testUserID))

	// Events for other users never reach this stream.
	require.NoError(t, b.Publish(context.Background(), "someone-else", models.Event{Type: models.EventNewMessage, MessageID: 99}))
	require.NoError(t, b.Publish(context.Background(), testUserID, models.Event{
		Type:           models.EventMessageStatusUpdate,
		ConversationID: 3,
		MessageID:      11,
		Status:         models.StateDelivered,
	}))

	ev := readEvent(t, sc)
	assert.Equal(t, string(models.EventMessageStatusUpdate), ev.name)

	var payload models.Event
	require.NoError(t, json.Unmarshal([]byte(ev.data), &payload))
	assert.Equal(t, int64(11), payload.MessageID)
	assert.Equal(t, models.StateDelivered, payload.Status)
	assert.Equal(t, testUserID, payload.UserID)
	assert.NotEmpty(t, payload.ID)
}

func TestEventsHandler_Ping(t *testing.T) {
	srv, _ := startEventServer(t, testUserID, 20*time.Millisecond)

	resp, sc := openStream(t, srv)
	defer resp.Body.Close()

	assert.Equal(t, string(models.EventConnectionEstablished), readEvent(t, sc).name)
	assert.Equal(t, string(models.EventPing), readEvent(t, sc).name)
}

func TestEventsHandler_UnsubscribesOnDisconnect(t *testing.T) {
	srv, b := startEventServer(t, testUserID, time.Hour)

	resp, sc := openStream(t, srv)
	readEvent(t, sc)
	require.Equal(t, 1, b.Subscribers(testUserID))

	resp.Body.Close()

	assert.Eventually(t, func() bool {
		return b.Subscribers(testUserID) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventsHandler_Unauthenticated(t *testing.T) {
	srv, b := startEventServer(t, "", time.Hour)

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, b.Subscribers(testUserID))
}
