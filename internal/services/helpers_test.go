package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"sms-relay-server/internal/carrier"
	"sms-relay-server/internal/db"
	"sms-relay-server/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	ownerPhone   = "+221780000000"
	contactPhone = "+221771234567"
	accountPhone = "+221777567226"
)

// MockSink is a mock implementation of notify.Sink for testing
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, userID string, event models.Event) error {
	args := m.Called(ctx, userID, event)
	return args.Error(0)
}

func eventOfType(t models.EventType) interface{} {
	return mock.MatchedBy(func(e models.Event) bool { return e.Type == t })
}

// fakeCarrier serves the OAuth and send endpoints of the carrier.
type fakeCarrier struct {
	*httptest.Server
	tokens     atomic.Int32
	sends      atomic.Int32
	sendStatus atomic.Int32
	nextID     atomic.Int32
}

func newFakeCarrier(t *testing.T) *fakeCarrier {
	fc := &fakeCarrier{}
	fc.sendStatus.Store(http.StatusCreated)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v3/token", func(w http.ResponseWriter, r *http.Request) {
		n := fc.tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-" + string(rune('a'+n-1)),
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/smsmessaging/v1/outbound/", func(w http.ResponseWriter, r *http.Request) {
		fc.sends.Add(1)
		status := int(fc.sendStatus.Load())
		if status != http.StatusCreated {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"requestError":{"serviceException":{"messageId":"SVC0004"}}}`))
			return
		}
		id := fc.nextID.Add(1)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"outboundSMSMessageRequest": map[string]interface{}{
				"resourceURL": strings.TrimSuffix(r.URL.String(), "/") + "/msg-" + string(rune('0'+id)),
			},
		})
	})
	mux.HandleFunc("/sms/admin/v1/contracts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"availableUnits":120,"status":"ACTIVE","country":"SEN"}]`))
	})

	fc.Server = httptest.NewServer(mux)
	t.Cleanup(fc.Close)
	return fc
}

type testEnv struct {
	database *db.Database
	carrier  *fakeCarrier
	tokens   *carrier.TokenManager
	sink     *MockSink
	service  *MessageService
	owner    *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.NewDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	fc := newFakeCarrier(t)
	cfg := carrier.Config{
		BaseURL:      fc.URL,
		TokenURL:     fc.URL + "/oauth/v3/token",
		ClientID:     "id",
		ClientSecret: "secret",
		SenderPhone:  accountPhone,
		SenderName:   "SMS Relay",
	}
	tokens := carrier.NewTokenManager(cfg, database.Credentials(""), fc.Client())
	gateway := carrier.NewGateway(cfg, fc.Client())
	sink := &MockSink{}

	owner := models.NewUser("owner", "owner@example.com", ownerPhone, "hash")
	require.NoError(t, database.Users().Create(context.Background(), owner))

	return &testEnv{
		database: database,
		carrier:  fc,
		tokens:   tokens,
		sink:     sink,
		service:  NewMessageService(database, tokens, gateway, sink, SenderConfig{Phone: accountPhone, Name: "SMS Relay"}),
		owner:    owner,
	}
}

func (e *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.database.GetDB().Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}
