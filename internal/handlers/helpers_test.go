package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"sms-relay-server/internal/carrier"
	"sms-relay-server/internal/models"
	"sms-relay-server/internal/services"
	"sms-relay-server/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testUserID = "user-1"

// MockMessageService is a mock implementation of MessageServiceInterface for testing
type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) SendMessage(ctx context.Context, userID, recipient, body string, conversationID *int64) (*services.SendOutcome, error) {
	args := m.Called(ctx, userID, recipient, body, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SendOutcome), args.Error(1)
}

func (m *MockMessageService) ApplyDeliveryReceipt(ctx context.Context, carrierMessageID, status, address string) (*models.Message, error) {
	args := m.Called(ctx, carrierMessageID, status, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockMessageService) IngestInbound(ctx context.Context, in services.InboundSMS) (*services.InboundOutcome, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.InboundOutcome), args.Error(1)
}

func (m *MockMessageService) CheckBalance(ctx context.Context) *carrier.BalanceInfo {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*carrier.BalanceInfo)
}

func (m *MockMessageService) History(ctx context.Context, userID string, limit, offset int) ([]*models.MessageResponse, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.MessageResponse), args.Error(1)
}

// MockConversationService is a mock implementation of ConversationServiceInterface for testing
type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) List(ctx context.Context, userID string) ([]*models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ConversationSummary), args.Error(1)
}

func (m *MockConversationService) Search(ctx context.Context, userID, query string) ([]*models.ConversationSummary, error) {
	args := m.Called(ctx, userID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ConversationSummary), args.Error(1)
}

func (m *MockConversationService) Create(ctx context.Context, userID, contactPhone, contactName string) (*models.Conversation, bool, error) {
	args := m.Called(ctx, userID, contactPhone, contactName)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Conversation), args.Bool(1), args.Error(2)
}

func (m *MockConversationService) Get(ctx context.Context, userID string, id int64) (*models.ConversationDetail, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConversationDetail), args.Error(1)
}

func (m *MockConversationService) Messages(ctx context.Context, userID string, id int64) ([]*models.MessageResponse, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.MessageResponse), args.Error(1)
}

func (m *MockConversationService) MarkRead(ctx context.Context, userID string, id int64) (int64, error) {
	args := m.Called(ctx, userID, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockConversationService) SetArchived(ctx context.Context, userID string, id int64, archived bool) (*models.Conversation, error) {
	args := m.Called(ctx, userID, id, archived)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

// newTestEngine returns an engine whose requests are authenticated as userID.
// An empty userID leaves requests unauthenticated.
func newTestEngine(userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if userID != "" {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.UserIDKey, userID)
			c.Next()
		})
	}
	return r
}

// doJSON performs a request with an optional JSON body and decodes the response.
func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var response map[string]interface{}
	if len(w.Body.Bytes()) > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func strPtr(s string) *string {
	return &s
}
