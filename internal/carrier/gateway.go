package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"sms-relay-server/internal/models"
	"sms-relay-server/internal/phone"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
)

// SendResult is the carrier's acceptance of an outbound message.
type SendResult struct {
	CarrierMessageID string // empty when the carrier returned no resource URL
	DeliveryStatus   string // carrier delivery-info value, e.g. DeliveredToNetwork
	ResourceURL      string
}

// BalanceInfo describes the first contract of the carrier account.
type BalanceInfo struct {
	AvailableUnits int64  `json:"available_units"`
	Status         string `json:"status"`
	ExpirationDate string `json:"expiration_date,omitempty"`
	Country        string `json:"country,omitempty"`
	OfferName      string `json:"offer_name,omitempty"`
}

// Gateway executes calls against the carrier with a token supplied by the
// caller. It holds no credential of its own.
type Gateway struct {
	baseURL string
	client  *http.Client
}

func NewGateway(cfg Config, client *http.Client) *Gateway {
	if client == nil {
		client = NewHTTPClient(cfg)
	}
	return &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

type outboundEnvelope struct {
	Request outboundRequest `json:"outboundSMSMessageRequest"`
}

type outboundRequest struct {
	Address       string `json:"address"`
	SenderAddress string `json:"senderAddress"`
	TextMessage   struct {
		Message string `json:"message"`
	} `json:"outboundSMSTextMessage"`
	SenderName  string `json:"senderName,omitempty"`
	ResourceURL string `json:"resourceURL,omitempty"`
}

// Send submits one SMS. recipient and sender must already be canonical.
func (g *Gateway) Send(ctx context.Context, token, sender, recipient, body, senderName string) (*SendResult, error) {
	var env outboundEnvelope
	env.Request.Address = phone.Address(recipient)
	env.Request.SenderAddress = phone.Address(sender)
	env.Request.TextMessage.Message = body
	env.Request.SenderName = senderName

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, models.NewError(models.KindRequest, "failed to encode send request", err)
	}

	endpoint := fmt.Sprintf("%s/smsmessaging/v1/outbound/%s/requests",
		g.baseURL, url.QueryEscape(phone.Address(sender)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, models.NewError(models.KindRequest, "failed to build send request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		logger.Error("Carrier send failed", zap.String("recipient", recipient), zap.Error(err))
		return nil, models.NewError(models.KindTransport, "carrier unreachable", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	logger.Info("Carrier send response",
		zap.String("recipient", recipient),
		zap.Int("status", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusCreated:
		result := &SendResult{DeliveryStatus: models.CarrierDeliveredToNetwork}
		var created outboundEnvelope
		if err := json.Unmarshal(respBody, &created); err != nil {
			logger.Warn("Carrier send response not parseable", zap.Error(err))
			return result, nil
		}
		result.ResourceURL = created.Request.ResourceURL
		result.CarrierMessageID = lastSegment(created.Request.ResourceURL)
		return result, nil
	case http.StatusUnauthorized:
		return nil, models.Errorf(models.KindAuth, "carrier rejected access token")
	case http.StatusBadRequest:
		return nil, models.Errorf(models.KindRequest, "carrier rejected request: %s", strings.TrimSpace(string(respBody)))
	default:
		return nil, models.Errorf(models.KindGateway, "carrier returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}

type contract struct {
	AvailableUnits int64  `json:"availableUnits"`
	Status         string `json:"status"`
	ExpirationDate string `json:"expirationDate"`
	Country        string `json:"country"`
	OfferName      string `json:"offerName"`
}

// CheckBalance returns the first contract of the account, or nil when the
// carrier cannot be asked or answers with anything unexpected.
func (g *Gateway) CheckBalance(ctx context.Context, token string) *BalanceInfo {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/sms/admin/v1/contracts", nil)
	if err != nil {
		logger.Warn("Failed to build balance request", zap.Error(err))
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		logger.Warn("Carrier balance request failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("Carrier balance request rejected", zap.Int("status", resp.StatusCode))
		return nil
	}

	var contracts []contract
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&contracts); err != nil {
		logger.Warn("Carrier balance response not parseable", zap.Error(err))
		return nil
	}
	if len(contracts) == 0 {
		logger.Warn("Carrier account has no contracts")
		return nil
	}

	c := contracts[0]
	if c.Status == "" {
		c.Status = "UNKNOWN"
	}
	return &BalanceInfo{
		AvailableUnits: c.AvailableUnits,
		Status:         c.Status,
		ExpirationDate: c.ExpirationDate,
		Country:        c.Country,
		OfferName:      c.OfferName,
	}
}

func lastSegment(resourceURL string) string {
	trimmed := strings.TrimRight(resourceURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
