package carrier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"sms-relay-server/internal/models"
	"sms-relay-server/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// expirySafetyMargin is subtracted from the lifetime the carrier declares.
	expirySafetyMargin = 60 * time.Second
	defaultLifetime    = 3600
)

// CredentialStore persists the single current credential.
type CredentialStore interface {
	Current(ctx context.Context) (*models.Credential, error)
	Replace(ctx context.Context, cred *models.Credential) error
	Clear(ctx context.Context) error
}

// TokenManager owns the carrier OAuth credential. At most one exchange with
// the token endpoint is in flight at any time; concurrent callers share it.
type TokenManager struct {
	cfg    Config
	store  CredentialStore
	client *http.Client
	now    func() time.Time

	mu     sync.Mutex
	cached *models.Credential
	gen    uint64 // bumped by Invalidate

	group singleflight.Group
}

// NewTokenManager creates a TokenManager. store may be nil, in which case the
// credential lives in memory only.
func NewTokenManager(cfg Config, store CredentialStore, client *http.Client) *TokenManager {
	if client == nil {
		client = NewHTTPClient(cfg)
	}
	return &TokenManager{
		cfg:    cfg,
		store:  store,
		client: client,
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// GetToken returns the current access token, exchanging for a new one when
// no valid credential exists.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	if token, ok := m.cachedToken(); ok {
		return token, nil
	}
	return m.do(ctx, false)
}

// ForceRefresh discards the current credential and exchanges for a new one.
func (m *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	if err := m.Invalidate(ctx); err != nil {
		logger.Warn("Failed to clear stored carrier credential", zap.Error(err))
	}
	return m.do(ctx, true)
}

// Invalidate drops the current credential so the next GetToken exchanges.
func (m *TokenManager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	m.cached = nil
	m.gen++
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	return m.store.Clear(ctx)
}

func (m *TokenManager) cachedToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached.IsValid(m.now()) {
		return m.cached.AccessToken, true
	}
	return "", false
}

type flightResult struct {
	token     string
	exchanged bool
}

func (m *TokenManager) do(ctx context.Context, force bool) (string, error) {
	// The shared call must not fail for every waiter because the first
	// caller went away; the HTTP client timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	res, err := m.flight(shared, force)
	if err == nil && force && !res.exchanged {
		// Joined a flight that reused the credential being replaced.
		res, err = m.flight(shared, true)
	}
	if err != nil {
		return "", err
	}
	return res.token, nil
}

func (m *TokenManager) flight(ctx context.Context, force bool) (flightResult, error) {
	v, err, _ := m.group.Do("token", func() (interface{}, error) {
		if !force {
			m.mu.Lock()
			gen := m.gen
			m.mu.Unlock()
			if token, ok := m.cachedToken(); ok {
				return flightResult{token: token}, nil
			}
			if token, ok := m.loadStored(ctx, gen); ok {
				return flightResult{token: token}, nil
			}
		}
		token, err := m.exchange(ctx)
		if err != nil {
			return nil, err
		}
		return flightResult{token: token, exchanged: true}, nil
	})
	if err != nil {
		return flightResult{}, err
	}
	return v.(flightResult), nil
}

// loadStored adopts a credential persisted by an earlier exchange, possibly
// by another process. It is not cached when Invalidate ran since gen.
func (m *TokenManager) loadStored(ctx context.Context, gen uint64) (string, bool) {
	if m.store == nil {
		return "", false
	}
	cred, err := m.store.Current(ctx)
	if err != nil {
		logger.Warn("Failed to load stored carrier credential", zap.Error(err))
		return "", false
	}
	if !cred.IsValid(m.now()) {
		return "", false
	}
	m.mu.Lock()
	if m.gen == gen {
		m.cached = cred
	}
	m.mu.Unlock()
	logger.Debug("Reusing stored carrier credential", zap.Int64("expires_at", cred.ExpiresAt))
	return cred.AccessToken, true
}

func (m *TokenManager) exchange(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", models.NewError(models.KindAuth, "failed to build token request", err)
	}
	req.SetBasicAuth(m.cfg.ClientID, m.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	logger.Info("Requesting carrier access token", zap.String("url", m.cfg.TokenURL))

	resp, err := m.client.Do(req)
	if err != nil {
		logger.Error("Carrier token request failed", zap.Error(err))
		return "", models.NewError(models.KindAuth, "token request failed", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		logger.Error("Carrier token request rejected", zap.Int("status", resp.StatusCode))
		return "", models.NewError(models.KindAuth,
			fmt.Sprintf("token endpoint returned status %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", models.NewError(models.KindAuth, "failed to decode token response", err)
	}
	if tr.AccessToken == "" {
		return "", models.Errorf(models.KindAuth, "token response has no access token")
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = defaultLifetime
	}

	now := m.now()
	cred := &models.Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(tr.ExpiresIn)*time.Second - expirySafetyMargin).Unix(),
		CreatedAt:    now.Unix(),
	}

	m.mu.Lock()
	m.cached = cred
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Replace(ctx, cred); err != nil {
			logger.Warn("Failed to persist carrier credential", zap.Error(err))
		}
	}

	logger.Info("Carrier access token obtained",
		zap.Int("token_length", len(cred.AccessToken)),
		zap.Int64("expires_at", cred.ExpiresAt))
	return cred.AccessToken, nil
}
