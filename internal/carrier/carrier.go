// Package carrier is the client side of the upstream SMS carrier API:
// OAuth client-credentials tokens, outbound sends and balance checks.
package carrier

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds every call to the carrier.
const DefaultTimeout = 30 * time.Second

const userAgent = "sms-relay-server/1.0"

// Config is the carrier account the server relays through.
type Config struct {
	BaseURL      string // e.g. https://api.orange.com
	TokenURL     string // OAuth token endpoint
	ClientID     string
	ClientSecret string
	SenderPhone  string // canonical number of the carrier account
	SenderName   string // optional label shown to recipients
	Timeout      time.Duration
}

// NewHTTPClient returns a client with the configured timeout.
func NewHTTPClient(cfg Config) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
