package assistantgateway

import (
	"log/slog"
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL sets the gateway base URL.
// If not set, defaults to the ASSISTANT_GATEWAY_ADDR environment variable.
func WithBaseURL(addr string) Option {
	return func(c *Client) {
		c.baseURL = addr
	}
}

// WithAPIKey sets the API key sent in the X-Api-Key header.
// If not set, defaults to the ASSISTANT_GATEWAY_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithSessionID sets a session identifier sent in the X-Session-Id header.
// An API key, when also configured, takes precedence.
func WithSessionID(id string) Option {
	return func(c *Client) {
		c.sessionID = id
	}
}

// WithSigningKey configures HMAC request signing. Every request is signed
// with the secret and carries the key ID in X-Key-Id. An API key or session
// ID, when also configured, takes precedence over signing.
func WithSigningKey(keyID, secret string) Option {
	return func(c *Client) {
		c.signingKeyID = keyID
		c.signingSecret = []byte(secret)
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient sets a custom http.Client for making requests.
// This is useful for testing, proxying, or custom transport configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger used for SDK diagnostics.
// If not set, defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}
