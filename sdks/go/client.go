package assistantgateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultSigningKeyID matches the key ID the gateway assumes when a signed
// request carries no X-Key-Id header.
const defaultSigningKeyID = "default"

// Client is the assistant-gateway SDK client. It attaches credentials to
// outgoing requests and decodes gateway rejections into typed errors.
// A Client is safe for concurrent use.
type Client struct {
	baseURL       string
	apiKey        string
	sessionID     string
	signingKeyID  string
	signingSecret []byte
	timeout       time.Duration
	httpClient    *http.Client
	logger        *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewClient creates a new gateway SDK client.
// It reads configuration from ASSISTANT_GATEWAY_* environment variables by
// default. Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   os.Getenv("ASSISTANT_GATEWAY_ADDR"),
		apiKey:    os.Getenv("ASSISTANT_GATEWAY_API_KEY"),
		sessionID: os.Getenv("ASSISTANT_GATEWAY_SESSION_ID"),
		timeout:   parseDurationEnv("ASSISTANT_GATEWAY_TIMEOUT", 10*time.Second),
		logger:    slog.Default(),
		now:       time.Now,
	}
	if secret := os.Getenv("ASSISTANT_GATEWAY_SIGNING_SECRET"); secret != "" {
		c.signingSecret = []byte(secret)
		c.signingKeyID = envOrDefault("ASSISTANT_GATEWAY_SIGNING_KEY_ID", defaultSigningKeyID)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.signingSecret != nil && c.signingKeyID == "" {
		c.signingKeyID = defaultSigningKeyID
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Do performs an HTTP request through the gateway and returns the raw
// response. The body may be nil. Credentials are attached according to the
// client configuration (API key, then session ID, then request signing).
// Gateway rejections are returned as *RejectionError; other non-2xx
// responses as *APIError. The caller owns the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	url := strings.TrimRight(c.baseURL, "/") + path

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.attachCredentials(req, body)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("failed to read error response: %w", err)
	}

	err = decodeError(resp.StatusCode, respBody)
	var rej *RejectionError
	if errors.As(err, &rej) {
		c.logger.Debug("request rejected by gateway",
			"code", rej.Code,
			"request_id", rej.RequestID,
			"status", rej.StatusCode,
		)
	}
	return nil, err
}

// DoJSON performs a JSON round trip through the gateway. The request body is
// marshaled from reqBody (skipped when nil) and the response decoded into
// result (skipped when nil).
func (c *Client) DoJSON(ctx context.Context, method, path string, reqBody, result any) error {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	resp, err := c.Do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if result == nil {
		_, err = io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// Status fetches the gateway's public status endpoint. It requires no
// credentials and is useful as a reachability probe.
func (c *Client) Status(ctx context.Context) (*GatewayStatus, error) {
	var status GatewayStatus
	if err := c.DoJSON(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// attachCredentials sets the authentication headers for a request.
// The gateway resolves the first credential header present, so exactly one
// scheme is attached: API key, then session ID, then request signing.
func (c *Client) attachCredentials(req *http.Request, body []byte) {
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	switch {
	case c.apiKey != "":
		req.Header.Set(HeaderAPIKey, c.apiKey)
	case c.sessionID != "":
		req.Header.Set(HeaderSessionID, c.sessionID)
	case c.signingSecret != nil:
		ts := c.now().UTC().Unix()
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderKeyID, c.signingKeyID)
		req.Header.Set(HeaderSignature, c.sign(req.Method, req.URL.Path, body, ts))
	}
}

// sign computes the hex HMAC-SHA256 signature over the canonical string the
// gateway verifies: method, path, body, and timestamp joined with newlines.
func (c *Client) sign(method, path string, body []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, c.signingSecret)
	mac.Write([]byte(method))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(path))
	mac.Write([]byte{'\n'})
	mac.Write(body)
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// decodeError turns a non-2xx response into the most specific error type.
func decodeError(status int, body []byte) error {
	var rej Rejection
	if err := json.Unmarshal(body, &rej); err == nil && rej.Error != "" {
		return &RejectionError{
			StatusCode: status,
			Code:       rej.Error,
			Message:    rej.Message,
			RequestID:  rej.RequestID,
		}
	}
	return &APIError{
		StatusCode: status,
		Body:       string(body),
	}
}

// Helper functions for env var parsing.

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
