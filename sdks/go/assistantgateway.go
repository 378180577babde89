// Package assistantgateway provides a Go SDK for calling services fronted by
// the assistant-gateway request security layer.
//
// The gateway authenticates every request and rejects anything that fails
// threat scoring, authentication, or rate limiting. This SDK attaches the
// right credential headers automatically and translates gateway rejections
// into typed errors. It uses only the Go standard library (net/http and
// crypto/hmac) with zero external dependencies.
//
// Quick start:
//
//	// Set ASSISTANT_GATEWAY_ADDR and ASSISTANT_GATEWAY_API_KEY env vars, then:
//	client := assistantgateway.NewClient()
//
//	var answer struct{ Text string `json:"text"` }
//	err := client.DoJSON(ctx, http.MethodPost, "/api/ask",
//	    map[string]string{"prompt": "hello"}, &answer)
//	if err != nil {
//	    var rej *RejectionError
//	    if errors.As(err, &rej) {
//	        fmt.Printf("rejected (%s): %s\n", rej.Code, rej.Message)
//	    }
//	}
//
// Clients holding an HMAC signing secret instead of an API key use
// WithSigningKey; every request is then signed with a fresh timestamp.
package assistantgateway

// Credential headers understood by the gateway.
const (
	// HeaderAPIKey carries a raw API key.
	HeaderAPIKey = "X-Api-Key"

	// HeaderSessionID carries a previously issued session identifier.
	HeaderSessionID = "X-Session-Id"

	// HeaderSignature carries the hex HMAC-SHA256 request signature.
	HeaderSignature = "X-Signature"

	// HeaderTimestamp carries the unix-seconds timestamp the signature covers.
	HeaderTimestamp = "X-Timestamp"

	// HeaderKeyID names the signing key; the gateway assumes "default"
	// when it is absent.
	HeaderKeyID = "X-Key-Id"

	// HeaderRequestID echoes the gateway-assigned request identifier.
	HeaderRequestID = "X-Request-ID"
)

// Rejection codes the gateway returns in the "error" field of a
// rejection body.
const (
	CodeThreatBlocked     = "ThreatBlocked"
	CodeAuthFailure       = "AuthenticationFailure"
	CodeRateLimitExceeded = "RateLimitExceeded"
	CodeSignatureInvalid  = "SignatureInvalid"
	CodeInternal          = "Internal"
)

// Rejection is the JSON body the gateway sends with every rejected request.
type Rejection struct {
	// Error is the machine-readable rejection code.
	Error string `json:"error"`

	// Message is a sanitized human-readable description.
	Message string `json:"message"`

	// RequestID identifies the rejected request in the gateway's audit log.
	RequestID string `json:"request_id"`
}

// GatewayStatus is the response of the gateway's public /status endpoint.
type GatewayStatus struct {
	// Status is "ok" while the gateway is serving.
	Status string `json:"status"`

	// Version is the running gateway version.
	Version string `json:"version"`

	// Uptime is the human-readable time since boot.
	Uptime string `json:"uptime"`
}
