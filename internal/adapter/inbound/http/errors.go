package http

import (
	"encoding/json"
	"net/http"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/domain/gateway"
)

// RejectionResponse is the JSON body returned for rejected requests.
type RejectionResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// writeRejection maps a classified gateway error to the rejection shape.
// In production mode the message is always the sanitized category text;
// dev mode may include the underlying error for local debugging.
func writeRejection(w http.ResponseWriter, requestID string, classified, cause error, devMode bool) {
	message := gateway.SafeMessage(classified)
	if devMode && cause != nil {
		message = message + ": " + cause.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gateway.HTTPStatus(classified))
	_ = json.NewEncoder(w).Encode(RejectionResponse{
		Error:     gateway.ErrorCode(classified),
		Message:   message,
		RequestID: requestID,
	})
}
