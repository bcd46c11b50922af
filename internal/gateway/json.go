package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
)

// errorDetail is the inner error object of the Anthropic wire format.
type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorResponse mirrors the provider's error envelope so clients see a
// single error shape regardless of where the failure happened.
type errorResponse struct {
	Type  string      `json:"type"`
	Error errorDetail `json:"error"`
}

func newErrorResponse(errType, message string) *errorResponse {
	return &errorResponse{Type: "error", Error: errorDetail{Type: errType, Message: message}}
}

// writeJSON writes a JSON response with the given status code. Headers and
// status go out before encoding, so an encoding failure can only produce a
// truncated body, never a wrong status.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeUpstreamError relays an upstream failure to the client. Provider
// errors pass through with their original status code and error body;
// anything else (network failure, timeout) is wrapped as a generic
// api_error.
func writeUpstreamError(ctx context.Context, w http.ResponseWriter, err error) {
	resp, status := upstreamErrorResponse(err)
	writeJSON(ctx, w, resp, status)
}

// upstreamErrorResponse normalizes any error into the provider's error
// envelope plus an HTTP status code.
func upstreamErrorResponse(err error) (*errorResponse, int) {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if parsed := parseErrorResponse(apiErr.RawJSON()); parsed != nil {
			status := apiErr.StatusCode
			if status == 0 {
				status = http.StatusInternalServerError
			}
			return parsed, status
		}
		return newErrorResponse("api_error", apiErr.Error()), http.StatusInternalServerError
	}

	return newErrorResponse("api_error", err.Error()), http.StatusInternalServerError
}

// parseErrorResponse decodes the provider's error JSON, returning nil when
// the payload doesn't match the expected envelope.
func parseErrorResponse(raw string) *errorResponse {
	var resp errorResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil
	}
	if resp.Error.Type == "" && resp.Error.Message == "" {
		return nil
	}
	resp.Type = "error"
	return &resp
}
