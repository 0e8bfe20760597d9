package translate

import (
	"encoding/json"
	"net/http"
)

// FallbackErrorMessage is reported when the upstream connection itself
// fails and no response body exists to relay.
const FallbackErrorMessage = "Upstream request failed"

// Native error types understood by clients of the messages API.
const (
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeAuthentication = "authentication_error"
	ErrTypePermission     = "permission_error"
	ErrTypeNotFound       = "not_found_error"
	ErrTypeRateLimit      = "rate_limit_error"
	ErrTypeAPI            = "api_error"
	ErrTypeOverloaded     = "overloaded_error"
)

// ErrorEnvelope is the native error body shape.
type ErrorEnvelope struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the error type and human-readable message.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// chatErrorBody matches the error shape chat-completion providers return.
type chatErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ErrorTypeForStatus maps an upstream HTTP status to the native error
// type clients expect for it.
func ErrorTypeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrTypeInvalidRequest
	case http.StatusUnauthorized:
		return ErrTypeAuthentication
	case http.StatusForbidden:
		return ErrTypePermission
	case http.StatusNotFound:
		return ErrTypeNotFound
	case http.StatusTooManyRequests:
		return ErrTypeRateLimit
	case http.StatusServiceUnavailable, 529:
		return ErrTypeOverloaded
	default:
		return ErrTypeAPI
	}
}

// ErrorFromUpstream builds a native error envelope from an upstream
// error response. The upstream message is relayed when its body parses
// as a provider error; otherwise the raw body text is used, and the
// fallback message when the body is empty.
func ErrorFromUpstream(status int, body []byte) ErrorEnvelope {
	message := FallbackErrorMessage

	var parsed chatErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	} else if len(body) > 0 {
		message = string(body)
	}

	return ErrorEnvelope{
		Type: "error",
		Error: ErrorDetail{
			Type:    ErrorTypeForStatus(status),
			Message: message,
		},
	}
}

// ErrorFromTransport builds the envelope for a failure reaching the
// upstream at all. The concrete transport error stays in the proxy log;
// clients get a stable message.
func ErrorFromTransport() ErrorEnvelope {
	return ErrorEnvelope{
		Type: "error",
		Error: ErrorDetail{
			Type:    ErrTypeAPI,
			Message: FallbackErrorMessage,
		},
	}
}
