package agent

import "fmt"

// ErrorCode classifies a provider failure. Codes are stable across
// providers; the HTTP surface maps every one of them to 503.
type ErrorCode string

const (
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeRateLimited   ErrorCode = "RATE_LIMITED"
	ErrCodeAuth          ErrorCode = "AUTH_ERROR"
	ErrCodeNetwork       ErrorCode = "NETWORK_ERROR"
	ErrCodeServer        ErrorCode = "SERVER_ERROR"
	ErrCodeClient        ErrorCode = "CLIENT_ERROR"
	ErrCodeUnknown       ErrorCode = "UNKNOWN_ERROR"
)

// errorMessages are the stable user-facing strings per code. The raw
// provider message never reaches clients; it is preserved on the error
// for logging.
var errorMessages = map[ErrorCode]string{
	ErrCodeQuotaExceeded: "AI service quota exceeded. Please check your plan and billing details.",
	ErrCodeRateLimited:   "Too many requests. Please wait a moment and try again.",
	ErrCodeAuth:          "AI service authentication failed. Please check the API key configuration.",
	ErrCodeNetwork:       "Could not reach the AI service. Please check your network connection.",
	ErrCodeServer:        "The AI service is experiencing issues. Please try again later.",
	ErrCodeClient:        "The AI service rejected the request.",
	ErrCodeUnknown:       "An unexpected error occurred while contacting the AI service.",
}

// ProviderError is a classified adapter failure.
type ProviderError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewProviderError builds a ProviderError with the stable message for
// code, wrapping the original provider error.
func NewProviderError(code ErrorCode, err error) *ProviderError {
	msg, ok := errorMessages[code]
	if !ok {
		msg = errorMessages[ErrCodeUnknown]
	}
	return &ProviderError{Code: code, Message: msg, Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError reports invalid chat input. The HTTP surface maps it
// to 400 with the message verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TimeoutError reports that the workflow exceeded its wall-clock
// budget. The HTTP surface maps it to 408.
type TimeoutError struct{}

func (e *TimeoutError) Error() string {
	return "Request timed out - workflow took too long to complete"
}
