package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
)

// classifyStatus maps an HTTP status from a provider response to an
// adapter error code.
func classifyStatus(status int) agent.ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return agent.ErrCodeAuth
	case status == http.StatusPaymentRequired:
		return agent.ErrCodeQuotaExceeded
	case status == http.StatusTooManyRequests:
		return agent.ErrCodeRateLimited
	case status >= 500:
		return agent.ErrCodeServer
	case status >= 400:
		return agent.ErrCodeClient
	default:
		return agent.ErrCodeUnknown
	}
}

// classifyCode refines classification using the provider-specific error
// code. OpenAI reports exhausted quota as HTTP 429 with code
// insufficient_quota; that is a billing problem, not a transient rate
// limit, so the code wins over the status.
func classifyCode(code string) agent.ErrorCode {
	switch strings.ToLower(code) {
	case "insufficient_quota", "billing_error":
		return agent.ErrCodeQuotaExceeded
	case "rate_limit_error", "rate_limit_exceeded":
		return agent.ErrCodeRateLimited
	case "authentication_error", "invalid_api_key", "permission_error":
		return agent.ErrCodeAuth
	case "api_error", "internal_error", "overloaded_error", "server_error":
		return agent.ErrCodeServer
	case "invalid_request_error", "not_found_error":
		return agent.ErrCodeClient
	default:
		return agent.ErrCodeUnknown
	}
}

// combineStatusAndCode resolves the final classification when both an
// HTTP status and a provider error code are available.
func combineStatusAndCode(status int, code string) agent.ErrorCode {
	if refined := classifyCode(code); refined != agent.ErrCodeUnknown {
		return refined
	}
	return classifyStatus(status)
}

// classifyTransport classifies errors that never produced an HTTP
// response: DNS failures, refused connections, timeouts.
func classifyTransport(err error) agent.ErrorCode {
	if err == nil {
		return agent.ErrCodeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return agent.ErrCodeNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return agent.ErrCodeNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"broken pipe",
		"timeout",
		"deadline exceeded",
	} {
		if strings.Contains(msg, needle) {
			return agent.ErrCodeNetwork
		}
	}
	return agent.ErrCodeUnknown
}
