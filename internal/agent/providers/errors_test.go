package providers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   agent.ErrorCode
	}{
		{401, agent.ErrCodeAuth},
		{403, agent.ErrCodeAuth},
		{402, agent.ErrCodeQuotaExceeded},
		{429, agent.ErrCodeRateLimited},
		{500, agent.ErrCodeServer},
		{503, agent.ErrCodeServer},
		{400, agent.ErrCodeClient},
		{404, agent.ErrCodeClient},
		{0, agent.ErrCodeUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestClassifyCode(t *testing.T) {
	tests := []struct {
		code string
		want agent.ErrorCode
	}{
		{"insufficient_quota", agent.ErrCodeQuotaExceeded},
		{"rate_limit_error", agent.ErrCodeRateLimited},
		{"authentication_error", agent.ErrCodeAuth},
		{"overloaded_error", agent.ErrCodeServer},
		{"invalid_request_error", agent.ErrCodeClient},
		{"something_else", agent.ErrCodeUnknown},
		{"", agent.ErrCodeUnknown},
	}
	for _, tt := range tests {
		if got := classifyCode(tt.code); got != tt.want {
			t.Errorf("classifyCode(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestCombineStatusAndCode(t *testing.T) {
	// 429 with insufficient_quota is a billing problem; the code wins.
	if got := combineStatusAndCode(429, "insufficient_quota"); got != agent.ErrCodeQuotaExceeded {
		t.Errorf("combineStatusAndCode(429, insufficient_quota) = %q, want QUOTA_EXCEEDED", got)
	}
	// Unrecognized code falls back to the status.
	if got := combineStatusAndCode(429, "mystery"); got != agent.ErrCodeRateLimited {
		t.Errorf("combineStatusAndCode(429, mystery) = %q, want RATE_LIMITED", got)
	}
}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want agent.ErrorCode
	}{
		{"connection refused", errors.New("dial tcp 127.0.0.1:443: connection refused"), agent.ErrCodeNetwork},
		{"dns failure", errors.New("lookup api.example.com: no such host"), agent.ErrCodeNetwork},
		{"timeout text", errors.New("request timeout after 30s"), agent.ErrCodeNetwork},
		{"unrelated", errors.New("something exploded"), agent.ErrCodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyTransport(tt.err); got != tt.want {
				t.Errorf("classifyTransport(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestProviderErrorStableMessages(t *testing.T) {
	err := agent.NewProviderError(agent.ErrCodeRateLimited, errors.New("raw provider text with details"))
	if err.Message != "Too many requests. Please wait a moment and try again." {
		t.Errorf("Message = %q, want the stable user-facing string", err.Message)
	}
	if err.Code != agent.ErrCodeRateLimited {
		t.Errorf("Code = %q", err.Code)
	}
	if !errors.Is(err, err.Err) {
		t.Error("wrapped error should unwrap to the original")
	}
}
