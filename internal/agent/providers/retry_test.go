package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/retry"
)

func TestRetryableCode(t *testing.T) {
	tests := []struct {
		code agent.ErrorCode
		want bool
	}{
		{agent.ErrCodeRateLimited, true},
		{agent.ErrCodeServer, true},
		{agent.ErrCodeNetwork, true},
		{agent.ErrCodeAuth, false},
		{agent.ErrCodeQuotaExceeded, false},
		{agent.ErrCodeClient, false},
		{agent.ErrCodeUnknown, false},
	}

	for _, tt := range tests {
		if got := retryableCode(tt.code); got != tt.want {
			t.Errorf("retryableCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestCallWithRetry_RetriesOnlyTransientCodes(t *testing.T) {
	calls := 0
	_, err := callWithRetry(context.Background(), retry.Linear(3, time.Millisecond), func() (int, error) {
		calls++
		return 0, agent.NewProviderError(agent.ErrCodeServer, errors.New("upstream 500"))
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	var provErr *agent.ProviderError
	if !errors.As(err, &provErr) || provErr.Code != agent.ErrCodeServer {
		t.Errorf("error = %v, want server-coded provider error", err)
	}

	calls = 0
	_, err = callWithRetry(context.Background(), retry.Linear(3, time.Millisecond), func() (int, error) {
		calls++
		return 0, agent.NewProviderError(agent.ErrCodeClient, errors.New("bad request"))
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1 for a non-retryable code", calls)
	}
	if !errors.As(err, &provErr) || provErr.Code != agent.ErrCodeClient {
		t.Errorf("error = %v, want client-coded provider error", err)
	}
}

func TestCallWithRetry_NormalizesUnclassifiedErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := callWithRetry(ctx, retry.Linear(2, time.Millisecond), func() (int, error) {
		t.Fatal("operation should not run after cancellation")
		return 0, nil
	})

	var provErr *agent.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error = %T, want *agent.ProviderError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error chain lost context.Canceled: %v", err)
	}
}

func TestCallWithRetry_ReturnsValueOnSuccess(t *testing.T) {
	calls := 0
	value, err := callWithRetry(context.Background(), retry.Linear(2, time.Millisecond), func() (string, error) {
		calls++
		if calls == 1 {
			return "", agent.NewProviderError(agent.ErrCodeRateLimited, errors.New("429"))
		}
		return "answer", nil
	})

	if err != nil {
		t.Fatalf("callWithRetry() error = %v", err)
	}
	if value != "answer" {
		t.Errorf("value = %q, want %q", value, "answer")
	}
}
