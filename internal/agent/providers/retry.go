package providers

import (
	"context"
	"errors"

	"github.com/thavelick/insight-magician-sub000/internal/agent"
	"github.com/thavelick/insight-magician-sub000/internal/retry"
)

// retryableCode reports whether a classified failure is worth another
// attempt. Auth, quota, and request-shape failures will fail the same
// way every time; rate limits, server errors, and network failures may
// clear.
func retryableCode(code agent.ErrorCode) bool {
	switch code {
	case agent.ErrCodeRateLimited, agent.ErrCodeServer, agent.ErrCodeNetwork:
		return true
	default:
		return false
	}
}

// callWithRetry runs one provider API call under the given retry
// policy. The call must return errors already classified as
// *agent.ProviderError; non-retryable codes are marked permanent so
// they fail without burning the remaining attempts. The returned error
// is always a *agent.ProviderError.
func callWithRetry[T any](ctx context.Context, policy retry.Config, call func() (T, error)) (T, error) {
	value, result := retry.DoWithValue(ctx, policy, func() (T, error) {
		value, err := call()
		if err != nil {
			var provErr *agent.ProviderError
			if errors.As(err, &provErr) && !retryableCode(provErr.Code) {
				return value, retry.Permanent(err)
			}
		}
		return value, err
	})
	if result.Err == nil {
		return value, nil
	}

	err := result.Err
	var permanent *retry.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	// Context errors from an aborted backoff arrive unclassified.
	var provErr *agent.ProviderError
	if !errors.As(err, &provErr) {
		err = agent.NewProviderError(classifyTransport(err), err)
	}
	return value, err
}
