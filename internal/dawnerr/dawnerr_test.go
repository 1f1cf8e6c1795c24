package dawnerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Run("BasicError", func(t *testing.T) {
		err := New(CodeInternal, "something went wrong", nil)
		assert.Equal(t, CodeInternal, err.Code)
		assert.Equal(t, "INTERNAL_ERROR: something went wrong", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("ErrorWithCause", func(t *testing.T) {
		cause := errors.New("dial tcp: connection refused")
		err := New(CodeNetworkTransient, "connect failed", cause)
		assert.Equal(t, cause, err.Unwrap())
		assert.Contains(t, err.Error(), "caused by: dial tcp")
	})

	t.Run("WithDetails", func(t *testing.T) {
		err := New(CodeRateLimited, "too many requests", nil).
			WithDetails("retry_after_ms", 500)
		assert.Equal(t, 500, err.Details["retry_after_ms"])
	})
}

func TestIs(t *testing.T) {
	err := New(CodeCircuitOpen, "peer breaker open", nil)
	assert.True(t, Is(err, CodeCircuitOpen))
	assert.False(t, Is(err, CodeRateLimited))
	assert.False(t, Is(errors.New("plain"), CodeCircuitOpen))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(CodeNetworkTransient))
	assert.True(t, Retryable(CodeHandler))
	assert.True(t, Retryable(CodeStorage))
	assert.False(t, Retryable(CodeCircuitOpen))
	assert.False(t, Retryable(CodeUnauthorized))
	assert.False(t, Retryable(CodeRateLimited))
	assert.False(t, Retryable(CodeCrypto))
}
