package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMarkedErrors(t *testing.T) {
	base := errors.New("boom")
	for _, kind := range []Kind{KindNetwork, KindTimeout, KindSessionExpired, KindElementNotFound, KindServiceError, KindUnknown} {
		assert.Equal(t, kind, Classify(Mark(kind, base)), "kind %s", kind)
	}
}

func TestClassifyWrappedMark(t *testing.T) {
	err := fmt.Errorf("task 12: %w", Mark(KindSessionExpired, errors.New("login wall")))
	assert.Equal(t, KindSessionExpired, Classify(err))
}

func TestClassifyContextDeadline(t *testing.T) {
	assert.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
}

func TestClassifyKeywords(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"connection refused by host", KindNetwork},
		{"dns lookup failure", KindNetwork},
		{"operation timed out", KindTimeout},
		{"element not found: #prompt", KindElementNotFound},
		{"unable to locate submit button", KindElementNotFound},
		{"login required for claude", KindSessionExpired},
		{"rate limit exceeded", KindServiceError},
		{"something odd happened", KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(errors.New(tt.msg)), "message %q", tt.msg)
	}
}

func TestMarkNil(t *testing.T) {
	assert.NoError(t, Mark(KindTimeout, nil))
}

func TestRetryable(t *testing.T) {
	assert.False(t, KindSessionExpired.Retryable())
	assert.False(t, KindServiceError.Retryable())
	assert.True(t, KindNetwork.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindElementNotFound.Retryable())
	assert.True(t, KindUnknown.Retryable())
}
