package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSubmissionRateLimiter_WindowConversion(t *testing.T) {
	l := NewSubmissionRateLimiter(nil, 10, 90*time.Second)
	assert.Equal(t, 10, l.maxTokens)
	assert.Equal(t, int64(90), l.windowSize)
}

func TestNewSubmissionRateLimiter_SubSecondWindowTruncates(t *testing.T) {
	l := NewSubmissionRateLimiter(nil, 5, 500*time.Millisecond)
	assert.Equal(t, int64(0), l.windowSize)
}
