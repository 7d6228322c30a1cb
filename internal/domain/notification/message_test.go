package notification

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummaryText(t *testing.T) {
	s := Summary{
		Title: "title",
		Sections: []Section{
			{Title: "sleep", Description: "score 80", Fields: []Field{{Name: "deep", Value: "1h"}}},
			{Title: "policy", Footer: "footer"},
		},
	}
	assert.Equal(t, "title\n\nsleep\nscore 80\n• deep: 1h\n\npolicy\nfooter", s.Text())
}

func TestParseType(t *testing.T) {
	for _, want := range Types {
		got, err := ParseType(string(want))
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseType("evening")
	assert.Error(t, err)
}

func TestJobKeys(t *testing.T) {
	j := Job{Type: TypeNight, TargetDate: time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "2026-10-14", j.DateKey())
	assert.Equal(t, "night/2026-10-14", j.String())
}

func TestRetryableClassification(t *testing.T) {
	transport := &DeliveryError{Kind: KindTransport, Err: ErrUnavailable}
	payload := &DeliveryError{Kind: KindPayload, Delivered: 2, Total: 3, Err: ErrRejected}

	assert.True(t, Retryable(fmt.Errorf("job: %w", transport)))
	assert.False(t, Retryable(payload))
	assert.True(t, Partial(payload))
	assert.False(t, Partial(transport))
	assert.False(t, Retryable(fmt.Errorf("x: %w", ErrRejected)))
	assert.True(t, Retryable(errors.New("network down")))
	assert.Contains(t, payload.Error(), "2/3 fragments")
}
