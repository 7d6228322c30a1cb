// internal/domain/health/client.go
package health

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("no health data for the requested day")
	ErrUnauthorized   = errors.New("health provider rejected the access token")
	ErrRateLimited    = errors.New("health provider rate limit exceeded")
	ErrUnavailable    = errors.New("health provider unavailable")
	ErrInvalidRequest = errors.New("health provider rejected the request")
)

// Client fetches daily records from the health-data provider.
// Dates are calendar days; the time-of-day part is ignored.
type Client interface {
	FetchDay(ctx context.Context, day time.Time) (*Record, error)
	// FetchRange returns records in ascending order. Days without data are omitted.
	FetchRange(ctx context.Context, start, end time.Time) ([]Record, error)
}
