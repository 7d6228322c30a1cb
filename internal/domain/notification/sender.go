// internal/domain/notification/sender.go
package notification

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrRejected    = errors.New("delivery endpoint rejected the payload")
	ErrRateLimited = errors.New("delivery endpoint rate limit exceeded")
	ErrUnavailable = errors.New("delivery endpoint unavailable")
)

// Sender is the send capability of a chat delivery channel.
type Sender interface {
	SendText(ctx context.Context, body string) error
	SendStructured(ctx context.Context, summary Summary) error
}

// Kind separates failures worth retrying later from caller bugs.
type Kind string

const (
	KindTransport Kind = "transport" // network, rate limit, outage
	KindPayload   Kind = "payload"   // malformed request
)

// DeliveryError describes a failed send. Delivered fragments were not rolled back.
type DeliveryError struct {
	Kind      Kind
	Delivered int
	Total     int
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Total > 1 {
		return fmt.Sprintf("%s failure after %d/%d fragments: %v", e.Kind, e.Delivered, e.Total, e.Err)
	}
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Retryable reports whether err belongs to the transport class.
func Retryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind == KindTransport
	}
	return !errors.Is(err, ErrRejected)
}

// Partial reports whether some fragments of a failed send were delivered.
func Partial(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Delivered > 0
}
