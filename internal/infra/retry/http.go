// internal/infra/retry/http.go
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 4 << 20

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, Truncate(string(e.Body), 200))
}

// Outcome classes for one HTTP attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeTransient
	OutcomePermanent
)

// Classify maps a status code to an outcome.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusTooManyRequests:
		return OutcomeRateLimited
	case status >= 500:
		return OutcomeTransient
	default:
		return OutcomePermanent
	}
}

// RetryAfter reads the advertised wait from a 429 response: the JSON body field
// retry_after in seconds first, then the Retry-After header. Zero means absent.
func RetryAfter(resp *Response) time.Duration {
	var body struct {
		RetryAfter *float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.RetryAfter != nil && *body.RetryAfter > 0 {
		return time.Duration(*body.RetryAfter * float64(time.Second))
	}
	if h := strings.TrimSpace(resp.Header.Get("Retry-After")); h != "" {
		if secs, err := strconv.ParseFloat(h, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

// DoHTTP sends the request built by newReq until it succeeds or the policy gives up.
// Failures carry a *StatusError when the server answered.
func (r *Runner) DoHTTP(ctx context.Context, client *http.Client, newReq func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	var out *Response
	err := r.Do(ctx, func(ctx context.Context, attempt int) error {
		req, err := newReq(ctx)
		if err != nil {
			return Permanent(fmt.Errorf("building request: %w", err))
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		r.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"method":  req.Method,
			"path":    req.URL.Path,
			"status":  resp.StatusCode,
		}).Debug("HTTP attempt finished")

		res := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: body}
		switch Classify(resp.StatusCode) {
		case OutcomeSuccess:
			out = res
			return nil
		case OutcomeRateLimited:
			return RateLimited(RetryAfter(res), statusErr)
		case OutcomeTransient:
			return statusErr
		default:
			return Permanent(statusErr)
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Truncate shortens s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
