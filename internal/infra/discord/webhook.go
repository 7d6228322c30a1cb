// internal/infra/discord/webhook.go
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/infra/retry"
)

const (
	MaxContentLength    = 2000
	MaxEmbedsPerMessage = 10
	maxEmbedDescription = 4096
	maxEmbedTitle       = 256
	maxFieldValue       = 1024
	debugBodyLimit      = 500
)

// Webhook implements notification.Sender over a Discord webhook URL.
type Webhook struct {
	url        string
	username   string
	avatarURL  string
	httpClient *http.Client
	runner     *retry.Runner
	debug      bool
	logger     *logrus.Entry
}

// Options configures the webhook identity and diagnostics.
type Options struct {
	Username  string
	AvatarURL string
	Timeout   time.Duration
	Debug     bool // log non-success response bodies
}

func NewWebhook(url string, opts Options, runner *retry.Runner, logger *logrus.Entry) *Webhook {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Webhook{
		url:        url,
		username:   opts.Username,
		avatarURL:  opts.AvatarURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		runner:     runner,
		debug:      opts.Debug,
		logger:     logger,
	}
}

type payload struct {
	Content   string  `json:"content,omitempty"`
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Embeds    []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// SendText posts body, split into ordered fragments at line boundaries.
func (w *Webhook) SendText(ctx context.Context, body string) error {
	if strings.TrimSpace(body) == "" {
		return &notification.DeliveryError{Kind: notification.KindPayload, Total: 1,
			Err: fmt.Errorf("%w: empty message", notification.ErrRejected)}
	}
	if notification.Oversized(body, MaxContentLength) {
		w.logger.WithField("limit", MaxContentLength).Warn("Message has a line longer than the limit, it will be cut")
	}

	var payloads []payload
	for _, fragment := range notification.Chunk(body, MaxContentLength) {
		if strings.TrimSpace(fragment) == "" {
			continue
		}
		payloads = append(payloads, w.base(fragment))
	}
	return w.sendAll(ctx, payloads)
}

// SendStructured posts the summary as embeds, at most ten per message.
// The first message carries the title as content.
func (w *Webhook) SendStructured(ctx context.Context, summary notification.Summary) error {
	if len(summary.Sections) == 0 {
		return w.SendText(ctx, summary.Title)
	}

	var payloads []payload
	for start := 0; start < len(summary.Sections); start += MaxEmbedsPerMessage {
		end := min(start+MaxEmbedsPerMessage, len(summary.Sections))
		content := ""
		if start == 0 {
			content = retry.Truncate(summary.Title, MaxContentLength)
		}
		p := w.base(content)
		for _, s := range summary.Sections[start:end] {
			p.Embeds = append(p.Embeds, toEmbed(s))
		}
		payloads = append(payloads, p)
	}
	return w.sendAll(ctx, payloads)
}

func (w *Webhook) base(content string) payload {
	return payload{Content: content, Username: w.username, AvatarURL: w.avatarURL}
}

func toEmbed(s notification.Section) embed {
	e := embed{
		Title:       retry.Truncate(s.Title, maxEmbedTitle),
		Description: retry.Truncate(s.Description, maxEmbedDescription),
		Color:       s.Color,
	}
	for _, f := range s.Fields {
		e.Fields = append(e.Fields, embedField{Name: f.Name, Value: retry.Truncate(f.Value, maxFieldValue), Inline: f.Inline})
	}
	if s.Footer != "" {
		e.Footer = &embedFooter{Text: s.Footer}
	}
	return e
}

// sendAll posts payloads strictly in order and stops at the first failure.
func (w *Webhook) sendAll(ctx context.Context, payloads []payload) error {
	for i, p := range payloads {
		if err := w.post(ctx, p); err != nil {
			de := deliveryError(err)
			de.Delivered, de.Total = i, len(payloads)
			if i > 0 {
				w.logger.WithError(err).WithFields(logrus.Fields{
					"delivered": i,
					"total":     len(payloads),
				}).Error("Partial delivery: earlier fragments were already posted")
			}
			return de
		}
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return retry.Permanent(fmt.Errorf("encoding payload: %w", err))
	}

	_, err = w.runner.DoHTTP(ctx, w.httpClient, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})

	var se *retry.StatusError
	if err != nil && w.debug && errors.As(err, &se) {
		w.logger.WithFields(logrus.Fields{
			"status": se.StatusCode,
			"body":   retry.Truncate(string(se.Body), debugBodyLimit),
		}).Warn("Webhook returned non-success response")
	}
	return err
}

func deliveryError(err error) *notification.DeliveryError {
	var se *retry.StatusError
	switch {
	case errors.Is(err, retry.ErrRateLimitExhausted):
		return &notification.DeliveryError{Kind: notification.KindTransport, Err: fmt.Errorf("%w: %w", notification.ErrRateLimited, err)}
	case errors.Is(err, retry.ErrAttemptsExhausted):
		return &notification.DeliveryError{Kind: notification.KindTransport, Err: fmt.Errorf("%w: %w", notification.ErrUnavailable, err)}
	case errors.As(err, &se):
		return &notification.DeliveryError{Kind: notification.KindPayload, Err: fmt.Errorf("%w: %w", notification.ErrRejected, err)}
	default:
		var perm *retry.PermanentError
		if errors.As(err, &perm) {
			return &notification.DeliveryError{Kind: notification.KindPayload, Err: fmt.Errorf("%w: %w", notification.ErrRejected, err)}
		}
		return &notification.DeliveryError{Kind: notification.KindTransport, Err: fmt.Errorf("%w: %w", notification.ErrUnavailable, err)}
	}
}
