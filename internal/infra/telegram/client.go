// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"health_notification_bot/internal/domain/notification"
	"health_notification_bot/internal/infra/retry"
)

// MaxMessageLength is the Bot API text limit.
const MaxMessageLength = 4096

// messageSender is the part of *telebot.Bot the adapter needs.
type messageSender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter implements notification.Sender for one chat using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot    messageSender
	chat   telebot.Recipient
	runner *retry.Runner
	logger *logrus.Entry
}

func NewTelebotAdapter(b messageSender, chatID int64, runner *retry.Runner, logger *logrus.Entry) *TelebotAdapter {
	return &TelebotAdapter{bot: b, chat: telebot.ChatID(chatID), runner: runner, logger: logger}
}

// SendText sends body to the configured chat, chunked at line boundaries.
func (tba *TelebotAdapter) SendText(ctx context.Context, body string) error {
	return tba.sendTo(ctx, tba.chat, body)
}

// SendStructured renders the summary as plain text.
func (tba *TelebotAdapter) SendStructured(ctx context.Context, summary notification.Summary) error {
	return tba.sendTo(ctx, tba.chat, summary.Text())
}

// Reply sends body to an arbitrary recipient, e.g. the chat a command came from.
func (tba *TelebotAdapter) Reply(ctx context.Context, to telebot.Recipient, body string) error {
	return tba.sendTo(ctx, to, body)
}

func (tba *TelebotAdapter) sendTo(ctx context.Context, to telebot.Recipient, body string) error {
	if strings.TrimSpace(body) == "" {
		return &notification.DeliveryError{Kind: notification.KindPayload, Total: 1,
			Err: fmt.Errorf("%w: empty message", notification.ErrRejected)}
	}
	if notification.Oversized(body, MaxMessageLength) {
		tba.logger.WithField("limit", MaxMessageLength).Warn("Message has a line longer than the limit, it will be cut")
	}

	var fragments []string
	for _, f := range notification.Chunk(body, MaxMessageLength) {
		if strings.TrimSpace(f) != "" {
			fragments = append(fragments, f)
		}
	}

	opts := &telebot.SendOptions{DisableWebPagePreview: true}
	for i, fragment := range fragments {
		err := tba.runner.Do(ctx, func(context.Context, int) error {
			_, err := tba.bot.Send(to, fragment, opts)
			return classifySendError(err)
		})
		if err != nil {
			de := deliveryError(err)
			de.Delivered, de.Total = i, len(fragments)
			if i > 0 {
				tba.logger.WithError(err).WithFields(logrus.Fields{
					"delivered": i,
					"total":     len(fragments),
				}).Error("Partial delivery: earlier fragments were already sent")
			}
			return de
		}
	}
	return nil
}

// classifySendError maps telebot failures onto the retry engine's classes.
func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	var flood telebot.FloodError
	if errors.As(err, &flood) {
		return retry.RateLimited(time.Duration(flood.RetryAfter)*time.Second, err)
	}
	var apiErr *telebot.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

func deliveryError(err error) *notification.DeliveryError {
	switch {
	case errors.Is(err, retry.ErrRateLimitExhausted):
		return &notification.DeliveryError{Kind: notification.KindTransport, Err: fmt.Errorf("%w: %w", notification.ErrRateLimited, err)}
	case errors.Is(err, retry.ErrAttemptsExhausted):
		return &notification.DeliveryError{Kind: notification.KindTransport, Err: fmt.Errorf("%w: %w", notification.ErrUnavailable, err)}
	}
	var apiErr *telebot.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 {
		return &notification.DeliveryError{Kind: notification.KindPayload, Err: fmt.Errorf("%w: %w", notification.ErrRejected, err)}
	}
	return &notification.DeliveryError{Kind: notification.KindTransport, Err: fmt.Errorf("%w: %w", notification.ErrUnavailable, err)}
}
