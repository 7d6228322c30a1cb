// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"health_notification_bot/internal/app"
	"health_notification_bot/internal/domain/health"
)

const commandTimeout = 2 * time.Minute

// Commands is the menu published to the Bot API.
var Commands = []telebot.Command{
	{Text: "sleep", Description: "睡眠データ [日付]"},
	{Text: "readiness", Description: "Readiness [日付]"},
	{Text: "activity", Description: "活動データ [日付]"},
	{Text: "report", Description: "morning|noon|night [日付]"},
	{Text: "week", Description: "過去7日間の平均"},
	{Text: "month", Description: "過去30日間の平均"},
	{Text: "goal", Description: "歩数目標の確認・変更"},
	{Text: "wake", Description: "目標起床時刻の確認・変更"},
	{Text: "reminder", Description: "add|list|remove"},
	{Text: "goal_notification", Description: "目標達成通知 on|off"},
	{Text: "settings", Description: "現在の設定"},
	{Text: "help", Description: "使い方"},
}

const helpText = `:robot: **Oura通知ボット**

/sleep [日付] 睡眠データ
/readiness [日付] Readiness
/activity [日付] 活動データ
/report morning|noon|night [日付] 定時レポートを今すぐ表示
/week, /month 平均スコア
/goal [歩数] 歩数目標
/wake [HH:MM] 目標起床時刻
/reminder add HH:MM メッセージ | list | remove <id>
/goal_notification on|off
/settings 現在の設定

日付は YYYY-MM-DD、today、yesterday で指定できます。`

// registrar is the part of *telebot.Bot used for registration.
type registrar interface {
	Handle(endpoint interface{}, h telebot.HandlerFunc, m ...telebot.MiddlewareFunc)
}

type replier interface {
	Reply(ctx context.Context, to telebot.Recipient, body string) error
}

type commandFunc func(ctx context.Context, args []string) (string, error)

// RegisterBotCommands wires every chat command to the command service.
// Only the configured chat is served; chatID 0 serves any chat.
func RegisterBotCommands(b registrar, commands *app.CommandService, r replier, chatID int64, baseLogger *logrus.Entry) {
	h := &commandHandler{replier: r, chatID: chatID, logger: baseLogger.WithField("handler_group", "commands")}
	if chatID == 0 {
		h.logger.Warn("TELEGRAM_CHAT_ID is not set, commands are served to every chat")
	}

	static := func(text string) commandFunc {
		return func(context.Context, []string) (string, error) { return text, nil }
	}
	metric := func(name string) commandFunc {
		return func(ctx context.Context, args []string) (string, error) {
			return commands.Metric(ctx, name, firstArg(args))
		}
	}

	routes := map[string]commandFunc{
		"/start":     static(":wave: こんにちは！毎日の睡眠・活動データをお届けします。\n/help でコマンド一覧を表示します。"),
		"/help":      static(helpText),
		"/sleep":     metric("sleep"),
		"/readiness": metric("readiness"),
		"/activity":  metric("activity"),
		"/report":    commands.Report,
		"/week": func(ctx context.Context, _ []string) (string, error) {
			return commands.Range(ctx, 7, ":calendar: 過去7日間")
		},
		"/month": func(ctx context.Context, _ []string) (string, error) {
			return commands.Range(ctx, 30, ":calendar: 過去30日間")
		},
		"/goal": func(ctx context.Context, args []string) (string, error) {
			return commands.Goal(ctx, firstArg(args))
		},
		"/wake": func(ctx context.Context, args []string) (string, error) {
			return commands.Wake(ctx, firstArg(args))
		},
		"/reminder": commands.Reminder,
		"/goal_notification": func(ctx context.Context, args []string) (string, error) {
			return commands.GoalNotification(ctx, firstArg(args))
		},
		"/settings": func(context.Context, []string) (string, error) {
			return commands.Settings(), nil
		},
	}
	for endpoint, fn := range routes {
		b.Handle(endpoint, h.wrap(endpoint, fn))
	}
}

type commandHandler struct {
	replier replier
	chatID  int64
	logger  *logrus.Entry
}

func (h *commandHandler) wrap(name string, fn commandFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		chat := c.Chat()
		logCtx := h.logger.WithField("command", name)
		if sender := c.Sender(); sender != nil {
			logCtx = logCtx.WithField("sender_id", sender.ID)
		}
		if chat == nil || (h.chatID != 0 && chat.ID != h.chatID) {
			logCtx.Warn("Unauthorized access attempt")
			return nil
		}
		logCtx = logCtx.WithField("chat_id", chat.ID)
		logCtx.Info("Command received")

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		body, err := fn(ctx, c.Args())
		cancel()
		if err != nil {
			if errors.Is(err, app.ErrUsage) {
				logCtx.WithError(err).Info("Invalid command usage")
			} else {
				logCtx.WithError(err).WithField("error_kind", app.ErrorKind(err)).Error("Command failed")
			}
			body = userMessage(err)
		}

		// A reply that has started is not cancelled.
		if err := h.replier.Reply(context.Background(), chat, body); err != nil {
			logCtx.WithError(err).Error("Failed to send reply")
		}
		return nil
	}
}

// userMessage turns an error into a short, non-technical reply.
func userMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrUsage):
		return ":information_source: " + strings.TrimPrefix(err.Error(), app.ErrUsage.Error()+": ")
	case errors.Is(err, health.ErrUnauthorized):
		return ":x: Ouraの認証に失敗しました。アクセストークンを確認してください。"
	case errors.Is(err, health.ErrRateLimited), errors.Is(err, health.ErrUnavailable):
		return ":x: Ouraに接続できませんでした。しばらくしてから再試行してください。"
	default:
		return ":x: エラーが発生しました。しばらくしてから再試行してください。"
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
