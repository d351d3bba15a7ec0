package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/aviklund/questline/internal/session"
)

// notifier delivers session notices (warnings, expiries) to a chat,
// mentioning the addressed user. Telegram has no native auto-delete for
// bot messages, so the expiry hint is honored with a delayed delete.
type notifier struct {
	bot *bot.Bot
}

var _ session.Notifier = (*notifier)(nil)

func (n *notifier) Notify(ctx context.Context, chatID, userID int64, text string, expireAfter time.Duration) error {
	sent, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      fmt.Sprintf(`<a href="tg://user?id=%d">player</a> %s`, userID, text),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send notice: %w", err)
	}

	if expireAfter > 0 {
		messageID := sent.ID
		time.AfterFunc(expireAfter, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := n.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
				ChatID:    chatID,
				MessageID: messageID,
			}); err != nil {
				slog.Debug("delete notice failed", "chat_id", chatID, "message_id", messageID, "error", err)
			}
		})
	}

	return nil
}
