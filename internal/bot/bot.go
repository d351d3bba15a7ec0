package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/aviklund/questline/internal/config"
	"github.com/aviklund/questline/internal/engine"
	"github.com/aviklund/questline/internal/session"
	"github.com/aviklund/questline/internal/store"
)

const (
	maxMessageLen = 4096
	choicePrefix  = "choice:"
	turnTimeout   = 2 * time.Minute
)

// Bot wires the Telegram surface to the session manager, the narrative
// engine and the transcript store.
type Bot struct {
	bot      *bot.Bot
	sessions *session.Manager
	engine   engine.Engine
	store    *store.Store
	cfg      config.SessionConfig
}

// New creates a Telegram bot wired to the given collaborators.
func New(cfg *config.Config, sessions *session.Manager, eng engine.Engine, st *store.Store) (*Bot, error) {
	b := &Bot{
		sessions: sessions,
		engine:   eng,
		store:    st,
		cfg:      cfg.Session,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.handleDefault),
	}

	tgBot, err := bot.New(cfg.Telegram.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.handleStart)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/end", bot.MatchTypeExact, b.handleEnd)
	tgBot.RegisterHandler(bot.HandlerTypeCallbackQueryData, choicePrefix, bot.MatchTypePrefix, b.handleChoice)

	b.bot = tgBot
	return b, nil
}

// Start begins long polling. Blocks until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	slog.Info("telegram bot starting long poll")
	b.bot.Start(ctx)
}

// Notifier returns the session.Notifier backed by this bot.
func (b *Bot) Notifier() session.Notifier {
	return &notifier{bot: b.bot}
}

// RunSweeper drives the inactivity sweep on the configured interval
// until ctx is cancelled.
func (b *Bot) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	n := b.Notifier()
	for {
		select {
		case <-ticker.C:
			if expired := b.sessions.Sweep(ctx, n); len(expired) > 0 {
				slog.Info("sweep expired sessions", "user_ids", expired)
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleStart creates a session and posts the opening scene.
func (b *Bot) handleStart(ctx context.Context, tg *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	ok, reply := b.sessions.Create(userID, chatID)
	if !ok {
		b.send(ctx, tg, chatID, reply)
		return
	}

	tg.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})

	turnCtx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	scene, err := b.engine.Open(turnCtx)
	if err != nil {
		slog.Error("open adventure failed", "user_id", userID, "error", err)
		b.sessions.End(userID)
		b.send(ctx, tg, chatID, "The storyteller is unavailable right now. Please try again later.")
		return
	}

	adventureID, err := b.store.StartAdventure(ctx, userID)
	if err != nil {
		slog.Error("start adventure failed", "user_id", userID, "error", err)
		b.sessions.End(userID)
		b.send(ctx, tg, chatID, "Something went wrong starting your game. Please try again.")
		return
	}
	if err := b.store.AppendScene(ctx, adventureID, userID, scene.Narration, scene.Choices); err != nil {
		slog.Error("append scene failed", "user_id", userID, "error", err)
	}

	sent, err := tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        truncate(scene.Narration),
		ReplyMarkup: sceneKeyboard(scene.Choices),
	})
	if err != nil {
		slog.Error("send scene failed", "user_id", userID, "error", err)
		b.sessions.End(userID)
		return
	}

	b.sessions.RegisterMessage(userID, sent.ID)
}

// handleEnd terminates the user's game.
func (b *Bot) handleEnd(ctx context.Context, tg *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	b.sessions.End(userID)
	if err := b.store.EndAdventure(ctx, userID); err != nil {
		slog.Error("end adventure failed", "user_id", userID, "error", err)
	}

	b.send(ctx, tg, chatID, "Your game has ended. Use /start whenever you want a new adventure.")
}

// handleChoice processes an inline-button press: authorize, advance the
// story, edit the scene message in place.
func (b *Bot) handleChoice(ctx context.Context, tg *bot.Bot, update *models.Update) {
	cb := update.CallbackQuery
	if cb == nil {
		return
	}
	userID := cb.From.ID

	msg := cb.Message.Message
	if msg == nil {
		b.answer(ctx, tg, cb.ID, "This game is no longer active.")
		return
	}

	ok, reason := b.sessions.Authorize(userID, msg.ID)
	if !ok {
		b.answer(ctx, tg, cb.ID, reason)
		return
	}

	choice, err := b.resolveChoice(ctx, userID, cb.Data)
	if err != nil {
		slog.Warn("choice resolution failed", "user_id", userID, "data", cb.Data, "error", err)
		b.answer(ctx, tg, cb.ID, "That choice is no longer available.")
		return
	}

	b.answer(ctx, tg, cb.ID, "")
	tg.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: msg.Chat.ID,
		Action: models.ChatActionTyping,
	})

	adventureID, err := b.store.AdventureFor(ctx, userID)
	if err != nil {
		slog.Error("adventure lookup failed", "user_id", userID, "error", err)
		return
	}
	history, err := b.store.History(ctx, adventureID)
	if err != nil {
		slog.Error("history lookup failed", "user_id", userID, "error", err)
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	scene, err := b.engine.Advance(turnCtx, history, choice)
	if err != nil {
		slog.Error("advance failed", "user_id", userID, "error", err)
		b.send(ctx, tg, msg.Chat.ID, "The storyteller lost the thread. Try your move again.")
		return
	}

	if err := b.store.RecordChoice(ctx, adventureID, choice); err != nil {
		slog.Error("record choice failed", "user_id", userID, "error", err)
	}
	if err := b.store.AppendScene(ctx, adventureID, userID, scene.Narration, scene.Choices); err != nil {
		slog.Error("append scene failed", "user_id", userID, "error", err)
	}

	text := truncate(scene.Narration)
	params := &bot.EditMessageTextParams{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Text:      text,
	}
	if len(scene.Choices) > 0 {
		params.ReplyMarkup = sceneKeyboard(scene.Choices)
	} else {
		params.Text = truncate(scene.Narration + "\n\nThe End. Use /start to play again.")
	}

	if _, err := tg.EditMessageText(ctx, params); err != nil {
		slog.Error("edit scene failed", "user_id", userID, "error", err)
	}

	if len(scene.Choices) == 0 {
		// Story concluded — tear the session down.
		b.sessions.End(userID)
		if err := b.store.EndAdventure(ctx, userID); err != nil {
			slog.Error("end adventure failed", "user_id", userID, "error", err)
		}
		return
	}

	// Same message keeps carrying the UI; re-registering is harmless.
	b.sessions.RegisterMessage(userID, msg.ID)
}

// handleDefault nudges plain-text messages toward the commands.
func (b *Bot) handleDefault(ctx context.Context, tg *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	b.send(ctx, tg, update.Message.Chat.ID,
		"Use /start to begin an adventure, the buttons to play, and /end to stop.")
}

// resolveChoice maps callback data back to the choice text offered by
// the user's pending scene.
func (b *Bot) resolveChoice(ctx context.Context, userID int64, data string) (string, error) {
	idx, err := parseChoiceData(data)
	if err != nil {
		return "", err
	}

	adventureID, err := b.store.AdventureFor(ctx, userID)
	if err != nil {
		return "", err
	}
	choices, err := b.store.PendingChoices(ctx, adventureID)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(choices) {
		return "", fmt.Errorf("choice index %d out of range (%d offered)", idx, len(choices))
	}
	return choices[idx], nil
}

func parseChoiceData(data string) (int, error) {
	raw, ok := strings.CutPrefix(data, choicePrefix)
	if !ok {
		return 0, errors.New("not a choice callback")
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bad choice index %q: %w", raw, err)
	}
	return idx, nil
}

// sceneKeyboard builds one button per choice, stacked vertically.
func sceneKeyboard(choices []string) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(choices))
	for i, choice := range choices {
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         choice,
			CallbackData: fmt.Sprintf("%s%d", choicePrefix, i),
		}})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (b *Bot) send(ctx context.Context, tg *bot.Bot, chatID int64, text string) {
	if _, err := tg.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}); err != nil {
		slog.Error("send message failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answer(ctx context.Context, tg *bot.Bot, callbackID, text string) {
	params := &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID}
	if text != "" {
		params.Text = text
		params.ShowAlert = true
	}
	if _, err := tg.AnswerCallbackQuery(ctx, params); err != nil {
		slog.Error("answer callback failed", "error", err)
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxMessageLen {
		return s
	}
	return truncateRunes(s, maxMessageLen-3) + "..."
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	i := 0
	for j := range s {
		if i >= n {
			return s[:j]
		}
		i++
	}
	return s
}
