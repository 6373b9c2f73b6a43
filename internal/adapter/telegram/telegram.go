package telegram

import (
	"RahimBot/internal/app/dispatcher"
	"RahimBot/internal/service/session"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Лимит длины текста одного сообщения Telegram.
const maxMessageLen = 4096

// Handler — то, что бот умеет делать с входящими сообщениями.
type Handler interface {
	HandleText(ctx context.Context, in dispatcher.Inbound) (string, error)
	Start(key session.Key) string
	Trend(ctx context.Context, category string) (string, error)
	ResetTrends(ctx context.Context, userID int64) (string, error)
	ErrorText() string
}

// sender — часть API бота, которой пользуется транспорт.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// Bot — транспорт Telegram на long polling.
type Bot struct {
	handler Handler
	logger  *zap.SugaredLogger
	api     *bot.Bot
	send    sender
}

func New(token string, handler Handler, logger *zap.SugaredLogger) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	b := &Bot{handler: handler, logger: logger}
	// Команды и обычный текст разбирает один обработчик, см. handleMessage.
	api, err := bot.New(token,
		bot.WithDefaultHandler(b.onUpdate),
		bot.WithErrorsHandler(func(err error) {
			logger.Warnw("Telegram polling error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	b.api = api
	b.send = api
	return b, nil
}

// Run получает обновления до отмены контекста.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Infow("Telegram bot started")
	b.api.Start(ctx)
	b.logger.Infow("Telegram bot stopped")
	return nil
}

func (b *Bot) onUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil || update.Message == nil {
		return
	}
	b.handleMessage(ctx, update.Message)
}

func (b *Bot) handleMessage(ctx context.Context, msg *models.Message) {
	key := keyFor(msg)
	if cmd, arg, ok := parseCommand(msg.Text); ok {
		b.handleCommand(ctx, msg, key, cmd, arg)
		return
	}

	in := inbound(msg)
	if strings.TrimSpace(in.Text) == "" {
		return
	}
	b.typing(ctx, msg.Chat.ID)

	reply, err := b.handler.HandleText(ctx, in)
	if err != nil {
		if errors.Is(err, dispatcher.ErrEmptyText) {
			return
		}
		b.logger.Errorw("Message handling failed", "key", key, "error", err)
		reply = b.handler.ErrorText()
	}
	b.reply(ctx, msg, reply)
}

func (b *Bot) handleCommand(ctx context.Context, msg *models.Message, key session.Key, cmd, arg string) {
	var (
		reply string
		err   error
	)
	switch cmd {
	case "start":
		reply = b.handler.Start(key)
	case "trend":
		reply, err = b.handler.Trend(ctx, arg)
	case "reset_trends":
		var userID int64
		if msg.From != nil {
			userID = msg.From.ID
		}
		reply, err = b.handler.ResetTrends(ctx, userID)
	default:
		b.logger.Debugw("Unknown command", "command", cmd, "key", key)
		return
	}
	if err != nil {
		b.logger.Errorw("Command failed", "command", cmd, "key", key, "error", err)
		reply = b.handler.ErrorText()
	}
	b.reply(ctx, msg, reply)
}

func (b *Bot) reply(ctx context.Context, msg *models.Message, text string) {
	for i, part := range splitText(text, maxMessageLen) {
		params := &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: part}
		if i == 0 && msg.Chat.Type != models.ChatTypePrivate {
			params.ReplyParameters = &models.ReplyParameters{MessageID: msg.ID, AllowSendingWithoutReply: true}
		}
		if _, err := b.send.SendMessage(ctx, params); err != nil {
			b.logger.Errorw("Send message failed", "chat_id", msg.Chat.ID, "error", err)
			return
		}
	}
}

func (b *Bot) typing(ctx context.Context, chatID int64) {
	if _, err := b.send.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
		b.logger.Debugw("Chat action failed", "chat_id", chatID, "error", err)
	}
}

// keyFor: личный чат — один диалог на чат, в группе — отдельный диалог на каждого участника.
func keyFor(msg *models.Message) session.Key {
	if msg.Chat.Type == models.ChatTypePrivate || msg.From == nil {
		return session.ChatKey(msg.Chat.ID)
	}
	return session.MemberKey(msg.Chat.ID, msg.From.ID)
}

func inbound(msg *models.Message) dispatcher.Inbound {
	in := dispatcher.Inbound{Key: keyFor(msg), Text: messageText(msg)}
	if msg.ReplyToMessage != nil {
		in.ReplyTo = messageText(msg.ReplyToMessage)
	}
	return in
}

func messageText(msg *models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

// parseCommand разбирает "/cmd@bot arg" в ("cmd", "arg").
func parseCommand(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, arg, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(arg), true
}

// splitText режет текст на части не длиннее limit символов, по возможности по переводу строки.
func splitText(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
