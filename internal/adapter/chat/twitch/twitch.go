package twitch

import (
	"RahimBot/internal/app/dispatcher"
	"RahimBot/internal/service/session"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"go.uber.org/zap"
)

// Twitch обрезает сообщения длиннее 500 символов.
const maxSayLen = 500

const (
	spamWindow = 5 * time.Second
	maxTracked = 1024 // после этого устаревшие записи антиспама вычищаются
)

var urlRe = regexp.MustCompile(`https?://[^\s]+`)

// Config хранит параметры подключения к Twitch IRC.
type Config struct {
	Username string
	OAuth    string // может быть с/без префикса oauth:
	Channel  string // без #, регистр не важен
}

// Handler отвечает на сообщения, адресованные боту.
type Handler interface {
	HandleText(ctx context.Context, in dispatcher.Inbound) (string, error)
	Trend(ctx context.Context, category string) (string, error)
	ErrorText() string
}

// Run запускает клиент Twitch IRC и отвечает на сообщения вида "@бот текст".
// Базовые реконнекты обеспечиваются клиентом; функция завершается по отмене ctx.
func Run(ctx context.Context, logger *zap.SugaredLogger, cfg Config, h Handler) error {
	if h == nil {
		return nil
	}
	username := strings.ToLower(strings.TrimSpace(cfg.Username))
	token := strings.TrimSpace(cfg.OAuth)
	channel := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.Channel), "#"))
	if username == "" || token == "" || channel == "" {
		logger.Warnw("Twitch chat not configured: missing env", "username", username != "", "token", token != "", "channel", channel != "")
		return nil
	}
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}

	client := twitchirc.NewClient(username, token)
	f := newFilter(username, spamWindow)

	client.OnConnect(func() {
		logger.Infow("Twitch connected", "as", username, "join", channel)
		client.Join(channel)
	})

	client.OnPrivateMessage(func(msg twitchirc.PrivateMessage) {
		user := strings.TrimSpace(msg.User.Name)
		text, ok := f.accept(user, msg.Message, time.Now())
		if !ok {
			return
		}
		// Ответ модели может идти долго, не держим цикл чтения.
		go func() {
			reply := respond(ctx, logger, h, channel, user, text)
			if reply == "" {
				return
			}
			client.Say(channel, truncate("@"+msg.User.DisplayName+" "+reply, maxSayLen))
		}()
	})

	errCh := make(chan error, 1)
	go func() { errCh <- client.Connect() }()

	select {
	case <-ctx.Done():
		_ = client.Disconnect()
		// Подождём чуть-чуть корректного завершения
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
		}
		return context.Canceled
	case err := <-errCh:
		if err != nil {
			logger.Errorw("twitch connect error", "error", err)
		}
		return err
	}
}

// respond: "!trend [категория]" выдаёт тренд, остальное уходит в диалог пользователя.
func respond(ctx context.Context, logger *zap.SugaredLogger, h Handler, channel, user, text string) string {
	if rest, ok := strings.CutPrefix(text, "!trend"); ok && (rest == "" || rest[0] == ' ') {
		out, err := h.Trend(ctx, strings.TrimSpace(rest))
		if err != nil {
			logger.Errorw("Twitch trend failed", "user", user, "error", err)
			return h.ErrorText()
		}
		return out
	}

	out, err := h.HandleText(ctx, dispatcher.Inbound{Key: session.TwitchKey(channel, user), Text: text})
	if err != nil {
		if errors.Is(err, dispatcher.ErrEmptyText) || ctx.Err() != nil {
			return ""
		}
		logger.Errorw("Twitch message handling failed", "user", user, "error", err)
		return h.ErrorText()
	}
	return out
}

// filter пропускает только сообщения боту: без URL и без повторов одного текста в пределах окна.
type filter struct {
	mention string
	window  time.Duration

	mu   sync.Mutex
	last map[string]lastMsg
}

type lastMsg struct {
	text string
	at   time.Time
}

func newFilter(username string, window time.Duration) *filter {
	return &filter{mention: "@" + strings.ToLower(username), window: window, last: map[string]lastMsg{}}
}

// accept возвращает текст без обращения к боту или false, если сообщение надо пропустить.
func (f *filter) accept(user, raw string, now time.Time) (string, bool) {
	text := strings.TrimSpace(raw)
	if user == "" || text == "" {
		return "", false
	}
	if len(text) < len(f.mention) || !strings.EqualFold(text[:len(f.mention)], f.mention) {
		return "", false
	}
	if len(text) > len(f.mention) && isNameByte(text[len(f.mention)]) {
		return "", false
	}
	text = strings.TrimLeft(text[len(f.mention):], " ,:")
	// Вырезаем URL
	text = strings.TrimSpace(urlRe.ReplaceAllString(text, ""))
	if text == "" {
		return "", false
	}

	key := strings.ToLower(user)
	f.mu.Lock()
	defer f.mu.Unlock()
	if lm, ok := f.last[key]; ok && lm.text == text && now.Sub(lm.at) <= f.window {
		return "", false
	}
	if len(f.last) >= maxTracked {
		for k, lm := range f.last {
			if now.Sub(lm.at) > f.window {
				delete(f.last, k)
			}
		}
	}
	f.last[key] = lastMsg{text: text, at: now}
	return text, true
}

func isNameByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit-1]) + "…"
}
