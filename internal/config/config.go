package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Бэкенды хранилища трендов.
const (
	TrendsBackendFile   = "file"
	TrendsBackendSQLite = "sqlite"
)

type Config struct {
	DebugMode    bool    `env:"DEBUG_MODE"`                 // Режим дебага: подробные логи, без ключа OpenAI используется заглушка
	BotToken     string  `env:"BOT_TOKEN"`                  // Токен Telegram бота
	OpenAIKey    string  `env:"OPENAI_API_KEY"`             // Ключ OpenAI
	ChatModel    string  `env:"CHAT_MODEL"`                 // Модель для ответов
	DialectModel string  `env:"DIALECT_MODEL"`              // Модель для определения диалекта
	AdminIDs     []int64 `env:"ADMIN_IDS" envSeparator:";"` // Пользователи, которым разрешён /reset_trends
	MetricsAddr  string  `env:"METRICS_ADDR"`               // Адрес /metrics; пусто — сервер метрик выключен

	Session  SessionConfig
	Trends   TrendsConfig
	Messages MessagesConfig
	Twitch   TwitchConfig
}

// SessionConfig — параметры истории диалогов.
type SessionConfig struct {
	MaxHistory        int           `env:"MAX_SESSION_LENGTH"`     // Максимум реплик в истории, включая системную
	DefaultDialect    string        `env:"DEFAULT_DIALECT"`        // Диалект до успешного определения
	SystemPrompt      string        `env:"SYSTEM_PROMPT"`          // Шаблон системной реплики с {dialect}
	ReplyLabel        string        `env:"REPLY_LABEL"`            // Подпись цитаты сообщения, на которое отвечают
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT"`     // Таймаут запроса ответа
	ClassifyTimeout   time.Duration `env:"CLASSIFY_TIMEOUT"`       // Таймаут определения диалекта
	IdleTTL           time.Duration `env:"SESSION_IDLE_TTL"`       // Через сколько простоя диалог удаляется; 0 — никогда
	SweepSchedule     string        `env:"SESSION_SWEEP_SCHEDULE"` // Расписание очистки (cron)
}

// TrendsConfig — где лежат каталог трендов и курсоры.
type TrendsConfig struct {
	Backend         string `env:"TRENDS_BACKEND"`          // file|sqlite
	CatalogPath     string `env:"TRENDS_FILE"`             // Каталог трендов (JSON или YAML)
	CursorPath      string `env:"TREND_INDEXES_FILE"`      // Курсоры (JSON)
	SQLitePath      string `env:"TRENDS_DB"`               // База SQLite для бэкенда sqlite
	DefaultCategory string `env:"TRENDS_DEFAULT_CATEGORY"` // Категория для /trend без аргумента
}

// MessagesConfig — фиксированные ответы бота.
type MessagesConfig struct {
	Greeting    string `env:"GREETING_TEXT"`
	TrendHeader string `env:"TREND_HEADER"`
	NoTrend     string `env:"NO_TREND_TEXT"`
	Error       string `env:"ERROR_TEXT"`
	TrendsReset string `env:"TRENDS_RESET_TEXT"`
	Forbidden   string `env:"FORBIDDEN_TEXT"`
}

// TwitchConfig — опциональный второй транспорт.
type TwitchConfig struct {
	Username   string `env:"TWITCH_USERNAME"`    // Логин бота в Twitch
	OAuthToken string `env:"TWITCH_OAUTH_TOKEN"` // OAuth токен (может быть без префикса oauth:)
	Channel    string `env:"TWITCH_CHANNEL"`     // Канал без #
}

// Enabled — заданы ли все параметры подключения.
func (t TwitchConfig) Enabled() bool {
	return strings.TrimSpace(t.Username) != "" && strings.TrimSpace(t.OAuthToken) != "" && strings.TrimSpace(t.Channel) != ""
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		ChatModel:    "gpt-4o",
		DialectModel: "gpt-4o-mini",
		Session: SessionConfig{
			MaxHistory:        20,
			DefaultDialect:    "Sudanese Arabic",
			SystemPrompt:      "You are Rahim, a friendly and helpful assistant. Always answer in {dialect}, matching the user's tone.",
			ReplyLabel:        "↩️ In reply to:",
			CompletionTimeout: 60 * time.Second,
			ClassifyTimeout:   15 * time.Second,
			IdleTTL:           0,
			SweepSchedule:     "@every 5m",
		},
		Trends: TrendsConfig{
			Backend:         TrendsBackendFile,
			CatalogPath:     "trends_data.json",
			CursorPath:      "trend_indexes.json",
			SQLitePath:      "trends.db",
			DefaultCategory: "general",
		},
		Messages: MessagesConfig{
			Greeting:    "أهلاً بيك! 👋 أنا رحيم، مساعدك الذكي. أرسل لي أي سؤال وحنبدأ 😄",
			TrendHeader: "📌 ترند اليوم:\n\n",
			NoTrend:     "ما لقيت أي ترند 😅",
			Error:       "حصلت مشكلة، جرب تاني بعد شوية 🙏",
			TrendsReset: "تمت إعادة تعيين الترندات ✅",
			Forbidden:   "الأمر ده للمشرفين بس.",
		},
	}
}

// NewConfig загружает конфигурацию приложения. Ошибка конфигурации фатальна.
func NewConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load: дефолты → .env → переменные окружения → флаги из args.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("rahimbot", flag.ContinueOnError)
	fs.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага")
	fs.StringVar(&cfg.BotToken, "bot-token", cfg.BotToken, "токен Telegram бота (перекрывает ENV)")
	fs.StringVar(&cfg.ChatModel, "chat-model", cfg.ChatModel, "модель OpenAI для ответов")
	fs.StringVar(&cfg.DialectModel, "dialect-model", cfg.DialectModel, "модель OpenAI для определения диалекта")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "адрес сервера метрик, пусто — выключен")
	adminIDs := joinIDs(cfg.AdminIDs)
	fs.StringVar(&adminIDs, "admin-ids", adminIDs, "ID администраторов, разделённые ';'")
	// Сессии
	fs.IntVar(&cfg.Session.MaxHistory, "max-session-length", cfg.Session.MaxHistory, "максимум реплик в истории, включая системную")
	fs.StringVar(&cfg.Session.DefaultDialect, "default-dialect", cfg.Session.DefaultDialect, "диалект по умолчанию")
	fs.StringVar(&cfg.Session.SystemPrompt, "system-prompt", cfg.Session.SystemPrompt, "шаблон системной реплики, {dialect} заменяется на диалект")
	fs.DurationVar(&cfg.Session.CompletionTimeout, "completion-timeout", cfg.Session.CompletionTimeout, "таймаут запроса ответа, напр. 60s")
	fs.DurationVar(&cfg.Session.ClassifyTimeout, "classify-timeout", cfg.Session.ClassifyTimeout, "таймаут определения диалекта, напр. 15s")
	fs.DurationVar(&cfg.Session.IdleTTL, "session-idle-ttl", cfg.Session.IdleTTL, "удалять диалоги после простоя, 0 — никогда")
	fs.StringVar(&cfg.Session.SweepSchedule, "session-sweep-schedule", cfg.Session.SweepSchedule, "расписание очистки диалогов (cron), напр. @every 5m")
	// Тренды
	fs.StringVar(&cfg.Trends.Backend, "trends-backend", cfg.Trends.Backend, "хранилище трендов: file|sqlite")
	fs.StringVar(&cfg.Trends.CatalogPath, "trends-file", cfg.Trends.CatalogPath, "путь к каталогу трендов (JSON или YAML)")
	fs.StringVar(&cfg.Trends.CursorPath, "trend-indexes-file", cfg.Trends.CursorPath, "путь к файлу курсоров трендов")
	fs.StringVar(&cfg.Trends.SQLitePath, "trends-db", cfg.Trends.SQLitePath, "путь к базе SQLite трендов")
	fs.StringVar(&cfg.Trends.DefaultCategory, "trends-default-category", cfg.Trends.DefaultCategory, "категория трендов по умолчанию")
	// Twitch
	fs.StringVar(&cfg.Twitch.Username, "twitch-username", cfg.Twitch.Username, "логин Twitch для подключения к чату")
	fs.StringVar(&cfg.Twitch.OAuthToken, "twitch-oauth-token", cfg.Twitch.OAuthToken, "OAuth токен Twitch (может быть без префикса oauth:)")
	fs.StringVar(&cfg.Twitch.Channel, "twitch-channel", cfg.Twitch.Channel, "канал Twitch (без #)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	ids, err := parseIDs(adminIDs)
	if err != nil {
		return nil, err
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения, без которых бот не сможет работать корректно.
func (c *Config) Validate() error {
	var errs []error
	if c.Session.MaxHistory < 2 {
		errs = append(errs, fmt.Errorf("max session length must be at least 2, got %d", c.Session.MaxHistory))
	}
	if c.Session.CompletionTimeout < 0 || c.Session.ClassifyTimeout < 0 || c.Session.IdleTTL < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	switch c.Trends.Backend {
	case TrendsBackendFile, TrendsBackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown trends backend %q (want file|sqlite)", c.Trends.Backend))
	}
	if strings.TrimSpace(c.Trends.DefaultCategory) == "" {
		errs = append(errs, errors.New("default trend category must not be empty"))
	}
	return errors.Join(errs...)
}

// IsAdmin — есть ли пользователь в списке администраторов.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// parseIDs разбирает список ID, разделённых ';'
func parseIDs(v string) ([]int64, error) {
	var out []int64
	for _, p := range strings.Split(v, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("admin id %q: %w", p, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ";")
}
