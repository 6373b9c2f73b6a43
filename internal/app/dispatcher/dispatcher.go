package dispatcher

import (
	"RahimBot/internal/ai"
	"RahimBot/internal/config"
	"RahimBot/internal/service/keylock"
	"RahimBot/internal/service/metrics"
	"RahimBot/internal/service/session"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyText — в сообщении нет текста, отвечать нечего.
var ErrEmptyText = errors.New("empty message text")

// TrendSource выдаёт тренды по категориям.
type TrendSource interface {
	Next(ctx context.Context, category string) (string, bool, error)
	Reset(ctx context.Context) error
}

// Inbound — входящее текстовое сообщение от транспорта.
type Inbound struct {
	Key     session.Key
	Text    string
	ReplyTo string // текст сообщения, на которое отвечают, если есть
}

// Dispatcher связывает транспорт, кэш сессий, тренды и модель.
type Dispatcher struct {
	cfg       *config.Config
	sessions  *session.Cache
	trends    TrendSource
	completer ai.Completer
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	locks     *keylock.Striped
}

func New(cfg *config.Config, sessions *session.Cache, trends TrendSource, completer ai.Completer, m *metrics.Metrics, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		sessions:  sessions,
		trends:    trends,
		completer: completer,
		metrics:   m,
		logger:    logger,
		locks:     keylock.New(0),
	}
}

// HandleText выполняет один обмен репликами: определение диалекта, реплика пользователя,
// запрос модели и реплика ассистента. Обмены по одному ключу идут строго по очереди.
// При ошибке модели в истории остаётся только реплика пользователя.
func (d *Dispatcher) HandleText(ctx context.Context, in Inbound) (string, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return "", ErrEmptyText
	}
	reqID := uuid.NewString()
	log := d.logger.With("request_id", reqID, "key", in.Key)

	unlock := d.locks.Lock(string(in.Key))
	defer unlock()
	// пока ждём модель, очистка не должна удалить диалог
	unpin := d.sessions.Pin(in.Key)
	defer unpin()

	classifyCtx, cancelClassify := withTimeout(ctx, d.cfg.Session.ClassifyTimeout, "classify timeout")
	contextText, dialect := d.sessions.Ingest(classifyCtx, in.Key, text, in.ReplyTo)
	cancelClassify()

	if err := d.sessions.AppendAndTrim(in.Key, session.RoleUser, contextText); err != nil {
		return "", err
	}
	d.metrics.SetSessions(d.sessions.Len())

	completeCtx, cancelComplete := withTimeout(ctx, d.cfg.Session.CompletionTimeout, "completion timeout")
	defer cancelComplete()

	start := time.Now()
	answer, err := d.completer.Complete(completeCtx, d.sessions.History(in.Key))
	d.metrics.ObserveCompletion(err)
	if err != nil {
		if cause := context.Cause(completeCtx); cause != nil {
			err = fmt.Errorf("%w (%v)", err, cause)
		}
		log.Errorw("Completion failed", "dialect", dialect, "duration", time.Since(start).String(), "error", err)
		return "", fmt.Errorf("complete: %w", err)
	}

	if err := d.sessions.AppendAndTrim(in.Key, session.RoleAssistant, answer); err != nil {
		return "", err
	}
	log.Infow("Reply ready", "dialect", dialect, "duration", time.Since(start).String(), "answer_len", len(answer))
	return answer, nil
}

// Start сбрасывает диалог и возвращает приветствие (/start).
func (d *Dispatcher) Start(key session.Key) string {
	unlock := d.locks.Lock(string(key))
	defer unlock()
	d.sessions.Reset(key)
	d.metrics.SetSessions(d.sessions.Len())
	d.logger.Infow("Session reset", "key", key)
	return d.cfg.Messages.Greeting
}

// Trend возвращает текст с очередным трендом категории или сообщение, что трендов нет.
func (d *Dispatcher) Trend(ctx context.Context, category string) (string, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		category = d.cfg.Trends.DefaultCategory
	}
	entry, ok, err := d.trends.Next(ctx, category)
	d.metrics.ObserveTrendDraw(category, ok, err)
	if err != nil {
		d.logger.Errorw("Trend draw failed", "category", category, "error", err)
		return "", err
	}
	if !ok {
		d.logger.Infow("No trends in category", "category", category)
		return d.cfg.Messages.NoTrend, nil
	}
	return d.cfg.Messages.TrendHeader + entry, nil
}

// ResetTrends сбрасывает курсоры трендов. Доступно только администраторам.
func (d *Dispatcher) ResetTrends(ctx context.Context, userID int64) (string, error) {
	if !d.cfg.IsAdmin(userID) {
		d.logger.Warnw("Trend reset denied", "user_id", userID)
		return d.cfg.Messages.Forbidden, nil
	}
	if err := d.trends.Reset(ctx); err != nil {
		d.logger.Errorw("Trend reset failed", "error", err)
		return "", err
	}
	d.logger.Infow("Trend cursors reset", "user_id", userID)
	return d.cfg.Messages.TrendsReset, nil
}

// ErrorText — ответ пользователю, когда обработать сообщение не удалось.
func (d *Dispatcher) ErrorText() string { return d.cfg.Messages.Error }

// Sessions отдаёт кэш для фоновой очистки.
func (d *Dispatcher) Sessions() *session.Cache { return d.sessions }

func withTimeout(ctx context.Context, timeout time.Duration, cause string) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, timeout, errors.New(cause))
}
