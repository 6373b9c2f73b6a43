package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxHistory — сколько реплик (включая системную) хранится на диалог.
const DefaultMaxHistory = 20

// ErrInvalidRole возвращается при попытке дописать в историю системную или неизвестную роль.
var ErrInvalidRole = errors.New("session: only user and assistant turns can be appended")

// Classifier определяет язык или диалект текста.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// Options параметры кэша сессий.
type Options struct {
	MaxHistory     int    // Максимум реплик в истории, включая системную
	DefaultDialect string // Диалект до первого успешного определения и при ошибке классификатора
	SystemPrompt   string // Шаблон системной реплики, {dialect} заменяется на диалект
	ReplyLabel     string // Подпись перед цитатой сообщения, на которое отвечают
	// OnClassify вызывается после каждого обращения к классификатору (nil — успех).
	OnClassify func(err error)
}

type entry struct {
	mu         sync.Mutex
	sess       *Session
	lastActive time.Time
	evicted    bool
	pinned     int // обмены в процессе, такую запись Sweep не трогает
}

// Cache хранит по одной сессии на ключ. Операции над одним ключом сериализуются,
// разные ключи обрабатываются параллельно.
type Cache struct {
	opts       Options
	classifier Classifier
	logger     *zap.SugaredLogger
	now        func() time.Time

	mu      sync.Mutex
	entries map[Key]*entry
}

// New создаёт кэш. classifier может быть nil — тогда диалект всегда остаётся дефолтным.
func New(opts Options, classifier Classifier, logger *zap.SugaredLogger) *Cache {
	if opts.MaxHistory < 2 {
		opts.MaxHistory = DefaultMaxHistory
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = "{dialect}"
	}
	return &Cache{
		opts:       opts,
		classifier: classifier,
		logger:     logger,
		now:        time.Now,
		entries:    make(map[Key]*entry),
	}
}

// MaxHistory возвращает действующий лимит истории.
func (c *Cache) MaxHistory() int { return c.opts.MaxHistory }

// GetOrCreate возвращает снимок сессии, создавая её при первом обращении.
func (c *Cache) GetOrCreate(key Key) Session {
	e := c.acquire(key)
	defer e.mu.Unlock()
	return Session{history: e.sess.History(), dialect: e.sess.dialect, resolved: e.sess.resolved}
}

// History возвращает копию истории диалога в хронологическом порядке.
func (c *Cache) History(key Key) []Turn {
	e := c.acquire(key)
	defer e.mu.Unlock()
	return e.sess.History()
}

// Ingest собирает контекст сообщения и возвращает диалект диалога.
// Пока диалект не определён, каждый вызов обращается к классификатору; после первого
// успеха системная реплика заменяется и классификатор больше не вызывается.
// Ошибка классификатора не возвращается: используется дефолтный диалект.
func (c *Cache) Ingest(ctx context.Context, key Key, text, replyTo string) (string, string) {
	contextText := BuildContext(text, replyTo, c.opts.ReplyLabel)

	e := c.acquire(key)
	defer e.mu.Unlock()

	if e.sess.resolved {
		return contextText, e.sess.dialect
	}

	tag, err := c.classify(ctx, contextText)
	if c.opts.OnClassify != nil {
		c.opts.OnClassify(err)
	}
	if err != nil {
		c.logger.Warnw("Dialect classification failed, using default", "key", key, "default", c.opts.DefaultDialect, "error", err)
		return contextText, c.opts.DefaultDialect
	}

	e.sess.dialect = tag
	e.sess.resolved = true
	e.sess.history[0] = c.systemTurn(tag)
	c.logger.Infow("Dialect resolved", "key", key, "dialect", tag)
	return contextText, tag
}

// AppendAndTrim дописывает реплику и оставляет системную реплику плюс MaxHistory-1 последних.
func (c *Cache) AppendAndTrim(key Key, role Role, text string) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	e := c.acquire(key)
	defer e.mu.Unlock()

	e.sess.history = append(e.sess.history, Turn{Role: role, Text: text})
	e.sess.history = trim(e.sess.history, c.opts.MaxHistory)
	return nil
}

// Reset возвращает диалог в начальное состояние с неопределённым диалектом.
func (c *Cache) Reset(key Key) {
	e := c.acquire(key)
	defer e.mu.Unlock()
	e.sess = c.newSession()
}

// Len — количество диалогов в кэше.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep удаляет диалоги, неактивные дольше ttl. Занятые в данный момент диалоги пропускаются.
func (c *Cache) Sweep(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	deadline := now.Add(-ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.pinned == 0 && e.lastActive.Before(deadline) {
			e.evicted = true
			delete(c.entries, key)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// Pin защищает диалог от Sweep на время обмена, который отпускает блокировку записи
// между шагами. Возвращаемая функция снимает защиту.
func (c *Cache) Pin(key Key) func() {
	e := c.acquire(key)
	e.pinned++
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.pinned--
			e.lastActive = c.now()
			e.mu.Unlock()
		})
	}
}

// acquire возвращает заблокированную запись для ключа, создавая её при необходимости.
func (c *Cache) acquire(key Key) *entry {
	for {
		c.mu.Lock()
		e, ok := c.entries[key]
		if !ok {
			e = &entry{sess: c.newSession()}
			c.entries[key] = e
		}
		c.mu.Unlock()

		e.mu.Lock()
		if e.evicted {
			// запись удалили между поиском и блокировкой
			e.mu.Unlock()
			continue
		}
		e.lastActive = c.now()
		return e
	}
}

func (c *Cache) classify(ctx context.Context, text string) (string, error) {
	if c.classifier == nil {
		return "", errors.New("no classifier configured")
	}
	tag, err := c.classifier.Classify(ctx, text)
	if err != nil {
		return "", err
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", errors.New("classifier returned empty dialect")
	}
	return tag, nil
}

func (c *Cache) newSession() *Session {
	return &Session{
		history: []Turn{c.systemTurn(c.opts.DefaultDialect)},
		dialect: c.opts.DefaultDialect,
	}
}

func (c *Cache) systemTurn(dialect string) Turn {
	return Turn{Role: RoleSystem, Text: strings.ReplaceAll(c.opts.SystemPrompt, "{dialect}", dialect)}
}

func trim(history []Turn, limit int) []Turn {
	if len(history) <= limit {
		return history
	}
	out := make([]Turn, 0, limit)
	out = append(out, history[0])
	return append(out, history[len(history)-(limit-1):]...)
}
