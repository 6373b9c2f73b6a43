package scheduler

import (
	"RahimBot/internal/service/metrics"
	"RahimBot/internal/service/session"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Поддерживаются 5 и 6 полей (с секундами) и дескрипторы вида @every 5m.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Janitor по расписанию удаляет диалоги, простаивающие дольше ttl.
type Janitor struct {
	cache    *session.Cache
	metrics  *metrics.Metrics
	logger   *zap.SugaredLogger
	schedule cron.Schedule
	ttl      time.Duration
	spec     string

	running atomic.Bool
	now     func() time.Time
}

func New(cache *session.Cache, spec string, ttl time.Duration, m *metrics.Metrics, logger *zap.SugaredLogger) (*Janitor, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("empty sweep schedule")
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", spec, err)
	}
	return &Janitor{
		cache:    cache,
		metrics:  m,
		logger:   logger,
		schedule: sched,
		ttl:      ttl,
		spec:     spec,
		now:      time.Now,
	}, nil
}

// Enabled — очистка имеет смысл только при положительном ttl.
func (j *Janitor) Enabled() bool { return j.ttl > 0 }

// Run ждёт очередную сработку расписания и чистит кэш до отмены контекста.
func (j *Janitor) Run(ctx context.Context) error {
	if !j.Enabled() {
		j.logger.Infow("Session sweep disabled")
		return nil
	}
	if !j.running.CompareAndSwap(false, true) {
		return errors.New("janitor already running")
	}
	defer j.running.Store(false)

	j.logger.Infow("Session sweep started", "schedule", j.spec, "ttl", j.ttl.String())
	for {
		next := j.schedule.Next(j.now())
		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return context.Cause(ctx)
		case <-t.C:
		}
		j.Sweep()
	}
}

// Sweep выполняет одну очистку и возвращает число удалённых диалогов.
func (j *Janitor) Sweep() int {
	removed := j.cache.Sweep(j.now(), j.ttl)
	left := j.cache.Len()
	j.metrics.SetSessions(left)
	if removed > 0 {
		j.logger.Infow("Idle sessions evicted", "removed", removed, "left", left)
	} else {
		j.logger.Debugw("Session sweep: nothing to evict", "left", left)
	}
	return removed
}
