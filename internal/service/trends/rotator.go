package trends

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// GeneralCategory — категория «тренда дня» по умолчанию.
const GeneralCategory = "general"

// Catalog — упорядоченные списки трендов по категориям. Во время работы не меняется.
type Catalog map[string][]string

// Cursor — позиция следующей выдачи по категориям.
type Cursor map[string]int

// Store — долговременное хранилище каталога и курсоров.
// Отсутствие данных — пустые таблицы, а не ошибка.
type Store interface {
	Load(ctx context.Context) (Catalog, Cursor, error)
	SaveCursor(ctx context.Context, cursor Cursor) error
}

// Rotator выдаёт тренды каждой категории от последнего добавленного к первому и
// начинает заново по кругу. Курсор сохраняется после каждой выдачи.
type Rotator struct {
	store  Store
	logger *zap.SugaredLogger

	mu      sync.Mutex
	catalog Catalog
	cursor  Cursor
}

// New загружает каталог и курсоры из store.
func New(ctx context.Context, store Store, logger *zap.SugaredLogger) (*Rotator, error) {
	catalog, cursor, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trends: %w", err)
	}
	if catalog == nil {
		catalog = Catalog{}
	}
	if cursor == nil {
		cursor = Cursor{}
	}
	logger.Infow("Trends loaded", "categories", len(catalog), "cursors", len(cursor))
	return &Rotator{store: store, logger: logger, catalog: catalog, cursor: cursor}, nil
}

// Next возвращает следующий тренд категории. ok=false, если в категории нет трендов.
// При ошибке сохранения курсор откатывается, чтобы тренд не был пропущен.
func (r *Rotator) Next(ctx context.Context, category string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.catalog[category]
	n := len(entries)
	if n == 0 {
		return "", false, nil
	}

	prev, had := r.cursor[category]
	idx := n - 1
	if had && prev >= 0 && prev < n {
		idx = prev
	} else if had {
		r.logger.Warnw("Trend cursor out of range, restarting category", "category", category, "index", prev, "size", n)
	}

	next := n - 1
	if idx > 0 {
		next = idx - 1
	}
	r.cursor[category] = next

	if err := r.store.SaveCursor(ctx, r.snapshot()); err != nil {
		if had {
			r.cursor[category] = prev
		} else {
			delete(r.cursor, category)
		}
		return "", false, fmt.Errorf("save trend cursor: %w", err)
	}
	return entries[idx], true, nil
}

// General — тренд из категории general.
func (r *Rotator) General(ctx context.Context) (string, bool, error) {
	return r.Next(ctx, GeneralCategory)
}

// Reset сбрасывает все курсоры: следующая выдача в каждой категории начнётся с последнего тренда.
func (r *Rotator) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.SaveCursor(ctx, Cursor{}); err != nil {
		return fmt.Errorf("save trend cursor: %w", err)
	}
	r.cursor = Cursor{}
	return nil
}

// Categories возвращает отсортированный список непустых категорий.
func (r *Rotator) Categories() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.catalog))
	for name, entries := range r.catalog {
		if len(entries) > 0 {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

func (r *Rotator) snapshot() Cursor {
	return maps.Clone(r.cursor)
}
