package trends

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memStore хранит таблицы в памяти и копирует их, как настоящий диск.
type memStore struct {
	mu      sync.Mutex
	catalog Catalog
	cursor  Cursor
	saves   int
	failErr error
}

func (m *memStore) Load(context.Context) (Catalog, Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.catalog), maps.Clone(m.cursor), nil
}

func (m *memStore) SaveCursor(_ context.Context, c Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.saves++
	m.cursor = maps.Clone(c)
	return nil
}

func newRotator(t *testing.T, s Store) *Rotator {
	t.Helper()
	r, err := New(context.Background(), s, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return r
}

func draw(t *testing.T, r *Rotator, category string, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		v, ok, err := r.Next(context.Background(), category)
		require.NoError(t, err)
		require.True(t, ok)
		out = append(out, v)
	}
	return out
}

func TestNextDrawsNewestFirstAndWraps(t *testing.T) {
	s := &memStore{catalog: Catalog{"general": {"A", "B", "C"}}}
	r := newRotator(t, s)

	assert.Equal(t, []string{"C", "B", "A", "C", "B", "A", "C"}, draw(t, r, "general", 7))
	assert.Equal(t, 7, s.saves, "cursor must be persisted on every draw")
}

func TestNextCoversEveryEntryOncePerCycle(t *testing.T) {
	entries := []string{"e0", "e1", "e2", "e3", "e4"}
	r := newRotator(t, &memStore{catalog: Catalog{"news": entries}})

	for cycle := 0; cycle < 3; cycle++ {
		got := draw(t, r, "news", len(entries))
		assert.Equal(t, []string{"e4", "e3", "e2", "e1", "e0"}, got)
	}
}

func TestNextOnMissingCategory(t *testing.T) {
	s := &memStore{catalog: Catalog{"general": {"A"}, "empty": {}}}
	r := newRotator(t, s)

	for i := 0; i < 3; i++ {
		for _, cat := range []string{"sports", "empty"} {
			v, ok, err := r.Next(context.Background(), cat)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, v)
		}
	}
	assert.Zero(t, s.saves)
}

func TestCursorSurvivesReload(t *testing.T) {
	s := &memStore{catalog: Catalog{"general": {"A", "B", "C", "D"}}}

	first := newRotator(t, s)
	assert.Equal(t, []string{"D"}, draw(t, first, "general", 1))
	assert.Equal(t, []string{"C"}, draw(t, first, "general", 1))

	second := newRotator(t, s)
	assert.Equal(t, []string{"B", "A", "D"}, draw(t, second, "general", 3))
}

func TestCategoriesAreIndependent(t *testing.T) {
	r := newRotator(t, &memStore{catalog: Catalog{
		"general": {"g1", "g2"},
		"sports":  {"s1", "s2", "s3"},
	}})

	assert.Equal(t, []string{"g2"}, draw(t, r, "general", 1))
	assert.Equal(t, []string{"s3", "s2"}, draw(t, r, "sports", 2))
	assert.Equal(t, []string{"g1"}, draw(t, r, "general", 1))
	assert.Equal(t, []string{"general", "sports"}, r.Categories())
}

func TestResetRestartsAtLastElement(t *testing.T) {
	s := &memStore{catalog: Catalog{
		"general": {"A", "B", "C"},
		"sports":  {"x", "y"},
	}}
	r := newRotator(t, s)
	draw(t, r, "general", 2)
	draw(t, r, "sports", 1)

	require.NoError(t, r.Reset(context.Background()))
	assert.Empty(t, s.cursor)

	assert.Equal(t, []string{"C"}, draw(t, r, "general", 1))
	assert.Equal(t, []string{"y"}, draw(t, r, "sports", 1))
}

func TestGeneralUsesGeneralCategory(t *testing.T) {
	r := newRotator(t, &memStore{catalog: Catalog{GeneralCategory: {"only"}}})
	v, ok, err := r.General(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "only", v)
}

func TestOutOfRangeCursorRestartsCategory(t *testing.T) {
	s := &memStore{
		catalog: Catalog{"general": {"A", "B"}},
		cursor:  Cursor{"general": 7},
	}
	r := newRotator(t, s)
	assert.Equal(t, []string{"B", "A"}, draw(t, r, "general", 2))
}

func TestFailedSaveDoesNotSkipEntry(t *testing.T) {
	s := &memStore{catalog: Catalog{"general": {"A", "B", "C"}}}
	r := newRotator(t, s)
	assert.Equal(t, []string{"C"}, draw(t, r, "general", 1))

	s.failErr = errors.New("disk full")
	_, ok, err := r.Next(context.Background(), "general")
	require.Error(t, err)
	assert.False(t, ok)

	s.failErr = nil
	assert.Equal(t, []string{"B"}, draw(t, r, "general", 1))
}

func TestFailedFirstSaveForgetsCursor(t *testing.T) {
	s := &memStore{catalog: Catalog{"general": {"A", "B"}}, failErr: errors.New("read-only")}
	r := newRotator(t, s)

	_, _, err := r.Next(context.Background(), "general")
	require.Error(t, err)

	s.failErr = nil
	assert.Equal(t, []string{"B"}, draw(t, r, "general", 1))
}

func TestConcurrentDrawsStayGapless(t *testing.T) {
	entries := make([]string, 30)
	for i := range entries {
		entries[i] = string(rune('a' + i%26))
	}
	r := newRotator(t, &memStore{catalog: Catalog{"general": entries}})

	var wg sync.WaitGroup
	var drawn atomic.Int32
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := r.Next(context.Background(), "general")
			if assert.NoError(t, err) && assert.True(t, ok) {
				drawn.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 60, drawn.Load())

	// две полные итерации возвращают курсор в начало
	v, _, err := r.Next(context.Background(), "general")
	require.NoError(t, err)
	assert.Equal(t, entries[len(entries)-1], v)
}
