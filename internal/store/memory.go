package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

// Memory 是进程内存储：测试与 dry-run 覆盖层使用。键为 Key(title)。
type Memory struct {
	mu   sync.RWMutex
	rows map[string]domain.MovieRecord
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{rows: make(map[string]domain.MovieRecord)}
}

func (m *Memory) Get(ctx context.Context, title string) (domain.MovieRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.MovieRecord{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rows[Key(title)]
	if !ok {
		return domain.MovieRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Create(ctx context.Context, rec domain.MovieRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.Title = strings.TrimSpace(rec.Title)
	k := Key(rec.Title)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[k]; ok {
		return ErrDuplicate
	}
	m.rows[k] = rec
	return nil
}

func (m *Memory) Update(ctx context.Context, title string, patch domain.MoviePatch) (domain.MovieRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.MovieRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	oldKey := Key(title)
	cur, ok := m.rows[oldKey]
	if !ok {
		return domain.MovieRecord{}, ErrNotFound
	}
	next := patch.Apply(cur)
	next.Title = strings.TrimSpace(next.Title)
	if err := next.Validate(); err != nil {
		return domain.MovieRecord{}, err
	}
	newKey := Key(next.Title)
	if newKey != oldKey {
		if _, clash := m.rows[newKey]; clash {
			return domain.MovieRecord{}, ErrDuplicate
		}
		delete(m.rows, oldKey)
	}
	m.rows[newKey] = next
	return next, nil
}

func (m *Memory) Delete(ctx context.Context, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key(title)
	if _, ok := m.rows[k]; !ok {
		return ErrNotFound
	}
	delete(m.rows, k)
	return nil
}

func (m *Memory) List(ctx context.Context) ([]domain.MovieRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	keys := make([]string, 0, len(m.rows))
	for k := range m.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.MovieRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.rows[k])
	}
	m.mu.RUnlock()
	return out, nil
}

func (m *Memory) Close() error { return nil }
