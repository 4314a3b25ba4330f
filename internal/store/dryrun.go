package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

// DryRun 读穿透到 base，写入只进入内存覆盖层：dry-run 抓取能得到与 apply 相同的
// inserted/skipped 判定，但不会修改数据库。
type DryRun struct {
	base    Store
	overlay *Memory

	mu      sync.Mutex
	deleted map[string]bool
}

var _ Store = (*DryRun)(nil)

func NewDryRun(base Store) *DryRun {
	return &DryRun{base: base, overlay: NewMemory(), deleted: make(map[string]bool)}
}

func (d *DryRun) Get(ctx context.Context, title string) (domain.MovieRecord, error) {
	rec, err := d.overlay.Get(ctx, title)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return rec, err
	}
	if d.isDeleted(title) || d.base == nil {
		return domain.MovieRecord{}, ErrNotFound
	}
	return d.base.Get(ctx, title)
}

func (d *DryRun) Create(ctx context.Context, rec domain.MovieRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, err := d.Get(ctx, rec.Title); err == nil {
		return ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := d.overlay.Create(ctx, rec); err != nil {
		return err
	}
	d.setDeleted(rec.Title, false)
	return nil
}

func (d *DryRun) Update(ctx context.Context, title string, patch domain.MoviePatch) (domain.MovieRecord, error) {
	cur, err := d.Get(ctx, title)
	if err != nil {
		return domain.MovieRecord{}, err
	}
	next := patch.Apply(cur)
	if err := next.Validate(); err != nil {
		return domain.MovieRecord{}, err
	}
	if Key(next.Title) != Key(title) {
		if _, err := d.Get(ctx, next.Title); err == nil {
			return domain.MovieRecord{}, ErrDuplicate
		}
	}
	_ = d.overlay.Delete(ctx, title)
	d.setDeleted(title, true)
	if err := d.overlay.Create(ctx, next); err != nil {
		return domain.MovieRecord{}, err
	}
	d.setDeleted(next.Title, false)
	return d.overlay.Get(ctx, next.Title)
}

func (d *DryRun) Delete(ctx context.Context, title string) error {
	if _, err := d.Get(ctx, title); err != nil {
		return err
	}
	_ = d.overlay.Delete(ctx, title)
	d.setDeleted(title, true)
	return nil
}

func (d *DryRun) List(ctx context.Context) ([]domain.MovieRecord, error) {
	byKey := map[string]domain.MovieRecord{}
	if d.base != nil {
		base, err := d.base.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, rec := range base {
			if !d.isDeleted(rec.Title) {
				byKey[Key(rec.Title)] = rec
			}
		}
	}
	over, err := d.overlay.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range over {
		byKey[Key(rec.Title)] = rec
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.MovieRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out, nil
}

// Close 不关闭 base（由打开它的一方负责）。
func (d *DryRun) Close() error { return nil }

func (d *DryRun) isDeleted(title string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleted[Key(title)]
}

func (d *DryRun) setDeleted(title string, v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v {
		d.deleted[Key(title)] = true
		return
	}
	delete(d.deleted, Key(title))
}
