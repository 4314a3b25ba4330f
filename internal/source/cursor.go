package source

import (
	"context"
	"errors"
	"sync"
)

// LoadFunc 加载第 index 页（不做重试，由 Paginate 统一控制）。
// 来源确认没有更多结果时返回 ErrNoMorePages。
type LoadFunc func(ctx context.Context, index int) (Page, error)

// Paginate 把按页加载的函数包装为 Cursor。
//
// 统一实现的契约：
// - 至多产出 pages 页
// - 每页按 policy 重试；耗尽后返回 *PageError 并前进到下一页
// - ErrNoMorePages 之后游标保持结束状态
// - closeFn 只会被调用一次
func Paginate(pages int, policy RetryPolicy, load LoadFunc, closeFn func() error) Cursor {
	return &pager{pages: pages, policy: policy, load: load, closeFn: closeFn}
}

type pager struct {
	pages  int
	policy RetryPolicy
	load   LoadFunc

	next int
	done bool

	closeOnce sync.Once
	closeFn   func() error
	closeErr  error
}

func (p *pager) Next(ctx context.Context) (Page, error) {
	if p.done || p.next >= p.pages {
		p.done = true
		return Page{}, ErrNoMorePages
	}
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	idx := p.next
	var page Page
	attempts, err := p.policy.Do(ctx, func(ctx context.Context) error {
		pg, e := p.load(ctx, idx)
		if e != nil {
			return e
		}
		page = pg
		return nil
	})
	p.next++

	switch {
	case err == nil:
		page.Index = idx
		return page, nil
	case errors.Is(err, ErrNoMorePages):
		p.done = true
		return Page{}, ErrNoMorePages
	case ctx.Err() != nil:
		p.done = true
		return Page{}, ctx.Err()
	default:
		return Page{}, &PageError{Page: idx, Kind: Classify(err), Attempts: attempts, Err: err}
	}
}

func (p *pager) Close() error {
	p.closeOnce.Do(func() {
		if p.closeFn != nil {
			p.closeErr = p.closeFn()
		}
	})
	return p.closeErr
}
