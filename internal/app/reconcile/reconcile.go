// Package reconcile 决定一条抓取记录如何落库：不存在则插入，已存在则跳过。
//
// 已存在的记录从不被覆盖：重复抓取是幂等的，人工修改也不会被抓取结果冲掉。
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/store"
)

// Store 是 Reconciler 需要的最小存储视图（按标题查找 + 插入）。
type Store interface {
	Get(ctx context.Context, title string) (domain.MovieRecord, error)
	Create(ctx context.Context, rec domain.MovieRecord) error
}

// Outcome 是一条记录的落库结果。Status 取 domain.Outcome* 之一；只有 failed 时 Err 非空。
type Outcome struct {
	Status string
	Err    error
}

type Reconciler struct {
	Store Store
}

func New(s Store) Reconciler { return Reconciler{Store: s} }

// Persist 按标题（大小写不敏感）查找：
// - 已存在：skipped
// - 不存在：插入；插入被唯一约束拒绝（并发会话抢先写入）同样视为 skipped
// - 其它存储错误：failed
func (r Reconciler) Persist(ctx context.Context, rec domain.MovieRecord) Outcome {
	if r.Store == nil {
		return failed(errors.New("store 未配置"))
	}
	if err := rec.Validate(); err != nil {
		return failed(err)
	}

	_, err := r.Store.Get(ctx, rec.Title)
	switch {
	case err == nil:
		return Outcome{Status: domain.OutcomeSkipped}
	case !errors.Is(err, store.ErrNotFound):
		return failed(fmt.Errorf("查询失败：%w", err))
	}

	err = r.Store.Create(ctx, rec)
	switch {
	case err == nil:
		return Outcome{Status: domain.OutcomeInserted}
	case errors.Is(err, store.ErrDuplicate):
		return Outcome{Status: domain.OutcomeSkipped}
	default:
		return failed(fmt.Errorf("写入失败：%w", err))
	}
}

func failed(err error) Outcome { return Outcome{Status: domain.OutcomeFailed, Err: err} }
