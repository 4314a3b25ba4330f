// Package store 是电影记录的持久化层。
//
// Title 是自然键：保存时保留原始大小写，查找与唯一性判断大小写不敏感。
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

var (
	ErrNotFound  = errors.New("movie not found")
	ErrDuplicate = errors.New("movie already exists")
)

// Store 是记录的 CRUD 视图。实现必须并发安全。
type Store interface {
	// Get 按标题（大小写不敏感）读取；不存在返回 ErrNotFound。
	Get(ctx context.Context, title string) (domain.MovieRecord, error)
	// Create 插入新记录；同名（大小写不敏感）已存在返回 ErrDuplicate。
	Create(ctx context.Context, rec domain.MovieRecord) error
	// Update 部分更新并返回更新后的记录。
	Update(ctx context.Context, title string, patch domain.MoviePatch) (domain.MovieRecord, error)
	// Delete 删除记录；不存在返回 ErrNotFound。
	Delete(ctx context.Context, title string) error
	// List 按标题（大小写不敏感）排序返回全部记录。
	List(ctx context.Context) ([]domain.MovieRecord, error)
	Close() error
}

// Open 按 DSN 选择后端：postgres:// 或 postgresql:// 使用 Postgres，其余视为 SQLite 文件路径
// （可带 sqlite:// 前缀，":memory:" 为内存库）。
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("db 不能为空")
	}
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	case strings.HasPrefix(lower, "sqlite://"):
		return OpenSQLite(ctx, dsn[len("sqlite://"):])
	case strings.Contains(lower, "://"):
		return nil, fmt.Errorf("不支持的 db：%q", dsn)
	default:
		return OpenSQLite(ctx, dsn)
	}
}

// Key 返回标题的比较键（去首尾空白 + Unicode case folding）。
func Key(title string) string {
	// Caser 有状态，不能跨 goroutine 共享。
	return cases.Fold().String(strings.TrimSpace(title))
}

