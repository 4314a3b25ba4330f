// Package replay 从页面快照目录重放一次遍历，不访问网络。
package replay

import (
	"context"
	"errors"
	"io/fs"

	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/infra/cache"
	"github.com/John-Robertt/moviescrape/internal/source"
)

// Navigator 依次读取 page-001.html、page-002.html…；第一个缺失的文件即为结束。
type Navigator struct {
	FS    fs.FS
	Retry source.RetryPolicy
}

var _ source.Navigator = Navigator{}

func (Navigator) Name() string { return "replay" }

func (n Navigator) Open(_ context.Context, q domain.ScrapeQuery) (source.Cursor, error) {
	if n.FS == nil {
		return nil, &source.StartError{Navigator: n.Name(), Err: errors.New("快照目录为空")}
	}
	if _, err := fs.Stat(n.FS, cache.PageHTMLName(0)); err != nil {
		return nil, &source.StartError{Navigator: n.Name(), Err: err}
	}

	load := func(ctx context.Context, index int) (source.Page, error) {
		p, err := cache.ReadPage(n.FS, index)
		if errors.Is(err, fs.ErrNotExist) {
			return source.Page{}, source.ErrNoMorePages
		}
		return p, err
	}
	return source.Paginate(q.Normalized().Pages, n.Retry, load, nil), nil
}
