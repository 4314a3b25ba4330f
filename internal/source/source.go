// Package source 把“站点变化”限制在实现包内部；会话编排只依赖这里的稳定接口。
package source

import (
	"context"
	"errors"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

// ErrNoMorePages 表示来源已没有更多结果（翻页控件缺失或条目数不再增长）。
// 这是正常的提前结束，不是错误。
var ErrNoMorePages = errors.New("no more pages")

// Page 是一次渲染得到的列表页。
//
// “加载更多”式分页会把旧条目留在 DOM 中：HTML 是累积文档，
// 前 Skip 个条目容器属于之前的页，抽取时必须跳过。
type Page struct {
	Index int // 0 起
	URL   string
	HTML  []byte
	Skip  int
}

// Navigator 负责获取底层资源（浏览器/HTTP 客户端/快照目录）并打开一次遍历。
//
// 约束：
// - Open 失败意味着资源无法启动，返回 *StartError（会话级致命错误）
// - Open 不做查询校验（由会话在此之前完成）
type Navigator interface {
	Name() string
	Open(ctx context.Context, q domain.ScrapeQuery) (Cursor, error)
}

// Cursor 惰性产出至多 q.Pages 个页面。
//
// Next 的返回约定：
// - (page, nil)：成功
// - ErrNoMorePages：结束（之后继续调用也返回 ErrNoMorePages）
// - *PageError：该页在重试耗尽后失败；游标已前进，调用方可以继续取下一页
// - 其它错误（例如 ctx 取消）：调用方应停止
//
// Close 必须幂等，并在所有退出路径上被调用。
type Cursor interface {
	Next(ctx context.Context) (Page, error)
	Close() error
}

// Extractor 把一页 HTML 解析为原始条目。
//
// 约束：
// - 纯函数：相同输入 => 相同输出
// - 缺标题的条目不返回，改为记录 missing_title 失败
// - 返回 error 表示整页无法解析（extraction_failure）
type Extractor interface {
	Extract(page Page) ([]domain.RawListingItem, []domain.Failure, error)
}
