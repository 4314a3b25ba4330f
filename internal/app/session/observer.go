package session

import (
	"time"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

// PageSummary 是一页处理完成（含落库）后的统计。
type PageSummary struct {
	Index    int
	URL      string
	Items    int
	Inserted int
	Skipped  int
	Failed   int
	// Err 非空表示整页失败（加载或解析）。
	Err error
	Dur time.Duration
}

// Observer 把会话进度从编排逻辑中解耦出来。
//
// 约束：
// - session 包只发事件，不做任何输出（避免污染 stdout 的 JSON 契约）
// - 事件按页序从同一个 goroutine 发出；实现仍需并发安全（CLI 可能有自己的 ticker）
type Observer interface {
	// OnStart 在校验通过、打开导航器之前调用。
	OnStart(runID string, q domain.ScrapeQuery)
	// OnRecordDone 在一条记录落库后调用；status 取 domain.Outcome*。
	OnRecordDone(page int, title, status string, err error)
	// OnPageDone 在一页的全部记录落库后调用。
	OnPageDone(p PageSummary)
	// OnFinish 在结果定稿后调用（致命错误时同样调用）。
	OnFinish(res domain.ScrapeResult, err error)
}

type nopObserver struct{}

func (nopObserver) OnStart(string, domain.ScrapeQuery) {}
func (nopObserver) OnRecordDone(int, string, string, error) {}
func (nopObserver) OnPageDone(PageSummary) {}
func (nopObserver) OnFinish(domain.ScrapeResult, error) {}
