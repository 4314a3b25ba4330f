package imdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/infra/httpx"
	"github.com/John-Robertt/moviescrape/internal/source"
)

// DefaultPageTimeout 是单页（导航或一次“加载更多”）的等待上限。
const DefaultPageTimeout = 30 * time.Second

// Browser 通过 headless Chrome 渲染列表页，用“加载更多”按钮翻页。
//
// 翻页后 DOM 是累积的：第 k 页的 HTML 包含之前所有条目，Page.Skip 标出新条目的起点。
type Browser struct {
	BaseURL     string
	Headless    bool
	ExecPath    string
	ProxyURL    string
	UserAgent   string
	PageTimeout time.Duration
	Retry       source.RetryPolicy
	Now         func() time.Time
}

var _ source.Navigator = Browser{}

func (Browser) Name() string { return "browser" }

func (b Browser) Open(ctx context.Context, q domain.ScrapeQuery) (source.Cursor, error) {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	listing, err := ListingURL(b.BaseURL, q, now())
	if err != nil {
		return nil, &source.StartError{Navigator: b.Name(), Err: err}
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	// 空动作会真正拉起浏览器进程；失败即为会话级致命错误。
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, &source.StartError{Navigator: b.Name(), Err: err}
	}

	t := &tab{ctx: tabCtx, listing: listing, timeout: b.pageTimeout()}
	closeFn := func() error {
		err := chromedp.Cancel(tabCtx)
		cancelTab()
		cancelAlloc()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return source.Paginate(q.Normalized().Pages, b.Retry, t.load, closeFn), nil
}

func (b Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	ua := strings.TrimSpace(b.UserAgent)
	if ua == "" {
		ua = httpx.RandomUserAgent()
	}
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", b.Headless),
		chromedp.Flag("lang", "en-US"),
		chromedp.WindowSize(1366, 900),
		chromedp.UserAgent(ua),
	)
	if p := strings.TrimSpace(b.ExecPath); p != "" {
		opts = append(opts, chromedp.ExecPath(p))
	}
	// Chrome 拒绝以 root 身份在沙箱中启动（容器内常见）。
	if os.Geteuid() == 0 {
		opts = append(opts, chromedp.NoSandbox)
	}
	if p := strings.TrimSpace(b.ProxyURL); p != "" {
		opts = append(opts, chromedp.ProxyServer(p))
	}
	return opts
}

func (b Browser) pageTimeout() time.Duration {
	if b.PageTimeout <= 0 {
		return DefaultPageTimeout
	}
	return b.PageTimeout
}

// tab 保存一次遍历的浏览器状态。只由 Paginate 顺序调用。
type tab struct {
	ctx     context.Context
	listing string
	timeout time.Duration

	loaded bool
	count  int // 当前 DOM 中的条目容器数
}

func (t *tab) load(ctx context.Context, index int) (source.Page, error) {
	runCtx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()
	// chromedp 动作必须运行在 tab 上下文中；调用方取消时同步中止。
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if index == 0 {
		return t.first(runCtx)
	}
	if !t.loaded {
		return source.Page{}, errors.New("首页未成功加载，无法继续翻页")
	}
	return t.more(runCtx)
}

func (t *tab) first(ctx context.Context) (source.Page, error) {
	var loc string
	err := chromedp.Run(ctx,
		chromedp.Navigate(t.listing),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&loc),
	)
	if err != nil {
		return source.Page{}, asTimeout(ctx, "打开列表页", err)
	}
	if err := checkHost(t.listing, loc); err != nil {
		return source.Page{}, err
	}

	html, n, err := snapshot(ctx)
	if err != nil {
		return source.Page{}, asTimeout(ctx, "读取页面", err)
	}
	t.loaded = true
	t.count = n
	return source.Page{URL: loc, HTML: html}, nil
}

func (t *tab) more(ctx context.Context) (source.Page, error) {
	var visible bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(buttonVisibleJS(MoreButtonSelector), &visible)); err != nil {
		return source.Page{}, asTimeout(ctx, "查找加载更多按钮", err)
	}
	if !visible {
		return source.Page{}, source.ErrNoMorePages
	}

	before := t.count
	err := chromedp.Run(ctx,
		chromedp.ScrollIntoView(MoreButtonSelector, chromedp.ByQuery),
		chromedp.Click(MoreButtonSelector, chromedp.ByQuery, chromedp.NodeVisible),
	)
	if err != nil {
		return source.Page{}, asTimeout(ctx, "加载更多", err)
	}

	// 条目增长或按钮消失即结束等待；轮询必须先于 ctx 到期，才能区分“到底”与“超时”。
	var settled bool
	err = chromedp.Run(ctx,
		chromedp.Poll(grewOrGoneJS(before), &settled,
			chromedp.WithPollingInterval(pollInterval),
			chromedp.WithPollingTimeout(pollBudget(ctx, t.timeout)),
		),
	)
	if err != nil {
		timedOut := errors.Is(err, chromedp.ErrPollingTimeout) || errors.Is(err, context.DeadlineExceeded)
		if !timedOut || errors.Is(ctx.Err(), context.Canceled) {
			return source.Page{}, err
		}
		if t.buttonGone() {
			return source.Page{}, source.ErrNoMorePages
		}
		return source.Page{}, &source.TimeoutError{Op: "等待新条目", Err: err}
	}

	html, n, err := snapshot(ctx)
	if err != nil {
		return source.Page{}, asTimeout(ctx, "读取页面", err)
	}
	if n <= before {
		// 按钮消失且没有新条目：结果已到底。
		return source.Page{}, source.ErrNoMorePages
	}
	t.count = n

	var loc string
	_ = chromedp.Run(ctx, chromedp.Location(&loc))
	return source.Page{URL: loc, HTML: html, Skip: before}, nil
}

const (
	pollInterval = 100 * time.Millisecond
	// endCheckTimeout 是轮询超时后复查按钮状态的时间上限。
	endCheckTimeout = 3 * time.Second
)

// buttonGone 在独立的短 ctx 上复查按钮：本页 ctx 此时可能已经到期。
func (t *tab) buttonGone() bool {
	ctx, cancel := context.WithTimeout(t.ctx, endCheckTimeout)
	defer cancel()
	var present bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(buttonPresentJS(MoreButtonSelector), &present)); err != nil {
		return false
	}
	return !present
}

// pollBudget 返回 ctx 剩余时间扣除余量后的轮询上限（至少 100ms）。
func pollBudget(ctx context.Context, fallback time.Duration) time.Duration {
	budget := fallback
	if dl, ok := ctx.Deadline(); ok {
		budget = time.Until(dl)
	}
	reserve := budget / 10
	if reserve > time.Second {
		reserve = time.Second
	}
	budget -= reserve
	if budget < 100*time.Millisecond {
		budget = 100 * time.Millisecond
	}
	return budget
}

func snapshot(ctx context.Context) ([]byte, int, error) {
	var (
		html string
		n    int
	)
	err := chromedp.Run(ctx,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(countJS(), &n),
	)
	if err != nil {
		return nil, 0, err
	}
	return []byte(html), n, nil
}

// asTimeout 把截止时间导致的失败标记为 TimeoutError（navigation_timeout）。
func asTimeout(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &source.TimeoutError{Op: op, Err: err}
	}
	return err
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// countJS 与 Extractor 使用同一规则：主选择器无匹配时才用回退选择器。
func countJS() string {
	return fmt.Sprintf(`(document.querySelectorAll(%s).length || document.querySelectorAll(%s).length)`,
		jsString(ContainerSelector), jsString(containerFallback))
}

// grewOrGoneJS 在条目数超过 before，或加载更多按钮已从页面移除时为真。
// 加载中按钮可能被禁用，所以这里只看是否还在页面上。
func grewOrGoneJS(before int) string {
	return fmt.Sprintf(`(%s > %d) || !%s`, countJS(), before, buttonPresentJS(MoreButtonSelector))
}

func buttonPresentJS(sel string) string {
	return fmt.Sprintf(`(() => {
  const b = document.querySelector(%s);
  if (!b) return false;
  const r = b.getBoundingClientRect();
  return r.width > 0 && r.height > 0;
})()`, jsString(sel))
}

func buttonVisibleJS(sel string) string {
	return fmt.Sprintf(`(() => {
  const b = document.querySelector(%s);
  if (!b || b.disabled) return false;
  const r = b.getBoundingClientRect();
  return r.width > 0 && r.height > 0;
})()`, jsString(sel))
}
