package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/moviescrape/internal/app/session"
	"github.com/John-Robertt/moviescrape/internal/config"
	"github.com/John-Robertt/moviescrape/internal/domain"
)

var _ session.Observer = (*progressUI)(nil)

// progressUI 是交互终端的简洁进度输出。
//
// 约束：
// - 只写 stderr，不污染 stdout 的 JSON 契约
// - 事件驱动：session 只发事件，CLI 决定如何展示
// - keepalive：浏览器翻页可能很慢，长时间无事件时定期输出一行
type progressUI struct {
	w   io.Writer
	eff config.EffectiveConfig
	nav string

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	pages    int
	want     int
	inserted int
	skipped  int
	failed   int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, eff config.EffectiveConfig, nav string) *progressUI {
	return &progressUI{
		w:                  w,
		eff:                eff,
		nav:                nav,
		keepaliveThreshold: 8 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(runID string, q domain.ScrapeQuery) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = now
	p.want = q.Pages

	mode := "dry-run"
	modeHint := " (不写入数据库)"
	if p.eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] moviescrape scrape (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "查询:")
	fmt.Fprintf(p.w, "  genre: %s\n", q.Genre)
	if q.TitleType != "" {
		fmt.Fprintf(p.w, "  title_type: %s\n", q.TitleType)
	}
	if q.UserRating != nil {
		fmt.Fprintf(p.w, "  user_rating: >= %g\n", *q.UserRating)
	}
	if q.NumVotes != nil {
		fmt.Fprintf(p.w, "  num_votes: >= %d\n", *q.NumVotes)
	}
	if q.ReleaseYear != "" {
		fmt.Fprintf(p.w, "  release_year: %s\n", q.ReleaseYear)
	}
	fmt.Fprintf(p.w, "  pages: %d\n", q.Pages)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  run_id: %s\n", runID)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  db: %s\n", formatDB(p.eff.DB))
	fmt.Fprintf(p.w, "  navigator: %s\n", p.nav)
	fmt.Fprintf(p.w, "  concurrency: %d\n", p.eff.Concurrency)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(p.eff.ProxyURL))
	if p.eff.SnapshotDir != "" {
		fmt.Fprintf(p.w, "  snapshots: %s\n", p.eff.SnapshotDir)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnRecordDone(page int, title, status string, err error) {
	if status != domain.OutcomeFailed {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  p%d %s FAIL: %s\n", page+1, truncate(title, 60), truncate(errString(err), 120))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPageDone(s session.PageSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pages++
	p.inserted += s.Inserted
	p.skipped += s.Skipped
	p.failed += s.Failed

	if s.Err != nil {
		fmt.Fprintf(p.w, "[%d/%d] FAIL %s (%s)\n", s.Index+1, p.want, truncate(s.Err.Error(), 160), formatShortDuration(s.Dur))
	} else {
		fmt.Fprintf(p.w, "[%d/%d] OK items=%d inserted=%d skipped=%d failed=%d (%s)\n",
			s.Index+1, p.want, s.Items, s.Inserted, s.Skipped, s.Failed, formatShortDuration(s.Dur),
		)
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnFinish(res domain.ScrapeResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
	if err != nil {
		fmt.Fprintf(p.w, "中止：%s\n", truncate(err.Error(), 200))
	}
	fmt.Fprintf(p.w, "用时 %s\n", formatElapsed(res.FinishedAt.Sub(res.StartedAt)))
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 8 * time.Second
	}
	stop := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: pages=%d/%d inserted=%d skipped=%d failed=%d elapsed=%s\n",
						p.pages, p.want, p.inserted, p.skipped, p.failed, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func formatDB(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return dsn
	}
	// DSN 可能带密码：只展示 scheme/host/db。
	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, u.Path)
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
