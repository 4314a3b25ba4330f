package imdb

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/source"
)

func TestBrowser_Defaults(t *testing.T) {
	if (Browser{}).pageTimeout() != DefaultPageTimeout {
		t.Fatalf("未配置时应使用默认页超时")
	}
	if (Browser{PageTimeout: time.Second}).pageTimeout() != time.Second {
		t.Fatalf("应使用配置的页超时")
	}
	base := len((Browser{}).allocatorOptions())
	withAll := len((Browser{ExecPath: "/usr/bin/chromium", ProxyURL: "http://127.0.0.1:8080"}).allocatorOptions())
	if withAll != base+2 {
		t.Fatalf("ExecPath/ProxyURL 应各追加一个选项：base=%d withAll=%d", base, withAll)
	}
}

func TestBrowserScripts(t *testing.T) {
	// 计数规则必须与 Extractor 一致：先主选择器，无匹配再用回退选择器。
	want := "(document.querySelectorAll(" + jsString(ContainerSelector) + ").length || " +
		"document.querySelectorAll(" + jsString(containerFallback) + ").length)"
	if got := countJS(); got != want {
		t.Fatalf("计数脚本不符：\n期望 %s\n实际 %s", want, got)
	}
	if got := grewOrGoneJS(50); !strings.HasPrefix(got, want+" > 50") {
		t.Fatalf("增长判断应复用计数规则：%s", got)
	}
	if !strings.Contains(buttonVisibleJS(MoreButtonSelector), `"button.ipc-see-more__button"`) {
		t.Fatalf("按钮脚本缺少选择器")
	}
	if strings.Contains(buttonPresentJS(MoreButtonSelector), "disabled") {
		t.Fatalf("加载中按钮可能被禁用，存在性判断不应看 disabled")
	}

	// restyled.html 只有回退选择器能命中；浏览器端计数应与 Extractor 得到相同的条目数。
	n, _, err := CountItems(readFixture(t, "restyled.html"))
	if err != nil || n != 1 {
		t.Fatalf("回退选择器应命中 1 个条目：n=%d err=%v", n, err)
	}
}

func TestPollBudget(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	got := pollBudget(ctx, time.Minute)
	if got <= 0 || got >= 10*time.Second {
		t.Fatalf("轮询上限必须早于 ctx 截止：%v", got)
	}
	if got := pollBudget(context.Background(), 5*time.Second); got >= 5*time.Second {
		t.Fatalf("无截止时间时应在页超时内留出余量：%v", got)
	}
	short, cancelShort := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancelShort()
	<-short.Done()
	if got := pollBudget(short, time.Second); got != 100*time.Millisecond {
		t.Fatalf("已到期时应取下限 100ms，实际 %v", got)
	}
}

func TestAsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := asTimeout(ctx, "打开列表页", errors.New("boom"))
	if source.Classify(err) != domain.KindNavigationTimeout {
		t.Fatalf("截止时间触发的错误应归为 navigation_timeout：%v", err)
	}
	if source.Classify(asTimeout(context.Background(), "x", errors.New("boom"))) != domain.KindPageLoadFailure {
		t.Fatalf("普通错误应归为 page_load_failure")
	}
}

// 需要本机 Chrome 与外网；默认跳过。
func TestBrowser_Live(t *testing.T) {
	if os.Getenv("MOVIESCRAPE_TEST_BROWSER") == "" {
		t.Skip("未设置 MOVIESCRAPE_TEST_BROWSER")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cur, err := Browser{Headless: true}.Open(ctx, domain.ScrapeQuery{Genre: "comedy", Pages: 2})
	if err != nil {
		t.Fatalf("启动浏览器失败：%v", err)
	}
	defer cur.Close()

	p, err := cur.Next(ctx)
	if err != nil {
		t.Fatalf("首页加载失败：%v", err)
	}
	items, _, err := Extractor{}.Extract(p)
	if err != nil || len(items) == 0 {
		t.Fatalf("首页应有条目：n=%d err=%v", len(items), err)
	}
}
