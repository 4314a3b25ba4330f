package imdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/source"
)

var fastRetry = source.RetryPolicy{Retries: 1, Initial: time.Millisecond, Multiplier: 2}

func listingPage(titles ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="ipc-metadata-list-summary">`)
	for _, t := range titles {
		fmt.Fprintf(&b, `<li class="ipc-metadata-list-summary-item"><h3 class="ipc-title__text">%s</h3></li>`, t)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

func newHTTP(srv *httptest.Server) HTTP {
	return HTTP{
		BaseURL: srv.URL + "/search/title/",
		Client:  srv.Client(),
		Retry:   fastRetry,
		Now:     func() time.Time { return testNow },
	}
}

func TestHTTP_PaginatesWithStart(t *testing.T) {
	var (
		mu     sync.Mutex
		starts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("genres") != "comedy" {
			t.Errorf("缺少 genres 参数：%s", r.URL.RawQuery)
		}
		start := r.URL.Query().Get("start")
		mu.Lock()
		starts = append(starts, start)
		mu.Unlock()
		switch start {
		case "":
			fmt.Fprint(w, listingPage("1. A", "2. B"))
		case "3":
			fmt.Fprint(w, listingPage("3. C"))
		default:
			fmt.Fprint(w, listingPage())
		}
	}))
	defer srv.Close()

	cur, err := newHTTP(srv).Open(context.Background(), domain.ScrapeQuery{Genre: "comedy", Pages: 5})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer cur.Close()

	var pages []source.Page
	for {
		p, err := cur.Next(context.Background())
		if errors.Is(err, source.ErrNoMorePages) {
			break
		}
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		pages = append(pages, p)
	}
	if len(pages) != 2 {
		t.Fatalf("期望 2 页，实际 %d", len(pages))
	}
	if pages[1].Index != 1 || !strings.Contains(pages[1].URL, "start=3") {
		t.Fatalf("第二页游标不正确：%+v", pages[1].URL)
	}
	mu.Lock()
	defer mu.Unlock()
	if want := []string{"", "3", "4"}; strings.Join(starts, ",") != strings.Join(want, ",") {
		t.Fatalf("请求序列不正确：%v", starts)
	}
}

func TestHTTP_StopsWhenCursorIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage("1. A", "2. B"))
	}))
	defer srv.Close()

	cur, err := newHTTP(srv).Open(context.Background(), domain.ScrapeQuery{Genre: "comedy", Pages: 3})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer cur.Close()

	if _, err := cur.Next(context.Background()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := cur.Next(context.Background()); !errors.Is(err, source.ErrNoMorePages) {
		t.Fatalf("重复内容应视为没有更多页，实际 %v", err)
	}
}

func TestHTTP_StatusErrorBecomesPageError(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cur, err := newHTTP(srv).Open(context.Background(), domain.ScrapeQuery{Genre: "comedy"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer cur.Close()

	_, err = cur.Next(context.Background())
	var pe *source.PageError
	if !errors.As(err, &pe) {
		t.Fatalf("期望 *source.PageError，实际 %T %v", err, err)
	}
	if pe.Kind != domain.KindPageLoadFailure || pe.Attempts != 2 {
		t.Fatalf("PageError 不正确：%+v", pe)
	}
	var se *source.HTTPStatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("应能 unwrap 到 HTTPStatusError：%v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("期望 2 次请求（1 次重试），实际 %d", calls)
	}
}

func TestHTTP_RedirectToOtherHost(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>verify you are human</body></html>")
	}))
	defer other.Close()
	otherURL := strings.Replace(other.URL, "127.0.0.1", "localhost", 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, otherURL+"/captcha", http.StatusFound)
	}))
	defer srv.Close()

	cur, err := newHTTP(srv).Open(context.Background(), domain.ScrapeQuery{Genre: "comedy"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer cur.Close()

	_, err = cur.Next(context.Background())
	var re *source.RedirectError
	if !errors.As(err, &re) {
		t.Fatalf("期望 RedirectError，实际 %T %v", err, err)
	}
}

func TestHTTP_OpenWithoutClient(t *testing.T) {
	_, err := HTTP{}.Open(context.Background(), domain.ScrapeQuery{Genre: "comedy"})
	var se *source.StartError
	if !errors.As(err, &se) {
		t.Fatalf("期望 StartError，实际 %v", err)
	}
}
