package imdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/source"
)

const maxPageBytes = 8 << 20

// HTTP 是不依赖浏览器的导航器：用 start= 游标翻页，按静态 HTML 解析。
//
// 适用于站点仍返回服务端渲染内容的场景，以及测试（httptest）。
type HTTP struct {
	BaseURL string
	Client  *http.Client
	Retry   source.RetryPolicy
	Now     func() time.Time
}

var _ source.Navigator = HTTP{}

func (HTTP) Name() string { return "http" }

func (h HTTP) Open(_ context.Context, q domain.ScrapeQuery) (source.Cursor, error) {
	if h.Client == nil {
		return nil, &source.StartError{Navigator: h.Name(), Err: errors.New("http client 为空")}
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	listing, err := ListingURL(h.BaseURL, q, now())
	if err != nil {
		return nil, &source.StartError{Navigator: h.Name(), Err: err}
	}

	var (
		seen      int
		lastFirst string
	)
	load := func(ctx context.Context, index int) (source.Page, error) {
		pageURL := listing
		if index > 0 {
			if seen == 0 {
				return source.Page{}, source.ErrNoMorePages
			}
			pageURL = WithStart(listing, seen+1)
		}
		body, err := fetch(ctx, h.Client, pageURL)
		if err != nil {
			return source.Page{}, err
		}
		n, first, err := CountItems(body)
		if err != nil {
			return source.Page{}, err
		}
		if index > 0 && (n == 0 || first == lastFirst) {
			// 站点忽略了游标或已到末尾：条目数不再增长。
			return source.Page{}, source.ErrNoMorePages
		}
		seen += n
		lastFirst = first
		return source.Page{URL: pageURL, HTML: body}, nil
	}
	return source.Paginate(q.Normalized().Pages, h.Retry, load, nil), nil
}

// fetch 只做一次请求（不重试，由 Paginate 统一控制）。
func fetch(ctx context.Context, c *http.Client, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.Do(req)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, &source.TimeoutError{Op: "GET " + pageURL, Err: err}
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &source.HTTPStatusError{
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Location:   resp.Header.Get("Location"),
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if err := checkHost(pageURL, resp.Request.URL.String()); err != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			return nil, err
		}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes+1))
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, &source.TimeoutError{Op: "读取 " + pageURL, Err: err}
		}
		return nil, err
	}
	if len(b) > maxPageBytes {
		return nil, fmt.Errorf("页面过大（>%d bytes）", maxPageBytes)
	}
	return b, nil
}

// checkHost 判断最终落地页是否仍在请求的主机上。
func checkHost(want, got string) error {
	wu, err := url.Parse(want)
	if err != nil {
		return err
	}
	gu, err := url.Parse(got)
	if err != nil {
		return err
	}
	if !strings.EqualFold(wu.Hostname(), gu.Hostname()) {
		return &source.RedirectError{Want: wu.Host, Got: gu.Host}
	}
	return nil
}
