package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestNewPageClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewPageClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives || !tr.DisableKeepAlives {
		t.Fatalf("代理模式应禁用 keep-alive")
	}
}

func TestNewPageClient_Defaults(t *testing.T) {
	c, err := NewPageClient(Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr := c.Transport.(*Transport)
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if c.Timeout != defaultTimeout {
		t.Fatalf("期望默认超时 %v，实际 %v", defaultTimeout, c.Timeout)
	}
	if tr.RetryMax != 0 {
		t.Fatalf("Options.RetryMax=0 应原样保留，实际 %d", tr.RetryMax)
	}
}

func TestNewPageClient_InvalidProxyURL(t *testing.T) {
	if _, err := NewPageClient(Options{ProxyURL: "http://[::1"}); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if _, err := NewPageClient(Options{ProxyURL: "127.0.0.1:8080"}); err == nil {
		t.Fatalf("缺少 scheme 的代理地址应报错")
	}
}

func TestTransport_SetsHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewPageClient(Options{UserAgent: "moviescrape-test", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()

	if gotUA != "moviescrape-test" {
		t.Fatalf("期望固定 UA，实际 %q", gotUA)
	}
	if gotLang == "" {
		t.Fatalf("期望设置 Accept-Language")
	}
}

func TestTransport_RetriesTransportErrors(t *testing.T) {
	calls := 0
	tr := &Transport{
		Base:     &http.Transport{},
		RetryMax: 2,
	}
	// 不可达端口：每次都是传输层错误。
	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:1/", nil)
	tr.Base.Proxy = func(*http.Request) (*url.URL, error) {
		calls++
		return nil, nil
	}
	if _, err := tr.RoundTrip(req); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if calls != 3 {
		t.Fatalf("期望 3 次尝试，实际 %d", calls)
	}
}
