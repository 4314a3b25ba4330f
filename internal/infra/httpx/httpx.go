package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultTimeout = 30 * time.Second

// Options 是列表页 HTTP client 的网络策略。
type Options struct {
	// ProxyURL 非空时所有请求走代理，且禁用 keep-alive。
	ProxyURL string
	// Timeout 是单次请求的总超时；<=0 使用默认值。
	Timeout time.Duration
	// RetryMax 是传输层错误的最大重试次数（不含首次尝试）；<0 视为 0。
	// 列表页导航器传 0：页级重试只由 source.RetryPolicy 负责。
	RetryMax int
	// UserAgent 为空时每个请求从内置 UA 池随机挑选。
	UserAgent string
}

// Transport 把“UA 池 + 代理 + keep-alive 策略 + 有界重试”固化为统一策略。
//
// 只重试传输层错误；HTTP 状态码与页面内容由上层判定（页级重试在 source.Paginate）。
type Transport struct {
	Base *http.Transport

	ua        *uaPool
	UserAgent string

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", t.userAgent())
		}
		if r.Header.Get("Accept-Language") == "" {
			// 列表页文案（元数据、按钮）按英文解析。
			r.Header.Set("Accept-Language", "en-US,en;q=0.9")
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (t *Transport) userAgent() string {
	if ua := strings.TrimSpace(t.UserAgent); ua != "" {
		return ua
	}
	if t.ua == nil {
		return globalUA.random()
	}
	return t.ua.random()
}

// NewPageClient 构造用于列表页抓取的 HTTP client。
//
// 规则：
// - ProxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 未指定 UserAgent：每个请求随机 UA
// - 有界重试 + 总超时
func NewPageClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
	}
	disableKeepAlives := false

	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy_url 必须包含 scheme 与 host")
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retry := opts.RetryMax
	if retry < 0 {
		retry = 0
	}

	return &http.Client{
		Transport: &Transport{
			Base:              base,
			ua:                globalUA,
			UserAgent:         opts.UserAgent,
			RetryMax:          retry,
			DisableKeepAlives: disableKeepAlives,
		},
		Timeout: timeout,
	}, nil
}

// RandomUserAgent 从内置 UA 池挑选一个（浏览器导航器启动时使用）。
func RandomUserAgent() string { return globalUA.random() }

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
