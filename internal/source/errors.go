package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

// StartError 表示浏览器/上下文根本无法启动（会话级致命错误）。
type StartError struct {
	Navigator string
	Err       error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("navigator=%s 启动失败：%v", e.Navigator, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// PageError 表示某一页在重试耗尽后仍然失败。
// Kind 取 domain.KindNavigationTimeout 或 domain.KindPageLoadFailure。
type PageError struct {
	Page     int
	URL      string
	Kind     string
	Attempts int
	Err      error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page=%d kind=%s attempts=%d: %v", e.Page, e.Kind, e.Attempts, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// RedirectError 表示页面被引导到了非预期的主机（验证页/地区跳转等）。
// 不尝试绕过，按页面加载失败处理。
type RedirectError struct {
	Want string
	Got  string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("非预期跳转：期望 %s，实际 %s", e.Want, e.Got)
}

// TimeoutError 表示等待页面内容出现超时。
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	if e.Err == nil {
		return e.Op + " 超时"
	}
	return fmt.Sprintf("%s 超时：%v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Classify 把一次加载错误映射为失败分类。
func Classify(err error) string {
	var te *TimeoutError
	if errors.As(err, &te) {
		return domain.KindNavigationTimeout
	}
	return domain.KindPageLoadFailure
}
