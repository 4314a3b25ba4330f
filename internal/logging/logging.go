// Package logging 构造 CLI 使用的 slog.Logger。
//
// 日志只写 stderr：stdout 保留给 JSON 报告与表格输出。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options 描述 logger 的构造参数。
type Options struct {
	Level  string
	Format string // console | json
	// NoColor 为 nil 时按 w 是否为终端自动判断。
	NoColor *bool
}

// New 按 opts 构造写入 w 的 logger。w 为 nil 时写 stderr。
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level := ParseLevel(opts.Level)

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "console":
		noColor := !isTerminal(w)
		if opts.NoColor != nil {
			noColor = *opts.NoColor
		}
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    noColor,
		})
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(h), nil
}

// Discard 返回丢弃一切输出的 logger（测试与静默模式）。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel 把配置中的级别名映射为 slog.Level；未知值按 info 处理。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
