package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件/环境变量无法解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// DefaultFileName 是未指定 --config 时在 cwd 下查找的配置文件（可选）。
	DefaultFileName = "moviescrape.toml"
	// EnvPrefix 是环境变量覆盖的前缀，例如 MOVIESCRAPE_DB。
	EnvPrefix = "MOVIESCRAPE_"

	DefaultDB           = "moviescrape.db"
	DefaultBackend      = BackendBrowser
	DefaultConcurrency  = 2
	DefaultPageTimeout  = 30 * time.Second
	DefaultRetries      = 1
	DefaultRetryInitial = time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
)

// 导航后端。
const (
	BackendBrowser = "browser"
	BackendHTTP    = "http"
)

// CLIArgs 是 CLI 暴露的覆盖项；nil 表示未显式指定。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 apply = true。
type CLIArgs struct {
	ConfigPath string

	DB        *string
	Apply     *bool
	Backend   *string
	TitleType *string
	Pages     *int
	LogLevel  *string
}

// FileConfig 对应 moviescrape.toml 的解析结构；环境变量按同名键覆盖到这里。
type FileConfig struct {
	DB           string `toml:"db"`
	Apply        *bool  `toml:"apply"`
	TitleType    string `toml:"title_type"`
	Pages        int    `toml:"pages"`
	Concurrency  int    `toml:"concurrency"`
	PageTimeout  string `toml:"page_timeout"`
	Retries      *int   `toml:"retries"`
	RetryInitial string `toml:"retry_initial"`
	Headless     *bool  `toml:"headless"`
	ChromePath   string `toml:"chrome_path"`
	ProxyURL     string `toml:"proxy_url"`
	Backend      string `toml:"backend"`
	BaseURL      string `toml:"base_url"`
	SnapshotDir  string `toml:"snapshot_dir"`
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 是实际读取的配置文件；未读取任何文件时为空。
	ConfigPath string

	DB    string
	Apply bool

	// TitleType / Pages 是 ScrapeQuery 的默认值（CLI 未指定时使用）。
	TitleType string
	Pages     int

	Backend      string
	BaseURL      string
	Concurrency  int
	PageTimeout  time.Duration
	Retries      int
	RetryInitial time.Duration
	Headless     bool
	ChromePath   string
	ProxyURL     string
	SnapshotDir  string

	LogLevel  string
	LogFormat string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：%s 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：%s 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LookupFunc 与 os.LookupEnv 同型，便于测试注入。
type LookupFunc func(key string) (string, bool)

// LoadEffective 读取配置文件与环境变量，并与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/moviescrape.toml（可选）
//
// 覆盖优先级（固定）：CLI > 环境变量 MOVIESCRAPE_* > 配置文件 > 内置默认。
func LoadEffective(cwd string, cli CLIArgs, lookup LookupFunc) (EffectiveConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, DefaultFileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			cfgPath = ""
		}
	}

	if err := applyEnv(&fc, lookup); err != nil {
		return EffectiveConfig{}, err
	}
	eff, err := merge(cwdAbs, cli, fc, cfgPath)
	if err != nil {
		return EffectiveConfig{}, err
	}
	eff.ConfigPath = cfgPath
	return eff, nil
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	where := cfgPath
	if where == "" {
		where = "配置"
	}
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: where, Err: fmt.Errorf(format, args...)}
	}

	eff := EffectiveConfig{
		DB:           pick(cli.DB, fc.DB, DefaultDB),
		Apply:        pickBool(cli.Apply, fc.Apply, false),
		TitleType:    strings.ToLower(pick(cli.TitleType, fc.TitleType, domain.DefaultTitleType)),
		Backend:      strings.ToLower(pick(cli.Backend, fc.Backend, DefaultBackend)),
		BaseURL:      strings.TrimSpace(fc.BaseURL),
		Concurrency:  fc.Concurrency,
		Retries:      DefaultRetries,
		Headless:     pickBool(nil, fc.Headless, true),
		ChromePath:   strings.TrimSpace(fc.ChromePath),
		ProxyURL:     strings.TrimSpace(fc.ProxyURL),
		SnapshotDir:  strings.TrimSpace(fc.SnapshotDir),
		LogLevel:     strings.ToLower(pick(cli.LogLevel, fc.LogLevel, DefaultLogLevel)),
		LogFormat:    strings.ToLower(pick(nil, fc.LogFormat, DefaultLogFormat)),
		PageTimeout:  DefaultPageTimeout,
		RetryInitial: DefaultRetryInitial,
	}

	// pages：CLI > 配置 > 默认 1
	eff.Pages = fc.Pages
	if cli.Pages != nil {
		eff.Pages = *cli.Pages
	}
	if eff.Pages == 0 {
		eff.Pages = domain.DefaultPages
	}
	if eff.Pages < 1 {
		return EffectiveConfig{}, invalid("pages 必须 >= 1，实际 %d", eff.Pages)
	}

	if eff.TitleType != "" && !domain.IsTitleType(eff.TitleType) {
		return EffectiveConfig{}, invalid("title_type 未知：%q", eff.TitleType)
	}

	// sqlite 相对路径以 cwd 为基准；postgres DSN 原样保留。
	if !strings.Contains(eff.DB, "://") && eff.DB != ":memory:" {
		eff.DB = absCleanFrom(cwdAbs, eff.DB)
	}
	if eff.SnapshotDir != "" {
		eff.SnapshotDir = absCleanFrom(cwdAbs, eff.SnapshotDir)
	}

	switch eff.Backend {
	case BackendBrowser, BackendHTTP:
	default:
		return EffectiveConfig{}, invalid("backend 只能是 browser 或 http，实际是 %q", eff.Backend)
	}

	// 文档约定：范围 [1, 16]；超出截断。
	if eff.Concurrency == 0 {
		eff.Concurrency = DefaultConcurrency
	}
	if eff.Concurrency < 1 {
		eff.Concurrency = 1
	}
	if eff.Concurrency > 16 {
		eff.Concurrency = 16
	}

	if fc.Retries != nil {
		if *fc.Retries < 0 || *fc.Retries > 10 {
			return EffectiveConfig{}, invalid("retries 必须在 [0,10]，实际 %d", *fc.Retries)
		}
		eff.Retries = *fc.Retries
	}

	var err error
	if eff.PageTimeout, err = parseDuration("page_timeout", fc.PageTimeout, DefaultPageTimeout); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: where, Err: err}
	}
	if eff.RetryInitial, err = parseDuration("retry_initial", fc.RetryInitial, DefaultRetryInitial); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: where, Err: err}
	}

	if eff.ProxyURL != "" {
		u, err := url.Parse(eff.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, invalid("proxy_url 无效：%q", eff.ProxyURL)
		}
	}
	if eff.BaseURL != "" {
		u, err := url.Parse(eff.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return EffectiveConfig{}, invalid("base_url 必须是 http/https：%q", eff.BaseURL)
		}
	}

	switch eff.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return EffectiveConfig{}, invalid("log_level 未知：%q", eff.LogLevel)
	}
	switch eff.LogFormat {
	case "console", "json":
	default:
		return EffectiveConfig{}, invalid("log_format 只能是 console 或 json，实际是 %q", eff.LogFormat)
	}
	return eff, nil
}

// envKeys 把环境变量映射到 FileConfig 字段；值按字段类型解析。
var envKeys = []string{
	"db", "apply", "title_type", "pages", "concurrency", "page_timeout", "retries", "retry_initial",
	"headless", "chrome_path", "proxy_url", "backend", "base_url", "snapshot_dir", "log_level", "log_format",
}

// applyEnv 把 MOVIESCRAPE_* 覆盖到 fc 上。空值视为未设置。
func applyEnv(fc *FileConfig, lookup LookupFunc) error {
	for _, key := range envKeys {
		name := EnvPrefix + strings.ToUpper(key)
		v, ok := lookup(name)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		bad := func(err error) error {
			return &Error{Code: ErrCodeInvalid, Path: "env:" + name, Err: err}
		}
		switch key {
		case "db":
			fc.DB = v
		case "apply":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return bad(err)
			}
			fc.Apply = &b
		case "title_type":
			fc.TitleType = v
		case "pages":
			n, err := strconv.Atoi(v)
			if err != nil {
				return bad(err)
			}
			fc.Pages = n
		case "concurrency":
			n, err := strconv.Atoi(v)
			if err != nil {
				return bad(err)
			}
			fc.Concurrency = n
		case "page_timeout":
			fc.PageTimeout = v
		case "retries":
			n, err := strconv.Atoi(v)
			if err != nil {
				return bad(err)
			}
			fc.Retries = &n
		case "retry_initial":
			fc.RetryInitial = v
		case "headless":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return bad(err)
			}
			fc.Headless = &b
		case "chrome_path":
			fc.ChromePath = v
		case "proxy_url":
			fc.ProxyURL = v
		case "backend":
			fc.Backend = v
		case "base_url":
			fc.BaseURL = v
		case "snapshot_dir":
			fc.SnapshotDir = v
		case "log_level":
			fc.LogLevel = v
		case "log_format":
			fc.LogFormat = v
		}
	}
	return nil
}

func pick(cli *string, file, def string) string {
	if cli != nil && strings.TrimSpace(*cli) != "" {
		return strings.TrimSpace(*cli)
	}
	if strings.TrimSpace(file) != "" {
		return strings.TrimSpace(file)
	}
	return def
}

func pickBool(cli, file *bool, def bool) bool {
	if cli != nil {
		return *cli
	}
	if file != nil {
		return *file
	}
	return def
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s 无效：%w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s 必须 > 0，实际 %s", field, raw)
	}
	return d, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件；未知键视为错误（拼写错误不应被静默忽略）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
