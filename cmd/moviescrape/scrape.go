package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/moviescrape/internal/app/session"
	"github.com/John-Robertt/moviescrape/internal/config"
	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/infra/cache"
	"github.com/John-Robertt/moviescrape/internal/infra/fsx"
	"github.com/John-Robertt/moviescrape/internal/infra/httpx"
	"github.com/John-Robertt/moviescrape/internal/logging"
	"github.com/John-Robertt/moviescrape/internal/source"
	"github.com/John-Robertt/moviescrape/internal/source/imdb"
	"github.com/John-Robertt/moviescrape/internal/source/replay"
	"github.com/John-Robertt/moviescrape/internal/store"
)

type scrapeFlags struct {
	genre       string
	titleType   string
	userRating  float64
	numVotes    int
	releaseYear string
	pages       int

	apply   bool
	backend string
	replay  string
	report  string
}

func newScrapeCommand(env *cliEnv, gf *globalFlags) *cobra.Command {
	sf := &scrapeFlags{}
	cmd := &cobra.Command{
		Use:   "scrape --genre <genre> [flags]",
		Short: "抓取一个类型的列表页并落库（默认 dry-run）",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, env, gf, sf)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sf.genre, "genre", "", "类型（必填），例如 drama、sci-fi")
	f.StringVar(&sf.titleType, "title-type", "", "作品类型（默认 feature）")
	f.Float64Var(&sf.userRating, "user-rating", 0, "最低评分 [0,10]")
	f.IntVar(&sf.numVotes, "num-votes", 0, "最少投票数")
	f.StringVar(&sf.releaseYear, "release-year", "", "上映年份 YYYY 或区间 YYYY-YYYY")
	f.IntVar(&sf.pages, "pages", 0, "最多抓取的页数（默认 1）")
	f.BoolVar(&sf.apply, "apply", false, "写入数据库（默认 dry-run）；支持 --apply=false 覆盖配置")
	f.StringVar(&sf.backend, "backend", "", "导航后端：browser|http")
	f.StringVar(&sf.replay, "replay", "", "从快照目录回放页面（不访问网络）")
	f.StringVar(&sf.report, "report", "", "额外把结果 JSON 写入该文件")
	return cmd
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError(fmt.Errorf("不接受位置参数：%q", args))
	}
	return nil
}

func runScrape(cmd *cobra.Command, env *cliEnv, gf *globalFlags, sf *scrapeFlags) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	cli := gf.cliArgs(cmd)
	if flags.Changed("apply") {
		cli.Apply = &sf.apply
	}
	if flags.Changed("backend") {
		cli.Backend = &sf.backend
	}
	if flags.Changed("title-type") {
		cli.TitleType = &sf.titleType
	}
	if flags.Changed("pages") {
		cli.Pages = &sf.pages
	}

	eff, log, err := loadEffective(env, cli)
	if err != nil {
		return err
	}

	q := domain.ScrapeQuery{
		Genre:       sf.genre,
		TitleType:   eff.TitleType,
		ReleaseYear: sf.releaseYear,
		Pages:       eff.Pages,
	}
	if flags.Changed("user-rating") {
		q.UserRating = &sf.userRating
	}
	if flags.Changed("num-votes") {
		q.NumVotes = &sf.numVotes
	}

	retry := source.RetryPolicy{Retries: eff.Retries, Initial: eff.RetryInitial, Multiplier: 2}
	cfg := session.Config{
		Extractor:   imdb.Extractor{},
		DryRun:      !eff.Apply,
		Concurrency: eff.Concurrency,
		Logger:      log,
	}
	if env.stderrTTY {
		cfg.Observer = newProgressUI(env.stderr, eff, navigatorLabel(eff, sf.replay))
	}
	if eff.SnapshotDir != "" && sf.replay == "" {
		snaps := cache.New(eff.SnapshotDir)
		cfg.Snapshots = &snaps
	}

	// 参数不合法时不打开数据库，也不启动浏览器：会话在校验阶段即返回。
	if q.Validate(time.Now()) == nil {
		nav, err := newNavigator(eff, sf.replay, retry)
		if err != nil {
			return usageError(err)
		}
		cfg.Navigator = nav

		st, err := store.Open(ctx, eff.DB)
		if err != nil {
			return fmt.Errorf("打开数据库失败：%w", err)
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				log.Warn("关闭数据库失败", "error", cerr)
			}
		}()
		cfg.Store = st
	}

	res, runErr := session.New(cfg).Run(ctx, q)

	if sf.report != "" {
		if err := writeReportFile(absFrom(env.cwd, sf.report), res); err != nil {
			log.Error("写入报告失败", "path", sf.report, "error", err)
			emitResult(env, res)
			return &exitError{code: exitFailures, err: err}
		}
	}
	emitResult(env, res)

	return scrapeExit(res, runErr)
}

// scrapeExit 把会话结果映射为退出码。
func scrapeExit(res domain.ScrapeResult, runErr error) error {
	if runErr != nil {
		var fe *session.FatalError
		if errors.As(runErr, &fe) && fe.Stage == session.StageValidate {
			return &exitError{code: exitUsage, err: runErr}
		}
		if errors.Is(runErr, context.Canceled) {
			return &exitError{code: exitFailures, err: runErr, silent: true}
		}
		return &exitError{code: exitFailures, err: runErr}
	}
	if len(res.ItemsFailed) > 0 {
		return &exitError{code: exitFailures, silent: true}
	}
	return nil
}

func newNavigator(eff config.EffectiveConfig, replayDir string, retry source.RetryPolicy) (source.Navigator, error) {
	if replayDir != "" {
		info, err := os.Stat(replayDir)
		if err != nil {
			return nil, fmt.Errorf("--replay 目录不可用：%w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("--replay 必须是目录：%q", replayDir)
		}
		return replay.Navigator{FS: os.DirFS(replayDir), Retry: retry}, nil
	}

	switch eff.Backend {
	case config.BackendHTTP:
		// 传输层不重试：每页的尝试次数与退避只由 retry 决定。
		client, err := httpx.NewPageClient(httpx.Options{
			ProxyURL: eff.ProxyURL,
			Timeout:  eff.PageTimeout,
		})
		if err != nil {
			return nil, err
		}
		return imdb.HTTP{BaseURL: eff.BaseURL, Client: client, Retry: retry}, nil
	default:
		return imdb.Browser{
			BaseURL:     eff.BaseURL,
			Headless:    eff.Headless,
			ExecPath:    eff.ChromePath,
			ProxyURL:    eff.ProxyURL,
			PageTimeout: eff.PageTimeout,
			Retry:       retry,
		}, nil
	}
}

func navigatorLabel(eff config.EffectiveConfig, replayDir string) string {
	if replayDir != "" {
		return "replay (" + replayDir + ")"
	}
	return eff.Backend
}

// cliArgs 收集持久参数中被显式指定的覆盖项。
func (gf *globalFlags) cliArgs(cmd *cobra.Command) config.CLIArgs {
	cli := config.CLIArgs{ConfigPath: gf.configPath}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cli.DB = &gf.db
	}
	if flags.Changed("log-level") {
		cli.LogLevel = &gf.logLevel
	}
	return cli
}

// loadEffective 合并配置并按结果构造 logger；配置错误属于用法错误（退出码 2）。
func loadEffective(env *cliEnv, cli config.CLIArgs) (config.EffectiveConfig, *slog.Logger, error) {
	eff, err := config.LoadEffective(env.cwd, cli, env.lookup)
	if err != nil {
		return config.EffectiveConfig{}, nil, usageError(err)
	}
	log, err := logging.New(env.stderr, logging.Options{Level: eff.LogLevel, Format: eff.LogFormat})
	if err != nil {
		return config.EffectiveConfig{}, nil, usageError(err)
	}
	if eff.ConfigPath != "" {
		log.Debug("已读取配置文件", "path", eff.ConfigPath)
	}
	return eff, log, nil
}

func writeReportFile(path string, res domain.ScrapeResult) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFile(path, b)
}

func absFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
