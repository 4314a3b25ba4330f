// Package session 编排一次抓取：校验 → 导航 → 抽取 → 规范化 → 落库，并汇总为 ScrapeResult。
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/moviescrape/internal/app/reconcile"
	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/infra/cache"
	"github.com/John-Robertt/moviescrape/internal/normalize"
	"github.com/John-Robertt/moviescrape/internal/source"
	"github.com/John-Robertt/moviescrape/internal/store"
)

// DefaultConcurrency 是并发抽取/规范化的页数上限。
const DefaultConcurrency = 2

// Config 描述一次会话的协作者。
type Config struct {
	Navigator source.Navigator
	Extractor source.Extractor
	Store     store.Store

	// DryRun=true 时写入只进入内存覆盖层（store.NewDryRun），数据库不被修改。
	DryRun bool
	// Concurrency 是同时处理的页数；<=0 使用 DefaultConcurrency。
	Concurrency int
	// Snapshots 非空时把每个成功加载的页面保存为快照。
	Snapshots *cache.Store

	Logger   *slog.Logger
	Observer Observer

	Now      func() time.Time
	NewRunID func() string
}

type Session struct {
	cfg Config
}

func New(cfg Config) *Session {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	return &Session{cfg: cfg}
}

// job 是生产者按顺序产出的一页（或一页的失败）；seq 用于结果重排。
type job struct {
	seq  int
	page source.Page
	err  error
}

// pageResult 是一页抽取 + 规范化的结果（尚未落库）。
type pageResult struct {
	seq      int
	index    int
	url      string
	records  []positioned
	failures []domain.Failure
	found    int
	loaded   bool
	err      error
	started  time.Time
}

type positioned struct {
	index int
	rec   domain.MovieRecord
}

// Run 执行一次抓取。
//
// 返回约定：
// - 总是返回已定稿的 ScrapeResult
// - err 非空时为 *FatalError（校验失败、导航器无法启动、首页失败、ctx 取消）
// - 非首页的页级失败与条目级失败只记录在 ItemsFailed 中
func (s *Session) Run(ctx context.Context, q domain.ScrapeQuery) (domain.ScrapeResult, error) {
	cfg := s.cfg
	now := cfg.Now()
	q = q.Normalized()

	res := domain.ScrapeResult{
		RunID:     cfg.NewRunID(),
		Requested: q,
		DryRun:    cfg.DryRun,
		StartedAt: now,
	}
	log := cfg.Logger.With("run_id", res.RunID, "genre", q.Genre)

	finish := func(err error) (domain.ScrapeResult, error) {
		res.FinishedAt = cfg.Now()
		res.Finalize()
		cfg.Observer.OnFinish(res, err)
		return res, err
	}

	if err := q.Validate(now); err != nil {
		res.ItemsFailed = append(res.ItemsFailed, domain.Failure{
			Index: domain.NoIndex, Kind: domain.KindValidationError, Reason: err.Error(),
		})
		log.Warn("查询参数不合法", "error", err)
		return finish(&FatalError{Stage: StageValidate, Err: err})
	}
	if cfg.Navigator == nil || cfg.Extractor == nil || cfg.Store == nil {
		return finish(&FatalError{Stage: StageStart, Err: errors.New("session 未完整配置")})
	}

	cfg.Observer.OnStart(res.RunID, q)
	log.Info("开始抓取", "navigator", cfg.Navigator.Name(), "pages", q.Pages, "dry_run", cfg.DryRun)

	cursor, err := cfg.Navigator.Open(ctx, q)
	if err != nil {
		log.Error("导航器启动失败", "error", err)
		return finish(&FatalError{Stage: StageStart, Err: err})
	}
	defer func() {
		if cerr := cursor.Close(); cerr != nil {
			log.Warn("关闭导航器失败", "error", cerr)
		}
	}()

	st := cfg.Store
	if cfg.DryRun {
		st = store.NewDryRun(st)
	}
	rec := reconcile.New(st)

	snapDir := s.snapshotDir(q.Genre, res.RunID, log)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job)
	results := make(chan pageResult, cfg.Concurrency)

	g.Go(func() error {
		defer close(jobs)
		return s.produce(gctx, cursor, jobs, snapDir, log)
	})
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for j := range jobs {
				pr := s.process(j, log)
				select {
				case results <- pr:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	var waitErr error
	go func() {
		waitErr = g.Wait()
		close(results)
	}()

	var fatal error
	pending := map[int]pageResult{}
	next := 0
	for pr := range results {
		pending[pr.seq] = pr
		for {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if fatal != nil {
				continue
			}
			if err := s.commit(ctx, &res, rec, cur, log); err != nil {
				fatal = err
			}
		}
	}

	if fatal != nil {
		return finish(fatal)
	}
	if waitErr != nil || ctx.Err() != nil {
		err := waitErr
		if err == nil {
			err = ctx.Err()
		}
		log.Warn("抓取被中止", "error", err)
		return finish(&FatalError{Stage: StageCanceled, Err: err})
	}

	log.Info(fmt.Sprintf("Created %d & skipped %d", res.ItemsPersisted, res.ItemsSkipped),
		"pages", res.PagesVisited,
		"found", res.ItemsFound,
		"failed", len(res.ItemsFailed),
	)
	return finish(nil)
}

// produce 顺序拉取页面。首页失败后不再继续（会话已注定失败）。
func (s *Session) produce(ctx context.Context, cursor source.Cursor, jobs chan<- job, snapDir string, log *slog.Logger) error {
	for seq := 0; ; seq++ {
		page, err := cursor.Next(ctx)
		if errors.Is(err, source.ErrNoMorePages) {
			return nil
		}
		var pe *source.PageError
		if err != nil && !errors.As(err, &pe) {
			return err
		}
		if err == nil && snapDir != "" {
			if werr := s.cfg.Snapshots.WritePage(snapDir, page); werr != nil {
				log.Warn("保存页面快照失败", "page", page.Index, "error", werr)
			}
		}

		select {
		case jobs <- job{seq: seq, page: page, err: err}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if pe != nil && pe.Page == 0 {
			return nil
		}
	}
}

// process 抽取并规范化一页；纯计算，可并发执行。
func (s *Session) process(j job, log *slog.Logger) pageResult {
	pr := pageResult{seq: j.seq, index: j.page.Index, url: j.page.URL, started: s.cfg.Now()}

	if j.err != nil {
		var pe *source.PageError
		if errors.As(j.err, &pe) {
			pr.index = pe.Page
		}
		pr.err = j.err
		pr.failures = append(pr.failures, domain.Failure{
			Page: pr.index, Index: domain.NoIndex, Kind: source.Classify(j.err), Reason: j.err.Error(),
		})
		return pr
	}
	pr.loaded = true

	items, failures, err := s.cfg.Extractor.Extract(j.page)
	if err != nil {
		pr.err = err
		pr.failures = append(pr.failures, domain.Failure{
			Page: pr.index, Index: domain.NoIndex, Kind: domain.KindExtractionFailure, Reason: err.Error(),
		})
		return pr
	}
	pr.failures = append(pr.failures, failures...)
	pr.found = len(items) + len(failures)

	for _, it := range items {
		rec, anomalies := normalize.NormalizeWithAnomalies(it)
		for _, a := range anomalies {
			log.Debug("字段无法解释，按缺失处理", "page", it.Page, "index", it.Index, "field", a.Field, "raw", a.Raw, "reason", a.Reason)
		}
		if err := rec.Validate(); err != nil {
			pr.failures = append(pr.failures, domain.Failure{
				Page: it.Page, Index: it.Index, Snippet: it.Snippet, Kind: domain.KindMissingTitle, Reason: err.Error(),
			})
			continue
		}
		pr.records = append(pr.records, positioned{index: it.Index, rec: rec})
	}
	return pr
}

// commit 按页序落库并累计统计；首页失败时返回 *FatalError。
func (s *Session) commit(ctx context.Context, res *domain.ScrapeResult, rec reconcile.Reconciler, pr pageResult, log *slog.Logger) error {
	sum := PageSummary{Index: pr.index, URL: pr.url, Items: pr.found, Err: pr.err}
	res.ItemsFailed = append(res.ItemsFailed, pr.failures...)
	if pr.loaded {
		res.PagesVisited++
	}
	res.ItemsFound += pr.found

	if pr.err != nil {
		log.Warn("页面失败", "page", pr.index, "error", pr.err)
		sum.Failed = len(pr.failures)
		sum.Dur = s.cfg.Now().Sub(pr.started)
		s.cfg.Observer.OnPageDone(sum)
		if pr.index == 0 && !pr.loaded {
			return &FatalError{Stage: StageFirstPage, Err: pr.err}
		}
		return nil
	}

	for _, p := range pr.records {
		if err := ctx.Err(); err != nil {
			return &FatalError{Stage: StageCanceled, Err: err}
		}
		out := rec.Persist(ctx, p.rec)
		switch out.Status {
		case domain.OutcomeInserted:
			res.ItemsPersisted++
			sum.Inserted++
		case domain.OutcomeSkipped:
			res.ItemsSkipped++
			sum.Skipped++
		default:
			res.ItemsFailed = append(res.ItemsFailed, domain.Failure{
				Page: pr.index, Index: p.index, Title: p.rec.Title, Kind: domain.KindStoreFailure, Reason: out.Err.Error(),
			})
			log.Warn("记录落库失败", "page", pr.index, "title", p.rec.Title, "error", out.Err)
		}
		s.cfg.Observer.OnRecordDone(pr.index, p.rec.Title, out.Status, out.Err)
	}

	sum.Failed = len(pr.failures) + (len(pr.records) - sum.Inserted - sum.Skipped)
	sum.Dur = s.cfg.Now().Sub(pr.started)
	log.Debug("页面完成", "page", pr.index, "items", pr.found, "inserted", sum.Inserted, "skipped", sum.Skipped)
	s.cfg.Observer.OnPageDone(sum)
	return nil
}

func (s *Session) snapshotDir(genre, runID string, log *slog.Logger) string {
	if s.cfg.Snapshots == nil {
		return ""
	}
	dir, err := s.cfg.Snapshots.RunDir(genre, runID)
	if err != nil {
		log.Warn("快照目录不可用，本次不保存快照", "error", err)
		return ""
	}
	return dir
}
