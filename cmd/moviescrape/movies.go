package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/store"
)

func newMoviesCommand(env *cliEnv, gf *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "movies",
		Short: "查看与维护本地电影库",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newMoviesListCommand(env, gf),
		newMoviesGetCommand(env, gf),
		newMoviesUpdateCommand(env, gf),
		newMoviesDeleteCommand(env, gf),
	)
	return cmd
}

func exactTitle(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageError(fmt.Errorf("需要且只需要一个标题参数，实际 %d 个", len(args)))
	}
	return nil
}

// openStore 合并配置并打开数据库；调用方负责 Close。
func openStore(cmd *cobra.Command, env *cliEnv, gf *globalFlags) (store.Store, error) {
	eff, _, err := loadEffective(env, gf.cliArgs(cmd))
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cmd.Context(), eff.DB)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败：%w", err)
	}
	return st, nil
}

func newMoviesListCommand(env *cliEnv, gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出全部记录（按标题排序）",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd, env, gf)
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			if env.stdoutTTY {
				renderMovies(env.stdout, recs)
				return nil
			}
			if recs == nil {
				recs = []domain.MovieRecord{}
			}
			return json.NewEncoder(env.stdout).Encode(recs)
		},
	}
}

func newMoviesGetCommand(env *cliEnv, gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <title>",
		Short: "按标题读取一条记录（大小写不敏感）",
		Args:  exactTitle,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, env, gf)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.Get(cmd.Context(), args[0])
			if err != nil {
				return notFoundAsFailure(args[0], err)
			}
			enc := json.NewEncoder(env.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}

type patchFlags struct {
	title       string
	releaseYear string
	duration    string
	category    string
	rating      float64
	director    string
	cast        string
	plot        string
}

func newMoviesUpdateCommand(env *cliEnv, gf *globalFlags) *cobra.Command {
	pf := &patchFlags{}
	cmd := &cobra.Command{
		Use:   "update <title> [flags]",
		Short: "手工修改一条记录；未指定的字段保持不变",
		Args:  exactTitle,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := pf.patch(cmd)
			if err != nil {
				return usageError(err)
			}

			st, err := openStore(cmd, env, gf)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := st.Update(cmd.Context(), args[0], patch)
			if err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return &exitError{code: exitFailures, err: fmt.Errorf("新标题与已有记录冲突：%w", err)}
				}
				return notFoundAsFailure(args[0], err)
			}
			enc := json.NewEncoder(env.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
	f := cmd.Flags()
	f.StringVar(&pf.title, "title", "", "新标题")
	f.StringVar(&pf.releaseYear, "release-year", "", "上映年份")
	f.StringVar(&pf.duration, "duration", "", "片长")
	f.StringVar(&pf.category, "category", "", "分级")
	f.Float64Var(&pf.rating, "rating", 0, "IMDb 评分 [0,10]")
	f.StringVar(&pf.director, "director", "", "导演")
	f.StringVar(&pf.cast, "cast", "", "主演")
	f.StringVar(&pf.plot, "plot", "", "简介")
	return cmd
}

// patch 只收集显式指定的参数：未指定即不修改。
func (pf *patchFlags) patch(cmd *cobra.Command) (domain.MoviePatch, error) {
	flags := cmd.Flags()
	var p domain.MoviePatch
	set := func(name string, dst **string, v *string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("title", &p.Title, &pf.title)
	set("release-year", &p.ReleaseYear, &pf.releaseYear)
	set("duration", &p.Duration, &pf.duration)
	set("category", &p.Category, &pf.category)
	set("director", &p.Director, &pf.director)
	set("cast", &p.Cast, &pf.cast)
	set("plot", &p.PlotSummary, &pf.plot)
	if flags.Changed("rating") {
		if pf.rating < 0 || pf.rating > 10 {
			return domain.MoviePatch{}, fmt.Errorf("--rating 必须在 [0,10]，实际 %v", pf.rating)
		}
		p.IMDbRating = &pf.rating
	}
	if p.Title != nil {
		if err := (domain.MovieRecord{Title: *p.Title}).Validate(); err != nil {
			return domain.MoviePatch{}, fmt.Errorf("--title：%w", err)
		}
	}
	return p, nil
}

func newMoviesDeleteCommand(env *cliEnv, gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <title>",
		Short: "删除一条记录（大小写不敏感）",
		Args:  exactTitle,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd, env, gf)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return notFoundAsFailure(args[0], err)
			}
			fmt.Fprintf(env.stderr, "已删除：%s\n", args[0])
			return nil
		},
	}
}

func notFoundAsFailure(title string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &exitError{code: exitFailures, err: fmt.Errorf("未找到 %q", title)}
	}
	return err
}
