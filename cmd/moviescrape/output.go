package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

// emitResult 输出会话结果。
//
// 契约：
// - stdout 是 TTY：摘要行 + 失败表格（人读）
// - 否则 stdout 必须且仅输出一个 ScrapeResult JSON；摘要走 stderr
func emitResult(env *cliEnv, res domain.ScrapeResult) {
	if env.stdoutTTY {
		fmt.Fprintln(env.stdout, summaryLine(res))
		if len(res.ItemsFailed) > 0 {
			fmt.Fprintln(env.stdout, renderFailures(res.ItemsFailed))
		}
		return
	}

	enc := json.NewEncoder(env.stdout)
	_ = enc.Encode(res)
	fmt.Fprintln(env.stderr, summaryLine(res))
}

func summaryLine(res domain.ScrapeResult) string {
	mode := "apply"
	if res.DryRun {
		mode = "dry-run"
	}
	return fmt.Sprintf("完成（%s）：pages=%d found=%d persisted=%d skipped=%d failed=%d",
		mode, res.PagesVisited, res.ItemsFound, res.ItemsPersisted, res.ItemsSkipped, len(res.ItemsFailed),
	)
}

// renderFailures 把失败明细渲染为表格：页号从 1 起，页级失败的 INDEX 显示为 "-"。
func renderFailures(fs []domain.Failure) string {
	tw := newTable(table.Row{"PAGE", "INDEX", "KIND", "ITEM", "REASON"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "PAGE", Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Name: "INDEX", Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Name: "ITEM", WidthMax: 48},
		{Name: "REASON", WidthMax: 80},
	})
	for _, f := range fs {
		idx := "-"
		if f.Index != domain.NoIndex {
			idx = strconv.Itoa(f.Index)
		}
		where := f.Title
		if where == "" {
			where = f.Snippet
		}
		tw.AppendRow(table.Row{f.Page + 1, idx, f.Kind, truncate(where, 48), truncate(f.Reason, 80)})
	}
	return tw.Render()
}

func renderMovies(w io.Writer, recs []domain.MovieRecord) {
	tw := newTable(table.Row{"TITLE", "YEAR", "DURATION", "CATEGORY", "RATING"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "YEAR", Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Name: "RATING", Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	for _, r := range recs {
		tw.AppendRow(table.Row{truncate(r.Title, 48), deref(r.ReleaseYear), deref(r.Duration), deref(r.Category), formatRating(r.IMDbRating)})
	}
	tw.SetCaption("%d 部电影", len(recs))
	fmt.Fprintln(w, tw.Render())
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	return tw
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatRating(r *float64) string {
	if r == nil {
		return "-"
	}
	return strconv.FormatFloat(*r, 'f', 1, 64)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
