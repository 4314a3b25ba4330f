package domain

import (
	"errors"
	"strings"
)

// RawListingItem 是列表页上一个条目未经规范化的抓取结果。
//
// 约束：
// - 字段保持抓取时的原文（可能带空白/单位后缀）
// - 空串表示页面上缺失该子元素
// - 只在规范化之前存活，不落盘
type RawListingItem struct {
	Page  int // 页下标（0 起）
	Index int // 页内条目下标（0 起，已扣除 Page.Skip）

	Title      string
	Year       string
	Duration   string
	Category   string // 分级标签，例如 "PG-13"
	RatingText string // 星级评分原文，例如 "8.5"
	Cast       string
	Plot       string

	// Snippet 是条目容器的截断文本，用于失败定位。
	Snippet string
}

// MovieRecord 是持久化的电影记录。Title 是自然键：保留大小写，匹配时大小写不敏感。
//
// 约束：只有 Title 必填；其它字段因来源页面完整度不一而允许为 nil。
type MovieRecord struct {
	Title       string   `json:"title"`
	ReleaseYear *string  `json:"release_year"`
	Duration    *string  `json:"duration"`
	Category    *string  `json:"category"`
	IMDbRating  *float64 `json:"imdb_rating"`
	Director    *string  `json:"director"`
	Cast        *string  `json:"cast"`
	PlotSummary *string  `json:"plot_summary"`
}

// ErrMissingTitle 表示记录没有可用标题。
var ErrMissingTitle = errors.New("标题为空")

// Validate 只校验自然键；其它字段全部可空。
func (m MovieRecord) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return ErrMissingTitle
	}
	return nil
}

// MoviePatch 描述一次部分更新：nil 字段保持不变。
type MoviePatch struct {
	Title       *string  `json:"title,omitempty"`
	ReleaseYear *string  `json:"release_year,omitempty"`
	Duration    *string  `json:"duration,omitempty"`
	Category    *string  `json:"category,omitempty"`
	IMDbRating  *float64 `json:"imdb_rating,omitempty"`
	Director    *string  `json:"director,omitempty"`
	Cast        *string  `json:"cast,omitempty"`
	PlotSummary *string  `json:"plot_summary,omitempty"`
}

// Apply 返回应用 patch 后的新记录（不修改 m）。
func (p MoviePatch) Apply(m MovieRecord) MovieRecord {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.ReleaseYear != nil {
		m.ReleaseYear = p.ReleaseYear
	}
	if p.Duration != nil {
		m.Duration = p.Duration
	}
	if p.Category != nil {
		m.Category = p.Category
	}
	if p.IMDbRating != nil {
		m.IMDbRating = p.IMDbRating
	}
	if p.Director != nil {
		m.Director = p.Director
	}
	if p.Cast != nil {
		m.Cast = p.Cast
	}
	if p.PlotSummary != nil {
		m.PlotSummary = p.PlotSummary
	}
	return m
}

// StrPtr / FloatPtr 是构造可空字段的小工具。
func StrPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }

func IntPtr(n int) *int { return &n }
