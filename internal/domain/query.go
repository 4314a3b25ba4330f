package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultPages 是 pages 未指定（0）时的页数。
const DefaultPages = 1

// DefaultTitleType 与原站搜索页的默认筛选保持一致。
const DefaultTitleType = "feature"

// MinReleaseYear 是允许的最早上映年份。
const MinReleaseYear = 1900

// Genres 是站点认可的 genre slug（小写）。
var Genres = []string{
	"action", "adventure", "animation", "biography", "comedy", "crime",
	"documentary", "drama", "family", "fantasy", "film-noir", "history",
	"horror", "music", "musical", "mystery", "romance", "sci-fi", "sport",
	"thriller", "war", "western",
}

// TitleTypes 是站点认可的 title_type slug。
var TitleTypes = []string{
	"feature", "tv_series", "short", "tv_movie", "tv_miniseries",
	"tv_special", "documentary", "video",
}

// ScrapeQuery 描述一次抓取的筛选条件。
//
// 约束：
// - Genre 必填
// - 可选字段为 nil/"" 时不参与 URL 构造
// - Validate 必须在任何网络访问之前完成
type ScrapeQuery struct {
	Genre       string   `json:"genre"`
	TitleType   string   `json:"title_type,omitempty"`
	UserRating  *float64 `json:"user_rating,omitempty"`
	NumVotes    *int     `json:"num_votes,omitempty"`
	ReleaseYear string   `json:"release_year,omitempty"` // "2020" 或 "2010-2015"
	Pages       int      `json:"pages"`
}

// ValidationError 表示查询参数不合法（致命：发生在任何导航之前）。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	return fmt.Sprintf("参数 %s 不合法：%s", e.Field, e.Reason)
}

// Normalized 返回规范化后的副本：genre/title_type 小写去空白，pages=0 取默认值。
func (q ScrapeQuery) Normalized() ScrapeQuery {
	q.Genre = strings.ToLower(strings.TrimSpace(q.Genre))
	q.TitleType = strings.ToLower(strings.TrimSpace(q.TitleType))
	q.ReleaseYear = strings.TrimSpace(q.ReleaseYear)
	if q.Pages == 0 {
		q.Pages = DefaultPages
	}
	return q
}

// Validate 校验规范化后的查询。now 用于确定“当前年份”上界。
func (q ScrapeQuery) Validate(now time.Time) error {
	q = q.Normalized()

	if q.Genre == "" {
		return &ValidationError{Field: "genre", Reason: "不能为空"}
	}
	if !contains(Genres, q.Genre) {
		return &ValidationError{Field: "genre", Reason: fmt.Sprintf("未知 genre %q，可选：%s", q.Genre, strings.Join(Genres, ", "))}
	}
	if q.TitleType != "" && !contains(TitleTypes, q.TitleType) {
		return &ValidationError{Field: "title_type", Reason: fmt.Sprintf("未知 title_type %q，可选：%s", q.TitleType, strings.Join(TitleTypes, ", "))}
	}
	if q.UserRating != nil {
		r := *q.UserRating
		if math.IsNaN(r) || r < 0 || r > 10 {
			return &ValidationError{Field: "user_rating", Reason: fmt.Sprintf("必须在 [0, 10] 内，实际 %v", r)}
		}
	}
	if q.NumVotes != nil && *q.NumVotes < 0 {
		return &ValidationError{Field: "num_votes", Reason: fmt.Sprintf("不能为负数，实际 %d", *q.NumVotes)}
	}
	if q.ReleaseYear != "" {
		if _, _, err := ParseReleaseYear(q.ReleaseYear, now); err != nil {
			return &ValidationError{Field: "release_year", Reason: err.Error()}
		}
	}
	if q.Pages < 1 {
		return &ValidationError{Field: "pages", Reason: fmt.Sprintf("必须 >= 1，实际 %d", q.Pages)}
	}
	return nil
}

var releaseYearRE = regexp.MustCompile(`^(\d{4})(?:-(\d{4}))?$`)

// ParseReleaseYear 解析 "YYYY" 或 "YYYY-YYYY"。
// 单年份返回 (Y, 0)；区间返回 (from, to)。
func ParseReleaseYear(s string, now time.Time) (from, to int, err error) {
	m := releaseYearRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("格式必须是 YYYY 或 YYYY-YYYY，实际 %q", s)
	}
	years := []int{0}
	years[0], _ = strconv.Atoi(m[1])
	if m[2] != "" {
		y, _ := strconv.Atoi(m[2])
		years = append(years, y)
	}

	current := now.Year()
	for _, y := range years {
		if y < MinReleaseYear || y > current {
			return 0, 0, fmt.Errorf("年份必须在 %d 到 %d 之间，实际 %d", MinReleaseYear, current, y)
		}
	}
	from = years[0]
	if len(years) == 2 {
		to = years[1]
	}
	if to != 0 && to < from {
		return 0, 0, fmt.Errorf("区间起点 %d 晚于终点 %d", from, to)
	}
	return from, to, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// IsTitleType 判断 s 是否为已知的 title_type slug（区分大小写，调用方先规范化）。
func IsTitleType(s string) bool { return contains(TitleTypes, s) }
