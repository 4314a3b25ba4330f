// Package normalize 把列表页的原始文本转换为 MovieRecord。
//
// 约束：纯函数、全函数（任何输入都不 panic），缺失字段统一为 nil。
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

// Anomaly 描述一次“文本存在但无法解释”的字段。它不是失败，只用于调试日志。
type Anomaly struct {
	Field  string
	Raw    string
	Reason string
}

var (
	rankPrefixRE = regexp.MustCompile(`^\d+\.\s+`)
	yearRE       = regexp.MustCompile(`(?:^|\D)(\d{4})(?:\D|$)`)
	ratingRE     = regexp.MustCompile(`^\d+(?:\.\d+)?`)
)

// Normalize 等价于 NormalizeWithAnomalies 丢弃异常列表。
func Normalize(item domain.RawListingItem) domain.MovieRecord {
	rec, _ := NormalizeWithAnomalies(item)
	return rec
}

func NormalizeWithAnomalies(item domain.RawListingItem) (domain.MovieRecord, []Anomaly) {
	var anomalies []Anomaly

	rec := domain.MovieRecord{
		Title:       Title(item.Title),
		Duration:    optional(strings.TrimSpace(item.Duration)),
		Category:    optional(strings.TrimSpace(item.Category)),
		Cast:        optional(collapse(item.Cast)),
		PlotSummary: optional(collapse(item.Plot)),
	}

	if y, ok := Year(item.Year); ok {
		rec.ReleaseYear = &y
	} else if strings.TrimSpace(item.Year) != "" {
		anomalies = append(anomalies, Anomaly{Field: "release_year", Raw: item.Year, Reason: "未找到四位年份"})
	}

	if raw := strings.TrimSpace(item.RatingText); raw != "" {
		r, reason := Rating(raw)
		if reason == "" {
			rec.IMDbRating = &r
		} else {
			anomalies = append(anomalies, Anomaly{Field: "imdb_rating", Raw: raw, Reason: reason})
		}
	}
	return rec, anomalies
}

// Title 折叠空白并去掉列表排名前缀（"12. Heat" -> "Heat"）。
func Title(raw string) string {
	t := collapse(raw)
	if stripped := rankPrefixRE.ReplaceAllString(t, ""); stripped != "" {
		return stripped
	}
	return t
}

// Year 取第一个独立的四位数字串（"2019–2022" -> "2019"）。
func Year(raw string) (string, bool) {
	m := yearRE.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Rating 解析开头的十进制数；超出 [0,10] 返回 reason（不做截断）。
func Rating(raw string) (float64, string) {
	m := ratingRE.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0, "不是数字"
	}
	r, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, "不是数字"
	}
	if r < 0 || r > 10 {
		return 0, "超出 [0,10]"
	}
	return r, ""
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
