package imdb

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

// DefaultBaseURL 是高级搜索列表页。
const DefaultBaseURL = "https://www.imdb.com/search/title/"

// PageSize 是每次“加载更多”/每个 start 游标新增的条目数。
const PageSize = 50

// ListingURL 按站点的筛选语法构造列表页 URL：
//
//	?title_type=feature&genres=comedy&user_rating=8.5,10&num_votes=1000,&release_date=2020-01-01,2026-10-16
//
// 用户未提供的参数不出现。参数顺序固定（便于日志比对与测试）。
// q 必须已通过 Validate。
func ListingURL(base string, q domain.ScrapeQuery, now time.Time) (string, error) {
	q = q.Normalized()
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultBaseURL
	}
	if q.Genre == "" {
		return "", fmt.Errorf("genre 不能为空")
	}

	var b strings.Builder
	b.WriteString(base)
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	add := func(k, v string) {
		b.WriteString(sep)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(escapeValue(v))
		sep = "&"
	}

	if q.TitleType != "" {
		add("title_type", q.TitleType)
	}
	add("genres", q.Genre)
	if q.UserRating != nil {
		add("user_rating", strconv.FormatFloat(*q.UserRating, 'f', -1, 64)+",10")
	}
	if q.NumVotes != nil {
		add("num_votes", strconv.Itoa(*q.NumVotes)+",")
	}
	if q.ReleaseYear != "" {
		from, to, err := domain.ParseReleaseYear(q.ReleaseYear, now)
		if err != nil {
			return "", err
		}
		// 单年份：从该年 1 月 1 日到今天。
		end := now.Format("2006-01-02")
		if to != 0 {
			end = fmt.Sprintf("%04d-12-31", to)
		}
		add("release_date", fmt.Sprintf("%04d-01-01,%s", from, end))
	}
	return b.String(), nil
}

// WithStart 追加分页游标（1 起的条目序号），供静态 HTTP 翻页使用。
func WithStart(listingURL string, start int) string {
	sep := "?"
	if strings.Contains(listingURL, "?") {
		sep = "&"
	}
	return listingURL + sep + "start=" + strconv.Itoa(start)
}

// escapeValue 与 url.QueryEscape 相同，但保留站点区间语法中的逗号。
func escapeValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "%2C", ",")
}
