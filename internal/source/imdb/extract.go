package imdb

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/source"
)

// 条目容器按结构特征定位，不依赖带哈希的 class（例如 sc-300a8231-7），
// 站点每次改版都会变。
const (
	ContainerSelector  = "li.ipc-metadata-list-summary-item"
	containerFallback  = "ul[class*='metadata-list-summary'] > li"
	titleSelector      = "h3.ipc-title__text, [class*='ipc-title__text']"
	metaItemSelector   = "[class*='title-metadata-item']"
	metaFallback       = "[class*='title-metadata'] > span"
	ratingSelector     = "[class*='ipc-rating-star--rating']"
	plotSelector       = "div.ipc-html-content-inner-div, [class*='html-content-inner']"
	posterSelector     = "img.ipc-image"
	MoreButtonSelector = "button.ipc-see-more__button"
)

const snippetMaxRunes = 120

// Extractor 实现列表页的 HTML 解析。
//
// 约束：
// - 纯函数（只依赖 page.HTML 与 page.Skip）
// - 可选子元素（评分/简介/演员）缺失时记为空串，不让整个条目失败
type Extractor struct{}

var _ source.Extractor = Extractor{}

// Extract 解析一页，返回原始条目与条目级失败（缺标题）。
func (Extractor) Extract(page source.Page) ([]domain.RawListingItem, []domain.Failure, error) {
	if len(page.HTML) == 0 {
		return nil, nil, errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return nil, nil, err
	}

	var (
		items    []domain.RawListingItem
		failures []domain.Failure
	)
	containers(doc.Selection).Each(func(i int, s *goquery.Selection) {
		if i < page.Skip {
			return
		}
		idx := i - page.Skip
		snippet := snippetOf(s)

		title := s.Find(titleSelector).First().Text()
		if strings.TrimSpace(title) == "" {
			failures = append(failures, domain.Failure{
				Page:    page.Index,
				Index:   idx,
				Snippet: snippet,
				Kind:    domain.KindMissingTitle,
				Reason:  "条目中未找到标题",
			})
			return
		}

		it := domain.RawListingItem{
			Page:       page.Index,
			Index:      idx,
			Title:      title,
			RatingText: s.Find(ratingSelector).First().Text(),
			Plot:       s.Find(plotSelector).First().Text(),
			Cast:       castFromPoster(s),
			Snippet:    snippet,
		}
		it.Year, it.Duration, it.Category = classifyMetadata(metadataTexts(s))
		items = append(items, it)
	})
	return items, failures, nil
}

// CountItems 返回页面中的条目容器数量与首个条目的标题（用于判断翻页是否产出新内容）。
func CountItems(html []byte) (count int, firstTitle string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return 0, "", err
	}
	cs := containers(doc.Selection)
	if cs.Length() > 0 {
		firstTitle = normSpace(cs.First().Find(titleSelector).First().Text())
	}
	return cs.Length(), firstTitle, nil
}

func containers(s *goquery.Selection) *goquery.Selection {
	c := s.Find(ContainerSelector)
	if c.Length() > 0 {
		return c
	}
	return s.Find(containerFallback)
}

func metadataTexts(s *goquery.Selection) []string {
	sel := s.Find(metaItemSelector)
	if sel.Length() == 0 {
		sel = s.Find(metaFallback)
	}
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, m *goquery.Selection) {
		out = append(out, m.Text())
	})
	return out
}

var (
	metaYearRE     = regexp.MustCompile(`^\d{4}(\s*[–-]\s*(\d{4})?)?$`)
	metaDurationRE = regexp.MustCompile(`^(\d+\s*h(\s*\d+\s*m)?|\d+\s*m|\d+\s*min)$`)
)

// classifyMetadata 按内容而不是位置识别元数据：缺少时长时分级标签不会错位。
func classifyMetadata(texts []string) (year, duration, category string) {
	for _, raw := range texts {
		t := normSpace(raw)
		switch {
		case t == "":
			continue
		case year == "" && metaYearRE.MatchString(t):
			year = raw
		case duration == "" && metaDurationRE.MatchString(t):
			duration = raw
		case category == "":
			category = raw
		}
	}
	return year, duration, category
}

// castFromPoster 从海报 alt（"Actor A, Actor B in Title"）取出演员部分。
// alt 中没有 " in " 时整段作为演员文本保留。
func castFromPoster(s *goquery.Selection) string {
	alt, ok := s.Find(posterSelector).First().Attr("alt")
	if !ok {
		return ""
	}
	cast, _, _ := strings.Cut(alt, " in ")
	return cast
}

func snippetOf(s *goquery.Selection) string {
	t := normSpace(s.Text())
	if utf8.RuneCountInString(t) <= snippetMaxRunes {
		return t
	}
	r := []rune(t)
	return string(r[:snippetMaxRunes]) + "…"
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
