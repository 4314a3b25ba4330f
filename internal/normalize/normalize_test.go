package normalize

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/moviescrape/internal/domain"
)

func TestNormalize_FullItem(t *testing.T) {
	got := Normalize(domain.RawListingItem{
		Title:      "  1. The   Shawshank Redemption ",
		Year:       "1994",
		Duration:   " 2h 22m ",
		Category:   "R",
		RatingText: "9.3",
		Cast:       "Tim Robbins,\n Morgan Freeman",
		Plot:       "  A banker convicted of uxoricide\n\t forms a friendship. ",
	})
	want := domain.MovieRecord{
		Title:       "The Shawshank Redemption",
		ReleaseYear: domain.StrPtr("1994"),
		Duration:    domain.StrPtr("2h 22m"),
		Category:    domain.StrPtr("R"),
		IMDbRating:  domain.FloatPtr(9.3),
		Cast:        domain.StrPtr("Tim Robbins, Morgan Freeman"),
		PlotSummary: domain.StrPtr("A banker convicted of uxoricide forms a friendship."),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("规范化结果不一致（-want +got）：\n%s", diff)
	}
}

func TestNormalize_MissingOptionalFieldsAreNil(t *testing.T) {
	rec, anomalies := NormalizeWithAnomalies(domain.RawListingItem{Title: "Quiet Harbor"})
	if rec.Title != "Quiet Harbor" {
		t.Fatalf("title 不正确：%q", rec.Title)
	}
	if rec.ReleaseYear != nil || rec.Duration != nil || rec.Category != nil || rec.IMDbRating != nil ||
		rec.Director != nil || rec.Cast != nil || rec.PlotSummary != nil {
		t.Fatalf("缺失字段应为 nil：%+v", rec)
	}
	if len(anomalies) != 0 {
		t.Fatalf("缺失不是异常：%+v", anomalies)
	}
}

func TestTitle(t *testing.T) {
	cases := map[string]string{
		"12. Heat":           "Heat",
		"Heat":               "Heat",
		"1917":               "1917",
		"  3.   The  Thing ": "The Thing",
		"42.":                "42.",
		"":                   "",
	}
	for in, want := range cases {
		if got := Title(in); got != want {
			t.Fatalf("Title(%q) 期望 %q，实际 %q", in, want, got)
		}
	}
}

func TestYear(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2023", "2023", true},
		{"2019–2022", "2019", true},
		{"(I) 2015", "2015", true},
		{"12345", "", false},
		{"TV-MA", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := Year(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Year(%q) 期望 (%q,%v)，实际 (%q,%v)", tc.in, tc.want, tc.ok, got, ok)
		}
	}
}

func TestRating_OutOfRangeIsRejected(t *testing.T) {
	rec, anomalies := NormalizeWithAnomalies(domain.RawListingItem{Title: "X", RatingText: "12.5"})
	if rec.IMDbRating != nil {
		t.Fatalf("超出范围的评分应为 nil，实际 %v", *rec.IMDbRating)
	}
	if len(anomalies) != 1 || anomalies[0].Field != "imdb_rating" {
		t.Fatalf("期望 1 个 imdb_rating 异常，实际 %+v", anomalies)
	}

	rec, anomalies = NormalizeWithAnomalies(domain.RawListingItem{Title: "X", RatingText: "n/a"})
	if rec.IMDbRating != nil || len(anomalies) != 1 {
		t.Fatalf("无法解析的评分应为 nil 并记录异常：%+v %+v", rec, anomalies)
	}
}

func TestRating_LeadingNumber(t *testing.T) {
	cases := map[string]float64{
		"8.5":        8.5,
		"7.9 (120K)": 7.9,
		"10":         10,
		"0":          0,
	}
	for in, want := range cases {
		got, reason := Rating(in)
		if reason != "" || got != want {
			t.Fatalf("Rating(%q) 期望 %v，实际 %v（%s）", in, want, got, reason)
		}
	}
}

func TestNormalize_IsTotal(t *testing.T) {
	inputs := []domain.RawListingItem{
		{},
		{Title: "\x00\xff", Year: "\xff\xfe", RatingText: "9999999999999999999999999.9"},
		{Title: "1. ", RatingText: "-3", Duration: "\n"},
		{Title: "🎬", Cast: " in ", Plot: " "},
	}
	for _, in := range inputs {
		a := Normalize(in)
		b := Normalize(in)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("相同输入应得到相同输出：\n%s", diff)
		}
	}
}
