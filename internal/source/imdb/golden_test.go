package imdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/moviescrape/internal/domain"
	"github.com/John-Robertt/moviescrape/internal/normalize"
	"github.com/John-Robertt/moviescrape/internal/source"
)

// TestGolden_ExtractAndNormalize 锁定“列表页 → MovieRecord”的整体输出。
func TestGolden_ExtractAndNormalize(t *testing.T) {
	names := []string{"listing.html", "restyled.html"}

	update := os.Getenv("UPDATE_GOLDEN") == "1"
	if update {
		if err := os.MkdirAll("golden", 0o755); err != nil {
			t.Fatalf("创建 golden 目录失败：%v", err)
		}
	}

	for _, name := range names {
		base := strings.TrimSuffix(name, ".html")

		items, failures, err := Extractor{}.Extract(source.Page{HTML: readFixture(t, name)})
		if err != nil {
			t.Fatalf("%s：不期望错误：%v", name, err)
		}
		if len(failures) != 0 {
			t.Fatalf("%s：不期望条目失败：%+v", name, failures)
		}
		recs := make([]domain.MovieRecord, 0, len(items))
		for _, it := range items {
			recs = append(recs, normalize.Normalize(it))
		}

		got, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			t.Fatalf("序列化失败：%v", err)
		}
		got = append(got, '\n')

		goldenPath := filepath.Join("golden", base+".json")
		if update {
			if err := os.WriteFile(goldenPath, got, 0o644); err != nil {
				t.Fatalf("写入 golden 失败：%v", err)
			}
			continue
		}

		want, err := os.ReadFile(goldenPath)
		if err != nil {
			t.Fatalf("读取 golden 失败：%s err=%v（可用 UPDATE_GOLDEN=1 生成）", goldenPath, err)
		}
		if string(want) != string(got) {
			t.Fatalf("golden 不匹配：%s（重新生成：UPDATE_GOLDEN=1 go test ./internal/source/imdb）\n实际：\n%s", goldenPath, got)
		}
	}
}
