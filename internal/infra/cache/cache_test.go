package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/John-Robertt/moviescrape/internal/source"
)

func TestStore_WriteReadPage(t *testing.T) {
	s := New(t.TempDir())
	dir, err := s.RunDir("Sci-Fi", "0f8c2a")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Base(filepath.Dir(dir)) != "sci-fi" {
		t.Fatalf("genre 目录应小写：%s", dir)
	}

	in := source.Page{Index: 1, URL: "https://www.imdb.com/search/title/?genres=sci-fi", HTML: []byte("<html/>"), Skip: 50}
	if err := s.WritePage(dir, in); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "page-002.html")); err != nil {
		t.Fatalf("快照文件名应从 1 开始编号：%v", err)
	}

	out, err := ReadPage(os.DirFS(dir), 1)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(out.HTML) != "<html/>" || out.Skip != 50 || out.URL != in.URL || out.Index != 1 {
		t.Fatalf("读回内容不一致：%+v", out)
	}
}

func TestReadPage_MissingAndBareHTML(t *testing.T) {
	fsys := fstest.MapFS{
		"page-001.html": {Data: []byte("<html>one</html>")},
	}
	p, err := ReadPage(fsys, 0)
	if err != nil {
		t.Fatalf("缺少 sidecar 不应报错：%v", err)
	}
	if p.Skip != 0 || string(p.HTML) != "<html>one</html>" {
		t.Fatalf("读回内容不一致：%+v", p)
	}

	_, err = ReadPage(fsys, 1)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("期望 fs.ErrNotExist，实际 %v", err)
	}
}

func TestReadPage_BadMeta(t *testing.T) {
	fsys := fstest.MapFS{
		"page-001.html": {Data: []byte("<html/>")},
		"page-001.json": {Data: []byte("{")},
	}
	if _, err := ReadPage(fsys, 0); err == nil {
		t.Fatalf("损坏的 sidecar 应报错")
	}
}

func TestStore_RunDirRejectsTraversal(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.RunDir("../etc", "x"); err == nil {
		t.Fatalf("期望路径穿越被拒绝")
	}
	if _, err := s.RunDir("comedy", ""); err == nil {
		t.Fatalf("run_id 为空应报错")
	}
}
