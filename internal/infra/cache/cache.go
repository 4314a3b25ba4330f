package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/moviescrape/internal/infra/fsx"
	"github.com/John-Robertt/moviescrape/internal/source"
)

// Store 把抓取到的列表页按会话保存为快照：
//
//	<root>/pages/<genre>/<run_id>/page-001.html
//	<root>/pages/<genre>/<run_id>/page-001.json   （url / skip）
//
// 快照目录可直接交给 replay 导航器离线重放。
type Store struct {
	Root string
}

func New(root string) Store {
	return Store{Root: filepath.Clean(strings.TrimSpace(root))}
}

// pageMeta 是与 HTML 同名的 sidecar；Skip 对累积 DOM 的重放是必需的。
type pageMeta struct {
	Index int    `json:"index"`
	URL   string `json:"url,omitempty"`
	Skip  int    `json:"skip"`
}

// PageHTMLName 返回第 index 页（0 起）的 HTML 文件名。
func PageHTMLName(index int) string { return fmt.Sprintf("page-%03d.html", index+1) }

// PageMetaName 返回第 index 页（0 起）的 sidecar 文件名。
func PageMetaName(index int) string { return fmt.Sprintf("page-%03d.json", index+1) }

// RunDir 返回一次会话的快照目录。
func (s Store) RunDir(genre, runID string) (string, error) {
	g, err := cleanName("genre", genre)
	if err != nil {
		return "", err
	}
	r, err := cleanName("run_id", runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "pages", g, r), nil
}

// WritePage 写入一页快照（HTML + sidecar）。
func (s Store) WritePage(dir string, p source.Page) error {
	if p.Index < 0 {
		return fmt.Errorf("page index 不能为负：%d", p.Index)
	}
	meta, err := json.MarshalIndent(pageMeta{Index: p.Index, URL: p.URL, Skip: p.Skip}, "", "  ")
	if err != nil {
		return err
	}
	if err := fsx.WriteFileIn(dir, PageHTMLName(p.Index), p.HTML); err != nil {
		return err
	}
	return fsx.WriteFileIn(dir, PageMetaName(p.Index), append(meta, '\n'))
}

// ReadPage 从快照目录读取第 index 页。
//
// HTML 不存在时返回的错误满足 errors.Is(err, fs.ErrNotExist)；sidecar 缺失时按 Skip=0 处理
// （手工放入的单页 HTML 也能重放）。
func ReadPage(fsys fs.FS, index int) (source.Page, error) {
	html, err := fs.ReadFile(fsys, PageHTMLName(index))
	if err != nil {
		return source.Page{}, err
	}
	p := source.Page{Index: index, HTML: html, URL: path.Join("replay", PageHTMLName(index))}

	b, err := fs.ReadFile(fsys, PageMetaName(index))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		return source.Page{}, err
	}
	var meta pageMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		return source.Page{}, fmt.Errorf("%s 解析失败：%w", PageMetaName(index), err)
	}
	if meta.Skip < 0 {
		return source.Page{}, fmt.Errorf("%s skip 不能为负", PageMetaName(index))
	}
	p.Skip = meta.Skip
	if meta.URL != "" {
		p.URL = meta.URL
	}
	return p, nil
}

var nameRE = regexp.MustCompile(`^[a-z0-9_-]+$`)

// cleanName 约束目录名，避免路径穿越。
func cleanName(field, v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "", fmt.Errorf("%s 不能为空", field)
	}
	if !nameRE.MatchString(v) {
		return "", fmt.Errorf("非法 %s：%q", field, v)
	}
	return v, nil
}
