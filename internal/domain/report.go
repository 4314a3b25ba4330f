package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// 失败分类（ScrapeResult.ItemsFailed[].Kind）。
const (
	KindValidationError   = "validation_error"
	KindNavigationTimeout = "navigation_timeout"
	KindPageLoadFailure   = "page_load_failure"
	KindMissingTitle      = "missing_title"
	KindExtractionFailure = "extraction_failure"
	KindStoreFailure      = "store_failure"
)

// 记录落库结果（Reconciler 输出）。
const (
	OutcomeInserted = "inserted"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// NoIndex 表示失败属于整页而不是页内某个条目。
const NoIndex = -1

// ScrapeResult 是一次抓取会话对外稳定的输出结构（stdout JSON / report 文件）。
type ScrapeResult struct {
	RunID     string      `json:"run_id"`
	Requested ScrapeQuery `json:"requested"`
	DryRun    bool        `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	PagesVisited   int `json:"pages_visited"`
	ItemsFound     int `json:"items_found"`
	ItemsPersisted int `json:"items_persisted"`
	ItemsSkipped   int `json:"items_skipped"`

	ItemsFailed []Failure `json:"items_failed"`
}

// Failure 记录一次页级或条目级失败。
type Failure struct {
	Page    int    `json:"page"`
	Index   int    `json:"index"` // NoIndex 表示整页失败
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC
// 2) 失败按 (page, index) 稳定排序；整页失败排在该页条目之前
func (r *ScrapeResult) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.ItemsFailed == nil {
		r.ItemsFailed = []Failure{}
	}

	sort.SliceStable(r.ItemsFailed, func(i, j int) bool {
		a, b := r.ItemsFailed[i], r.ItemsFailed[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		return a.Index < b.Index
	})
}

// FailedCount 按 kind 统计失败数量。
func (r ScrapeResult) FailedCount() map[string]int {
	out := make(map[string]int, 4)
	for _, f := range r.ItemsFailed {
		out[f.Kind]++
	}
	return out
}

// MarshalJSON 仅用于集中约束输出的稳定性（nil 切片输出为 []）。
func (r ScrapeResult) MarshalJSON() ([]byte, error) {
	type Alias ScrapeResult
	if r.ItemsFailed == nil {
		r.ItemsFailed = []Failure{}
	}
	return json.Marshal(Alias(r))
}
