package session

import "fmt"

// 致命错误发生的阶段。
const (
	StageValidate  = "validate"
	StageStart     = "start"
	StageFirstPage = "first_page"
	StageCanceled  = "canceled"
)

// FatalError 表示会话无法产出有意义的结果（校验失败、浏览器无法启动、首页不可达、被取消）。
// Run 在返回 FatalError 时仍会返回已定稿的 ScrapeResult。
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("抓取中止（%s）：%v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
