package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	// .env 可选：只补充尚未设置的环境变量（MOVIESCRAPE_* 覆盖项）。
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, defaultEnv(), os.Args[1:])
	stop()
	os.Exit(code)
}

// execute 运行 CLI 并把错误映射为退出码：0 无失败，1 有失败，2 用法/参数错误。
func execute(ctx context.Context, env *cliEnv, args []string) int {
	cmd := newRootCommand(env)
	cmd.SetArgs(args)
	cmd.SetOut(env.stdout)
	cmd.SetErr(env.stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && !ee.silent {
			fmt.Fprintln(env.stderr, ee.err)
		}
		return ee.code
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(env.stderr, err)
	}
	return 1
}

const (
	exitFailures = 1
	exitUsage    = 2
)

// exitError 携带退出码；silent=true 表示错误已经以其它形式输出（例如结果 JSON）。
type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error { return &exitError{code: exitUsage, err: err} }
