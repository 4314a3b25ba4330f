package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// cliEnv 收拢进程级依赖，测试时替换为缓冲区与固定 cwd。
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer
	cwd    string
	lookup func(string) (string, bool)

	stdoutTTY bool
	stderrTTY bool
}

func defaultEnv() *cliEnv {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &cliEnv{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		cwd:       cwd,
		lookup:    os.LookupEnv,
		stdoutTTY: isTTY(os.Stdout),
		stderrTTY: isTTY(os.Stderr),
	}
}

func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// globalFlags 是所有子命令共享的持久参数。
type globalFlags struct {
	configPath string
	db         string
	logLevel   string
}

func newRootCommand(env *cliEnv) *cobra.Command {
	gf := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "moviescrape",
		Short:         "按类型抓取 IMDb 搜索列表并保存到本地电影库",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&gf.configPath, "config", "c", "", "配置文件路径（默认读取 ./moviescrape.toml，若存在）")
	pf.StringVar(&gf.db, "db", "", "数据库：SQLite 文件路径或 postgres:// DSN")
	pf.StringVar(&gf.logLevel, "log-level", "", "日志级别：debug|info|warn|error")

	rootCmd.AddCommand(newScrapeCommand(env, gf))
	rootCmd.AddCommand(newMoviesCommand(env, gf))
	return rootCmd
}
