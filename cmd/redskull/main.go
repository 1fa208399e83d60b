package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/redskull/internal/app"
	"github.com/John-Robertt/redskull/internal/config"
	"github.com/John-Robertt/redskull/internal/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// usageError 标记参数错误（退出码 2）。
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// execute 运行 CLI 并返回退出码：0 成功，1 执行失败，2 参数错误。
// stdout 只输出 JSON 结果；日志与错误走 stderr。
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cl := &cli{stdout: stdout, stderr: stderr}
	root := cl.rootCmd()
	root.SetArgs(args)
	root.SetOut(stderr)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ue usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		fmt.Fprintf(stderr, "参数错误：%v\n\n%s", err, root.UsageString())
		return 2
	}
	fmt.Fprintf(stderr, "错误：%v\n", err)
	return 1
}

type cli struct {
	stdout, stderr io.Writer

	configPath string
	logLevel   string
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "redskull",
		Short:         "把目录站点的搜索词或内容 id 解析为可播放的 HLS 地址",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "配置文件路径（默认 ./"+config.FileName+"，可选）")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "日志级别：debug/info/warn/error")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	root.AddCommand(
		c.searchCmd(),
		c.trendingCmd(),
		c.seriesCmd(),
		c.movieCmd(),
		c.streamCmd(),
		c.movieStreamCmd(),
	)
	return root
}

func (c *cli) searchCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "search <keyword>...",
		Short: "搜索（多个参数以空格拼接为一个关键词）",
		Args:  minArgs(1),
		RunE: c.withClient(func(ctx context.Context, cl *app.Client, args []string) (any, error) {
			return cl.Search(ctx, strings.Join(args, " "), page)
		}),
	}
	cmd.Flags().IntVar(&page, "page", 1, "页码（<1 视为 1）")
	return cmd
}

func (c *cli) trendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trending",
		Short: "首页轮播",
		Args:  exactArgs(0),
		RunE: c.withClient(func(ctx context.Context, cl *app.Client, _ []string) (any, error) {
			return cl.Trending(ctx)
		}),
	}
}

func (c *cli) seriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "series <content-id>",
		Short: "剧集详情（backend + 季/集树）",
		Args:  exactArgs(1),
		RunE: c.withClient(func(ctx context.Context, cl *app.Client, args []string) (any, error) {
			return cl.SeriesDetail(ctx, args[0])
		}),
	}
}

func (c *cli) movieCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "movie <content-id>",
		Short: "电影详情（backend => episode id）",
		Args:  exactArgs(1),
		RunE: c.withClient(func(ctx context.Context, cl *app.Client, args []string) (any, error) {
			return cl.MovieDetail(ctx, args[0])
		}),
	}
}

func (c *cli) streamCmd() *cobra.Command {
	var (
		all     bool
		season  int
		episode int
	)
	cmd := &cobra.Command{
		Use:   "stream <episode-id> | stream --all <content-id> [--season N --episode M]",
		Short: "解析播放地址；--all 并发解析某一集的所有 backend",
		Args:  exactArgs(1),
		RunE: c.withClient(func(ctx context.Context, cl *app.Client, args []string) (any, error) {
			if !all {
				return cl.EpisodeStream(ctx, args[0])
			}
			d, err := cl.SeriesDetail(ctx, args[0])
			if err != nil {
				return nil, err
			}
			ep, ok := d.Episodes.Episode(season, episode)
			if !ok {
				return nil, fmt.Errorf("详情中没有 season %d / episode %d", season, episode)
			}
			return cl.EpisodeStreams(ctx, d.ByBackend(ep.Sources))
		}),
	}
	cmd.Flags().BoolVar(&all, "all", false, "把参数视为 content id，解析指定集的所有 backend")
	cmd.Flags().IntVar(&season, "season", 1, "季号（配合 --all）")
	cmd.Flags().IntVar(&episode, "episode", 1, "集号（配合 --all）")
	return cmd
}

func (c *cli) movieStreamCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "movie-stream <content-id>",
		Short: "电影详情 + 解析播放地址",
		Args:  exactArgs(1),
		RunE: c.withClient(func(ctx context.Context, cl *app.Client, args []string) (any, error) {
			return cl.MovieStream(ctx, args[0], backend)
		}),
	}
	cmd.Flags().StringVar(&backend, "backend", "", "指定 backend（默认按白名单顺序取第一个可用的）")
	return cmd
}

type runFunc func(ctx context.Context, cl *app.Client, args []string) (any, error)

// withClient 负责加载配置、装配 Client、输出 JSON。
func (c *cli) withClient(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("读取当前目录失败：%w", err)
		}
		eff, err := config.LoadEffective(cwd, config.CLIArgs{ConfigPath: c.configPath, LogLevel: c.logLevel})
		if err != nil {
			return err
		}
		log.Configure(log.Config{Level: eff.LogLevel, Output: c.stderr})

		cl, err := app.Open(ctx, eff)
		if err != nil {
			return err
		}
		defer cl.Close()

		out, err := fn(ctx, cl, args)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
