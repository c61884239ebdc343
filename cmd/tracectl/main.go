// tracectl 是日志语料的离线分析命令行工具。
//
// 用法:
//
//	tracectl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-r, --root     日志根目录 (必填，或设置 TRACECTL_ROOT)
//	-t, --timeout  命令超时时间 (默认: 30s)
//
// 命令:
//
//	trace <request-id>     重建请求的跨组件时间线
//	errors                 检索错误级别日志
//	summary                汇总错误日志（按组件/异常类型计数、高频消息、最近错误）
//	perf <component>       聚合数值字段的分布（p50/p95/p99 等）
//	slow <component>       定位超过阈值的慢操作
//	help                   显示帮助信息
//
// 所有命令向标准输出写 JSON，便于管道接 jq 等工具。
//
// 退出码:
//
//	0: 命令执行成功（trace 命令: 找到了请求的记录）
//	1: 命令执行失败或未找到结果（trace 命令: 请求无记录）
//	2: 参数错误（缺少必需参数、未知命令等）
//
// 示例:
//
//	tracectl -r /var/log/pipeline trace 9f1c2a                # 追踪请求
//	tracectl -r /var/log/pipeline trace 9f1c2a --export t.json
//	tracectl -r /var/log/pipeline errors --component etl --since 24h
//	tracectl -r /var/log/pipeline perf ranker --field duration_ms
//	tracectl -r /var/log/pipeline slow etl --threshold 500 --limit 20
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认超时时间。
const defaultTimeout = 30 * time.Second

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "tracectl",
		Usage:   "推荐流水线日志的追踪与分析工具",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "日志根目录",
				Sources: cli.EnvVars("TRACECTL_ROOT"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "命令超时时间",
				Value:   defaultTimeout,
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 退出码统一由 run() 映射，这里只拦截 os.Exit。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr.msg)
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}
