package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/tracekit/pkg/analyze/xquery"
	"github.com/omeyang/tracekit/pkg/analyze/xtrace"
	"github.com/omeyang/tracekit/pkg/observability/xlog"
)

// exitError 表示需要非零退出码但已完成输出的场景。
// 命令内部已完成所有输出，main 只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 表示参数错误，映射退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// createCommands 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createTraceCommand(),
		createCompareCommand(),
		createErrorsCommand(),
		createSummaryCommand(),
		createPerfCommand(),
		createSlowCommand(),
	}
}

// newAnalyzer 从全局选项构建查询分析器。
func newAnalyzer(cmd *cli.Command) (*xquery.Analyzer, error) {
	root := cmd.String("root")
	if root == "" {
		return nil, &usageError{msg: "缺少日志根目录（--root 或 TRACECTL_ROOT）"}
	}
	a, err := xquery.New(root)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// withTimeout 应用全局超时。
func withTimeout(ctx context.Context, cmd *cli.Command) (context.Context, context.CancelFunc) {
	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// printJSON 向标准输出写缩进 JSON。
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseSince 解析 --since：既接受相对时长（24h、30m），也接受 RFC3339 时刻。
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Time{}, &usageError{msg: fmt.Sprintf("无法解析 --since %q（需要时长如 24h 或 RFC3339 时刻）", s)}
}

// createTraceCommand 创建 trace 子命令。
func createTraceCommand() *cli.Command {
	return &cli.Command{
		Name:      "trace",
		Aliases:   []string{"t"},
		Usage:     "重建请求的跨组件时间线",
		ArgsUsage: "<request-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "export",
				Aliases: []string{"o"},
				Usage:   "导出到文件（默认写标准输出）",
			},
			&cli.StringFlag{
				Name:  "stages",
				Usage: "预期组件序列（逗号分隔），用于报告缺失阶段",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			requestID := cmd.Args().First()
			if requestID == "" {
				return &usageError{msg: "缺少 request-id 参数"}
			}
			a, err := newAnalyzer(cmd)
			if err != nil {
				return err
			}

			var opts []xtrace.Option
			if stages := cmd.String("stages"); stages != "" {
				opts = append(opts, xtrace.WithExpectedStages(splitCSV(stages)...))
			}
			tracer, err := xtrace.New(a, opts...)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(ctx, cmd)
			defer cancel()
			tr, err := tracer.Trace(ctx, requestID)
			if err != nil {
				return err
			}

			if path := cmd.String("export"); path != "" {
				if err := tr.ExportFile(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.Root().Writer, "已导出 %d 条记录到 %s\n", len(tr.Entries), path)
			} else {
				b, err := tr.Export()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.Root().Writer, string(b))
			}

			if !tr.Found() {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

// createCompareCommand 创建 compare 子命令。
func createCompareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "并排对比两条请求的时间线",
		ArgsUsage: "<request-id> <request-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			leftID, rightID := cmd.Args().Get(0), cmd.Args().Get(1)
			if leftID == "" || rightID == "" {
				return &usageError{msg: "需要两个 request-id 参数"}
			}
			a, err := newAnalyzer(cmd)
			if err != nil {
				return err
			}
			tracer, err := xtrace.New(a)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(ctx, cmd)
			defer cancel()
			c, err := tracer.Compare(ctx, leftID, rightID)
			if err != nil {
				return err
			}
			return printJSON(cmd.Root().Writer, c)
		},
	}
}

// createErrorsCommand 创建 errors 子命令。
func createErrorsCommand() *cli.Command {
	return &cli.Command{
		Name:    "errors",
		Aliases: []string{"e"},
		Usage:   "检索错误级别日志",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "component",
				Aliases: []string{"c"},
				Usage:   "限定组件（默认全部）",
			},
			&cli.StringFlag{
				Name:  "since",
				Usage: "起始时间（时长如 24h，或 RFC3339 时刻）",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "限定异常类型",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "最多返回的记录数（0 不限）",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newAnalyzer(cmd)
			if err != nil {
				return err
			}
			since, err := parseSince(cmd.String("since"), time.Now())
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(ctx, cmd)
			defer cancel()
			recs, stats, err := a.Find(ctx, xquery.Filter{
				Component:     cmd.String("component"),
				MinLevel:      xlog.LevelError,
				Since:         since,
				ExceptionType: cmd.String("type"),
			}, cmd.Int("limit"))
			if err != nil {
				return err
			}

			return printJSON(cmd.Root().Writer, map[string]any{
				"total":        len(recs),
				"parse_errors": stats.ParseErrors,
				"records":      recs,
			})
		},
	}
}

// createSummaryCommand 创建 summary 子命令。
func createSummaryCommand() *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "汇总错误日志",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "component",
				Aliases: []string{"c"},
				Usage:   "限定组件（默认全部）",
			},
			&cli.StringFlag{
				Name:  "since",
				Usage: "起始时间（时长如 24h，或 RFC3339 时刻）",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newAnalyzer(cmd)
			if err != nil {
				return err
			}
			since, err := parseSince(cmd.String("since"), time.Now())
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(ctx, cmd)
			defer cancel()
			summary, _, err := a.SummarizeErrors(ctx, cmd.String("component"), since)
			if err != nil {
				return err
			}
			return printJSON(cmd.Root().Writer, summary)
		},
	}
}

// createPerfCommand 创建 perf 子命令。
func createPerfCommand() *cli.Command {
	return &cli.Command{
		Name:      "perf",
		Aliases:   []string{"p"},
		Usage:     "聚合数值字段的分布",
		ArgsUsage: "<component>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "field",
				Aliases: []string{"f"},
				Usage:   "data 中的数值字段名",
				Value:   xlog.KeyDurationMS,
			},
			&cli.StringFlag{
				Name:  "since",
				Usage: "起始时间（时长如 24h，或 RFC3339 时刻）",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			component := cmd.Args().First()
			if component == "" {
				return &usageError{msg: "缺少 component 参数"}
			}
			a, err := newAnalyzer(cmd)
			if err != nil {
				return err
			}
			since, err := parseSince(cmd.String("since"), time.Now())
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(ctx, cmd)
			defer cancel()
			agg, stats, err := a.AggregateField(ctx,
				xquery.Filter{Component: component, Since: since},
				cmd.String("field"))
			if err != nil {
				return err
			}

			return printJSON(cmd.Root().Writer, map[string]any{
				"component":    component,
				"field":        cmd.String("field"),
				"aggregate":    agg,
				"parse_errors": stats.ParseErrors,
			})
		},
	}
}

// createSlowCommand 创建 slow 子命令。
func createSlowCommand() *cli.Command {
	return &cli.Command{
		Name:      "slow",
		Aliases:   []string{"s"},
		Usage:     "定位超过阈值的慢操作",
		ArgsUsage: "<component>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "field",
				Aliases: []string{"f"},
				Usage:   "data 中的数值字段名",
				Value:   xlog.KeyDurationMS,
			},
			&cli.FloatFlag{
				Name:  "threshold",
				Usage: "阈值（超过才算慢操作）",
				Value: 1000,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "最多返回的记录数（0 不限）",
				Value:   20,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			component := cmd.Args().First()
			if component == "" {
				return &usageError{msg: "缺少 component 参数"}
			}
			a, err := newAnalyzer(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(ctx, cmd)
			defer cancel()
			ops, _, err := a.Slow(ctx,
				xquery.Filter{Component: component},
				cmd.String("field"), cmd.Float("threshold"), cmd.Int("limit"))
			if err != nil {
				return err
			}

			return printJSON(cmd.Root().Writer, map[string]any{
				"component": component,
				"field":     cmd.String("field"),
				"threshold": cmd.Float("threshold"),
				"total":     len(ops),
				"ops":       ops,
			})
		},
	}
}

// splitCSV 拆分逗号分隔的列表，去掉空白项。
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
