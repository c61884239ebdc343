package xquery

import (
	"context"
	"sort"
	"time"

	"github.com/omeyang/tracekit/internal/logio"
	"github.com/omeyang/tracekit/pkg/observability/xlog"
)

// 错误摘要的截断上限。
const (
	topMessageLimit   = 10
	recentRecordLimit = 10
)

// MessageCount 某条错误消息的出现次数。
type MessageCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// ErrorSummary 错误日志摘要。
type ErrorSummary struct {
	// Total 错误级别记录总数
	Total int `json:"total"`

	// ByComponent 按组件的错误计数
	ByComponent map[string]int `json:"by_component"`

	// ByException 按异常类型的错误计数（无异常信息的记录不计入）
	ByException map[string]int `json:"by_exception"`

	// TopMessages 出现最多的错误消息，降序，最多 10 条
	TopMessages []MessageCount `json:"top_messages"`

	// Recent 时间上最近的错误记录，新的在前，最多 10 条
	Recent []xlog.Record `json:"recent"`
}

// SummarizeErrors 汇总自 since 起的错误级别日志。
// component 为空汇总全部组件。错误记录需全量驻留内存用于排序，
// 适用于排障场景的错误量级。
func (a *Analyzer) SummarizeErrors(ctx context.Context, component string, since time.Time) (*ErrorSummary, ScanStats, error) {
	summary := &ErrorSummary{
		ByComponent: make(map[string]int),
		ByException: make(map[string]int),
	}
	byMessage := make(map[string]int)
	var all []xlog.Record

	f := Filter{Component: component, MinLevel: xlog.LevelError, Since: since}
	stats, err := a.Scan(ctx, f, func(rec *xlog.Record, _ logio.FileRef, _ int) error {
		summary.Total++
		summary.ByComponent[rec.Component]++
		if rec.Exception != nil {
			summary.ByException[rec.Exception.Type]++
		}
		byMessage[rec.Message]++
		all = append(all, *rec)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	summary.TopMessages = topMessages(byMessage, topMessageLimit)
	summary.Recent = recentRecords(all, recentRecordLimit)
	return summary, stats, nil
}

// topMessages 按出现次数降序取前 limit 条，次数相同按消息字典序。
func topMessages(counts map[string]int, limit int) []MessageCount {
	out := make([]MessageCount, 0, len(counts))
	for m, c := range counts {
		out = append(out, MessageCount{Message: m, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// recentRecords 按时间戳取最近的 limit 条，新的在前。
// 时间戳相同的记录保持扫描顺序相对不变（稳定排序）。
func recentRecords(recs []xlog.Record, limit int) []xlog.Record {
	sorted := make([]xlog.Record, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[j].Timestamp.Before(sorted[i].Timestamp.Time)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
