package xquery

import (
	"context"
	"math"
	"sort"

	"github.com/omeyang/tracekit/internal/logio"
	"github.com/omeyang/tracekit/pkg/observability/xlog"
)

// Aggregate 数值字段的聚合结果。
//
// 分位数采用 nearest-rank 法：样本升序排列后取第 ceil(q*n) 个值，
// 不做插值，结果总是真实出现过的样本。
type Aggregate struct {
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// AggregateField 聚合命中记录 data 中指定数值字段的分布。
// 值缺失或非数值的记录跳过，不计入样本。没有任何样本时返回 ErrNoSamples。
func (a *Analyzer) AggregateField(ctx context.Context, f Filter, field string) (Aggregate, ScanStats, error) {
	if field == "" {
		return Aggregate{}, ScanStats{}, ErrEmptyField
	}

	var samples []float64
	stats, err := a.Scan(ctx, f, func(rec *xlog.Record, _ logio.FileRef, _ int) error {
		if v, ok := asFloat(rec.Data[field]); ok {
			samples = append(samples, v)
		}
		return nil
	})
	if err != nil {
		return Aggregate{}, stats, err
	}
	if len(samples) == 0 {
		return Aggregate{}, stats, ErrNoSamples
	}

	sort.Float64s(samples)
	agg := Aggregate{
		Count: len(samples),
		Min:   samples[0],
		Max:   samples[len(samples)-1],
		P50:   percentile(samples, 0.50),
		P95:   percentile(samples, 0.95),
		P99:   percentile(samples, 0.99),
	}
	for _, v := range samples {
		agg.Sum += v
	}
	agg.Mean = agg.Sum / float64(agg.Count)
	return agg, stats, nil
}

// percentile 对升序样本取 nearest-rank 分位数。
func percentile(sorted []float64, q float64) float64 {
	rank := int(math.Ceil(q * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// asFloat 尽力将 data 值转为 float64。
// JSON 解码出的数值总是 float64，其余分支兼容程序内直接构造的记录。
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// SlowOp 一次超过阈值的慢操作。
type SlowOp struct {
	// Value 记录在目标字段上的数值
	Value float64 `json:"value"`

	// Record 完整的日志记录
	Record xlog.Record `json:"record"`
}

// Slow 返回 data 中指定字段超过 threshold 的记录，按值从大到小排列。
// 相同值保持扫描顺序（稳定排序）。limit > 0 时最多返回 limit 条。
func (a *Analyzer) Slow(ctx context.Context, f Filter, field string, threshold float64, limit int) ([]SlowOp, ScanStats, error) {
	if field == "" {
		return nil, ScanStats{}, ErrEmptyField
	}

	var ops []SlowOp
	stats, err := a.Scan(ctx, f, func(rec *xlog.Record, _ logio.FileRef, _ int) error {
		if v, ok := asFloat(rec.Data[field]); ok && v > threshold {
			ops = append(ops, SlowOp{Value: v, Record: *rec})
		}
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Value > ops[j].Value })
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}
	return ops, stats, nil
}
