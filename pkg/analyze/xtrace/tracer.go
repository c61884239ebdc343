package xtrace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/omeyang/tracekit/internal/logio"
	"github.com/omeyang/tracekit/pkg/analyze/xquery"
	"github.com/omeyang/tracekit/pkg/observability/xlog"
)

// 预定义错误，调用方用 errors.Is 判断。
var (
	// ErrNilAnalyzer 分析器为 nil
	ErrNilAnalyzer = errors.New("xtrace: analyzer is required")

	// ErrEmptyRequestID 请求标识为空
	ErrEmptyRequestID = errors.New("xtrace: request id is required")
)

// Tracer 请求追踪器。复用分析器的文件发现与解码缓存，并发安全。
type Tracer struct {
	analyzer *xquery.Analyzer
	expected []string
}

// Option 追踪器配置选项函数。
type Option func(*Tracer)

// WithExpectedStages 声明请求应当流经的组件序列。
//
// 声明后 Trace 结果会给出缺失阶段列表，用于定位请求在流水线中
// 止步的位置。未声明时不做缺失判断。
func WithExpectedStages(components ...string) Option {
	return func(t *Tracer) {
		t.expected = append([]string(nil), components...)
	}
}

// New 创建请求追踪器。
func New(analyzer *xquery.Analyzer, opts ...Option) (*Tracer, error) {
	if analyzer == nil {
		return nil, ErrNilAnalyzer
	}
	t := &Tracer{analyzer: analyzer}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// StageSummary 请求在单个组件内的汇总。
type StageSummary struct {
	// Component 组件名
	Component string `json:"component"`

	// Entries 该组件的记录数
	Entries int `json:"entries"`

	// Errors 其中错误级别（含 CRITICAL）的记录数
	Errors int `json:"errors"`

	// First 该组件最早一条记录的时间戳
	First xlog.Time `json:"first"`

	// Last 该组件最晚一条记录的时间戳
	Last xlog.Time `json:"last"`
}

// Trace 一次请求的完整时间线。
type Trace struct {
	// RequestID 请求标识
	RequestID string `json:"request_id"`

	// Entries 去重后的记录，按时间戳升序，相同时间戳保持读取顺序
	Entries []xlog.Record `json:"trace"`

	// HasError 是否包含错误级别（含 CRITICAL）的记录
	HasError bool `json:"has_error"`

	// Stages 按组件的汇总
	Stages map[string]*StageSummary `json:"stages,omitempty"`

	// MissingStages 声明的预期阶段中没有任何记录的组件
	MissingStages []string `json:"missing_stages,omitempty"`

	// Stats 扫描统计
	Stats xquery.ScanStats `json:"-"`
}

// Found 报告是否找到了该请求的任何记录。
func (tr *Trace) Found() bool {
	return len(tr.Entries) > 0
}

// Start 返回时间线的起点；无记录时为零值。
func (tr *Trace) Start() time.Time {
	if len(tr.Entries) == 0 {
		return time.Time{}
	}
	return tr.Entries[0].Timestamp.Time
}

// End 返回时间线的终点；无记录时为零值。
func (tr *Trace) End() time.Time {
	if len(tr.Entries) == 0 {
		return time.Time{}
	}
	return tr.Entries[len(tr.Entries)-1].Timestamp.Time
}

// Duration 返回时间线跨度；无记录时为 0。
func (tr *Trace) Duration() time.Duration {
	if len(tr.Entries) == 0 {
		return 0
	}
	return tr.End().Sub(tr.Start())
}

// indexed 记录及其全局读取序号，时间戳相同时以序号定序。
type indexed struct {
	rec xlog.Record
	idx int
}

// Trace 重建请求的跨组件时间线。
//
// 同一条记录会以副本形式出现在按天流和错误流中；按记录全文分组，
// 每组只取一个流的副本。同一流内重复出现的相同内容是独立的真实
// 记录（例如循环逐条输出相同负载），全部保留。
func (t *Tracer) Trace(ctx context.Context, requestID string) (*Trace, error) {
	if requestID == "" {
		return nil, ErrEmptyRequestID
	}

	groups := make(map[string]map[logio.Kind][]indexed)

	f := xquery.Filter{RequestID: requestID, Kinds: logio.AllKinds}
	stats, err := t.analyzer.Scan(ctx, f, func(rec *xlog.Record, ref logio.FileRef, idx int) error {
		key := contentKey(rec)
		byKind, ok := groups[key]
		if !ok {
			byKind = make(map[logio.Kind][]indexed)
			groups[key] = byKind
		}
		byKind[ref.Kind] = append(byKind[ref.Kind], indexed{rec: *rec, idx: idx})
		return nil
	})
	if err != nil {
		return nil, err
	}

	var entries []indexed
	for _, byKind := range groups {
		entries = append(entries, primaryCopies(byKind)...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].rec.Timestamp.Time, entries[j].rec.Timestamp.Time
		if ti.Equal(tj) {
			return entries[i].idx < entries[j].idx
		}
		return ti.Before(tj)
	})

	tr := &Trace{
		RequestID: requestID,
		Entries:   make([]xlog.Record, 0, len(entries)),
		Stages:    make(map[string]*StageSummary),
		Stats:     stats,
	}
	for _, e := range entries {
		tr.Entries = append(tr.Entries, e.rec)
		if e.rec.Level >= xlog.LevelError {
			tr.HasError = true
		}
		stage, ok := tr.Stages[e.rec.Component]
		if !ok {
			stage = &StageSummary{
				Component: e.rec.Component,
				First:     e.rec.Timestamp,
				Last:      e.rec.Timestamp,
			}
			tr.Stages[e.rec.Component] = stage
		}
		stage.Entries++
		if e.rec.Level >= xlog.LevelError {
			stage.Errors++
		}
		if e.rec.Timestamp.Before(stage.First.Time) {
			stage.First = e.rec.Timestamp
		}
		if stage.Last.Before(e.rec.Timestamp.Time) {
			stage.Last = e.rec.Timestamp
		}
	}

	for _, c := range t.expected {
		if _, ok := tr.Stages[c]; !ok {
			tr.MissingStages = append(tr.MissingStages, c)
		}
	}
	return tr, nil
}

// contentKey 记录全文的规范化键。记录刚从 JSON 解码而来，
// 重新编码不会失败；map 键按字典序编码，键是确定的。
func contentKey(rec *xlog.Record) string {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Sprintf("%+v", *rec)
	}
	return string(b)
}

// primaryCopies 从同一内容在各日志流的副本中选出权威的一份：
// 取出现次数最多的流的全部记录，次数相同时主日志流优先。
func primaryCopies(byKind map[logio.Kind][]indexed) []indexed {
	var best []indexed
	for _, kind := range logio.AllKinds {
		if copies := byKind[kind]; len(copies) > len(best) {
			best = copies
		}
	}
	return best
}

// export 导出的 JSON 形状。
type export struct {
	RequestID     string                   `json:"request_id"`
	TotalEntries  int                      `json:"total_entries"`
	HasError      bool                     `json:"has_error"`
	DurationMS    float64                  `json:"duration_ms"`
	Stages        map[string]*StageSummary `json:"stages,omitempty"`
	MissingStages []string                 `json:"missing_stages,omitempty"`
	Trace         []xlog.Record            `json:"trace"`
}

// Export 将时间线序列化为 JSON（缩进格式，便于人工查看与归档工单）。
func (tr *Trace) Export() ([]byte, error) {
	e := export{
		RequestID:     tr.RequestID,
		TotalEntries:  len(tr.Entries),
		HasError:      tr.HasError,
		DurationMS:    millis(tr.Duration()),
		Stages:        tr.Stages,
		MissingStages: tr.MissingStages,
		Trace:         tr.Entries,
	}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("xtrace: export: %w", err)
	}
	return b, nil
}

// ExportFile 将时间线导出到文件。
func (tr *Trace) ExportFile(path string) error {
	b, err := tr.Export()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o600); err != nil {
		return fmt.Errorf("xtrace: write export: %w", err)
	}
	return nil
}
