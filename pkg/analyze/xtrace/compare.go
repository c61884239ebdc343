package xtrace

import (
	"context"
	"sort"
	"time"
)

// StageDiff 单个组件在两条时间线上的差异，delta 均为左减右。
type StageDiff struct {
	// Component 组件名
	Component string `json:"component"`

	// LeftEntries 左侧请求在该组件的记录数
	LeftEntries int `json:"left_entries"`

	// RightEntries 右侧请求在该组件的记录数
	RightEntries int `json:"right_entries"`

	// EntriesDelta 记录数之差
	EntriesDelta int `json:"entries_delta"`

	// LeftErrors 左侧请求在该组件的错误记录数
	LeftErrors int `json:"left_errors"`

	// RightErrors 右侧请求在该组件的错误记录数
	RightErrors int `json:"right_errors"`

	// DurationDeltaMS 该组件首末记录时间跨度之差（毫秒）
	DurationDeltaMS float64 `json:"duration_delta_ms"`
}

// Comparison 两条请求时间线的并排对比。
type Comparison struct {
	// LeftID 左侧请求标识
	LeftID string `json:"left_request_id"`

	// RightID 右侧请求标识
	RightID string `json:"right_request_id"`

	// LeftFound 左侧请求是否有记录
	LeftFound bool `json:"left_found"`

	// RightFound 右侧请求是否有记录
	RightFound bool `json:"right_found"`

	// LeftHasError 左侧时间线是否包含错误
	LeftHasError bool `json:"left_has_error"`

	// RightHasError 右侧时间线是否包含错误
	RightHasError bool `json:"right_has_error"`

	// LeftDurationMS 左侧时间线跨度（毫秒）
	LeftDurationMS float64 `json:"left_duration_ms"`

	// RightDurationMS 右侧时间线跨度（毫秒）
	RightDurationMS float64 `json:"right_duration_ms"`

	// DurationDeltaMS 跨度之差（左减右，毫秒）
	DurationDeltaMS float64 `json:"duration_delta_ms"`

	// Stages 两条时间线涉及组件的并集，组件名升序
	Stages []StageDiff `json:"stages,omitempty"`

	// Left Right 完整时间线，序列化时省略
	Left  *Trace `json:"-"`
	Right *Trace `json:"-"`
}

// Compare 并排对比两条请求的时间线，用于诊断行为差异：
// 慢在哪个阶段、哪一侧多了错误、哪一侧少走了组件。
func (t *Tracer) Compare(ctx context.Context, leftID, rightID string) (*Comparison, error) {
	left, err := t.Trace(ctx, leftID)
	if err != nil {
		return nil, err
	}
	right, err := t.Trace(ctx, rightID)
	if err != nil {
		return nil, err
	}

	c := &Comparison{
		LeftID:          leftID,
		RightID:         rightID,
		LeftFound:       left.Found(),
		RightFound:      right.Found(),
		LeftHasError:    left.HasError,
		RightHasError:   right.HasError,
		LeftDurationMS:  millis(left.Duration()),
		RightDurationMS: millis(right.Duration()),
		Left:            left,
		Right:           right,
	}
	c.DurationDeltaMS = c.LeftDurationMS - c.RightDurationMS

	names := make(map[string]struct{}, len(left.Stages)+len(right.Stages))
	for name := range left.Stages {
		names[name] = struct{}{}
	}
	for name := range right.Stages {
		names[name] = struct{}{}
	}
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	for _, name := range ordered {
		d := StageDiff{Component: name}
		if s := left.Stages[name]; s != nil {
			d.LeftEntries = s.Entries
			d.LeftErrors = s.Errors
		}
		if s := right.Stages[name]; s != nil {
			d.RightEntries = s.Entries
			d.RightErrors = s.Errors
		}
		d.EntriesDelta = d.LeftEntries - d.RightEntries
		d.DurationDeltaMS = stageMillis(left.Stages[name]) - stageMillis(right.Stages[name])
		c.Stages = append(c.Stages, d)
	}
	return c, nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// stageMillis 阶段首末记录的时间跨度（毫秒）；阶段缺失为 0。
func stageMillis(s *StageSummary) float64 {
	if s == nil {
		return 0
	}
	return millis(s.Last.Sub(s.First.Time))
}
