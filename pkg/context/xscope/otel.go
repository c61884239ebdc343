package xscope

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// 追踪关联字段 Key 常量，遵循 OpenTelemetry 语义约定（下划线分隔）。
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"
)

// WithSpanContext 将 context 上活跃 OpenTelemetry span 的 trace_id 和
// span_id 折叠进作用域字段，使日志记录能与分布式追踪对齐。
//
// Best-effort 语义：ctx 为 nil 或没有有效的 span context 时原样返回，
// 不产生错误。
func WithSpanContext(ctx context.Context) context.Context {
	if ctx == nil {
		return nil
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ctx
	}

	out, err := With(ctx, Fields{
		KeyTraceID: sc.TraceID().String(),
		KeySpanID:  sc.SpanID().String(),
	})
	if err != nil {
		return ctx
	}
	return out
}
