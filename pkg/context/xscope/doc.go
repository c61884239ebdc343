// Package xscope 提供基于 context.Context 的请求级环境字段传播。
//
// 日志调用从 context 中读取当前任务的环境字段（request_id、user_id、
// session_id 以及任意业务字段），实现跨组件的请求关联，而无需在每个
// 调用点手工透传。
//
// # 作用域语义
//
//   - With 在 context 上叠加一层字段，内层同名字段覆盖外层，
//     未覆盖的继承字段保持可见
//   - context 的不可变性天然保证了两条规格约束：
//     父任务后续的字段变更不会影响已经 spawn 的子任务（快照继承），
//     离开作用域后只需继续使用父 context，先前状态即被精确还原
//   - 不同逻辑任务之间没有任何共享可变状态，无需同步
//
// # 典型用法
//
//	ctx, err := xscope.WithRequestID(ctx, xscope.NewRequestID())
//	if err != nil {
//	    return err
//	}
//	ctx, _ = xscope.With(ctx, xscope.Fields{"strategy": "in_network"})
//	logger.Info(ctx, "sourcing started", nil)
//
// # OpenTelemetry 关联
//
// WithSpanContext 将 context 上活跃 span 的 trace_id/span_id 折叠进
// 环境字段，使文件日志可以与分布式追踪对齐。无活跃 span 时为 no-op。
package xscope
