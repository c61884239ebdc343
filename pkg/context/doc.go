// Package context 提供请求作用域上下文相关的子包。
//
// 子包列表：
//   - xscope: 请求作用域字段管理，请求/用户/会话标识的注入与提取
//
// 设计原则：
//   - 所有上下文信息通过 context.Context 传递，不使用全局变量
//   - 作用域字段写时复制，同一 Context 可安全并发读取
//   - 与 OpenTelemetry SpanContext 互通
package context
