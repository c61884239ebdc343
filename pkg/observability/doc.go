// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化 NDJSON 日志，组件级注册表与多目标写入
//   - xrotate: 日志文件轮转、gzip 归档与保留期清扫
//
// 设计原则：
//   - 日志只写文件，进程输出流保持干净
//   - 写入失败不反向传播到业务调用方
//   - 自动从 context 中提取请求标识注入日志
package observability
