// Package xlog 提供面向文件的结构化日志：按组件写入 NDJSON 日志流，
// 自动合并 xscope 作用域字段，递归脱敏敏感字段，并通过 xrotate 轮转落盘。
//
// # 核心类型
//
//   - [Registry]: 显式日志注册表，进程构造一次、按句柄传递；
//     Close 统一冲刷并关闭所有文件句柄（不是环境单例）
//   - [Logger]: 组件级发射器，按级别过滤、合并上下文、脱敏、序列化、写入
//   - [Record]: 磁盘行的精确形状，一行一个 JSON 对象
//
// # 写入目标
//
// 每个组件最多写三个目标：
//
//	<root>/<组件>/<组件>.log             按大小轮转，全部级别
//	<root>/<组件>/<组件>_daily.log       按天轮转，INFO 及以上
//	<root>/errors/<组件>_errors.log      按大小轮转，ERROR 及以上
//
// # 失败不扩散
//
// 日志层的任何失败都不会影响被观测的业务操作：
//
//   - 配置错误（根目录不可写）在 NewRegistry 构造期 fail-fast
//   - 序列化失败降级为字符串形式，调用仍然成功
//   - 写盘失败计入内部失败计数器并通过 OnError 上报，永不向调用方传播
//   - 异常捕获失败降级为占位符
//
// OnError 回调内置递归保护与 panic 隔离，参见 [Options.OnError]。
package xlog
