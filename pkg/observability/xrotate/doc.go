// Package xrotate 提供日志文件轮转与压缩归档。
//
// Rotator 接口定义轮转器的核心行为（Write/Close/Rotate），所有实现并发安全。
//
// # 当前实现
//
//   - [NewFile]: 序数备份轮转器。触发条件按固定优先级在每次写入前检查：
//     (1) 自文件创建起跨过 UTC 日界 → 轮转；否则
//     (2) 写入后预计大小超过阈值 → 轮转。
//     轮转时备份 .1..N-1 依次上移，超出配置上限的最旧备份移交压缩归档
//     （未配置归档目录时删除），当前文件改名为 .1 并新开序数 0 的文件。
//
// # 写入原子性
//
// "检查触发条件 → 必要时轮转 → 追加一行" 是对并发写入者的单一临界区，
// 由每个目标自己的互斥锁覆盖；序列化在锁外完成，锁持有时间最小化。
// 磁盘上的每一行要么完整出现，要么不出现，不会与其他写入者交错。
//
// # 归档与保留
//
// 归档文件为 gzip 压缩，文件名携带 UTC 日期标记。[Sweeper] 按保留窗口
// 删除过期归档，可由 cron 表达式周期触发，也可外部调用 SweepOnce；
// 清理过程可随时中断，之后从磁盘现状安全恢复。
//
// # 扩展新实现
//
//  1. 创建新文件实现 Rotator 接口
//  2. 定义独立的 Option 集
//  3. 提供独立的构造函数
//  4. 不修改 Rotator 接口
package xrotate
