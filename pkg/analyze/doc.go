// Package analyze 提供日志语料离线分析相关的子包。
//
// 子包列表：
//   - xquery: 日志语料的过滤、检索与数值字段聚合
//   - xtrace: 按请求标识重建跨组件时间线
//
// 设计原则：
//   - 只读访问日志目录，不持有写入端任何状态
//   - 轮转备份与 gzip 归档对查询透明
//   - 损坏的日志行计数跳过，不中断分析
package analyze
