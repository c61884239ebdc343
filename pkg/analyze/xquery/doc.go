// Package xquery 提供日志语料的流式查询与聚合分析。
//
// 面向排障与性能分析场景：按组件/级别/请求/时间窗过滤检索、数值字段
// 的分位数聚合（nearest-rank）、慢操作定位、错误摘要。所有查询逐行
// 流式扫描，不将整个文件载入内存；损坏的行计入解析错误数并跳过，
// 不中断查询。
//
// 查询默认只扫描主日志流。按天日志与错误日志是主日志的子集副本，
// 同时扫描会产生重复记录，仅在明确需要时通过 Filter.Kinds 指定。
//
// 不可变文件（序数备份与压缩归档）的解码结果带 LRU 缓存，重复查询
// 同一语料时只付一次解码成本；活跃文件每次重新读取。
package xquery
