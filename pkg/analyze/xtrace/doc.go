// Package xtrace 按请求标识重建跨组件的请求时间线。
//
// 一次请求流经多个组件（接入、特征、召回、排序等），每个组件向自己的
// 日志文件写入带 request_id 的记录。Tracer 扫描全部日志流（主日志、
// 按天日志、错误日志，含备份与归档），去除跨流的重复副本后按时间戳
// 排序，还原请求的完整执行路径。
//
// 时间戳相同的记录按读取顺序保持稳定次序，重复追踪同一请求得到
// 相同的时间线。时间线可导出为 JSON 供离线分析或工单附件使用。
package xtrace
