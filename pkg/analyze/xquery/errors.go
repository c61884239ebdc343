package xquery

import "errors"

// 预定义错误，调用方用 errors.Is 判断。
var (
	// ErrEmptyRoot 日志根目录为空
	ErrEmptyRoot = errors.New("xquery: root dir is required")

	// ErrEmptyField 聚合字段名为空
	ErrEmptyField = errors.New("xquery: field is required")

	// ErrNoSamples 没有可聚合的数值样本
	ErrNoSamples = errors.New("xquery: no numeric samples")
)

// errStopScan 内部哨兵：达到结果上限时提前终止扫描。
var errStopScan = errors.New("xquery: stop scan")
