package xlog

import "errors"

// 配置校验错误，均在 NewRegistry 构造期返回（fail-fast）。
var (
	// ErrEmptyRoot 根目录为空
	ErrEmptyRoot = errors.New("xlog: root directory is required")

	// ErrInvalidRoot 根目录不存在且无法创建，或不可写
	ErrInvalidRoot = errors.New("xlog: root directory is not writable")

	// ErrInvalidComponent 组件名为空或包含路径分隔符
	ErrInvalidComponent = errors.New("xlog: invalid component name")

	// ErrRegistryClosed 注册表已关闭
	ErrRegistryClosed = errors.New("xlog: registry is closed")
)
