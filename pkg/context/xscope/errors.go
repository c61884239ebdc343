package xscope

import "errors"

var (
	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xscope: nil context")
)
