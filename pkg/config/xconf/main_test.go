package xconf

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain 在所有测试完成后检测 goroutine 泄漏。
//
// Watcher 的监视循环在 Stop 关闭 fsnotify 与取消上下文后退出，
// 防抖定时器也会被 Stop 取消，因此不需要任何 Ignore 规则。
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
