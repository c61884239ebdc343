package xlog

import (
	"fmt"
	"strconv"
	"time"
)

// TimeLayout 磁盘记录 timestamp 字段的格式：ISO-8601 UTC，毫秒精度。
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Time 毫秒精度的 UTC 时间戳。
//
// 包装 time.Time 以固定序列化格式：写盘时统一转 UTC 并截断到毫秒，
// 解析时兼容任意 RFC3339 变体（便于读取手工修复过的历史文件）。
type Time struct {
	time.Time
}

// NewTime 构造规范化的时间戳（UTC、毫秒截断）。
func NewTime(t time.Time) Time {
	return Time{t.UTC().Truncate(time.Millisecond)}
}

// MarshalJSON 实现 json.Marshaler 接口。
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.UTC().Format(TimeLayout))), nil
}

// UnmarshalJSON 实现 json.Unmarshaler 接口。
func (t *Time) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("xlog: invalid timestamp %s: %w", data, err)
	}
	parsed, err := time.Parse(TimeLayout, s)
	if err != nil {
		// 兼容更高/更低精度的 RFC3339 时间戳
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("xlog: invalid timestamp %q: %w", s, err)
		}
	}
	t.Time = parsed.UTC()
	return nil
}

// Caller 调用点信息，对应磁盘记录的 context 对象。
//
// thread 承载 goroutine id（Go 没有稳定的线程标识），best-effort 提取，
// 取不到时为 0 并随 omitempty 省略。
type Caller struct {
	Function string `json:"function,omitempty"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Thread   int64  `json:"thread,omitempty"`
	Process  int    `json:"process,omitempty"`
}

// Exception 异常信息，对应磁盘记录的 exception 对象。
type Exception struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

// Record 一条日志记录的磁盘形状：一行一个 JSON 对象，换行符结尾。
//
// timestamp/level/component/message 为必选字段，其余省略空值。
type Record struct {
	Timestamp Time           `json:"timestamp"`
	Level     Level          `json:"level"`
	Component string         `json:"component"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Context   *Caller        `json:"context,omitempty"`
	Exception *Exception     `json:"exception,omitempty"`
}

// reservedKeys 顶层保留字段，作用域字段和 data 字段不允许顶替它们。
var reservedKeys = map[string]struct{}{
	"timestamp": {},
	"level":     {},
	"component": {},
	"message":   {},
}

// IsReservedKey 报告 key 是否为顶层保留字段名。
func IsReservedKey(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}
