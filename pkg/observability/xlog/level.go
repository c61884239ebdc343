package xlog

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Level 日志级别，数值越大越严重。
//
// 排序关系固定：TRACE < DEBUG < INFO < WARNING < ERROR < CRITICAL。
type Level int8

// 日志级别常量。
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

// String 返回级别的大写字符串表示，与磁盘记录的 level 字段一致。
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int8(l))
	}
}

// MarshalText 实现 encoding.TextMarshaler 接口。
//
// 同时服务于 JSON 序列化（encoding/json 会回退到 TextMarshaler）
// 和配置序列化场景。
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler 接口。
//
// 支持从磁盘记录和配置文件直接反序列化日志级别。
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel 解析字符串为日志级别。
// 支持 trace/debug/info/warn/warning/error/critical（大小写不敏感），
// 输入会自动 TrimSpace。
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return LevelInfo, fmt.Errorf("xlog: unknown level %q", s)
	}
}

// LevelVar 可在运行时原子调整的级别变量。
//
// Registry 为每个组件维护一个 LevelVar，配置热更新通过 SetLevel
// 同步生效，无需重建 Logger。零值为 LevelTrace。
type LevelVar struct {
	v atomic.Int32
}

// Level 返回当前级别。
func (v *LevelVar) Level() Level {
	return Level(v.v.Load())
}

// Set 原子设置级别。
func (v *LevelVar) Set(l Level) {
	v.v.Store(int32(l))
}
