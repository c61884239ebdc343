package xscope

import (
	"context"

	"github.com/google/uuid"
)

// 请求标识字段 Key 常量，与磁盘记录的顶层字段名保持一致。
const (
	KeyRequestID = "request_id"
	KeyUserID    = "user_id"
	KeySessionID = "session_id"
)

// WithRequestID 将 request ID 注入当前作用域。
//
// 如果 ctx 为 nil，返回 ErrNilContext。
func WithRequestID(ctx context.Context, requestID string) (context.Context, error) {
	return With(ctx, Fields{KeyRequestID: requestID})
}

// RequestID 从作用域提取 request ID，不存在返回空字符串。
func RequestID(ctx context.Context) string {
	return stringField(ctx, KeyRequestID)
}

// WithUserID 将 user ID 注入当前作用域。
//
// 如果 ctx 为 nil，返回 ErrNilContext。
func WithUserID(ctx context.Context, userID string) (context.Context, error) {
	return With(ctx, Fields{KeyUserID: userID})
}

// UserID 从作用域提取 user ID，不存在返回空字符串。
func UserID(ctx context.Context) string {
	return stringField(ctx, KeyUserID)
}

// WithSessionID 将 session ID 注入当前作用域。
//
// 如果 ctx 为 nil，返回 ErrNilContext。
func WithSessionID(ctx context.Context, sessionID string) (context.Context, error) {
	return With(ctx, Fields{KeySessionID: sessionID})
}

// SessionID 从作用域提取 session ID，不存在返回空字符串。
func SessionID(ctx context.Context) string {
	return stringField(ctx, KeySessionID)
}

// NewRequestID 生成一个新的 request ID。
//
// 便捷函数，用于请求入口处没有外部分配标识的场景。
// 标识不要求有序性，使用 UUID v4。
func NewRequestID() string {
	return uuid.NewString()
}

func stringField(ctx context.Context, key string) string {
	if v, ok := Value(ctx, key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
