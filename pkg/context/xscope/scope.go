package xscope

import (
	"context"
	"maps"
)

// 设计决策: contextKey 使用 string 而非 int+iota。包私有类型不会与其他包的
// context key 冲突（context 比较包含类型信息），字符串值在调试时可读性高。
type contextKey string

// keyFields 存储当前作用域的合并字段视图。
//
// 每次 With 都写入一份全新的合并 map，父 context 持有的 map 永不被修改。
// 因此任何持有旧 context 的 goroutine 看到的都是 spawn 时刻的快照。
const keyFields = contextKey("xscope:fields")

// Fields 一组作用域字段。
//
// 值应当是 JSON 可序列化的；这里不做校验，日志序列化阶段会把
// 不可序列化的值降级为字符串形式。
type Fields map[string]any

// With 在 context 上叠加一层作用域字段。
//
// 内层同名字段覆盖外层，未覆盖的继承字段保持可见。
// fields 为空时原样返回 ctx。如果 ctx 为 nil，返回 ErrNilContext。
//
// 返回的 context 是新作用域的句柄；离开作用域时继续使用调用前的
// 父 context 即可，先前状态不会被本函数触碰。
func With(ctx context.Context, fields Fields) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if len(fields) == 0 {
		return ctx, nil
	}

	parent := current(ctx)
	merged := make(Fields, len(parent)+len(fields))
	maps.Copy(merged, parent)
	maps.Copy(merged, fields)

	return context.WithValue(ctx, keyFields, merged), nil
}

// Current 返回调用方当前可见的合并字段视图（内层覆盖外层）。
//
// 返回的是拷贝，调用方修改它不会影响作用域本身。
// ctx 为 nil 或没有任何作用域时返回 nil。
func Current(ctx context.Context) Fields {
	parent := current(ctx)
	if len(parent) == 0 {
		return nil
	}
	out := make(Fields, len(parent))
	maps.Copy(out, parent)
	return out
}

// Value 返回单个作用域字段，避免 Current 的整表拷贝。
func Value(ctx context.Context, key string) (any, bool) {
	fields := current(ctx)
	v, ok := fields[key]
	return v, ok
}

// current 返回内部存储的合并 map，调用方必须只读。
func current(ctx context.Context) Fields {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(keyFields).(Fields); ok {
		return v
	}
	return nil
}
