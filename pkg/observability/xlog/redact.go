package xlog

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// RedactedMask 脱敏后写入的固定掩码。
const RedactedMask = "***REDACTED***"

// DefaultRedactKeys 默认脱敏字段名单。
//
// Options.RedactKeys 为 nil 时使用；显式传空切片表示关闭脱敏。
var DefaultRedactKeys = []string{"password", "token", "secret", "api_key"}

// redactor 在序列化前对 data 做一次递归规范化：
//
//   - 命中名单的 key（大小写不敏感）其值替换为固定掩码，任意嵌套深度生效
//   - 不可 JSON 序列化的值降级为其字符串形式，绝不静默丢弃
//
// 两件事合并为一次遍历完成，输出总是一棵全新的树，调用方的原始 map
// 不会被修改。
type redactor struct {
	keys map[string]struct{}
}

func newRedactor(keys []string) *redactor {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = struct{}{}
	}
	return &redactor{keys: set}
}

func (r *redactor) denied(key string) bool {
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

// Apply 规范化一棵 data 树，返回可安全序列化的拷贝。
func (r *redactor) Apply(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if r.denied(k) {
			out[k] = RedactedMask
			continue
		}
		out[k] = r.normalize(v)
	}
	return out
}

func (r *redactor) normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number, time.Time:
		return val
	case error:
		return safeString(val)
	case map[string]any:
		return r.Apply(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = r.normalize(e)
		}
		return out
	}

	// 其他字符串键 map 和切片通过反射处理，保证嵌套脱敏不被具体类型绕过
	// （如 map[string]string、[]map[string]any）。
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				k := iter.Key().String()
				if r.denied(k) {
					out[k] = RedactedMask
					continue
				}
				out[k] = r.normalize(iter.Value().Interface())
			}
			return out
		}
	case reflect.Slice, reflect.Array:
		// []byte 保持原样，交给 encoding/json 的 base64 规则
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = r.normalize(rv.Index(i).Interface())
		}
		return out
	}

	// 结构体、指针等：能序列化就原样保留，否则降级为字符串形式
	if _, err := json.Marshal(v); err != nil {
		return safeString(v)
	}
	return v
}

// safeString 将任意值转为字符串形式，隔离 String()/Error() 的 panic。
func safeString(v any) (s string) {
	defer func() {
		if recover() != nil {
			s = fmt.Sprintf("<unprintable %T>", v)
		}
	}()
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", v)
}
