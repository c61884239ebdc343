package xlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/tracekit/pkg/context/xscope"
)

// stackPool 堆栈缓冲区池，避免每次异常捕获都分配内存。
var stackPool = sync.Pool{
	New: func() any {
		buf := make([]byte, initialStackSize)
		return &buf
	},
}

const (
	// initialStackSize 初始堆栈缓冲区大小
	initialStackSize = 4096
	// maxStackSize 最大堆栈缓冲区大小（64KB）
	maxStackSize = 64 * 1024
)

// Logger 组件级结构化日志发射器。
//
// 通过 [Registry.Logger] 获取。所有日志方法都需要 context.Context 参数，
// 以便合并 xscope 作用域字段。方法永不返回错误：日志层失败被内部消化，
// 不影响被观测的业务操作。
type Logger struct {
	component     string
	level         *LevelVar
	red           *redactor
	captureSource bool
	clock         func() time.Time

	// 三个写入目标，均为 xrotate.Rotator；daily/errs 可为 nil（测试场景）
	main  io.Writer
	daily io.Writer
	errs  io.Writer

	failures       *atomic.Uint64 // 写失败计数器，同一注册表的 Logger 共享
	onError        func(error)
	inErrorHandler *atomic.Bool // 防止 onError 递归调用，共享
}

// Trace 记录 TRACE 级别日志。
func (l *Logger) Trace(ctx context.Context, msg string, data map[string]any) {
	l.emit(ctx, LevelTrace, msg, data, nil)
}

// Debug 记录 DEBUG 级别日志。
func (l *Logger) Debug(ctx context.Context, msg string, data map[string]any) {
	l.emit(ctx, LevelDebug, msg, data, nil)
}

// Info 记录 INFO 级别日志。
func (l *Logger) Info(ctx context.Context, msg string, data map[string]any) {
	l.emit(ctx, LevelInfo, msg, data, nil)
}

// Warning 记录 WARNING 级别日志。
func (l *Logger) Warning(ctx context.Context, msg string, data map[string]any) {
	l.emit(ctx, LevelWarning, msg, data, nil)
}

// Error 记录 ERROR 级别日志，err 非 nil 时附带异常信息。
func (l *Logger) Error(ctx context.Context, msg string, data map[string]any, err error) {
	l.emit(ctx, LevelError, msg, data, err)
}

// Critical 记录 CRITICAL 级别日志，err 非 nil 时附带异常信息。
func (l *Logger) Critical(ctx context.Context, msg string, data map[string]any, err error) {
	l.emit(ctx, LevelCritical, msg, data, err)
}

// Log 按指定级别记录日志。
func (l *Logger) Log(ctx context.Context, level Level, msg string, data map[string]any, err error) {
	l.emit(ctx, level, msg, data, err)
}

// Enabled 检查指定级别是否启用。
// 用于在构造昂贵的日志参数前先检查级别。
func (l *Logger) Enabled(level Level) bool {
	return level >= l.level.Level()
}

// Component 返回该 Logger 所属的组件名。
func (l *Logger) Component() string {
	return l.component
}

// emit 统一的日志路径：级别过滤 → 上下文合并 → 脱敏 → 序列化 → 写入。
//
// 级别低于阈值时立即返回，不做任何合并/序列化工作。
//
//go:noinline
func (l *Logger) emit(ctx context.Context, level Level, msg string, data map[string]any, err error) {
	if level < l.level.Level() {
		return
	}

	rec := Record{
		Timestamp: NewTime(l.clock()),
		Level:     level,
		Component: l.component,
		Message:   msg,
	}

	// 作用域字段垫底，显式 data 覆盖（显式字段在 key 冲突时获胜）。
	// 顶层保留字段绝不被任何一方顶替。
	merged := make(map[string]any, len(data)+4)
	for k, v := range xscope.Current(ctx) {
		if IsReservedKey(k) {
			continue
		}
		merged[k] = v
	}
	for k, v := range data {
		if IsReservedKey(k) {
			continue
		}
		merged[k] = v
	}

	// 三个请求标识提升为顶层字段
	rec.RequestID = popString(merged, xscope.KeyRequestID)
	rec.UserID = popString(merged, xscope.KeyUserID)
	rec.SessionID = popString(merged, xscope.KeySessionID)

	rec.Data = l.red.Apply(merged)

	if err != nil {
		rec.Exception = captureException(err)
	}
	if l.captureSource {
		// skip=3: captureCaller(0) → emit(1) → Info/Error/Log 等导出方法(2)
		// → 业务代码(3)。emit 标记 //go:noinline 保证栈帧存在。
		rec.Context = captureCaller(3)
	}

	line := l.encode(&rec)
	l.write(l.main, line)
	if level >= LevelInfo {
		l.write(l.daily, line)
	}
	if level >= LevelError {
		l.write(l.errs, line)
	}
}

// encode 序列化记录为一行 JSON。
//
// 序列化永不失败到调用方：redactor 已把常见的不可序列化值降级为字符串，
// 这里再兜底两层——先全量字符串化 data 重试，仍失败则写出只含必选字段的
// 最小记录。
func (l *Logger) encode(rec *Record) []byte {
	b, err := json.Marshal(rec)
	if err == nil {
		return append(b, '\n')
	}

	degraded := *rec
	degraded.Data = stringifyAll(rec.Data)
	b, err = json.Marshal(&degraded)
	if err == nil {
		return append(b, '\n')
	}

	minimal := Record{
		Timestamp: rec.Timestamp,
		Level:     rec.Level,
		Component: rec.Component,
		Message:   rec.Message,
	}
	b, _ = json.Marshal(&minimal)
	return append(b, '\n')
}

// write 向单个目标写入一行，失败计数并上报，永不传播。
func (l *Logger) write(w io.Writer, line []byte) {
	if w == nil {
		return
	}
	if _, err := w.Write(line); err != nil {
		l.handleError(err)
	}
}

// handleError 处理内部写失败。
//
// 递归保护：如果 onError 回调内部又触发日志错误，不会无限递归。
// panic 隔离：回调 panic 被捕获并计入计数，不中断业务调用链。
func (l *Logger) handleError(err error) {
	if l.failures != nil {
		l.failures.Add(1)
	}
	if l.onError != nil && l.inErrorHandler != nil {
		if l.inErrorHandler.CompareAndSwap(false, true) {
			defer l.inErrorHandler.Store(false)
			l.safeOnError(err)
		}
	}
}

func (l *Logger) safeOnError(err error) {
	defer func() {
		if recover() != nil && l.failures != nil {
			l.failures.Add(1)
		}
	}()
	l.onError(err)
}

// popString 从 merged 中取出一个字符串字段并删除；非字符串值留在 data 中。
func popString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	delete(m, key)
	return s
}

// stringifyAll 把整棵 data 树的每个顶层值降级为字符串形式。
func stringifyAll(data map[string]any) map[string]any {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = safeString(v)
	}
	return out
}

// captureException 从 error 提取异常信息。
//
// Best-effort：Error() panic 时降级为占位符；堆栈来自当前 goroutine。
func captureException(err error) *Exception {
	ex := &Exception{
		Type:    fmt.Sprintf("%T", err),
		Message: exceptionMessage(err),
	}

	bufp, ok := stackPool.Get().(*[]byte)
	if !ok {
		buf := make([]byte, initialStackSize)
		bufp = &buf
	}
	buf := *bufp
	n := runtime.Stack(buf, false)
	for n == len(buf) && len(buf) < maxStackSize {
		buf = make([]byte, min(len(buf)*2, maxStackSize))
		n = runtime.Stack(buf, false)
	}
	// 先拷贝为 string 再归还缓冲区，避免池内数据被并发覆盖
	ex.Traceback = string(buf[:n])
	stackPool.Put(bufp)

	return ex
}

func exceptionMessage(err error) (msg string) {
	defer func() {
		if recover() != nil {
			msg = "<error message unavailable>"
		}
	}()
	return err.Error()
}

// captureCaller 提取调用点信息。
func captureCaller(skip int) *Caller {
	c := &Caller{
		Process: os.Getpid(),
		Thread:  goroutineID(),
	}
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return c
	}
	c.File = filepath.Base(file)
	c.Line = line
	if fn := runtime.FuncForPC(pc); fn != nil {
		c.Function = fn.Name()
	}
	return c
}

// goroutineID 从 runtime.Stack 头部解析当前 goroutine id。
// Best-effort：解析失败返回 0。
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// 头部形如 "goroutine 123 [running]:"
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 || string(fields[0]) != "goroutine" {
		return 0
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
