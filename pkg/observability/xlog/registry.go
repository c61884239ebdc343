package xlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omeyang/tracekit/pkg/observability/xrotate"
)

// 默认配置值。
const (
	// DefaultMaxSizeBytes 默认单文件大小阈值（100 MiB）
	DefaultMaxSizeBytes = 100 << 20

	// DefaultMaxBackups 默认保留的按大小轮转备份数量
	DefaultMaxBackups = 10

	// DefaultDailyMaxBackups 默认保留的按天轮转备份数量（30 天）
	DefaultDailyMaxBackups = 30
)

// 保留目录名，不允许作为组件名使用。
const (
	errorsDirName  = "errors"
	archiveDirName = "archive"
)

// Options 注册表配置。显式枚举，无环境全局量。
type Options struct {
	// RootDir 日志根目录，每个组件一个子目录（必填）
	RootDir string

	// MaxSizeBytes 单文件大小阈值，超过触发轮转
	// 默认 DefaultMaxSizeBytes
	MaxSizeBytes int64

	// MaxBackups 按大小轮转的备份保留数量
	// 默认 DefaultMaxBackups
	MaxBackups int

	// DailyMaxBackups 按天轮转的备份保留数量
	// 默认 DefaultDailyMaxBackups
	DailyMaxBackups int

	// ArchiveDir 压缩归档目录
	// 默认 <RootDir>/archive
	ArchiveDir string

	// DefaultLevel 组件的默认最低日志级别
	// 零值即 LevelTrace；常规部署建议 LevelInfo
	DefaultLevel Level

	// Levels 按组件覆盖最低级别
	Levels map[string]Level

	// RedactKeys 脱敏字段名单（大小写不敏感，任意嵌套深度生效）
	// nil 使用 DefaultRedactKeys；显式空切片表示关闭脱敏
	RedactKeys []string

	// CaptureSource 是否记录调用点信息（function/file/line/thread/process）
	// runtime.Caller 有不可忽略的开销，默认关闭
	CaptureSource bool

	// OnError 内部错误回调（写盘失败、归档失败等）
	//
	// 回调不得通过本注册表的 Logger 再打日志，否则会在写失败时形成
	// 递归写入；内置的递归保护只能挡住同步路径。
	OnError func(error)

	// Clock 时间源，nil 使用 time.Now。仅用于测试。
	Clock func() time.Time
}

// Registry 显式日志注册表。
//
// 由进程 owner 构造一次、按句柄传递给各组件；Close 冲刷并关闭所有
// 打开的文件句柄。所有方法并发安全。
type Registry struct {
	opts Options
	red  *redactor

	failures       atomic.Uint64
	inErrorHandler atomic.Bool

	mu       sync.Mutex
	loggers  map[string]*Logger
	levels   map[string]*LevelVar
	explicit map[string]bool // 组件是否有显式级别覆盖
	closers  []closerEntry
	closed   bool
}

// closerEntry 记录 (目标名, 句柄)，便于 Close 汇总错误时定位目标。
type closerEntry struct {
	name string
	c    interface{ Close() error }
}

// NewRegistry 创建日志注册表。
//
// 根目录不存在时尝试创建；创建失败或不可写时返回 ErrInvalidRoot
// （配置错误 fail-fast，构造期即暴露）。
func NewRegistry(opts Options) (*Registry, error) {
	if opts.RootDir == "" {
		return nil, ErrEmptyRoot
	}
	if err := ensureWritableDir(opts.RootDir); err != nil {
		return nil, err
	}

	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}
	if opts.DailyMaxBackups <= 0 {
		opts.DailyMaxBackups = DefaultDailyMaxBackups
	}
	if opts.ArchiveDir == "" {
		opts.ArchiveDir = filepath.Join(opts.RootDir, archiveDirName)
	}
	if opts.RedactKeys == nil {
		opts.RedactKeys = DefaultRedactKeys
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	r := &Registry{
		opts:     opts,
		red:      newRedactor(opts.RedactKeys),
		loggers:  make(map[string]*Logger),
		levels:   make(map[string]*LevelVar),
		explicit: make(map[string]bool),
	}
	for c, lv := range opts.Levels {
		r.levelVar(c, lv, true)
	}
	return r, nil
}

// ensureWritableDir 确保目录存在且可写（探针文件）。
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	return nil
}

// Logger 返回组件的 Logger，首次调用时创建并缓存。
//
// 组件名映射为日志子目录，因此不允许路径分隔符、".." 以及保留目录名
// （errors、archive）。注册表关闭后返回 ErrRegistryClosed。
func (r *Registry) Logger(component string) (*Logger, error) {
	if err := validateComponent(component); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if l, ok := r.loggers[component]; ok {
		return l, nil
	}

	l, err := r.newLogger(component)
	if err != nil {
		return nil, err
	}
	r.loggers[component] = l
	return l, nil
}

// newLogger 创建组件 Logger 及其三个轮转目标。调用方持有 r.mu。
func (r *Registry) newLogger(component string) (*Logger, error) {
	archive := filepath.Join(r.opts.ArchiveDir, component)

	main, err := xrotate.NewFile(
		filepath.Join(r.opts.RootDir, component, component+".log"),
		xrotate.WithMaxSize(r.opts.MaxSizeBytes),
		xrotate.WithMaxBackups(r.opts.MaxBackups),
		xrotate.WithArchiveDir(archive),
		xrotate.WithClock(r.opts.Clock),
		xrotate.WithOnError(r.handleError),
	)
	if err != nil {
		return nil, err
	}

	daily, err := xrotate.NewFile(
		filepath.Join(r.opts.RootDir, component, component+"_daily.log"),
		xrotate.WithMaxSize(r.opts.MaxSizeBytes),
		xrotate.WithMaxBackups(r.opts.DailyMaxBackups),
		xrotate.WithDailyRotation(true),
		xrotate.WithArchiveDir(archive),
		xrotate.WithClock(r.opts.Clock),
		xrotate.WithOnError(r.handleError),
	)
	if err != nil {
		_ = main.Close()
		return nil, err
	}

	errs, err := xrotate.NewFile(
		filepath.Join(r.opts.RootDir, errorsDirName, component+"_errors.log"),
		xrotate.WithMaxSize(r.opts.MaxSizeBytes),
		xrotate.WithMaxBackups(r.opts.MaxBackups),
		xrotate.WithArchiveDir(archive),
		xrotate.WithClock(r.opts.Clock),
		xrotate.WithOnError(r.handleError),
	)
	if err != nil {
		_ = main.Close()
		_ = daily.Close()
		return nil, err
	}

	r.closers = append(r.closers,
		closerEntry{component + "/main", main},
		closerEntry{component + "/daily", daily},
		closerEntry{component + "/errors", errs},
	)

	return &Logger{
		component:      component,
		level:          r.levelVar(component, r.opts.DefaultLevel, false),
		red:            r.red,
		captureSource:  r.opts.CaptureSource,
		clock:          r.opts.Clock,
		main:           main,
		daily:          daily,
		errs:           errs,
		failures:       &r.failures,
		onError:        r.opts.OnError,
		inErrorHandler: &r.inErrorHandler,
	}, nil
}

// levelVar 返回组件的级别变量，不存在则按给定级别创建。
func (r *Registry) levelVar(component string, level Level, explicit bool) *LevelVar {
	if v, ok := r.levels[component]; ok {
		return v
	}
	v := new(LevelVar)
	v.Set(level)
	r.levels[component] = v
	r.explicit[component] = explicit
	return v
}

// SetLevel 运行时调整组件的最低日志级别，立即对已创建的 Logger 生效。
func (r *Registry) SetLevel(component string, level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levelVar(component, level, true).Set(level)
	r.explicit[component] = true
}

// SetDefaultLevel 调整默认最低级别。
// 没有显式覆盖的组件（包括已创建的）同步生效。
func (r *Registry) SetDefaultLevel(level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.DefaultLevel = level
	for c, v := range r.levels {
		if !r.explicit[c] {
			v.Set(level)
		}
	}
}

// ApplyLevels 批量应用按组件的级别覆盖（配置热更新入口）。
func (r *Registry) ApplyLevels(levels map[string]Level) {
	for c, lv := range levels {
		r.SetLevel(c, lv)
	}
}

// FailureCount 返回累计的内部写失败次数。
// 写失败的记录已被丢弃（失败不扩散），该计数用于监控与测试。
func (r *Registry) FailureCount() uint64 {
	return r.failures.Load()
}

// Close 冲刷并关闭所有打开的文件句柄。
//
// 幂等：重复调用返回 nil。关闭后 Logger() 返回 ErrRegistryClosed；
// 已持有的 Logger 继续调用不会 panic，写入按写失败计数处理。
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for _, e := range r.closers {
		if err := e.c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.name, err))
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// handleError 处理轮转器等内部组件上报的错误（计数 + 回调）。
func (r *Registry) handleError(err error) {
	r.failures.Add(1)
	if r.opts.OnError == nil {
		return
	}
	if r.inErrorHandler.CompareAndSwap(false, true) {
		defer r.inErrorHandler.Store(false)
		func() {
			defer func() {
				if recover() != nil {
					r.failures.Add(1)
				}
			}()
			r.opts.OnError(err)
		}()
	}
}

// validateComponent 校验组件名可以安全映射为目录名。
func validateComponent(component string) error {
	if component == "" || component == "." || component == ".." {
		return ErrInvalidComponent
	}
	if strings.ContainsAny(component, `/\`) || strings.ContainsRune(component, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidComponent, component)
	}
	if component == errorsDirName || component == archiveDirName {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidComponent, component)
	}
	return nil
}
