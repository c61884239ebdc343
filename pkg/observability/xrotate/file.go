package xrotate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// 默认配置值
const (
	// DefaultMaxSizeBytes 默认单文件大小阈值（100 MiB）
	DefaultMaxSizeBytes int64 = 100 << 20

	// DefaultMaxBackups 默认保留的备份文件数量
	DefaultMaxBackups = 10

	// maxSizeLimit 大小阈值上限（10 GiB）
	maxSizeLimit int64 = 10 << 30

	// maxBackupsLimit 备份数量上限
	maxBackupsLimit = 1024

	// logFileMode 日志文件权限
	logFileMode = 0o600

	// logDirMode 日志目录权限
	logDirMode = 0o750
)

// fileConfig 序数备份轮转器配置
type fileConfig struct {
	maxSize    int64
	maxBackups int
	daily      bool
	archiveDir string
	clock      func() time.Time
	onError    func(error)
}

// Option 轮转器配置选项函数
type Option func(*fileConfig)

// WithMaxSize 设置单文件大小阈值（字节）
func WithMaxSize(bytes int64) Option {
	return func(c *fileConfig) {
		c.maxSize = bytes
	}
}

// WithMaxBackups 设置保留的序数备份数量
func WithMaxBackups(n int) Option {
	return func(c *fileConfig) {
		c.maxBackups = n
	}
}

// WithDailyRotation 启用按天轮转
//
// 启用后每次写入前先检查是否跨过 UTC 日界（优先于大小检查）。
func WithDailyRotation(enable bool) Option {
	return func(c *fileConfig) {
		c.daily = enable
	}
}

// WithArchiveDir 设置压缩归档目录
//
// 轮转时滑出备份窗口的最旧文件会被 gzip 压缩移入该目录。
// 未设置时直接删除。
func WithArchiveDir(dir string) Option {
	return func(c *fileConfig) {
		c.archiveDir = dir
	}
}

// WithClock 设置时间源，仅用于测试。
func WithClock(fn func() time.Time) Option {
	return func(c *fileConfig) {
		if fn != nil {
			c.clock = fn
		}
	}
}

// WithOnError 设置内部错误回调
//
// 归档/改名等内部操作失败时调用。默认为 nil（静默忽略，但调用方
// 仍会从 Write 收到追加失败的错误）。
//
// 设计决策: 不使用日志库记录内部错误，避免 Rotator 作为日志输出目标时
// 产生递归写入。回调函数不得向同一 Rotator 写入数据。
func WithOnError(fn func(error)) Option {
	return func(c *fileConfig) {
		c.onError = fn
	}
}

// fileRotator 序数备份轮转器
//
// 备份命名：<path>.1 为最近一次轮转出的文件，.2 次之，依此类推。
// 轮转时 .1..N-1 上移一位，.N 移交归档，当前文件改名 .1。
type fileRotator struct {
	cfg  fileConfig
	path string

	mu     sync.Mutex
	f      *os.File
	size   int64
	birth  time.Time // 当前文件创建时间（UTC），按天轮转的基准
	closed bool
}

// NewFile 创建序数备份轮转器
//
// 文件与父目录不存在时自动创建（目录权限 0750，文件权限 0600）。
// 打开已有文件时续写，其创建时间以修改时间近似，保证按天轮转跨进程
// 重启仍然生效。
func NewFile(filename string, opts ...Option) (Rotator, error) {
	if filename == "" {
		return nil, ErrEmptyFilename
	}

	cfg := fileConfig{
		maxSize:    DefaultMaxSizeBytes,
		maxBackups: DefaultMaxBackups,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.maxSize <= 0 || cfg.maxSize > maxSizeLimit {
		return nil, fmt.Errorf("%w: got %d, want 1~%d", ErrInvalidMaxSize, cfg.maxSize, maxSizeLimit)
	}
	if cfg.maxBackups < 1 || cfg.maxBackups > maxBackupsLimit {
		return nil, fmt.Errorf("%w: got %d, want 1~%d", ErrInvalidMaxBackups, cfg.maxBackups, maxBackupsLimit)
	}

	path := filepath.Clean(filename)
	if err := os.MkdirAll(filepath.Dir(path), logDirMode); err != nil {
		return nil, fmt.Errorf("xrotate: create log dir: %w", err)
	}

	r := &fileRotator{cfg: cfg, path: path}
	if err := r.openLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

// openLocked 打开（或创建）当前文件并恢复其大小与创建时间。
// 调用方持有 r.mu 或处于构造期。
func (r *fileRotator) openLocked() error {
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFileMode)
	if err != nil {
		return fmt.Errorf("xrotate: open %s: %w", r.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("xrotate: stat %s: %w", r.path, err)
	}

	r.f = f
	r.size = info.Size()
	if r.size > 0 {
		r.birth = info.ModTime().UTC()
	} else {
		r.birth = r.cfg.clock().UTC()
	}
	return nil
}

// Write 实现 io.Writer 接口
//
// "检查触发条件 → 必要时轮转 → 追加" 是一个临界区。
// 轮转失败不阻止本次写入：降级为继续写当前文件，并通过 OnError 上报。
func (r *fileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}

	now := r.cfg.clock().UTC()
	if r.needsRotate(now, int64(len(p))) {
		if err := r.rotateLocked(now); err != nil {
			r.report(err)
		}
	}

	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

// needsRotate 按固定优先级检查轮转触发条件：先日界，后大小。
func (r *fileRotator) needsRotate(now time.Time, add int64) bool {
	if r.cfg.daily && !sameDay(now, r.birth) {
		return true
	}
	// 空文件不因单条超限而空转
	if r.size > 0 && r.size+add > r.cfg.maxSize {
		return true
	}
	return false
}

// Rotate 手动触发轮转
func (r *fileRotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.rotateLocked(r.cfg.clock().UTC())
}

// rotateLocked 执行一次轮转。调用方持有 r.mu。
//
// 步骤：关闭当前文件 → .N 移交归档 → .1..N-1 上移 → 当前文件改名 .1
// → 新开序数 0 的文件。任何一步失败都继续后续步骤并汇总上报，
// 保证轮转后总有可写的当前文件。
func (r *fileRotator) rotateLocked(now time.Time) error {
	if err := r.f.Close(); err != nil {
		r.report(fmt.Errorf("xrotate: close before rotate: %w", err))
	}

	oldest := fmt.Sprintf("%s.%d", r.path, r.cfg.maxBackups)
	if _, err := os.Stat(oldest); err == nil {
		r.archive(oldest, now)
	}

	for i := r.cfg.maxBackups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", r.path, i)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := fmt.Sprintf("%s.%d", r.path, i+1)
		if err := os.Rename(src, dst); err != nil {
			r.report(fmt.Errorf("xrotate: shift backup %s: %w", src, err))
		}
	}

	if _, err := os.Stat(r.path); err == nil {
		if err := os.Rename(r.path, r.path+".1"); err != nil {
			r.report(fmt.Errorf("xrotate: rename current: %w", err))
		}
	}

	return r.openLocked()
}

// archive 将滑出备份窗口的文件压缩移入归档目录；未配置归档目录或
// 压缩失败时降级为删除。错误通过 OnError 上报，不影响轮转。
func (r *fileRotator) archive(src string, now time.Time) {
	if r.cfg.archiveDir != "" {
		err := compressTo(src, r.cfg.archiveDir, now)
		if err == nil {
			return
		}
		r.report(fmt.Errorf("xrotate: archive %s: %w", src, err))
	}
	if err := os.Remove(src); err != nil {
		r.report(fmt.Errorf("xrotate: drop backup %s: %w", src, err))
	}
}

// Close 实现 io.Closer 接口
//
// 关闭后调用 Write 或 Rotate 将返回 [ErrClosed]，重复 Close 同样。
func (r *fileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.closed = true
	return r.f.Close()
}

func (r *fileRotator) report(err error) {
	if err == nil || r.cfg.onError == nil {
		return
	}
	defer func() { _ = recover() }()
	r.cfg.onError(err)
}

// sameDay 报告两个时刻是否处于同一 UTC 日。
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
