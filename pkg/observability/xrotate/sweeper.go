package xrotate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v5"
	"github.com/robfig/cron/v3"
)

// 保留期清理的默认配置
const (
	// DefaultRetention 归档文件默认保留期（30 天）
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultSweepSpec 默认清理调度表达式（每天凌晨执行）
	DefaultSweepSpec = "@daily"

	// sweepRemoveAttempts 删除单个过期归档的最大尝试次数
	sweepRemoveAttempts = 3

	// sweepRemoveDelay 删除重试的间隔
	sweepRemoveDelay = 200 * time.Millisecond
)

// sweeperConfig 清理器配置
type sweeperConfig struct {
	retention time.Duration
	spec      string
	clock     func() time.Time
	onError   func(error)
}

// SweeperOption 清理器配置选项函数
type SweeperOption func(*sweeperConfig)

// WithRetention 设置归档保留期，超期的 .gz 文件会被删除。
func WithRetention(d time.Duration) SweeperOption {
	return func(c *sweeperConfig) {
		c.retention = d
	}
}

// WithSweepSpec 设置清理任务的 cron 表达式，如 "@daily" 或 "0 3 * * *"。
func WithSweepSpec(spec string) SweeperOption {
	return func(c *sweeperConfig) {
		c.spec = spec
	}
}

// WithSweepClock 设置时间源，仅用于测试。
func WithSweepClock(fn func() time.Time) SweeperOption {
	return func(c *sweeperConfig) {
		if fn != nil {
			c.clock = fn
		}
	}
}

// WithSweepOnError 设置后台清理的错误回调。
func WithSweepOnError(fn func(error)) SweeperOption {
	return func(c *sweeperConfig) {
		c.onError = fn
	}
}

// Sweeper 归档保留期清理器
//
// 周期性扫描归档根目录（递归），按修改时间删除超过保留期的 .gz 文件。
// 单个文件删除失败会重试，重试耗尽后上报并继续处理后续文件。
type Sweeper struct {
	dir string
	cfg sweeperConfig

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

// NewSweeper 创建归档清理器。dir 是归档根目录，其下按组件分子目录。
func NewSweeper(dir string, opts ...SweeperOption) (*Sweeper, error) {
	if dir == "" {
		return nil, ErrEmptyArchiveDir
	}

	cfg := sweeperConfig{
		retention: DefaultRetention,
		spec:      DefaultSweepSpec,
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.retention <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRetention, cfg.retention)
	}
	if _, err := cron.ParseStandard(cfg.spec); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCronSpec, cfg.spec, err)
	}

	return &Sweeper{dir: filepath.Clean(dir), cfg: cfg}, nil
}

// SweepOnce 立即执行一次清理，返回删除的文件数。
//
// 扫描错误与单文件删除失败不会中断整体清理，首个遇到的错误作为
// 返回值带出。ctx 取消时尽快停止。
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cutoff := s.cfg.clock().UTC().Add(-s.cfg.retention)

	removed := 0
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	walkErr := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// 归档根目录尚未创建属于正常状态
			if path == s.dir && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			keep(err)
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".gz") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			keep(err)
			return nil
		}
		if !info.ModTime().UTC().Before(cutoff) {
			return nil
		}

		if err := s.removeWithRetry(ctx, path); err != nil {
			s.report(fmt.Errorf("xrotate: sweep %s: %w", path, err))
			keep(err)
			return nil
		}
		removed++
		return nil
	})
	if walkErr != nil {
		keep(walkErr)
	}
	return removed, firstErr
}

// removeWithRetry 带重试地删除单个过期归档。
// 瞬时的文件系统错误（如 NFS 抖动）在几次重试内通常可恢复。
func (s *Sweeper) removeWithRetry(ctx context.Context, path string) error {
	return retry.New(
		retry.Context(ctx),
		retry.Attempts(sweepRemoveAttempts),
		retry.Delay(sweepRemoveDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !os.IsNotExist(err)
		}),
	).Do(func() error {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	})
}

// Start 启动后台周期清理（非阻塞）。重复调用返回 [ErrSweeperStarted]。
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSweeperStarted
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.spec, func() {
		if _, err := s.SweepOnce(context.Background()); err != nil {
			s.report(fmt.Errorf("xrotate: scheduled sweep: %w", err))
		}
	}); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCronSpec, s.cfg.spec, err)
	}
	c.Start()

	s.cron = c
	s.started = true
	return nil
}

// Stop 停止后台清理并等待运行中的清理任务完成。未启动时无效果。
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.started = false
}

func (s *Sweeper) report(err error) {
	if err == nil || s.cfg.onError == nil {
		return
	}
	defer func() { _ = recover() }()
	s.cfg.onError(err)
}
