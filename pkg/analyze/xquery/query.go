package xquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/omeyang/tracekit/internal/logio"
	"github.com/omeyang/tracekit/pkg/observability/xlog"
)

// DefaultCacheSize 默认缓存的不可变文件数量。
const DefaultCacheSize = 64

// Analyzer 日志语料分析器。
//
// 并发安全：底层缓存自带锁，多个 goroutine 可共享同一实例发起查询。
type Analyzer struct {
	root  string
	cache *lru.Cache[string, fileRecords]
}

// fileRecords 单个不可变文件的解码结果。
type fileRecords struct {
	recs      []xlog.Record
	parseErrs int
}

// Option 分析器配置选项函数。
type Option func(*config)

type config struct {
	cacheSize int
}

// WithCacheSize 设置不可变文件解码缓存的容量（文件数）。
func WithCacheSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// New 创建指向日志根目录的分析器。
func New(root string, opts ...Option) (*Analyzer, error) {
	if root == "" {
		return nil, ErrEmptyRoot
	}
	cfg := config{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cache, err := lru.New[string, fileRecords](cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("xquery: create cache: %w", err)
	}
	return &Analyzer{root: root, cache: cache}, nil
}

// Filter 查询过滤条件，零值字段不参与过滤。
type Filter struct {
	// Component 限定组件；为空扫描全部组件
	Component string

	// Kinds 限定日志流类别；为空只扫主日志
	Kinds []logio.Kind

	// MinLevel 最低级别（含）
	MinLevel xlog.Level

	// Level 精确级别匹配；nil 不限
	Level *xlog.Level

	// RequestID 限定请求标识
	RequestID string

	// UserID 限定用户标识
	UserID string

	// Since 起始时间（含）；零值不限
	Since time.Time

	// Until 截止时间（不含）；零值不限
	Until time.Time

	// MessageContains 消息子串匹配
	MessageContains string

	// Data 按 data 字段精确匹配，值按 JSON 语义比较
	Data map[string]any

	// ExceptionType 限定异常类型
	ExceptionType string
}

// matches 报告记录是否满足全部过滤条件。
func (f Filter) matches(rec *xlog.Record) bool {
	if rec.Level < f.MinLevel {
		return false
	}
	if f.Level != nil && rec.Level != *f.Level {
		return false
	}
	if f.RequestID != "" && rec.RequestID != f.RequestID {
		return false
	}
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !rec.Timestamp.Before(f.Until) {
		return false
	}
	if f.MessageContains != "" && !strings.Contains(rec.Message, f.MessageContains) {
		return false
	}
	if f.ExceptionType != "" && (rec.Exception == nil || rec.Exception.Type != f.ExceptionType) {
		return false
	}
	for k, want := range f.Data {
		got, ok := rec.Data[k]
		if !ok || !jsonEqual(got, want) {
			return false
		}
	}
	return true
}

// jsonEqual 按 JSON 序列化结果比较两个值。
// 过滤条件里的 int 与解码出的 float64 因此可以相等。
func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// ScanStats 一次扫描的统计信息。
type ScanStats struct {
	// FilesScanned 扫描的文件数
	FilesScanned int

	// Scanned 成功解析的记录数
	Scanned int

	// Matched 命中过滤条件的记录数
	Matched int

	// ParseErrors 无法解析的行数（损坏或半写的记录）
	ParseErrors int
}

// Scan 流式扫描语料，对每条命中过滤条件的记录调用 fn。
//
// 记录按文件时间序送达：组件升序，组件内归档在前、备份居中、活跃
// 文件最后。idx 是本次扫描中该记录的全局读取序号（跨文件单调递增），
// 可作为同时间戳记录的稳定次序依据。fn 返回错误时扫描中止。
func (a *Analyzer) Scan(ctx context.Context, f Filter, fn func(rec *xlog.Record, ref logio.FileRef, idx int) error) (ScanStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	kinds := f.Kinds
	if len(kinds) == 0 {
		kinds = []logio.Kind{logio.KindMain}
	}

	var refs []logio.FileRef
	var err error
	if f.Component != "" {
		refs, err = logio.ComponentFiles(a.root, f.Component, kinds...)
	} else {
		refs, err = logio.Corpus(a.root, kinds...)
	}
	if err != nil {
		return ScanStats{}, err
	}

	var stats ScanStats
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.FilesScanned++

		visit := func(rec *xlog.Record) error {
			idx := stats.Scanned
			stats.Scanned++
			if !f.matches(rec) {
				return nil
			}
			stats.Matched++
			return fn(rec, ref, idx)
		}

		if immutable(ref) {
			fr, err := a.loadImmutable(ref)
			if err != nil {
				return stats, err
			}
			stats.ParseErrors += fr.parseErrs
			for i := range fr.recs {
				if err := visit(&fr.recs[i]); err != nil {
					return stats, err
				}
			}
			continue
		}

		err := logio.Lines(ref, func(line []byte) error {
			var rec xlog.Record
			if err := logio.Decode(line, &rec); err != nil {
				stats.ParseErrors++
				return nil
			}
			return visit(&rec)
		})
		if err != nil {
			// 活跃文件可能在扫描期间被轮转走，跳过而不是失败
			if os.IsNotExist(err) {
				stats.FilesScanned--
				continue
			}
			return stats, err
		}
	}
	return stats, nil
}

// immutable 报告文件内容是否不再变化（归档或序数备份）。
func immutable(ref logio.FileRef) bool {
	if ref.Compressed {
		return true
	}
	i := strings.LastIndexByte(ref.Path, '.')
	if i < 0 {
		return false
	}
	_, err := strconv.Atoi(ref.Path[i+1:])
	return err == nil
}

// loadImmutable 解码不可变文件并缓存，键包含大小与修改时间，
// 文件被保留期清理重建后缓存自动失效。
func (a *Analyzer) loadImmutable(ref logio.FileRef) (fileRecords, error) {
	info, err := os.Stat(ref.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileRecords{}, nil
		}
		return fileRecords{}, fmt.Errorf("xquery: stat %s: %w", ref.Path, err)
	}
	key := fmt.Sprintf("%s|%d|%d", ref.Path, info.Size(), info.ModTime().UnixNano())
	if fr, ok := a.cache.Get(key); ok {
		return fr, nil
	}

	var fr fileRecords
	err = logio.Lines(ref, func(line []byte) error {
		var rec xlog.Record
		if err := logio.Decode(line, &rec); err != nil {
			fr.parseErrs++
			return nil
		}
		fr.recs = append(fr.recs, rec)
		return nil
	})
	if err != nil {
		return fileRecords{}, err
	}
	a.cache.Add(key, fr)
	return fr, nil
}

// Find 返回命中过滤条件的记录，按文件时间序排列。
// limit > 0 时最多返回 limit 条；0 表示不限。
func (a *Analyzer) Find(ctx context.Context, f Filter, limit int) ([]xlog.Record, ScanStats, error) {
	var out []xlog.Record
	stats, err := a.Scan(ctx, f, func(rec *xlog.Record, _ logio.FileRef, _ int) error {
		out = append(out, *rec)
		if limit > 0 && len(out) >= limit {
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, stats, err
	}
	return out, stats, nil
}

// FindErrors 返回组件自 since 起的错误级别记录。
// component 为空表示全部组件；exceptionType 为空不限异常类型。
// 只读错误流：错误记录在该流各有一份副本，不必扫全量主日志。
func (a *Analyzer) FindErrors(ctx context.Context, component string, since time.Time, exceptionType string) ([]xlog.Record, ScanStats, error) {
	return a.Find(ctx, Filter{
		Component:     component,
		Kinds:         []logio.Kind{logio.KindErrors},
		MinLevel:      xlog.LevelError,
		Since:         since,
		ExceptionType: exceptionType,
	}, 0)
}
