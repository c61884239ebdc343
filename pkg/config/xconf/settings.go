package xconf

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/tracekit/pkg/observability/xlog"
	"github.com/omeyang/tracekit/pkg/observability/xrotate"
)

// Format 定义配置文件格式。
type Format string

// 支持的配置格式。
const (
	// FormatYAML YAML 格式（推荐用于 K8s ConfigMap）。
	FormatYAML Format = "yaml"

	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// Settings 日志子系统的全量配置。
//
// 字段与磁盘配置文件一一对应，零值字段在 Load 时由 [Default] 补齐。
type Settings struct {
	// RootDir 日志根目录（必填）
	RootDir string `koanf:"root_dir"`

	// MaxSizeBytes 单文件大小阈值
	MaxSizeBytes int64 `koanf:"max_size_bytes"`

	// MaxBackups 按大小轮转的备份保留数量
	MaxBackups int `koanf:"max_backups"`

	// DailyMaxBackups 按天轮转的备份保留数量
	DailyMaxBackups int `koanf:"daily_max_backups"`

	// ArchiveDir 压缩归档目录，空值为 <root_dir>/archive
	ArchiveDir string `koanf:"archive_dir"`

	// RetentionDays 归档保留天数
	RetentionDays int `koanf:"retention_days"`

	// SweepSpec 归档清理的 cron 表达式
	SweepSpec string `koanf:"sweep_spec"`

	// DefaultLevel 组件默认最低日志级别
	DefaultLevel xlog.Level `koanf:"default_level"`

	// Levels 按组件覆盖最低级别
	Levels map[string]xlog.Level `koanf:"levels"`

	// RedactKeys 脱敏字段名单；不配置使用内置名单
	RedactKeys []string `koanf:"redact_keys"`

	// CaptureSource 是否记录调用点信息
	CaptureSource bool `koanf:"capture_source"`

	// ExpectedStages 请求追踪的预期组件序列
	ExpectedStages []string `koanf:"expected_stages"`

	// QueryCacheSize 查询引擎的不可变文件缓存容量
	QueryCacheSize int `koanf:"query_cache_size"`
}

// Default 返回推荐的缺省配置（RootDir 仍需调用方提供）。
func Default() Settings {
	return Settings{
		MaxSizeBytes:    xlog.DefaultMaxSizeBytes,
		MaxBackups:      xlog.DefaultMaxBackups,
		DailyMaxBackups: xlog.DefaultDailyMaxBackups,
		RetentionDays:   30,
		SweepSpec:       xrotate.DefaultSweepSpec,
		DefaultLevel:    xlog.LevelInfo,
	}
}

// applyDefaults 用缺省值补齐零值字段。
func (s *Settings) applyDefaults() {
	d := Default()
	if s.MaxSizeBytes == 0 {
		s.MaxSizeBytes = d.MaxSizeBytes
	}
	if s.MaxBackups == 0 {
		s.MaxBackups = d.MaxBackups
	}
	if s.DailyMaxBackups == 0 {
		s.DailyMaxBackups = d.DailyMaxBackups
	}
	if s.RetentionDays == 0 {
		s.RetentionDays = d.RetentionDays
	}
	if s.SweepSpec == "" {
		s.SweepSpec = d.SweepSpec
	}
}

// Validate 校验配置取值。构造期 fail-fast，返回的错误包含具体字段。
func (s Settings) Validate() error {
	if s.RootDir == "" {
		return fmt.Errorf("%w: root_dir is required", ErrInvalidSettings)
	}
	if s.MaxSizeBytes < 0 {
		return fmt.Errorf("%w: max_size_bytes must be positive, got %d", ErrInvalidSettings, s.MaxSizeBytes)
	}
	if s.MaxBackups < 0 || s.DailyMaxBackups < 0 {
		return fmt.Errorf("%w: backup counts must be positive", ErrInvalidSettings)
	}
	if s.RetentionDays < 1 {
		return fmt.Errorf("%w: retention_days must be at least 1, got %d", ErrInvalidSettings, s.RetentionDays)
	}
	if _, err := cron.ParseStandard(s.SweepSpec); err != nil {
		return fmt.Errorf("%w: sweep_spec %q: %v", ErrInvalidSettings, s.SweepSpec, err)
	}
	for component := range s.Levels {
		if component == "" {
			return fmt.Errorf("%w: levels contains empty component name", ErrInvalidSettings)
		}
	}
	return nil
}

// LoggerOptions 转换为日志注册表选项。
func (s Settings) LoggerOptions() xlog.Options {
	return xlog.Options{
		RootDir:         s.RootDir,
		MaxSizeBytes:    s.MaxSizeBytes,
		MaxBackups:      s.MaxBackups,
		DailyMaxBackups: s.DailyMaxBackups,
		ArchiveDir:      s.ArchiveDir,
		DefaultLevel:    s.DefaultLevel,
		Levels:          s.Levels,
		RedactKeys:      s.RedactKeys,
		CaptureSource:   s.CaptureSource,
	}
}

// Retention 返回归档保留期。
func (s Settings) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}
