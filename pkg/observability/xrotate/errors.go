package xrotate

import "errors"

// 配置校验错误
var (
	// ErrEmptyFilename 文件名为空
	ErrEmptyFilename = errors.New("xrotate: filename is required")

	// ErrInvalidMaxSize MaxSize 值无效（必须为正且不超过 10 GiB）
	ErrInvalidMaxSize = errors.New("xrotate: invalid MaxSize")

	// ErrInvalidMaxBackups MaxBackups 值无效（必须在 1~1024 范围内）
	ErrInvalidMaxBackups = errors.New("xrotate: invalid MaxBackups")

	// ErrInvalidRetention 保留窗口无效（必须为正）
	ErrInvalidRetention = errors.New("xrotate: invalid retention")

	// ErrEmptyArchiveDir 归档目录为空
	ErrEmptyArchiveDir = errors.New("xrotate: archive dir is required")

	// ErrInvalidCronSpec cron 表达式无法解析
	ErrInvalidCronSpec = errors.New("xrotate: invalid cron spec")

	// ErrClosed 轮转器已关闭
	ErrClosed = errors.New("xrotate: rotator is closed")

	// ErrSweeperStarted Sweeper 已启动
	ErrSweeperStarted = errors.New("xrotate: sweeper already started")
)
