package xlog

import (
	"context"
	"math"
	"time"

	"github.com/omeyang/tracekit/pkg/context/xscope"
)

// 操作日志的固定字段名，供 xquery 的性能分析面使用。
const (
	KeyOperation  = "operation"
	KeyDurationMS = "duration_ms"
	KeyStatus     = "status"

	statusSuccess = "success"
	statusError   = "error"
)

// StartOperation 记录一次操作的开始并返回作用域保护。
//
// 显式的作用域保护替代运行时函数包装：返回的 done 通过 defer 调用，
// 保证结束记录在每条退出路径（包括 error 和 panic 展开后的 recover 路径）
// 都会发出。
//
// 开始时发出一条 DEBUG 记录；done 发出结束记录，附带 duration_ms 与
// status 字段——成功为 INFO，失败为 ERROR 并携带异常信息。
// operation 字段同时并入返回的 context，嵌套日志自动携带。
//
// 用法：
//
//	func (s *Sourcer) Fetch(ctx context.Context) (err error) {
//	    ctx, done := xlog.StartOperation(ctx, s.logger, "fetch_candidates", nil)
//	    defer done(&err)
//	    ...
//	}
func StartOperation(ctx context.Context, logger *Logger, operation string, data map[string]any) (context.Context, func(*error)) {
	opCtx, scopeErr := xscope.With(ctx, xscope.Fields{KeyOperation: operation})
	if scopeErr != nil {
		// nil ctx：退化为背景 context，日志保护仍然生效
		opCtx, _ = xscope.With(context.Background(), xscope.Fields{KeyOperation: operation})
	}

	start := time.Now()
	logger.Debug(opCtx, operation+" started", data)

	done := func(errp *error) {
		var opErr error
		if errp != nil {
			opErr = *errp
		}

		payload := make(map[string]any, len(data)+2)
		for k, v := range data {
			payload[k] = v
		}
		payload[KeyDurationMS] = roundMillis(time.Since(start))
		if opErr != nil {
			payload[KeyStatus] = statusError
			logger.Error(opCtx, operation+" failed", payload, opErr)
			return
		}
		payload[KeyStatus] = statusSuccess
		logger.Info(opCtx, operation+" completed", payload)
	}
	return opCtx, done
}

// roundMillis 返回毫秒耗时，保留两位小数。
func roundMillis(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}
