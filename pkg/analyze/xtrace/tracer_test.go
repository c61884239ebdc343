package xtrace

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/tracekit/pkg/analyze/xquery"
	"github.com/omeyang/tracekit/pkg/observability/xlog"
)

var baseTime = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func recLine(t *testing.T, ts time.Time, level xlog.Level, component, msg, requestID string, mutate func(*xlog.Record)) string {
	t.Helper()
	rec := xlog.Record{
		Timestamp: xlog.NewTime(ts),
		Level:     level,
		Component: component,
		Message:   msg,
		RequestID: requestID,
	}
	if mutate != nil {
		mutate(&rec)
	}
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(b) + "\n"
}

func writeLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "")), 0o600))
}

// newPipelineRoot 构建三组件流水线语料：gateway → features → ranker。
// ranker 的记录时间早于 features 写入磁盘的顺序，验证按时间戳重排。
func newPipelineRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeLog(t, filepath.Join(root, "gateway", "gateway.log"),
		recLine(t, baseTime, xlog.LevelInfo, "gateway", "request received", "req-1", nil),
		recLine(t, baseTime.Add(time.Second), xlog.LevelInfo, "gateway", "other request", "req-2", nil),
	)
	// features 的记录晚写入但时间戳在中间
	writeLog(t, filepath.Join(root, "features", "features.log"),
		recLine(t, baseTime.Add(200*time.Millisecond), xlog.LevelInfo, "features", "features built", "req-1", nil),
	)
	errLine := recLine(t, baseTime.Add(400*time.Millisecond), xlog.LevelError, "ranker", "model load failed", "req-1",
		func(r *xlog.Record) {
			r.Exception = &xlog.Exception{Type: "*os.PathError", Message: "no such file"}
		})
	writeLog(t, filepath.Join(root, "ranker", "ranker.log"), errLine)
	// 同一条错误在按天流和错误流各有一份副本
	writeLog(t, filepath.Join(root, "ranker", "ranker_daily.log"), errLine)
	writeLog(t, filepath.Join(root, "errors", "ranker_errors.log"), errLine)
	return root
}

func newTracer(t *testing.T, root string, opts ...Option) *Tracer {
	t.Helper()
	a, err := xquery.New(root)
	require.NoError(t, err)
	tr, err := New(a, opts...)
	require.NoError(t, err)
	return tr
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilAnalyzer)
}

func TestTracer_Trace(t *testing.T) {
	root := newPipelineRoot(t)
	tracer := newTracer(t, root)
	ctx := context.Background()

	t.Run("EmptyRequestID", func(t *testing.T) {
		_, err := tracer.Trace(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyRequestID)
	})

	t.Run("OrdersByTimestampAcrossComponents", func(t *testing.T) {
		tr, err := tracer.Trace(ctx, "req-1")
		require.NoError(t, err)

		require.True(t, tr.Found())
		require.Len(t, tr.Entries, 3)
		assert.Equal(t, "gateway", tr.Entries[0].Component)
		assert.Equal(t, "features", tr.Entries[1].Component)
		assert.Equal(t, "ranker", tr.Entries[2].Component)
		assert.Equal(t, 400*time.Millisecond, tr.Duration())
	})

	t.Run("DeduplicatesCrossStreamCopies", func(t *testing.T) {
		tr, err := tracer.Trace(ctx, "req-1")
		require.NoError(t, err)

		// ranker 的错误在三个流各有一份，时间线中只出现一次
		stage := tr.Stages["ranker"]
		require.NotNil(t, stage)
		assert.Equal(t, 1, stage.Entries)
		assert.Equal(t, 1, stage.Errors)
	})

	t.Run("ErrorFlag", func(t *testing.T) {
		tr, err := tracer.Trace(ctx, "req-1")
		require.NoError(t, err)
		assert.True(t, tr.HasError)

		tr2, err := tracer.Trace(ctx, "req-2")
		require.NoError(t, err)
		assert.False(t, tr2.HasError)
	})

	t.Run("UnknownRequest", func(t *testing.T) {
		tr, err := tracer.Trace(ctx, "req-nope")
		require.NoError(t, err)
		assert.False(t, tr.Found())
		assert.Zero(t, tr.Duration())
		assert.True(t, tr.Start().IsZero())
	})
}

// 同一流内时间戳、级别、消息相同但负载不同的记录是独立记录，不得合并。
func TestTracer_KeepsDistinctRecordsWithinStream(t *testing.T) {
	root := t.TempDir()
	writeLog(t, filepath.Join(root, "etl", "etl.log"),
		recLine(t, baseTime, xlog.LevelInfo, "etl", "item processed", "req-9",
			func(r *xlog.Record) { r.Data = map[string]any{"item": 1} }),
		recLine(t, baseTime, xlog.LevelInfo, "etl", "item processed", "req-9",
			func(r *xlog.Record) { r.Data = map[string]any{"item": 2} }),
	)

	tracer := newTracer(t, root)
	tr, err := tracer.Trace(context.Background(), "req-9")
	require.NoError(t, err)
	require.Len(t, tr.Entries, 2)
	assert.Equal(t, map[string]any{"item": float64(1)}, tr.Entries[0].Data)
	assert.Equal(t, map[string]any{"item": float64(2)}, tr.Entries[1].Data)
}

// 同一流内完全相同的重复记录全部保留，跨流副本仍然只取一份。
func TestTracer_KeepsRepeatedIdenticalRecords(t *testing.T) {
	root := t.TempDir()
	line := recLine(t, baseTime, xlog.LevelInfo, "etl", "retrying upstream", "req-9", nil)
	writeLog(t, filepath.Join(root, "etl", "etl.log"), line, line)
	writeLog(t, filepath.Join(root, "etl", "etl_daily.log"), line, line)

	tracer := newTracer(t, root)
	tr, err := tracer.Trace(context.Background(), "req-9")
	require.NoError(t, err)
	assert.Len(t, tr.Entries, 2)
	assert.Equal(t, 2, tr.Stages["etl"].Entries)
}

// 相同时间戳的记录保持读取顺序，重复追踪结果一致。
func TestTracer_StableTieOrder(t *testing.T) {
	root := t.TempDir()
	ts := baseTime
	writeLog(t, filepath.Join(root, "alpha", "alpha.log"),
		recLine(t, ts, xlog.LevelInfo, "alpha", "step one", "req-1", nil),
		recLine(t, ts, xlog.LevelInfo, "alpha", "step two", "req-1", nil),
	)
	writeLog(t, filepath.Join(root, "beta", "beta.log"),
		recLine(t, ts, xlog.LevelInfo, "beta", "step three", "req-1", nil),
	)

	tracer := newTracer(t, root)
	first, err := tracer.Trace(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, first.Entries, 3)
	assert.Equal(t, "step one", first.Entries[0].Message)
	assert.Equal(t, "step two", first.Entries[1].Message)
	assert.Equal(t, "step three", first.Entries[2].Message)

	second, err := tracer.Trace(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, first.Entries, second.Entries)
}

func TestTracer_ExpectedStages(t *testing.T) {
	root := newPipelineRoot(t)
	tracer := newTracer(t, root,
		WithExpectedStages("gateway", "features", "ranker", "reranker"))

	tr, err := tracer.Trace(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"reranker"}, tr.MissingStages)

	// req-2 只到了 gateway
	tr2, err := tracer.Trace(context.Background(), "req-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"features", "ranker", "reranker"}, tr2.MissingStages)
}

func TestTrace_Export(t *testing.T) {
	root := newPipelineRoot(t)
	tracer := newTracer(t, root)

	tr, err := tracer.Trace(context.Background(), "req-1")
	require.NoError(t, err)

	b, err := tr.Export()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "req-1", got["request_id"])
	assert.Equal(t, float64(3), got["total_entries"])
	assert.Equal(t, true, got["has_error"])
	assert.Equal(t, float64(400), got["duration_ms"])
	assert.Len(t, got["trace"], 3)

	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, tr.ExportFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, string(b), string(data))
}
