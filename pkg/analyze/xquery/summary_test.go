package xquery

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/tracekit/pkg/observability/xlog"
)

func TestAnalyzer_SummarizeErrors(t *testing.T) {
	root := t.TempDir()

	errLine := func(ts time.Time, component, msg, excType string) string {
		return recLine(t, ts, xlog.LevelError, component, msg, func(r *xlog.Record) {
			if excType != "" {
				r.Exception = &xlog.Exception{Type: excType, Message: msg}
			}
		})
	}

	writeLog(t, filepath.Join(root, "etl", "etl.log"),
		recLine(t, baseTime, xlog.LevelInfo, "etl", "fine", nil),
		errLine(baseTime.Add(time.Second), "etl", "db timeout", "*net.OpError"),
		errLine(baseTime.Add(2*time.Second), "etl", "db timeout", "*net.OpError"),
		errLine(baseTime.Add(3*time.Second), "etl", "schema drift", ""),
	)
	writeLog(t, filepath.Join(root, "ranker", "ranker.log"),
		errLine(baseTime.Add(4*time.Second), "ranker", "model missing", "*os.PathError"),
	)

	a, err := New(root)
	require.NoError(t, err)

	t.Run("AllComponents", func(t *testing.T) {
		s, stats, err := a.SummarizeErrors(context.Background(), "", time.Time{})
		require.NoError(t, err)

		assert.Equal(t, 4, s.Total)
		assert.Equal(t, 5, stats.Scanned)
		assert.Equal(t, map[string]int{"etl": 3, "ranker": 1}, s.ByComponent)
		assert.Equal(t, map[string]int{"*net.OpError": 2, "*os.PathError": 1}, s.ByException)

		require.NotEmpty(t, s.TopMessages)
		assert.Equal(t, MessageCount{Message: "db timeout", Count: 2}, s.TopMessages[0])

		// 最近的在前
		require.Len(t, s.Recent, 4)
		assert.Equal(t, "model missing", s.Recent[0].Message)
		assert.Equal(t, "db timeout", s.Recent[3].Message)
	})

	t.Run("SingleComponent", func(t *testing.T) {
		s, _, err := a.SummarizeErrors(context.Background(), "ranker", time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Total)
		assert.Equal(t, map[string]int{"ranker": 1}, s.ByComponent)
	})

	t.Run("Since", func(t *testing.T) {
		s, _, err := a.SummarizeErrors(context.Background(), "", baseTime.Add(3*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 2, s.Total)
	})

	t.Run("NoErrors", func(t *testing.T) {
		s, _, err := a.SummarizeErrors(context.Background(), "", baseTime.Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, s.Total)
		assert.Empty(t, s.Recent)
	})
}

func TestTopMessages(t *testing.T) {
	counts := make(map[string]int)
	for i := 0; i < 15; i++ {
		counts[fmt.Sprintf("msg-%02d", i)] = i + 1
	}

	top := topMessages(counts, 10)
	require.Len(t, top, 10)
	assert.Equal(t, MessageCount{Message: "msg-14", Count: 15}, top[0])
	assert.Equal(t, MessageCount{Message: "msg-05", Count: 6}, top[9])

	// 次数相同按消息字典序
	tie := topMessages(map[string]int{"b": 1, "a": 1}, 10)
	assert.Equal(t, "a", tie[0].Message)
}
