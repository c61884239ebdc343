package xtrace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracer_Compare(t *testing.T) {
	root := newPipelineRoot(t)
	tracer := newTracer(t, root)
	ctx := context.Background()

	t.Run("EmptyRequestID", func(t *testing.T) {
		_, err := tracer.Compare(ctx, "", "req-2")
		assert.ErrorIs(t, err, ErrEmptyRequestID)

		_, err = tracer.Compare(ctx, "req-1", "")
		assert.ErrorIs(t, err, ErrEmptyRequestID)
	})

	t.Run("SideBySide", func(t *testing.T) {
		c, err := tracer.Compare(ctx, "req-1", "req-2")
		require.NoError(t, err)

		assert.Equal(t, "req-1", c.LeftID)
		assert.Equal(t, "req-2", c.RightID)
		assert.True(t, c.LeftFound)
		assert.True(t, c.RightFound)
		assert.True(t, c.LeftHasError)
		assert.False(t, c.RightHasError)

		// req-1 跨 400ms，req-2 只有一条记录
		assert.Equal(t, float64(400), c.LeftDurationMS)
		assert.Zero(t, c.RightDurationMS)
		assert.Equal(t, float64(400), c.DurationDeltaMS)

		// 阶段并集按组件名升序
		require.Len(t, c.Stages, 3)
		assert.Equal(t, "features", c.Stages[0].Component)
		assert.Equal(t, "gateway", c.Stages[1].Component)
		assert.Equal(t, "ranker", c.Stages[2].Component)

		// req-2 没走 features 和 ranker
		assert.Equal(t, 1, c.Stages[0].LeftEntries)
		assert.Zero(t, c.Stages[0].RightEntries)
		assert.Equal(t, 1, c.Stages[0].EntriesDelta)

		assert.Zero(t, c.Stages[1].EntriesDelta)

		assert.Equal(t, 1, c.Stages[2].LeftErrors)
		assert.Zero(t, c.Stages[2].RightErrors)

		// 完整时间线随对比结果带回
		require.NotNil(t, c.Left)
		require.NotNil(t, c.Right)
		assert.Len(t, c.Left.Entries, 3)
		assert.Len(t, c.Right.Entries, 1)
	})

	t.Run("UnknownRequest", func(t *testing.T) {
		c, err := tracer.Compare(ctx, "req-1", "req-nope")
		require.NoError(t, err)
		assert.True(t, c.LeftFound)
		assert.False(t, c.RightFound)
		assert.Empty(t, c.Stages[1].RightEntries)
	})
}
