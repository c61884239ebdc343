package xrotate

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock 返回可手动推进的时间源。
func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now },
		func(d time.Duration) { now = now.Add(d) }
}

func newTestRotator(t *testing.T, opts ...Option) (Rotator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	r, err := NewFile(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, path
}

func TestNewFile(t *testing.T) {
	t.Run("EmptyFilename", func(t *testing.T) {
		_, err := NewFile("")
		assert.ErrorIs(t, err, ErrEmptyFilename)
	})

	t.Run("InvalidMaxSize", func(t *testing.T) {
		_, err := NewFile(filepath.Join(t.TempDir(), "a.log"), WithMaxSize(0))
		assert.ErrorIs(t, err, ErrInvalidMaxSize)

		_, err = NewFile(filepath.Join(t.TempDir(), "a.log"), WithMaxSize(-1))
		assert.ErrorIs(t, err, ErrInvalidMaxSize)
	})

	t.Run("InvalidMaxBackups", func(t *testing.T) {
		_, err := NewFile(filepath.Join(t.TempDir(), "a.log"), WithMaxBackups(0))
		assert.ErrorIs(t, err, ErrInvalidMaxBackups)
	})

	t.Run("CreatesParentDir", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "deep", "nested", "a.log")
		r, err := NewFile(path)
		require.NoError(t, err)
		defer func() { _ = r.Close() }()

		_, err = r.Write([]byte("hello\n"))
		require.NoError(t, err)
		assert.FileExists(t, path)
	})

	t.Run("AppendsToExistingFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.log")
		require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o600))

		r, err := NewFile(path)
		require.NoError(t, err)
		defer func() { _ = r.Close() }()

		_, err = r.Write([]byte("new\n"))
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "old\nnew\n", string(data))
	})
}

func TestFileRotator_SizeRotation(t *testing.T) {
	line := []byte(strings.Repeat("x", 99) + "\n") // 100 字节一行

	t.Run("RotatesWhenThresholdExceeded", func(t *testing.T) {
		r, path := newTestRotator(t, WithMaxSize(250))

		// 两行共 200 字节，未超限
		for i := 0; i < 2; i++ {
			_, err := r.Write(line)
			require.NoError(t, err)
		}
		assert.NoFileExists(t, path+".1")

		// 第三行会使大小达到 300，触发轮转后写入新文件
		_, err := r.Write(line)
		require.NoError(t, err)

		backup, err := os.ReadFile(path + ".1")
		require.NoError(t, err)
		assert.Len(t, backup, 200)

		cur, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Len(t, cur, 100)
	})

	t.Run("SingleOversizedWriteGoesThrough", func(t *testing.T) {
		r, path := newTestRotator(t, WithMaxSize(10))

		big := []byte(strings.Repeat("y", 64) + "\n")
		_, err := r.Write(big)
		require.NoError(t, err)

		cur, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Len(t, cur, len(big))
	})

	t.Run("FileCountBoundedByBackups", func(t *testing.T) {
		r, path := newTestRotator(t, WithMaxSize(100), WithMaxBackups(3))

		// 10 行 100 字节，每行都触发一次轮转（第一行除外）
		for i := 0; i < 10; i++ {
			_, err := r.Write(line)
			require.NoError(t, err)
		}

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		// 当前文件 + 最多 3 个备份
		assert.LessOrEqual(t, len(entries), 4)
		assert.FileExists(t, path+".1")
		assert.FileExists(t, path+".3")
		assert.NoFileExists(t, path+".4")
	})

	t.Run("BackupOrderNewestFirst", func(t *testing.T) {
		r, path := newTestRotator(t, WithMaxSize(10), WithMaxBackups(5))

		_, err := r.Write([]byte("first\n"))
		require.NoError(t, err)
		_, err = r.Write([]byte("second\n"))
		require.NoError(t, err)
		_, err = r.Write([]byte("third\n"))
		require.NoError(t, err)

		b1, err := os.ReadFile(path + ".1")
		require.NoError(t, err)
		b2, err := os.ReadFile(path + ".2")
		require.NoError(t, err)
		assert.Equal(t, "second\n", string(b1))
		assert.Equal(t, "first\n", string(b2))
	})
}

func TestFileRotator_DailyRotation(t *testing.T) {
	start := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)
	clock, advance := fixedClock(start)

	r, path := newTestRotator(t, WithDailyRotation(true), WithClock(clock))

	_, err := r.Write([]byte("day one\n"))
	require.NoError(t, err)

	// 同一天内不轮转
	advance(5 * time.Minute)
	_, err = r.Write([]byte("still day one\n"))
	require.NoError(t, err)
	assert.NoFileExists(t, path+".1")

	// 跨过 UTC 日界后首次写入触发轮转
	advance(15 * time.Minute)
	_, err = r.Write([]byte("day two\n"))
	require.NoError(t, err)

	backup, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "day one\nstill day one\n", string(backup))

	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "day two\n", string(cur))
}

// 日界与大小同时满足时只轮转一次，说明日界检查优先且两者不叠加。
func TestFileRotator_DayBeforeSizePrecedence(t *testing.T) {
	start := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	clock, advance := fixedClock(start)

	r, path := newTestRotator(t,
		WithMaxSize(10),
		WithDailyRotation(true),
		WithClock(clock),
	)

	payload := []byte(strings.Repeat("z", 20) + "\n")
	_, err := r.Write(payload)
	require.NoError(t, err)

	advance(2 * time.Minute)
	_, err = r.Write([]byte("after midnight\n"))
	require.NoError(t, err)

	assert.FileExists(t, path+".1")
	assert.NoFileExists(t, path+".2")
}

func TestFileRotator_ManualRotate(t *testing.T) {
	r, path := newTestRotator(t)

	_, err := r.Write([]byte("before\n"))
	require.NoError(t, err)
	require.NoError(t, r.Rotate())

	_, err = r.Write([]byte("after\n"))
	require.NoError(t, err)

	backup, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "before\n", string(backup))
}

func TestFileRotator_Close(t *testing.T) {
	r, _ := newTestRotator(t)
	require.NoError(t, r.Close())

	_, err := r.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Rotate(), ErrClosed)
	assert.ErrorIs(t, r.Close(), ErrClosed)
}

func TestFileRotator_Archive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	archiveDir := filepath.Join(dir, "archive")

	r, err := NewFile(path,
		WithMaxSize(10),
		WithMaxBackups(1),
		WithArchiveDir(archiveDir),
	)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	// 三次超限写入：第三次轮转时 .1 滑出窗口，移交归档
	_, err = r.Write([]byte("first entry\n"))
	require.NoError(t, err)
	_, err = r.Write([]byte("second entry\n"))
	require.NoError(t, err)
	_, err = r.Write([]byte("third entry\n"))
	require.NoError(t, err)

	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, "app.log."), "archive name %q", name)
	assert.True(t, strings.HasSuffix(name, ".gz"), "archive name %q", name)

	// 归档内容可解压且为最早一次轮转出的数据
	f, err := os.Open(filepath.Join(archiveDir, name))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	gr, err := gzip.NewReader(f)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = io.Copy(&buf, gr) //nolint:gosec // 测试数据量可控
	require.NoError(t, err)
	require.NoError(t, gr.Close())
	assert.Equal(t, "first entry\n", buf.String())
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "app.log", baseName("/var/log/app.log.3"))
	assert.Equal(t, "app.log", baseName("app.log.10"))
	assert.Equal(t, "app.log", baseName("app.log"))
	assert.Equal(t, "noext", baseName("noext"))
}
