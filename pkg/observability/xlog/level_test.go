package xlog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "TRACE", LevelTrace.String())
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARNING", LevelWarning.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "CRITICAL", LevelCritical.String())
	assert.Equal(t, "LEVEL(99)", Level(99).String())
}

func TestLevel_Ordering(t *testing.T) {
	assert.True(t, LevelTrace < LevelDebug)
	assert.True(t, LevelDebug < LevelInfo)
	assert.True(t, LevelInfo < LevelWarning)
	assert.True(t, LevelWarning < LevelError)
	assert.True(t, LevelError < LevelCritical)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"trace":    LevelTrace,
		"DEBUG":    LevelDebug,
		"Info":     LevelInfo,
		"warn":     LevelWarning,
		"WARNING":  LevelWarning,
		"error":    LevelError,
		"critical": LevelCritical,
		" info ":   LevelInfo,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, got, "input %q", in)
	}

	got, err := ParseLevel("verbose")
	assert.Error(t, err)
	// 未知级别回退 INFO
	assert.Equal(t, LevelInfo, got)
}

func TestLevel_JSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(LevelWarning)
	require.NoError(t, err)
	assert.Equal(t, `"WARNING"`, string(b))

	var l Level
	require.NoError(t, json.Unmarshal([]byte(`"error"`), &l))
	assert.Equal(t, LevelError, l)

	assert.Error(t, json.Unmarshal([]byte(`"loud"`), &l))
}

func TestLevelVar(t *testing.T) {
	var v LevelVar
	assert.Equal(t, LevelTrace, v.Level()) // 零值

	v.Set(LevelError)
	assert.Equal(t, LevelError, v.Level())
}
