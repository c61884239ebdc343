package xconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/tracekit/pkg/observability/xlog"
)

const sampleYAML = `
root_dir: /var/log/pipeline
max_size_bytes: 1048576
max_backups: 5
retention_days: 14
default_level: WARNING
levels:
  etl: DEBUG
  ranker: ERROR
redact_keys: [password, auth_token]
capture_source: true
expected_stages: [gateway, features, ranker]
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("YAML", func(t *testing.T) {
		f, err := Load(writeConfig(t, "config.yaml", sampleYAML))
		require.NoError(t, err)

		s := f.Settings()
		assert.Equal(t, "/var/log/pipeline", s.RootDir)
		assert.Equal(t, int64(1048576), s.MaxSizeBytes)
		assert.Equal(t, 5, s.MaxBackups)
		assert.Equal(t, 14, s.RetentionDays)
		assert.Equal(t, xlog.LevelWarning, s.DefaultLevel)
		assert.Equal(t, xlog.LevelDebug, s.Levels["etl"])
		assert.Equal(t, xlog.LevelError, s.Levels["ranker"])
		assert.Equal(t, []string{"password", "auth_token"}, s.RedactKeys)
		assert.True(t, s.CaptureSource)
		assert.Equal(t, []string{"gateway", "features", "ranker"}, s.ExpectedStages)
		assert.Equal(t, FormatYAML, f.Format())
	})

	t.Run("JSON", func(t *testing.T) {
		f, err := Load(writeConfig(t, "config.json",
			`{"root_dir": "/var/log/pipeline", "default_level": "debug"}`))
		require.NoError(t, err)
		assert.Equal(t, xlog.LevelDebug, f.Settings().DefaultLevel)
		assert.Equal(t, FormatJSON, f.Format())
	})

	t.Run("AppliesDefaults", func(t *testing.T) {
		f, err := Load(writeConfig(t, "config.yaml", "root_dir: /var/log/p\n"))
		require.NoError(t, err)

		s := f.Settings()
		assert.Equal(t, int64(xlog.DefaultMaxSizeBytes), s.MaxSizeBytes)
		assert.Equal(t, xlog.DefaultMaxBackups, s.MaxBackups)
		assert.Equal(t, xlog.DefaultDailyMaxBackups, s.DailyMaxBackups)
		assert.Equal(t, 30, s.RetentionDays)
		assert.Equal(t, "@daily", s.SweepSpec)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := Load("")
		assert.ErrorIs(t, err, ErrEmptyPath)
	})

	t.Run("UnknownExtension", func(t *testing.T) {
		_, err := Load(writeConfig(t, "config.toml", "x = 1"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "gone.yaml"))
		assert.ErrorIs(t, err, ErrLoadFailed)
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		_, err := Load(writeConfig(t, "config.yaml", "root_dir: [unclosed"))
		assert.ErrorIs(t, err, ErrParseFailed)
	})

	t.Run("InvalidLevel", func(t *testing.T) {
		_, err := Load(writeConfig(t, "config.yaml",
			"root_dir: /var/log/p\ndefault_level: LOUD\n"))
		assert.ErrorIs(t, err, ErrUnmarshalFailed)
	})
}

func TestLoadBytes(t *testing.T) {
	s, err := LoadBytes([]byte(`{"root_dir": "/var/log/p"}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "/var/log/p", s.RootDir)

	_, err = LoadBytes([]byte("x"), Format("toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	// 空数据直接落到校验：root_dir 缺失
	_, err = LoadBytes(nil, FormatYAML)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestSettings_Validate(t *testing.T) {
	valid := Default()
	valid.RootDir = "/var/log/p"
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*Settings){
		"MissingRoot":      func(s *Settings) { s.RootDir = "" },
		"NegativeMaxSize":  func(s *Settings) { s.MaxSizeBytes = -1 },
		"NegativeBackups":  func(s *Settings) { s.MaxBackups = -1 },
		"ZeroRetention":    func(s *Settings) { s.RetentionDays = 0 },
		"BadSweepSpec":     func(s *Settings) { s.SweepSpec = "every tuesday" },
		"EmptyComponent":   func(s *Settings) { s.Levels = map[string]xlog.Level{"": xlog.LevelInfo} },
	} {
		t.Run(name, func(t *testing.T) {
			s := valid
			mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
		})
	}
}

func TestSettings_LoggerOptions(t *testing.T) {
	f, err := Load(writeConfig(t, "config.yaml", sampleYAML))
	require.NoError(t, err)

	opts := f.Settings().LoggerOptions()
	assert.Equal(t, "/var/log/pipeline", opts.RootDir)
	assert.Equal(t, int64(1048576), opts.MaxSizeBytes)
	assert.Equal(t, xlog.LevelWarning, opts.DefaultLevel)
	assert.Equal(t, xlog.LevelDebug, opts.Levels["etl"])
	assert.True(t, opts.CaptureSource)
}

func TestSettings_Retention(t *testing.T) {
	s := Settings{RetentionDays: 14}
	assert.Equal(t, 14*24*time.Hour, s.Retention())
}

func TestFile_Reload(t *testing.T) {
	path := writeConfig(t, "config.yaml", "root_dir: /var/log/one\n")
	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/log/one", f.Settings().RootDir)

	require.NoError(t, os.WriteFile(path, []byte("root_dir: /var/log/two\n"), 0o600))
	require.NoError(t, f.Reload())
	assert.Equal(t, "/var/log/two", f.Settings().RootDir)

	// 非法的新配置不生效，旧配置保留
	require.NoError(t, os.WriteFile(path, []byte("retention_days: -1\n"), 0o600))
	assert.Error(t, f.Reload())
	assert.Equal(t, "/var/log/two", f.Settings().RootDir)
}
