package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// delim 配置键分隔符。
const delim = "."

// File 从磁盘加载的配置文件，持有当前生效的 Settings 快照。
//
// Reload 并发安全：解析与校验在锁外完成，只有合法的新配置会替换快照，
// 失败时保留旧配置。
type File struct {
	path   string
	format Format

	mu       sync.RWMutex
	settings Settings
}

// Load 从文件加载并校验配置。
// 根据扩展名自动检测格式（.yaml/.yml 或 .json）。
func Load(path string) (*File, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	f := &File{path: path, format: format}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadBytes 从字节数据加载并校验配置。
// 需要显式指定格式，适用于 K8s ConfigMap 等场景。
func LoadBytes(data []byte, format Format) (Settings, error) {
	if !isValidFormat(format) {
		return Settings{}, ErrUnsupportedFormat
	}
	return parseSettings(data, format)
}

// Settings 返回当前生效的配置快照。
func (f *File) Settings() Settings {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.settings
}

// Path 返回配置文件路径。
func (f *File) Path() string {
	return f.path
}

// Format 返回配置格式。
func (f *File) Format() Format {
	return f.format
}

// Reload 重新加载配置文件。新配置解析或校验失败时保留旧配置。
func (f *File) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	s, err := parseSettings(data, f.format)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.settings = s
	f.mu.Unlock()
	return nil
}

// parseSettings 解析、补缺省值并校验。
func parseSettings(data []byte, format Format) (Settings, error) {
	k := koanf.New(delim)
	if len(data) > 0 {
		if err := loadData(k, data, format); err != nil {
			return Settings{}, err
		}
	}

	var s Settings
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// detectFormat 根据文件扩展名检测配置格式。
func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}

// isValidFormat 检查格式是否有效。
func isValidFormat(format Format) bool {
	switch format {
	case FormatYAML, FormatJSON:
		return true
	default:
		return false
	}
}

// loadData 加载数据到 koanf 实例。
func loadData(k *koanf.Koanf, data []byte, format Format) error {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return ErrUnsupportedFormat
	}

	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}
