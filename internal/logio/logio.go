// Package logio 提供日志文件语料的发现与流式读取。
//
// 封装日志根目录的磁盘布局知识（组件子目录、errors 目录、archive 目录、
// 序数备份命名），供查询引擎与请求追踪器共用。读取按行流式进行，
// 单文件不整体载入内存。
package logio

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/omeyang/tracekit/pkg/observability/xlog"
)

// Kind 日志流类别，对应组件的三个写入目标。
type Kind string

const (
	// KindMain 主日志（全级别，按大小轮转）
	KindMain Kind = "main"

	// KindDaily 按天日志（INFO 及以上）
	KindDaily Kind = "daily"

	// KindErrors 错误日志（ERROR 及以上）
	KindErrors Kind = "errors"
)

// AllKinds 全部日志流类别，顺序固定。
var AllKinds = []Kind{KindMain, KindDaily, KindErrors}

// 保留目录名，与日志注册表的磁盘布局一致。
const (
	errorsDirName  = "errors"
	archiveDirName = "archive"
)

// ErrStop 由行回调返回以提前终止遍历，不作为错误向上传播。
var ErrStop = errors.New("logio: stop iteration")

// FileRef 指向语料中的一个日志文件。
type FileRef struct {
	// Path 文件的绝对或相对路径
	Path string

	// Component 所属组件名
	Component string

	// Kind 日志流类别
	Kind Kind

	// Compressed 是否为 gzip 归档
	Compressed bool
}

// baseName 返回组件在指定类别下的活跃文件名。
func baseName(component string, kind Kind) string {
	switch kind {
	case KindDaily:
		return component + "_daily.log"
	case KindErrors:
		return component + "_errors.log"
	default:
		return component + ".log"
	}
}

// kindDir 返回类别对应的目录。
func kindDir(root, component string, kind Kind) string {
	if kind == KindErrors {
		return filepath.Join(root, errorsDirName)
	}
	return filepath.Join(root, component)
}

// Components 返回根目录下发现的全部组件名（升序）。
//
// 组件来源有三处：根目录下的组件子目录、errors 目录中的错误日志、
// archive 目录中的归档子目录。只出现在后两处的组件（例如目录被手工
// 清理后仅剩归档）同样会被发现。
func Components(root string) ([]string, error) {
	seen := make(map[string]struct{})

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("logio: read root: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == errorsDirName || e.Name() == archiveDirName {
			continue
		}
		seen[e.Name()] = struct{}{}
	}

	if errEntries, err := os.ReadDir(filepath.Join(root, errorsDirName)); err == nil {
		for _, e := range errEntries {
			if e.IsDir() {
				continue
			}
			if c, ok := componentOfErrorFile(e.Name()); ok {
				seen[c] = struct{}{}
			}
		}
	}

	if arcEntries, err := os.ReadDir(filepath.Join(root, archiveDirName)); err == nil {
		for _, e := range arcEntries {
			if e.IsDir() {
				seen[e.Name()] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// componentOfErrorFile 从错误日志文件名还原组件名，
// 如 etl_errors.log.3 -> etl。
func componentOfErrorFile(name string) (string, bool) {
	name = trimOrdinal(name)
	c, ok := strings.CutSuffix(name, "_errors.log")
	if !ok || c == "" {
		return "", false
	}
	return c, true
}

// trimOrdinal 去掉序数备份后缀，如 a.log.3 -> a.log。
func trimOrdinal(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		if _, err := strconv.Atoi(name[i+1:]); err == nil {
			return name[:i]
		}
	}
	return name
}

// ComponentFiles 返回组件在指定类别下的全部日志文件，按时间先后排列：
// 压缩归档（最旧）在前，序数备份按 .N 从大到小居中，活跃文件最后。
// kinds 为空时默认全部类别。不存在的文件被静默跳过。
func ComponentFiles(root, component string, kinds ...Kind) ([]FileRef, error) {
	if component == "" {
		return nil, errors.New("logio: component is required")
	}
	if len(kinds) == 0 {
		kinds = AllKinds
	}

	var out []FileRef
	for _, kind := range kinds {
		base := baseName(component, kind)

		refs, err := archiveRefs(root, component, kind, base)
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)

		dir := kindDir(root, component, kind)
		backups, err := backupRefs(dir, component, kind, base)
		if err != nil {
			return nil, err
		}
		out = append(out, backups...)

		active := filepath.Join(dir, base)
		if _, err := os.Stat(active); err == nil {
			out = append(out, FileRef{Path: active, Component: component, Kind: kind})
		}
	}
	return out, nil
}

// archiveRefs 收集组件归档目录下属于指定流的 .gz 文件，按文件名升序。
// 归档名内嵌 UTC 时间戳，字典序即时间序。
func archiveRefs(root, component string, kind Kind, base string) ([]FileRef, error) {
	dir := filepath.Join(root, archiveDirName, component)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logio: read archive dir: %w", err)
	}

	var out []FileRef
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".gz") || !strings.HasPrefix(name, base+".") {
			continue
		}
		out = append(out, FileRef{
			Path:       filepath.Join(dir, name),
			Component:  component,
			Kind:       kind,
			Compressed: true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// backupRefs 收集序数备份文件，按 .N 从大到小（最旧在前）。
func backupRefs(dir, component string, kind Kind, base string) ([]FileRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("logio: read log dir: %w", err)
	}

	type numbered struct {
		n    int
		path string
	}
	var backups []numbered
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, base+".") {
			continue
		}
		n, err := strconv.Atoi(name[len(base)+1:])
		if err != nil || n < 1 {
			continue
		}
		backups = append(backups, numbered{n: n, path: filepath.Join(dir, name)})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].n > backups[j].n })

	out := make([]FileRef, 0, len(backups))
	for _, b := range backups {
		out = append(out, FileRef{Path: b.path, Component: component, Kind: kind})
	}
	return out, nil
}

// Corpus 返回全部组件在指定类别下的日志文件，组件升序、组件内按时间序。
func Corpus(root string, kinds ...Kind) ([]FileRef, error) {
	components, err := Components(root)
	if err != nil {
		return nil, err
	}
	var out []FileRef
	for _, c := range components {
		refs, err := ComponentFiles(root, c, kinds...)
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
	}
	return out, nil
}

// Lines 逐行读取日志文件并回调，gzip 归档透明解压。
//
// 末尾没有换行符的残行视为写入中途的半条记录，跳过不回调。
// 回调返回 [ErrStop] 时提前结束且 Lines 返回 nil。
func Lines(ref FileRef, fn func(line []byte) error) error {
	f, err := os.Open(ref.Path)
	if err != nil {
		return fmt.Errorf("logio: open %s: %w", ref.Path, err)
	}
	defer func() { _ = f.Close() }()

	var src io.Reader = f
	if ref.Compressed {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("logio: gzip %s: %w", ref.Path, err)
		}
		defer func() { _ = gr.Close() }()
		src = gr
	}

	r := bufio.NewReaderSize(src, 64<<10)
	for {
		line, err := readLine(r)
		if err == nil {
			if cbErr := fn(line); cbErr != nil {
				if errors.Is(cbErr, ErrStop) {
					return nil
				}
				return cbErr
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			// 残行：并发写入方尚未落盘完整的一行
			return nil
		}
		return fmt.Errorf("logio: read %s: %w", ref.Path, err)
	}
}

// maxLineSize 单行记录的大小上限。超限的行截断到上限后交给回调，
// 截断后的 JSON 必然解析失败，调用方按损坏行计数。
const maxLineSize = 1 << 20

// readLine 读取一行（不含换行符），内存占用以 maxLineSize 为界，
// 超出上限的部分读取后丢弃。
func readLine(r *bufio.Reader) ([]byte, error) {
	var out []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if len(out) < maxLineSize {
			take := chunk
			if len(out)+len(take) > maxLineSize {
				take = take[:maxLineSize-len(out)]
			}
			out = append(out, take...)
		}
		switch {
		case err == nil:
			if n := len(out); n > 0 && out[n-1] == '\n' {
				out = out[:n-1]
			}
			return out, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return out, err
		}
	}
}

// Decode 将一行 NDJSON 解析为结构化日志记录。
func Decode(line []byte, rec *xlog.Record) error {
	if len(line) == 0 {
		return errors.New("logio: empty line")
	}
	if err := json.Unmarshal(line, rec); err != nil {
		return fmt.Errorf("logio: decode record: %w", err)
	}
	return nil
}
