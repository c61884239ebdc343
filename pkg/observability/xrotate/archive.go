package xrotate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// archiveStamp 归档文件名中的时间戳格式（UTC）
const archiveStamp = "20060102T150405"

// archiveSeqLimit 同一秒内归档文件名去重的序号上限
const archiveSeqLimit = 10000

// compressTo 将 src 压缩为 gzip 写入 dir，成功后删除 src。
//
// 归档文件命名 <base>.<UTC时间戳>-<序号>.gz，base 为去掉序数后缀的
// 原始文件名，序号保证同一秒内多次归档互不覆盖。
func compressTo(src, dir string, now time.Time) error {
	if err := os.MkdirAll(dir, logDirMode); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	dst, err := nextArchivePath(dir, baseName(src), now)
	if err != nil {
		return err
	}
	if err := gzipFile(src, dst); err != nil {
		// 残留半成品会污染归档目录的保留期扫描
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

// baseName 返回去掉序数备份后缀的文件名，如 app.log.3 -> app.log。
func baseName(path string) string {
	base := filepath.Base(path)
	if i := strings.LastIndexByte(base, '.'); i > 0 && isDigits(base[i+1:]) {
		return base[:i]
	}
	return base
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// nextArchivePath 选取 dir 下首个未被占用的归档文件名。
// 序号固定四位补零，保证归档名的字典序即时间序。
func nextArchivePath(dir, base string, now time.Time) (string, error) {
	stamp := now.UTC().Format(archiveStamp)
	for seq := 1; seq <= archiveSeqLimit; seq++ {
		p := filepath.Join(dir, fmt.Sprintf("%s.%s-%04d.gz", base, stamp, seq))
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p, nil
		}
	}
	return "", fmt.Errorf("archive name space exhausted for %s at %s", base, stamp)
}

// gzipFile 将 src 的内容 gzip 压缩写入 dst。
func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, logFileMode)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	gw := gzip.NewWriter(out)
	gw.Name = filepath.Base(src)

	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		return fmt.Errorf("compress: %w", err)
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("flush gzip: %w", err)
	}
	return out.Close()
}
