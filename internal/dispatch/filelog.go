package dispatch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrLogPathOutsideDir rejects absolute or escaping log file names.
var ErrLogPathOutsideDir = errors.New("filelog: path leaves the log directory")

// FileLog 追加故障记录到 <dir>/<file>，每行带本地时间与 host_port 前缀。
type FileLog struct {
	dir   string
	mu    sync.Mutex
	nowFn func() time.Time
}

func NewFileLog(dir string) *FileLog {
	if dir == "" {
		dir = "Logs"
	}
	return &FileLog{dir: dir, nowFn: time.Now}
}

// Entry builds the line written for a record.
func (f *FileLog) Entry(host, port, line string) string {
	return fmt.Sprintf("[%s] %s_%s: %s", f.nowFn().Format(TimeLayout), host, port, line)
}

// Append writes entry plus a newline to file, creating the directory if needed.
func (f *FileLog) Append(file, entry string) error {
	if file == "" {
		return fmt.Errorf("filelog: empty file name")
	}
	if !filepath.IsLocal(file) {
		return fmt.Errorf("%w: %s", ErrLogPathOutsideDir, file)
	}
	path := filepath.Join(f.dir, file)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("filelog: create dir: %w", err)
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("unable to append data to file %s: %w", path, err)
	}
	defer fh.Close()
	if _, err := fh.WriteString(entry + "\n"); err != nil {
		return fmt.Errorf("unable to append data to file %s: %w", path, err)
	}
	return nil
}
