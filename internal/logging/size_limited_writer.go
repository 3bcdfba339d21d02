package logging

import (
	"fmt"
	"os"
	"sync"
)

// sizeLimitedWriter appends to path until the next write would exceed
// maxBytes. It then shifts path+".1" .. path+".N" up by one, moves the live
// file to path+".1" and starts a fresh one. With no backups the live file is
// truncated instead.
type sizeLimitedWriter struct {
	path     string
	maxBytes int64
	backups  int
	mu       sync.Mutex
	file     *os.File
	size     int64
}

func newSizeLimitedWriter(path string, maxMB, backups int) (*sizeLimitedWriter, error) {
	if maxMB <= 0 {
		maxMB = 10
	}
	if backups < 0 {
		backups = 0
	}
	f, size, err := openLogFile(path, false)
	if err != nil {
		return nil, err
	}
	return &sizeLimitedWriter{
		path:     path,
		maxBytes: int64(maxMB) * 1024 * 1024,
		backups:  backups,
		file:     f,
		size:     size,
	}, nil
}

func (w *sizeLimitedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		f, size, err := openLogFile(w.path, false)
		if err != nil {
			return 0, err
		}
		w.file, w.size = f, size
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *sizeLimitedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *sizeLimitedWriter) rotate() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	if w.backups > 0 {
		for i := w.backups - 1; i >= 1; i-- {
			if err := os.Rename(backupName(w.path, i), backupName(w.path, i+1)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		if err := os.Rename(w.path, backupName(w.path, 1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	f, size, err := openLogFile(w.path, w.backups == 0)
	if err != nil {
		return err
	}
	w.file, w.size = f, size
	return nil
}

func backupName(path string, n int) string {
	return fmt.Sprintf("%s.%d", path, n)
}

func openLogFile(path string, truncate bool) (*os.File, int64, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}
