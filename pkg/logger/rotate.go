package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// rotatingFile appends to path. Once it grows past maxBytes the file moves
// to path.1, older copies shift up and at most keep copies survive.
type rotatingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	keep     int
	f        *os.File
	size     int64
}

func openRotating(path string, maxBytes int64, keep int) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	r := &rotatingFile{path: path, maxBytes: maxBytes, keep: keep, f: f}
	if st, err := f.Stat(); err == nil {
		r.size = st.Size()
	}
	return r, nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	if err == nil && r.maxBytes > 0 && r.size > r.maxBytes {
		err = r.rotate()
	}
	return n, err
}

func (r *rotatingFile) backup(i int) string {
	return fmt.Sprintf("%s.%d", r.path, i)
}

// rotate runs with mu held.
func (r *rotatingFile) rotate() error {
	r.f.Close()
	os.Remove(r.backup(r.keep))
	for i := r.keep - 1; i >= 1; i-- {
		os.Rename(r.backup(i), r.backup(i+1))
	}
	if r.keep > 0 {
		os.Rename(r.path, r.backup(1))
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		r.f = nil
		return err
	}
	r.f, r.size = f, 0
	return nil
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	r.f.Sync()
	err := r.f.Close()
	r.f = nil
	return err
}
