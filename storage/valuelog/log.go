package valuelog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/viant/kvvs/storage"
)

// Implementation notes
// - values.json is a concatenation of serialized records with no framing;
//   record boundaries live only in the pointers held by the index.
// - Writes go through WriteAt at the in-memory tail so the size counter and
//   the bytes on disk advance inside one critical section.
// - Reads use a read-only mmap view taken at open time when available and
//   fall back to ReadAt for anything appended afterwards.

// FileName is the value log file name inside a store directory.
const FileName = "values.json"

// Options configures the log.
type Options struct {
	// Path is the value log file location.
	Path string
	// Mode is the permission used when the file is created.
	Mode os.FileMode
}

func (o *Options) withDefaults() {
	if o.Mode == 0 {
		o.Mode = 0o644
	}
}

// Log implements storage.ValueLog over a single append-only file.
type Log struct {
	mu     sync.RWMutex
	path   string
	f      *os.File
	size   int64
	closed bool

	// mmap-backed readonly view of [0, len(data)); may be nil
	data []byte

	stats     storage.Stats
	bytesRead atomic.Uint64
}

// Open creates or opens the value log at opts.Path.
func Open(opts Options) (*Log, error) {
	opts.withDefaults()
	if opts.Path == "" {
		return nil, fmt.Errorf("valuelog: Path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("valuelog: mkdir: %w", err)
	}
	f, err := os.OpenFile(opts.Path, os.O_RDWR|os.O_CREATE, opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("valuelog: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("valuelog: stat: %w", err)
	}
	l := &Log{path: opts.Path, f: f, size: info.Size()}
	// best-effort mapping; reads fall back to ReadAt
	_ = l.remap()
	l.stats.Size = l.size
	return l, nil
}

// Path returns the file location.
func (l *Log) Path() string {
	return l.path
}

// Append implements storage.ValueLog.Append.
func (l *Log) Append(data []byte) (int64, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, 0, storage.ErrClosed
	}
	start := l.size
	if len(data) == 0 {
		return start, 0, nil
	}
	n, err := l.f.WriteAt(data, start)
	if err != nil {
		// a partial write leaves garbage past size; the next append overwrites it
		return 0, 0, fmt.Errorf("valuelog: append at %d: %w", start, err)
	}
	l.size += int64(n)
	l.stats.Appends++
	l.stats.BytesWritten += uint64(n)
	l.stats.Size = l.size
	return start, int64(n), nil
}

// Read implements storage.ValueLog.Read.
func (l *Log) Read(start, length int64) ([]byte, error) {
	if start < 0 || length < 0 {
		return nil, storage.ErrInvalidPtr
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, storage.ErrClosed
	}
	end := start + length
	if end > l.size {
		return nil, fmt.Errorf("%w: range [%d,%d) beyond log size %d", storage.ErrCorrupt, start, end, l.size)
	}
	buf := make([]byte, int(length))
	if l.data != nil && end <= int64(len(l.data)) {
		copy(buf, l.data[start:end])
	} else if n, err := l.f.ReadAt(buf, start); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: short read %d of %d bytes at %d", storage.ErrCorrupt, n, length, start)
		}
		return nil, fmt.Errorf("valuelog: read at %d: %w", start, err)
	}
	l.bytesRead.Add(uint64(length))
	return buf, nil
}

// Size implements storage.ValueLog.Size.
func (l *Log) Size() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Sync flushes file data to disk.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return storage.ErrClosed
	}
	return l.f.Sync()
}

// Close unmaps and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.unmap()
	return l.f.Close()
}

// Stats returns best-effort metrics.
func (l *Log) Stats() storage.Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stats := l.stats
	stats.BytesRead = l.bytesRead.Load()
	return stats
}

var _ storage.ValueLog = (*Log)(nil)
