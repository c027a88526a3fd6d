package memlog

import (
	"fmt"
	"sync"

	"github.com/viant/kvvs/storage"
)

// Log is an in-memory implementation of storage.ValueLog.
// It is intended for testing chain traversal without touching disk.
type Log struct {
	mu     sync.RWMutex
	data   []byte
	stats  storage.Stats
	closed bool
}

// New creates a new in-memory value log.
func New() *Log {
	return &Log{}
}

// Append appends data to the in-memory buffer.
func (l *Log) Append(data []byte) (int64, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, 0, storage.ErrClosed
	}
	start := int64(len(l.data))
	l.data = append(l.data, data...)
	l.stats.Appends++
	l.stats.BytesWritten += uint64(len(data))
	l.stats.Size = int64(len(l.data))
	return start, int64(len(data)), nil
}

// Read returns a copy of the referenced bytes.
func (l *Log) Read(start, length int64) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, storage.ErrClosed
	}
	if start < 0 || length < 0 {
		return nil, storage.ErrInvalidPtr
	}
	end := start + length
	if end > int64(len(l.data)) {
		return nil, fmt.Errorf("%w: range [%d,%d) beyond log size %d", storage.ErrCorrupt, start, end, len(l.data))
	}
	out := make([]byte, int(length))
	copy(out, l.data[start:end])
	l.stats.BytesRead += uint64(length)
	return out, nil
}

// Size returns the buffer length.
func (l *Log) Size() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.data))
}

// Sync is a no-op for the in-memory log.
func (l *Log) Sync() error { return nil }

// Close marks the log as closed. Further ops return ErrClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.data = nil
	return nil
}

// Stats returns current stats snapshot.
func (l *Log) Stats() storage.Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

var _ storage.ValueLog = (*Log)(nil)
