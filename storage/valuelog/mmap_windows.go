//go:build windows

package valuelog

// On Windows, provide no-op mmap to keep builds portable.
// Reads fall back to direct file I/O via ReadAt in log.go.

func (l *Log) remap() error {
	l.data = nil
	return nil
}

func (l *Log) unmap() {}
