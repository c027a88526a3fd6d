//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly || solaris || aix

package valuelog

import (
	"golang.org/x/sys/unix"
)

// remap maps the file into memory read-only. If mapping fails, it is a no-op.
func (l *Log) remap() error {
	l.unmap()
	if l.size == 0 || l.f == nil {
		return nil
	}
	b, err := unix.Mmap(int(l.f.Fd()), 0, int(l.size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// ignore mapping errors; fallback path will use ReadAt
		return nil
	}
	l.data = b
	return nil
}

// unmap releases any active mapping.
func (l *Log) unmap() {
	if l.data != nil {
		_ = unix.Munmap(l.data)
		l.data = nil
	}
}
