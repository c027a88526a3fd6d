package valuelog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/viant/kvvs/storage"
)

func openLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	l, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return l, path
}

func TestLog_AppendRead(t *testing.T) {
	l, _ := openLog(t)
	defer l.Close()

	data := []byte(`{"value":"hello"}`)
	start, length, err := l.Append(data)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if start != 0 || length != int64(len(data)) {
		t.Fatalf("got (%d,%d), want (0,%d)", start, length, len(data))
	}
	start2, length2, err := l.Append([]byte("second"))
	if err != nil {
		t.Fatalf("append2: %v", err)
	}
	if start2 != length {
		t.Fatalf("second start = %d, want %d", start2, length)
	}
	got, err := l.Read(start, length)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
	got, err = l.Read(start2, length2)
	if err != nil || string(got) != "second" {
		t.Fatalf("read2: %v, got %q", err, got)
	}
	if l.Size() != length+length2 {
		t.Fatalf("size = %d, want %d", l.Size(), length+length2)
	}
	stats := l.Stats()
	if stats.Appends != 2 || stats.BytesRead != uint64(length+length2) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestLog_ReopenReadsMappedAndAppended(t *testing.T) {
	l, path := openLog(t)
	s1, n1, err := l.Append([]byte("first"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := l.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	_ = l.Close()

	l2, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	s2, n2, err := l2.Append([]byte("after-reopen"))
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if s2 != n1 {
		t.Fatalf("start after reopen = %d, want %d", s2, n1)
	}
	if b, err := l2.Read(s1, n1); err != nil || string(b) != "first" {
		t.Fatalf("read mapped: %v, got %q", err, b)
	}
	if b, err := l2.Read(s2, n2); err != nil || string(b) != "after-reopen" {
		t.Fatalf("read appended: %v, got %q", err, b)
	}
}

func TestLog_ReadErrors(t *testing.T) {
	l, _ := openLog(t)
	if _, _, err := l.Append([]byte("abc")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Read(1, 10); !errors.Is(err, storage.ErrCorrupt) {
		t.Errorf("read past end: got %v, want ErrCorrupt", err)
	}
	if _, err := l.Read(-1, 1); !errors.Is(err, storage.ErrInvalidPtr) {
		t.Errorf("negative start: got %v, want ErrInvalidPtr", err)
	}
	_ = l.Close()
	if _, err := l.Read(0, 1); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("read after close: got %v, want ErrClosed", err)
	}
	if _, _, err := l.Append([]byte("x")); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("append after close: got %v, want ErrClosed", err)
	}
}

func TestLog_TrailingGarbageIsOverwritten(t *testing.T) {
	l, path := openLog(t)
	if _, _, err := l.Append([]byte("ok")); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = l.Close()

	// a crashed writer may leave bytes no pointer refers to
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write([]byte("{\"val")); err != nil {
		t.Fatalf("inject: %v", err)
	}
	_ = f.Close()

	l2, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	start, length, err := l2.Append([]byte("next"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if start != 7 {
		t.Fatalf("start = %d, want 7", start)
	}
	if b, err := l2.Read(start, length); err != nil || string(b) != "next" {
		t.Fatalf("read: %v, got %q", err, b)
	}
}
