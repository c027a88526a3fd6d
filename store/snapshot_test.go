package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/viant/bintly"
	"github.com/viant/kvvs/index"
	"github.com/viant/kvvs/storage"
)

// encodeSnapshot writes entries in the Export stream format.
func encodeSnapshot(t *testing.T, entries ...*snapshotEntry) []byte {
	t.Helper()
	buffer := &bytes.Buffer{}
	encoder, err := zstd.NewWriter(buffer)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := encoder.Write(snapshotMagic); err != nil {
		t.Fatalf("Write: %v", err)
	}
	writers := bintly.NewWriters()
	for _, entry := range entries {
		writer := writers.Get()
		if err := entry.EncodeBinary(writer); err != nil {
			t.Fatalf("EncodeBinary: %v", err)
		}
		bs := writer.Bytes()
		writers.Put(writer)
		frame := binary.AppendUvarint(nil, uint64(len(bs)))
		if _, err := encoder.Write(append(frame, bs...)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buffer.Bytes()
}

func TestStore_ExportImport(t *testing.T) {
	ctx := context.Background()
	source := openTestStore(t, t.TempDir())
	defer source.Close()
	fill(t, source, "a", 3)
	fill(t, source, "b", 2)
	if _, err := source.Remove(ctx, "b", storage.Metadata{"tag": "removed"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := source.Truncate(ctx, WithKey("a"), WithMinSequence(1)); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	buffer := &bytes.Buffer{}
	exported, err := source.Export(ctx, buffer)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if exported != 5 {
		t.Fatalf("exported: got %d, want 5", exported)
	}

	target := openTestStore(t, t.TempDir(), WithOptimize(index.ModeCompact))
	defer target.Close()
	imported, err := target.Import(ctx, bytes.NewReader(buffer.Bytes()))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if imported != exported {
		t.Fatalf("imported: got %d, want %d", imported, exported)
	}

	for _, key := range []string{"a", "b"} {
		want, err := source.GetHistory(ctx, key, nil)
		if err != nil {
			t.Fatalf("source history: %v", err)
		}
		got, err := target.GetHistory(ctx, key, nil)
		if err != nil {
			t.Fatalf("target history: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("%v: got %d versions, want %d", key, len(got), len(want))
		}
		for i := range want {
			w, g := want[i].Record, got[i].Record
			if g.Sequence != w.Sequence || g.Timestamp != w.Timestamp || string(g.Value) != string(w.Value) {
				t.Fatalf("%v[%d]: got %+v, want %+v", key, i, g, w)
			}
			if got[i].Pointer.Meta["tag"] != want[i].Pointer.Meta["tag"] {
				t.Fatalf("%v[%d] metadata: got %v, want %v", key, i, got[i].Pointer.Meta, want[i].Pointer.Meta)
			}
		}
	}
	latest, err := target.GetLatest(ctx, "b")
	if err != nil || !latest.Deleted() {
		t.Fatalf("expected delete marker, got %+v, %v", latest, err)
	}

	if _, err := target.Import(ctx, bytes.NewReader(buffer.Bytes())); !errors.Is(err, storage.ErrNotEmpty) {
		t.Fatalf("second import: got %v, want ErrNotEmpty", err)
	}
}

func TestStore_ImportInvalid(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir())
	defer s.Close()
	if _, err := s.Import(ctx, bytes.NewReader([]byte("not a snapshot"))); err == nil {
		t.Fatalf("expected error")
	}
	count, err := s.Count(ctx)
	if err != nil || count != 0 {
		t.Fatalf("Count: got %d, %v", count, err)
	}
}

func TestStore_ImportRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			s := openTestStore(t, t.TempDir(), WithOptimize(mode))
			defer s.Close()
			first := &snapshotEntry{Digest: "d1", Sequence: 0, Timestamp: 1, Value: `"a"`, Meta: `{"tag":"x"}`}
			second := &snapshotEntry{Digest: "d1", Sequence: 1, Timestamp: 2, Value: `"b"`}
			gap := &snapshotEntry{Digest: "d1", Sequence: 5, Timestamp: 3, Value: `"c"`}

			count, err := s.Import(ctx, bytes.NewReader(encodeSnapshot(t, first, second, gap)))
			if !errors.Is(err, storage.ErrCorrupt) || count != 0 {
				t.Fatalf("got %d, %v, want ErrCorrupt", count, err)
			}
			keys, err := s.Count(ctx)
			if err != nil || keys != 0 {
				t.Fatalf("Count after failed import: got %d, %v", keys, err)
			}

			count, err = s.Import(ctx, bytes.NewReader(encodeSnapshot(t, first, second)))
			if err != nil || count != 2 {
				t.Fatalf("retry: got %d, %v", count, err)
			}
			if keys, _ = s.Count(ctx); keys != 1 {
				t.Fatalf("Count after retry: got %d", keys)
			}
		})
	}
}
