package store

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/viant/bintly"
	"github.com/viant/kvvs/index"
	"github.com/viant/kvvs/storage"
)

var snapshotMagic = []byte("kvvs\x01")

const maxSnapshotFrame = 1 << 30

// snapshotEntry is one version in a snapshot stream.
type snapshotEntry struct {
	Digest    string
	Sequence  uint64
	Timestamp int64
	Value     string
	Meta      string
}

// EncodeBinary encodes the entry to a binary stream
func (e *snapshotEntry) EncodeBinary(stream *bintly.Writer) error {
	stream.String(e.Digest)
	stream.Uint64(e.Sequence)
	stream.Int64(e.Timestamp)
	stream.String(e.Value)
	stream.String(e.Meta)
	return nil
}

// DecodeBinary decodes the entry from a binary stream
func (e *snapshotEntry) DecodeBinary(stream *bintly.Reader) error {
	stream.String(&e.Digest)
	stream.Uint64(&e.Sequence)
	stream.Int64(&e.Timestamp)
	stream.String(&e.Value)
	stream.String(&e.Meta)
	return nil
}

// Export writes every key's retained history, oldest first per key, as a
// zstd compressed stream. It returns the number of versions written.
func (s *Store) Export(ctx context.Context, w io.Writer) (int, error) {
	s.swap.RLock()
	defer s.swap.RUnlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, storage.ErrClosed
	}
	entries, err := s.index.Load(ctx)
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("store: export: %w", err)
	}
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return 0, err
	}
	if _, err = encoder.Write(snapshotMagic); err != nil {
		_ = encoder.Close()
		return 0, err
	}
	digests := make([]string, 0, len(entries))
	for digest := range entries {
		digests = append(digests, digest)
	}
	sort.Strings(digests)

	writers := bintly.NewWriters()
	var frame []byte
	count := 0
	for _, digest := range digests {
		var chain []*Item
		if err = walkChain(ctx, s.values, digest, entries[digest], func(item *Item) bool {
			chain = append(chain, item)
			return true
		}); err != nil {
			_ = encoder.Close()
			return count, fmt.Errorf("store: export %v: %w", digest, err)
		}
		for i := len(chain) - 1; i >= 0; i-- {
			entry, err := newSnapshotEntry(chain[i])
			if err != nil {
				_ = encoder.Close()
				return count, err
			}
			writer := writers.Get()
			if err = entry.EncodeBinary(writer); err == nil {
				bs := writer.Bytes()
				frame = binary.AppendUvarint(frame[:0], uint64(len(bs)))
				frame = append(frame, bs...)
			}
			writers.Put(writer)
			if err != nil {
				_ = encoder.Close()
				return count, err
			}
			if _, err = encoder.Write(frame); err != nil {
				_ = encoder.Close()
				return count, err
			}
			count++
		}
	}
	if err = encoder.Close(); err != nil {
		return count, err
	}
	s.logger.Info().Int("keys", len(digests)).Int("versions", count).Msg("store exported")
	return count, nil
}

func newSnapshotEntry(item *Item) (*snapshotEntry, error) {
	entry := &snapshotEntry{
		Digest:    item.Digest,
		Sequence:  item.Record.Sequence,
		Timestamp: item.Record.Timestamp,
		Value:     string(item.Record.Value),
	}
	if len(item.Pointer.Meta) > 0 {
		meta, err := json.Marshal(item.Pointer.Meta)
		if err != nil {
			return nil, fmt.Errorf("store: export %v metadata: %w", item.Digest, err)
		}
		entry.Meta = string(meta)
	}
	return entry, nil
}

// Import replays a snapshot produced by Export into an empty store and
// returns the number of versions written. A failed import leaves the store
// empty again.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	s.swap.Lock()
	defer s.swap.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, storage.ErrClosed
	}
	existing, err := s.index.Count(ctx)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, fmt.Errorf("store: import: %w", storage.ErrNotEmpty)
	}
	size := s.values.Size()
	count, err := s.importStream(ctx, r)
	if err != nil {
		if s.values.Size() != size {
			if clearErr := s.clearLocked(ctx); clearErr != nil {
				s.logger.Error().Err(clearErr).Msg("rolling back failed import")
			}
		}
		return 0, err
	}
	s.logger.Info().Int("versions", count).Msg("store imported")
	return count, nil
}

func (s *Store) importStream(ctx context.Context, r io.Reader) (int, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return 0, err
	}
	defer decoder.Close()
	reader := bufio.NewReader(decoder)
	magic := make([]byte, len(snapshotMagic))
	if _, err = io.ReadFull(reader, magic); err != nil || string(magic) != string(snapshotMagic) {
		return 0, fmt.Errorf("store: import: %w: not a snapshot", storage.ErrCorrupt)
	}

	readers := bintly.NewReaders()
	heads := map[string]*storage.Pointer{}
	var buf []byte
	count := 0
	for {
		if err = ctx.Err(); err != nil {
			return count, err
		}
		size, err := binary.ReadUvarint(reader)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("store: import: %w: %v", storage.ErrCorrupt, err)
		}
		if size > maxSnapshotFrame {
			return count, fmt.Errorf("store: import: %w: frame of %d bytes", storage.ErrCorrupt, size)
		}
		if uint64(cap(buf)) < size {
			buf = make([]byte, size)
		}
		buf = buf[:size]
		if _, err = io.ReadFull(reader, buf); err != nil {
			return count, fmt.Errorf("store: import: %w: %v", storage.ErrCorrupt, err)
		}
		entry := &snapshotEntry{}
		stream := readers.Get()
		if err = stream.FromBytes(buf); err == nil {
			err = entry.DecodeBinary(stream)
		}
		readers.Put(stream)
		if err != nil {
			return count, fmt.Errorf("store: import: %w: %v", storage.ErrCorrupt, err)
		}
		if err = s.importEntry(entry, heads); err != nil {
			return count, fmt.Errorf("store: import %v: %w", entry.Digest, err)
		}
		count++
	}
	return count, nil
}

// importEntry appends entry after the key's previously imported version.
func (s *Store) importEntry(entry *snapshotEntry, heads map[string]*storage.Pointer) error {
	if err := index.ValidateDigest(entry.Digest); err != nil {
		return err
	}
	previous := heads[entry.Digest]
	if previous != nil && entry.Sequence != previous.Sequence+1 {
		return fmt.Errorf("%w: sequence %d after %d", storage.ErrCorrupt, entry.Sequence, previous.Sequence)
	}
	var meta storage.Metadata
	if entry.Meta != "" {
		if err := json.Unmarshal([]byte(entry.Meta), &meta); err != nil {
			return fmt.Errorf("%w: metadata: %v", storage.ErrCorrupt, err)
		}
	}
	var value json.RawMessage
	if entry.Value != "" {
		value = json.RawMessage(entry.Value)
		if !json.Valid(value) {
			return fmt.Errorf("%w: invalid value", storage.ErrCorrupt)
		}
	}
	record := storage.Record{Value: value, Timestamp: entry.Timestamp, Sequence: entry.Sequence, Previous: previous}
	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}
	start, length, err := s.values.Append(data)
	if err != nil {
		return err
	}
	pointer := &storage.Pointer{Start: start, Length: length, Sequence: entry.Sequence, Meta: meta.Clean()}
	if err = s.index.Put(context.Background(), entry.Digest, pointer); err != nil {
		return err
	}
	heads[entry.Digest] = pointer
	return nil
}
