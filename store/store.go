// Package store implements a versioned key-value engine over an append-only
// value log. Every write appends a new record that points back at the
// previous version of its key, so the full history stays readable until
// compaction drops it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"github.com/viant/kvvs/digest"
	"github.com/viant/kvvs/index"
	"github.com/viant/kvvs/storage"
	"github.com/viant/kvvs/storage/valuelog"
)

// Store is a versioned key-value store rooted at a directory.
//
// Writes and pointer resolution are serialized by mu. Record reads run
// outside mu against immutable log bytes. swap is held exclusively only by
// operations that replace the log or the index (Truncate, Clear, Close).
type Store struct {
	dir     string
	options Options
	digest  digest.Func
	fs      afs.Service
	logger  zerolog.Logger

	swap   sync.RWMutex
	mu     sync.Mutex
	values *valuelog.Log
	index  index.Strategy
	closed bool
}

// Stats describes a store.
type Stats struct {
	Dir    string        `json:"dir"`
	Mode   index.Mode    `json:"mode"`
	Keys   int           `json:"keys"`
	Values storage.Stats `json:"values"`
	Cached int           `json:"cached,omitempty"`
}

// Open opens or creates the store at dir.
func Open(ctx context.Context, dir string, opts ...Option) (*Store, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Optimize == "" {
		options.Optimize = index.ModeSpeed
	}
	if options.Clock == nil {
		options.Clock = DefaultOptions().Clock
	}
	if dir == "" {
		return nil, fmt.Errorf("store: dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("store: resolve %v: %w", dir, err)
	}
	s := &Store{
		dir:     abs,
		options: options,
		digest:  options.digest(),
		fs:      afs.New(),
		logger:  options.Logger.With().Str("dir", abs).Logger(),
	}
	if err := s.open(ctx); err != nil {
		return nil, err
	}
	s.logger.Info().Str("mode", string(options.Optimize)).Int64("size", s.values.Size()).Msg("store opened")
	return s, nil
}

// open creates the directory, finishes any committed compaction and opens the log and index.
func (s *Store) open(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %v: %w", s.dir, err)
	}
	if err := s.recoverCompaction(); err != nil {
		return err
	}
	values, err := valuelog.Open(valuelog.Options{Path: filepath.Join(s.dir, valuelog.FileName)})
	if err != nil {
		return err
	}
	idx, err := index.Open(ctx, index.Options{
		Dir:       s.dir,
		Mode:      s.options.Optimize,
		CacheMax:  s.options.CacheMax,
		CacheStep: s.options.CacheStep,
		Logger:    s.logger,
	})
	if err != nil {
		_ = values.Close()
		return err
	}
	s.values = values
	s.index = idx
	s.closed = false
	return nil
}

// Dir returns the absolute store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Mode returns the active index layout.
func (s *Store) Mode() index.Mode {
	return s.options.Optimize
}

// Digest returns the identifier used on disk for key.
func (s *Store) Digest(key string) (string, error) {
	if key == "" {
		return "", storage.ErrEmptyKey
	}
	id := s.digest(key)
	if err := index.ValidateDigest(id); err != nil {
		return "", err
	}
	return id, nil
}

// Set marshals value to JSON and appends it as the key's next version.
func (s *Store) Set(ctx context.Context, key string, value interface{}, meta storage.Metadata) (*storage.Pointer, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("store: encode %v: %w", key, err)
	}
	return s.write(ctx, key, data, meta)
}

// SetRaw appends pre-encoded JSON as the key's next version.
func (s *Store) SetRaw(ctx context.Context, key string, value json.RawMessage, meta storage.Metadata) (*storage.Pointer, error) {
	if len(value) == 0 || !json.Valid(value) {
		return nil, fmt.Errorf("store: invalid JSON value for %v", key)
	}
	return s.write(ctx, key, value, meta)
}

// Remove appends a delete marker. Earlier versions stay in the history.
func (s *Store) Remove(ctx context.Context, key string, meta storage.Metadata) (*storage.Pointer, error) {
	return s.write(ctx, key, nil, meta)
}

func (s *Store) write(ctx context.Context, key string, value json.RawMessage, meta storage.Metadata) (*storage.Pointer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := s.Digest(key)
	if err != nil {
		return nil, err
	}
	s.swap.RLock()
	defer s.swap.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	previous, err := s.index.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("store: resolve %v: %w", key, err)
	}
	pointer, err := s.appendRecord(id, value, s.options.Clock().UnixMilli(), previous, meta)
	if err != nil {
		return nil, fmt.Errorf("store: set %v: %w", key, err)
	}
	return pointer.Clone(), nil
}

// appendRecord writes the next version after previous and points the index at it.
// Callers hold mu.
func (s *Store) appendRecord(id string, value json.RawMessage, timestamp int64, previous *storage.Pointer, meta storage.Metadata) (*storage.Pointer, error) {
	meta, err := meta.Normalize()
	if err != nil {
		return nil, err
	}
	record := storage.Record{Value: value, Timestamp: timestamp, Previous: previous}
	if previous != nil {
		record.Sequence = previous.Sequence + 1
	}
	data, err := json.Marshal(&record)
	if err != nil {
		return nil, err
	}
	start, length, err := s.values.Append(data)
	if err != nil {
		return nil, err
	}
	pointer := &storage.Pointer{Start: start, Length: length, Sequence: record.Sequence, Meta: meta}
	if err := s.index.Put(context.Background(), id, pointer); err != nil {
		return nil, err
	}
	return pointer, nil
}

// Count returns the number of distinct keys ever written.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.swap.RLock()
	defer s.swap.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, storage.ErrClosed
	}
	return s.index.Count(ctx)
}

// Clear removes every file and reopens the store empty.
func (s *Store) Clear(ctx context.Context) error {
	s.swap.Lock()
	defer s.swap.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.clearLocked(ctx); err != nil {
		return err
	}
	s.logger.Info().Msg("store cleared")
	return nil
}

// clearLocked deletes the directory and reopens it empty. Callers hold swap and mu exclusively.
func (s *Store) clearLocked(ctx context.Context) error {
	if err := s.closeLocked(); err != nil {
		return err
	}
	if err := s.fs.Delete(ctx, s.dir); err != nil {
		ok, existsErr := s.fs.Exists(ctx, s.dir)
		if existsErr != nil || ok {
			return fmt.Errorf("store: delete %v: %w", s.dir, err)
		}
	}
	return s.open(ctx)
}

// Sync flushes the value log.
func (s *Store) Sync() error {
	s.swap.RLock()
	defer s.swap.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	return s.values.Sync()
}

// Close syncs and releases file handles.
func (s *Store) Close() error {
	s.swap.Lock()
	defer s.swap.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if err := s.values.Sync(); err != nil && !errors.Is(err, storage.ErrClosed) {
		return fmt.Errorf("store: sync: %w", err)
	}
	return s.closeLocked()
}

func (s *Store) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			firstErr = err
		}
	}
	if s.values != nil {
		if err := s.values.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns a snapshot of store metrics.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.swap.RLock()
	defer s.swap.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	keys, err := s.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	ret := &Stats{Dir: s.dir, Mode: s.index.Mode(), Keys: keys, Values: s.values.Stats()}
	if compact, ok := s.index.(*index.Compact); ok {
		ret.Cached = compact.Cache().Len()
	}
	return ret, nil
}
