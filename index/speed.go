package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/viant/kvvs/storage"
)

// Speed keeps every entry in memory and appends a fragment to keys.json per Put.
type Speed struct {
	location string
	f        *os.File
	size     int64
	entries  map[string]*storage.Pointer
	buf      []byte
	logger   zerolog.Logger
}

func openSpeed(ctx context.Context, opts Options) (*Speed, error) {
	location := filepath.Join(opts.Dir, KeysFile)
	entries, exists, err := ReadKeysFile(location)
	if err != nil {
		return nil, err
	}
	var converted []string
	if !exists {
		// compact layout on disk, or a fresh directory
		compact := newCompact(opts)
		if entries, err = compact.Load(ctx); err != nil {
			return nil, fmt.Errorf("index: load per-key files: %w", err)
		}
		for digest := range entries {
			converted = append(converted, digest)
		}
	}
	if err = WriteKeysFile(location, entries); err != nil {
		return nil, err
	}
	if len(converted) > 0 {
		// keys.json is authoritative from here; per-key files are leftovers
		for _, digest := range converted {
			if err := os.Remove(filepath.Join(opts.Dir, filepath.FromSlash(digest)+FileExt)); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("index: remove converted %v: %w", digest, err)
			}
		}
		opts.Logger.Info().Int("keys", len(converted)).Str("dir", opts.Dir).Msg("converted index compact -> speed")
	}
	f, err := os.OpenFile(location, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("index: open %v: %w", location, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("index: stat %v: %w", location, err)
	}
	return &Speed{
		location: location,
		f:        f,
		size:     info.Size(),
		entries:  entries,
		logger:   opts.Logger,
	}, nil
}

// Mode implements Strategy.
func (s *Speed) Mode() Mode { return ModeSpeed }

// Load returns a copy of the in-memory mapping.
func (s *Speed) Load(ctx context.Context) (map[string]*storage.Pointer, error) {
	ret := make(map[string]*storage.Pointer, len(s.entries))
	for digest, pointer := range s.entries {
		ret[digest] = pointer
	}
	return ret, nil
}

// Get implements Strategy.
func (s *Speed) Get(ctx context.Context, digest string) (*storage.Pointer, error) {
	return s.entries[digest], nil
}

// Put appends a fragment to keys.json, then updates memory.
func (s *Speed) Put(ctx context.Context, digest string, pointer *storage.Pointer) error {
	if s.f == nil {
		return storage.ErrClosed
	}
	var err error
	if s.buf, err = appendFragment(s.buf[:0], digest, pointer, s.size == 0); err != nil {
		return fmt.Errorf("index: encode %v: %w", digest, err)
	}
	n, err := s.f.Write(s.buf)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("index: append %v: %w", s.location, err)
	}
	s.entries[digest] = pointer
	return nil
}

// Uncache is a no-op: the speed layout never evicts.
func (s *Speed) Uncache(digest string) {}

// Count implements Strategy.
func (s *Speed) Count(ctx context.Context) (int, error) {
	return len(s.entries), nil
}

// Close closes keys.json.
func (s *Speed) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
