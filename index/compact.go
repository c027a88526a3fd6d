package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/kvvs/storage"
)

// Compact keeps one pointer file per key and a bounded in-memory cache.
type Compact struct {
	dir    string
	fs     afs.Service
	cache  *Cache
	logger zerolog.Logger
}

func newCompact(opts Options) *Compact {
	return &Compact{
		dir:    opts.Dir,
		fs:     afs.New(),
		cache:  NewCache(opts.CacheMax, opts.CacheStep),
		logger: opts.Logger,
	}
}

func openCompact(ctx context.Context, opts Options) (*Compact, error) {
	c := newCompact(opts)
	location := filepath.Join(opts.Dir, KeysFile)
	entries, exists, err := ReadKeysFile(location)
	if err != nil {
		return nil, err
	}
	if !exists {
		return c, nil
	}
	for digest, pointer := range entries {
		if err := c.write(ctx, digest, pointer); err != nil {
			return nil, err
		}
	}
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("index: remove %v: %w", location, err)
	}
	c.logger.Info().Int("keys", len(entries)).Str("dir", opts.Dir).Msg("converted index speed -> compact")
	return c, nil
}

// Cache exposes the in-memory cache.
func (c *Compact) Cache() *Cache {
	return c.cache
}

func (c *Compact) keyURL(digest string) string {
	return url.Join(c.dir, digest+FileExt)
}

func (c *Compact) write(ctx context.Context, digest string, pointer *storage.Pointer) error {
	data, err := json.Marshal(pointer)
	if err != nil {
		return fmt.Errorf("index: encode %v: %w", digest, err)
	}
	if err = c.fs.Upload(ctx, c.keyURL(digest), file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("index: write %v: %w", digest, err)
	}
	return nil
}

// Mode implements Strategy.
func (c *Compact) Mode() Mode { return ModeCompact }

// Get returns the cached pointer or reads the per-key file and caches it.
func (c *Compact) Get(ctx context.Context, digest string) (*storage.Pointer, error) {
	if pointer, ok := c.cache.Get(digest); ok {
		return pointer, nil
	}
	URL := c.keyURL(digest)
	data, err := c.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		ok, existsErr := c.fs.Exists(ctx, URL)
		if existsErr != nil {
			return nil, fmt.Errorf("index: stat %v: %w", digest, existsErr)
		}
		if !ok {
			return nil, nil
		}
		return nil, fmt.Errorf("index: read %v: %w", digest, err)
	}
	pointer := &storage.Pointer{}
	if err := json.Unmarshal(data, pointer); err != nil {
		return nil, fmt.Errorf("%w: pointer file %v: %v", storage.ErrCorrupt, digest, err)
	}
	c.insert(digest, pointer)
	return pointer, nil
}

// Put writes the per-key file, then caches the pointer.
func (c *Compact) Put(ctx context.Context, digest string, pointer *storage.Pointer) error {
	if err := c.write(ctx, digest, pointer); err != nil {
		return err
	}
	c.insert(digest, pointer)
	return nil
}

func (c *Compact) insert(digest string, pointer *storage.Pointer) {
	if evicted := c.cache.Put(digest, pointer); evicted > 0 {
		c.logger.Debug().Int("evicted", evicted).Int("cached", c.cache.Len()).Msg("index cache eviction")
	}
}

// Uncache implements Strategy.
func (c *Compact) Uncache(digest string) {
	c.cache.Remove(digest)
}

// Load reads every per-key file under the directory.
func (c *Compact) Load(ctx context.Context) (map[string]*storage.Pointer, error) {
	entries := map[string]*storage.Pointer{}
	err := c.walk(ctx, func(digest string, reader io.Reader) error {
		data, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("index: read %v: %w", digest, err)
		}
		pointer := &storage.Pointer{}
		if err := json.Unmarshal(data, pointer); err != nil {
			return fmt.Errorf("%w: pointer file %v: %v", storage.ErrCorrupt, digest, err)
		}
		entries[digest] = pointer
		return nil
	})
	return entries, err
}

// Count counts per-key files on disk; the cache may hold only a subset.
func (c *Compact) Count(ctx context.Context) (int, error) {
	count := 0
	err := c.walk(ctx, func(digest string, reader io.Reader) error {
		count++
		return nil
	})
	return count, err
}

// walk visits every per-key pointer file, skipping the store's own files.
func (c *Compact) walk(ctx context.Context, visit func(digest string, reader io.Reader) error) error {
	return c.fs.Walk(ctx, c.dir, func(ctx context.Context, baseURL string, parent string, info os.FileInfo, reader io.Reader) (bool, error) {
		if info.IsDir() {
			return true, nil
		}
		name := info.Name()
		if !strings.HasSuffix(name, FileExt) {
			return true, nil
		}
		stem := strings.TrimSuffix(name, FileExt)
		parent = strings.Trim(parent, "/")
		if parent == "" && reserved[stem] {
			return true, nil
		}
		if err := visit(path.Join(parent, stem), reader); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Close drops the cache.
func (c *Compact) Close() error {
	c.cache.Clear()
	return nil
}
