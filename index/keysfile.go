package index

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/viant/kvvs/storage"
)

// appendFragment appends `"digest":{pointer}` to dst, comma separated unless first.
func appendFragment(dst []byte, digest string, pointer *storage.Pointer, first bool) ([]byte, error) {
	key, err := json.Marshal(digest)
	if err != nil {
		return nil, err
	}
	value, err := json.Marshal(pointer)
	if err != nil {
		return nil, err
	}
	if !first {
		dst = append(dst, ',')
	}
	dst = append(dst, key...)
	dst = append(dst, ':')
	return append(dst, value...), nil
}

// ReadKeysFile parses a fragment file. A missing file yields (nil, false, nil).
// Later fragments for the same digest override earlier ones.
func ReadKeysFile(location string) (map[string]*storage.Pointer, bool, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("index: read %v: %w", location, err)
	}
	entries := map[string]*storage.Pointer{}
	if len(data) == 0 {
		return entries, true, nil
	}
	wrapped := make([]byte, 0, len(data)+2)
	wrapped = append(wrapped, '{')
	wrapped = append(wrapped, data...)
	wrapped = append(wrapped, '}')
	if err := json.Unmarshal(wrapped, &entries); err != nil {
		return nil, true, fmt.Errorf("%w: %v: %v", storage.ErrCorrupt, location, err)
	}
	return entries, true, nil
}

// WriteKeysFile writes entries, one fragment per digest in sorted order, via
// a synced temp file renamed over location.
func WriteKeysFile(location string, entries map[string]*storage.Pointer) error {
	tmp := location + ".tmp"
	if err := writeFragments(tmp, entries); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, location); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("index: rename %v: %w", tmp, err)
	}
	return nil
}

func writeFragments(location string, entries map[string]*storage.Pointer) error {
	f, err := os.OpenFile(location, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("index: create %v: %w", location, err)
	}
	digests := make([]string, 0, len(entries))
	for digest := range entries {
		digests = append(digests, digest)
	}
	sort.Strings(digests)
	w := bufio.NewWriter(f)
	var buf []byte
	for i, digest := range digests {
		if buf, err = appendFragment(buf[:0], digest, entries[digest], i == 0); err != nil {
			_ = f.Close()
			return fmt.Errorf("index: encode %v: %w", digest, err)
		}
		if _, err = w.Write(buf); err != nil {
			_ = f.Close()
			return fmt.Errorf("index: write %v: %w", location, err)
		}
	}
	if err = w.Flush(); err == nil {
		err = f.Sync()
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("index: flush %v: %w", location, err)
	}
	return f.Close()
}
