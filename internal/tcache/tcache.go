// Package tcache stores finished translations on disk, keyed by a digest of
// everything that can change the generated text.
package tcache

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"
)

// schemaVersion is bumped whenever the envelope or any payload changes
// shape; entries with another schema read as misses.
const schemaVersion uint16 = 1

// Key identifies one cache entry.
type Key [blake2b.Size256]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// NewKey hashes parts with their lengths, so that moving bytes from one
// part to the next yields a different key.
func NewKey(parts ...[]byte) (Key, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return Key{}, fmt.Errorf("tcache: %w", err)
	}
	var lenBuf [8]byte
	for _, p := range parts {
		n, err := safecast.Conv[uint64](len(p))
		if err != nil {
			return Key{}, fmt.Errorf("tcache: part length: %w", err)
		}
		binary.LittleEndian.PutUint64(lenBuf[:], n)
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write(p)
	}
	var k Key
	copy(k[:], h.Sum(nil))
	return k, nil
}

type envelope struct {
	Schema  uint16
	Payload msgpack.RawMessage
}

// Cache is a directory of msgpack entries. Safe for concurrent use; a nil
// *Cache never hits and drops every Put.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open returns the cache for app under $XDG_CACHE_HOME or ~/.cache.
func Open(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("tcache: %w", err)
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDir(filepath.Join(base, app))
}

// OpenDir returns a cache rooted at dir, creating it if needed.
func OpenDir(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tcache: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Dir is the cache root.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) pathFor(key Key) string {
	s := key.String()
	return filepath.Join(c.dir, "tr", s[:2], s+".mp")
}

// Put stores v under key. The file is written aside and renamed into
// place, so readers never see a partial entry.
func (c *Cache) Put(key Key, v any) error {
	if c == nil {
		return nil
	}
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("tcache: encode: %w", err)
	}
	data, err := msgpack.Marshal(envelope{Schema: schemaVersion, Payload: payload})
	if err != nil {
		return fmt.Errorf("tcache: encode: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("tcache: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return fmt.Errorf("tcache: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("tcache: write: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("tcache: write: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("tcache: %w", err)
	}
	return nil
}

// Get decodes the entry under key into out. A missing entry or one
// written with another schema is a miss, not an error.
func (c *Cache) Get(key Key, out any) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("tcache: %w", err)
	}
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return false, fmt.Errorf("tcache: decode %s: %w", key, err)
	}
	if env.Schema != schemaVersion {
		return false, nil
	}
	if err := msgpack.Unmarshal(env.Payload, out); err != nil {
		return false, fmt.Errorf("tcache: decode %s: %w", key, err)
	}
	return true, nil
}

// DropAll removes every entry.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(filepath.Join(c.dir, "tr")); err != nil {
		return fmt.Errorf("tcache: %w", err)
	}
	return nil
}
