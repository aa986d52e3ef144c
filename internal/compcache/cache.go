// Package compcache stores lowered computations on disk, keyed by the
// structural hash of the graph they were lowered from.
package compcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"graphir/internal/hlo"
	"graphir/internal/ir"
)

// SchemaVersion is bumped whenever Payload or hlo.Computation change shape.
const SchemaVersion uint16 = 2

// DiskCache is safe for concurrent use.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// Payload is what a cache file holds.
type Payload struct {
	Schema       uint16
	Name         string
	GraphHash    ir.Hash
	MetadataHash ir.Hash
	Computation  *hlo.Computation
}

// Open returns a cache rooted at $XDG_CACHE_HOME/<app> (~/.cache/<app> when
// unset).
func Open(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDir(filepath.Join(base, app))
}

// OpenDir returns a cache rooted at dir.
func OpenDir(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *DiskCache) pathFor(key ir.Hash) string {
	return filepath.Join(c.dir, "comp", key.String()+".mp")
}

// Key identifies a computation named name lowered from a graph with the
// given structural hash. meta identifies the instruction metadata the
// computation carries, NoMetadata for a lowering without any.
func Key(name string, graphHash, meta ir.Hash) ir.Hash {
	return ir.HashValues(graphHash, ir.HashString(name), meta, ir.HashUint(uint64(SchemaVersion)))
}

// NoMetadata is the meta argument of Key for computations lowered without
// instruction metadata.
const NoMetadata ir.Hash = 0

// Put writes payload under key, replacing any previous entry atomically.
func (c *DiskCache) Put(key ir.Hash, payload *Payload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	payload.Schema = SchemaVersion
	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the payload stored under key. A missing entry or one written
// with another schema is a miss, not an error.
func (c *DiskCache) Get(key ir.Hash) (*Payload, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var out Payload
	if err := msgpack.NewDecoder(f).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	if out.Schema != SchemaVersion || out.Computation == nil {
		return nil, false, nil
	}
	return &out, true, nil
}

// DropAll removes every entry.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405.000000000")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.RemoveAll(old)
}
