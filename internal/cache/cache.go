// Package cache implements C4, the Multi-level Cache: an in-process L1, a
// disk-backed L2, and an optional remote L3, queried in that order with
// promote-on-hit (spec.md §4.4).
//
// L1 is grounded on the teacher's go.mod dependency patrickmn/go-cache,
// previously unused in the tree. L2's expiring-item-plus-janitor shape is
// adapted from internal/architecture/cache.go, generalized from an
// in-memory map to a directory of gob-encoded files so it survives process
// restarts. L3 stays an interface only — the spec treats a remote tier as
// optional and external (pkg/storage is the only durable boundary this
// repo owns).
package cache

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	pipelineerrors "github.com/abdoElHodaky/arb-pipeline/pkg/errors"
)

const (
	l1DefaultTTL  = 1 * time.Hour
	l1CleanupTick = 10 * time.Minute
	l2DefaultTTL  = 2 * time.Hour
)

// Remote is the optional L3 tier. Implementations are adapters onto an
// external cache service; this repo ships none, since remote caching
// crosses the external-collaborator boundary (spec.md §1).
type Remote interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

// Cache is the three-level read-through cache. Remote may be nil.
type Cache struct {
	l1 *gocache.Cache

	l2Dir string
	l2mu  sync.Mutex

	remote Remote

	hitsL1, hitsL2, hitsL3, misses int64
}

// New constructs a Cache with L1 and L2 wired; dir is created if missing.
// remote may be nil to disable the L3 tier.
func New(dir string, remote Remote) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pipelineerrors.Wrap(err, pipelineerrors.KindResource, pipelineerrors.CodeCacheWriteFailed, "creating L2 cache directory")
	}
	return &Cache{
		l1:     gocache.New(l1DefaultTTL, l1CleanupTick),
		l2Dir:  dir,
		remote: remote,
	}, nil
}

// Get checks L1, then L2, then L3 in order, promoting a hit back up to the
// faster tiers it missed.
func (c *Cache) Get(key string) (interface{}, bool) {
	if v, ok := c.l1.Get(key); ok {
		c.hitsL1++
		return v, true
	}

	if v, ok := c.getL2(key); ok {
		c.hitsL2++
		c.l1.SetDefault(key, v)
		return v, true
	}

	if c.remote != nil {
		if raw, ok := c.remote.Get(key); ok {
			var v interface{}
			if err := gobDecode(raw, &v); err == nil {
				c.hitsL3++
				c.l1.SetDefault(key, v)
				_ = c.setL2(key, v, l2DefaultTTL)
				return v, true
			}
		}
	}

	c.misses++
	return nil, false
}

// Set writes through all configured tiers. The value always lands in L1
// first; if the L2 write then fails, Set returns that error (KindResource)
// and the remote tier is not written.
func (c *Cache) Set(key string, value interface{}) error {
	c.l1.SetDefault(key, value)

	if err := c.setL2(key, value, l2DefaultTTL); err != nil {
		return err
	}

	if c.remote != nil {
		if raw, err := gobEncode(value); err == nil {
			c.remote.Set(key, raw, l2DefaultTTL)
		}
	}
	return nil
}

// Delete removes key from L1 and L2. The remote tier is not touched: Remote
// has no delete operation.
func (c *Cache) Delete(key string) {
	c.l1.Delete(key)
	c.l2mu.Lock()
	_ = os.Remove(c.l2Path(key))
	c.l2mu.Unlock()
}

// Stats reports hit/miss counts per tier.
type Stats struct {
	HitsL1, HitsL2, HitsL3, Misses int64
}

func (c *Cache) Stats() Stats {
	return Stats{HitsL1: c.hitsL1, HitsL2: c.hitsL2, HitsL3: c.hitsL3, Misses: c.misses}
}

type l2Entry struct {
	Value      interface{}
	Expiration int64
}

func (c *Cache) l2Path(key string) string {
	return filepath.Join(c.l2Dir, sanitizeKey(key)+".gob")
}

func (c *Cache) getL2(key string) (interface{}, bool) {
	c.l2mu.Lock()
	defer c.l2mu.Unlock()

	data, err := os.ReadFile(c.l2Path(key))
	if err != nil {
		return nil, false
	}
	var entry l2Entry
	if err := gobDecode(data, &entry); err != nil {
		return nil, false
	}
	if entry.Expiration > 0 && time.Now().UnixNano() > entry.Expiration {
		_ = os.Remove(c.l2Path(key))
		return nil, false
	}
	return entry.Value, true
}

func (c *Cache) setL2(key string, value interface{}, ttl time.Duration) error {
	c.l2mu.Lock()
	defer c.l2mu.Unlock()

	entry := l2Entry{Value: value}
	if ttl > 0 {
		entry.Expiration = time.Now().Add(ttl).UnixNano()
	}
	data, err := gobEncode(entry)
	if err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindResource, pipelineerrors.CodeCacheWriteFailed, "encoding L2 entry")
	}
	if err := os.WriteFile(c.l2Path(key), data, 0o644); err != nil {
		return pipelineerrors.Wrap(err, pipelineerrors.KindResource, pipelineerrors.CodeCacheWriteFailed, "writing L2 entry")
	}
	return nil
}

func sanitizeKey(key string) string {
	b := []byte(key)
	for i, c := range b {
		if c == '/' || c == '\\' || c == ':' {
			b[i] = '_'
		}
	}
	return string(b)
}

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
