// Package cache memoizes expensive pure computations (decoded surfaces,
// derived arrays, rendered layers) in a bounded in-process LRU with expiry,
// optionally backed by a shared store such as Redis for JSON-serializable
// results.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/groupcache/lru"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lox/reservoirviz/internal/metrics"
)

// ErrMiss is returned by a Store when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is a shared byte cache used as a second level behind the in-process
// LRU.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

const (
	DefaultSize = 256
	DefaultTTL  = time.Hour
)

// Key identifies one memoized call: the function name plus a hash of its
// arguments.
type Key struct {
	Fn   string
	Hash uint64
}

func (k Key) String() string {
	return k.Fn + ":" + strconv.FormatUint(k.Hash, 16)
}

// NewKey hashes the arguments of a call to fn. Supported argument types are
// strings, bools, integers, floats, and float pointers; anything else is
// formatted with %v.
func NewKey(fn string, args ...any) Key {
	h := xxhash.New()
	var buf [8]byte
	putU := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	for _, a := range args {
		switch v := a.(type) {
		case string:
			putU(uint64(len(v)))
			h.WriteString(v)
		case bool:
			if v {
				putU(1)
			} else {
				putU(0)
			}
		case int:
			putU(uint64(v))
		case uint64:
			putU(v)
		case float64:
			putU(math.Float64bits(v))
		case *float64:
			if v == nil {
				putU(0)
			} else {
				putU(1)
				putU(math.Float64bits(*v))
			}
		default:
			s := fmt.Sprintf("%T:%v", a, a)
			putU(uint64(len(s)))
			h.WriteString(s)
		}
		h.Write([]byte{0})
	}
	return Key{Fn: fn, Hash: h.Sum64()}
}

type entry struct {
	value   any
	expires time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	lru    *lru.Cache
	ttl    time.Duration
	shared Store
	group  singleflight.Group
	log    *zap.Logger
	now    func() time.Time
}

type Option func(*Cache)

// WithShared adds a second-level store for RememberJSON.
func WithShared(s Store) Option {
	return func(c *Cache) { c.shared = s }
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns a cache holding at most size entries, each for ttl. Zero
// values select DefaultSize and DefaultTTL.
func New(size int, ttl time.Duration, log *zap.Logger, opts ...Option) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{
		lru: lru.New(size),
		ttl: ttl,
		log: log,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if !c.now().Before(e.expires) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) put(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{value: v, expires: c.now().Add(c.ttl)})
}

// Len reports the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every in-process entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Clear()
}

func record(key Key, result string) {
	metrics.CacheRequestsTotal.WithLabelValues(key.Fn, result).Inc()
}

// Remember returns the memoized result of load for key, calling load at
// most once for concurrent callers of the same key. Errors are not cached.
// Values are shared between callers and must be treated as read-only.
func Remember[T any](ctx context.Context, c *Cache, key Key, load func(context.Context) (T, error)) (T, error) {
	id := key.String()
	if v, ok := c.get(id); ok {
		record(key, "hit")
		return v.(T), nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		if v, ok := c.get(id); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.put(id, v)
		return v, nil
	})
	if err != nil {
		record(key, "error")
		var zero T
		return zero, err
	}
	record(key, "miss")
	return v.(T), nil
}

// RememberJSON is Remember with a second level: results are also written to
// the shared store as JSON so other processes can reuse them. Shared store
// failures are logged and otherwise ignored.
func RememberJSON[T any](ctx context.Context, c *Cache, key Key, load func(context.Context) (T, error)) (T, error) {
	if c.shared == nil {
		return Remember(ctx, c, key, load)
	}
	id := key.String()
	if v, ok := c.get(id); ok {
		record(key, "hit")
		return v.(T), nil
	}

	type result struct {
		v      T
		shared bool
	}
	r, err, _ := c.group.Do(id, func() (any, error) {
		data, err := c.shared.Get(ctx, id)
		if err == nil {
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				c.put(id, v)
				return result{v: v, shared: true}, nil
			}
			c.log.Warn("discarding undecodable shared cache entry", zap.String("key", id))
		} else if !errors.Is(err, ErrMiss) {
			c.log.Warn("shared cache get failed", zap.String("key", id), zap.Error(err))
		}

		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.put(id, v)
		if data, err := json.Marshal(v); err != nil {
			c.log.Warn("shared cache encode failed", zap.String("key", id), zap.Error(err))
		} else if err := c.shared.Set(ctx, id, data, c.ttl); err != nil {
			c.log.Warn("shared cache set failed", zap.String("key", id), zap.Error(err))
		}
		return result{v: v}, nil
	})
	if err != nil {
		record(key, "error")
		var zero T
		return zero, err
	}
	res := r.(result)
	if res.shared {
		record(key, "shared")
	} else {
		record(key, "miss")
	}
	return res.v, nil
}
