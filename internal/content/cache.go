package content

import (
	"time"
	"unsafe"

	"github.com/coocood/freecache"

	"minuto/pkg/logger"
)

type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

type freeCache struct {
	cache *freecache.Cache
	ttl   int
}

// NewCache returns a freecache of sizeMB megabytes, or a cache that stores
// nothing when disabled.
func NewCache(enabled bool, sizeMB int, ttl time.Duration, l *logger.Logger) Cache {
	if !enabled || sizeMB <= 0 {
		l.Infow("Content cache disabled")
		return noopCache{}
	}

	seconds := max(int(ttl.Seconds()), 1)
	l.Infow("Content cache initialized", "size_mb", sizeMB, "ttl_sec", seconds)

	return &freeCache{
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:   seconds,
	}
}

// freecache copies keys, so reading the string's bytes in place is safe.
func keyBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func (c *freeCache) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get(keyBytes(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *freeCache) Set(key string, value []byte) {
	_ = c.cache.Set(keyBytes(key), value, c.ttl)
}

type noopCache struct{}

func (noopCache) Get(string) ([]byte, bool) { return nil, false }
func (noopCache) Set(string, []byte)        {}
