package shared

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gregjones/httpcache"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/peterbourgon/diskv"
)

// maxCacheEntries bounds the size index; the byte budget is what normally evicts.
const maxCacheEntries = 1 << 16

// NewHTTPClient builds the client shared by the directory and feed clients.
//
// Responses pass through an on-disk cache bounded by cfg.CacheMaxBytes, and successful
// responses are stamped with a max-age of cfg.MaxAge so the cache reuses them for that
// long regardless of what the origin sent. An empty CacheDir disables the cache.
func NewHTTPClient(cfg HTTPConfig, logger *log.Logger) (*http.Client, error) {
	var rt http.RoundTripper = &maxAgeTransport{
		next:      http.DefaultTransport,
		maxAge:    cfg.MaxAge,
		userAgent: cfg.UserAgent,
	}

	if cfg.CacheDir != "" && cfg.CacheMaxBytes > 0 {
		cache, err := NewDiskCache(cfg.CacheDir, cfg.CacheMaxBytes, logger)
		if err != nil {
			return nil, err
		}
		t := httpcache.NewTransport(cache)
		t.Transport = rt
		t.MarkCachedResponses = true
		rt = t
	}

	return &http.Client{Transport: rt, Timeout: cfg.Timeout}, nil
}

// FromCache reports whether resp was served from the response cache.
func FromCache(resp *http.Response) bool {
	return resp != nil && resp.Header.Get(httpcache.XFromCache) == "1"
}

// maxAgeTransport rewrites Cache-Control on responses and sets a default User-Agent.
type maxAgeTransport struct {
	next      http.RoundTripper
	maxAge    time.Duration
	userAgent string
}

func (t *maxAgeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && t.maxAge > 0 {
		resp.Header.Set("Cache-Control", fmt.Sprintf("max-age=%d", int(t.maxAge.Seconds())))
		resp.Header.Del("Expires")
		resp.Header.Del("Pragma")
	} else {
		resp.Header.Set("Cache-Control", "no-store")
	}
	return resp, nil
}

// DiskCache is an [httpcache.Cache] stored with diskv and bounded by total bytes.
//
// Entry sizes are tracked in an LRU index; when the total exceeds the budget the least
// recently used responses are erased from disk.
type DiskCache struct {
	mu       sync.Mutex
	d        *diskv.Diskv
	sizes    *lru.Cache[string, int64]
	total    int64
	maxBytes int64
	logger   *log.Logger
}

var _ httpcache.Cache = (*DiskCache)(nil)

// NewDiskCache opens (or creates) the cache directory and indexes any entries already on disk.
func NewDiskCache(dir string, maxBytes int64, logger *log.Logger) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if logger == nil {
		logger = NewLogger(nil)
	}

	c := &DiskCache{
		d:        diskv.New(diskv.Options{BasePath: dir, CacheSizeMax: 1 << 20}),
		maxBytes: maxBytes,
		logger:   WithLogger(logger, "component", "http-cache"),
	}

	sizes, err := lru.NewWithEvict(maxCacheEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache index: %w", err)
	}
	c.sizes = sizes

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.d.Keys(nil) {
		fi, err := os.Stat(filepath.Join(dir, key))
		if err != nil {
			continue
		}
		c.sizes.Add(key, fi.Size())
		c.total += fi.Size()
	}
	c.shrink()

	return c, nil
}

// Get returns the cached response bytes for key.
func (c *DiskCache) Get(key string) ([]byte, bool) {
	k := hashKey(key)
	b, err := c.d.Read(k)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	c.sizes.Get(k)
	c.mu.Unlock()
	return b, true
}

// Set stores response bytes for key, evicting older entries past the byte budget.
func (c *DiskCache) Set(key string, resp []byte) {
	k := hashKey(key)
	if err := c.d.Write(k, resp); err != nil {
		c.logger.Warn("failed to write cache entry", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.sizes.Peek(k); ok {
		c.total -= old
	}
	size := int64(len(resp))
	c.sizes.Add(k, size)
	c.total += size
	c.shrink()
}

// Delete removes the entry for key.
func (c *DiskCache) Delete(key string) {
	k := hashKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sizes.Remove(k) {
		_ = c.d.Erase(k)
	}
}

// Size returns the bytes currently held on disk.
func (c *DiskCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// shrink evicts least recently used entries until the budget holds. Callers hold mu.
func (c *DiskCache) shrink() {
	for c.total > c.maxBytes && c.sizes.Len() > 0 {
		c.sizes.RemoveOldest()
	}
}

// onEvict runs under mu from Add, Remove and RemoveOldest.
func (c *DiskCache) onEvict(key string, size int64) {
	c.total -= size
	if err := c.d.Erase(key); err != nil {
		c.logger.Debug("failed to erase cache entry", "key", key, "error", err)
	}
}

func hashKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}
