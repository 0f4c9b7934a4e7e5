package naming

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of memoized filenames.
const DefaultCacheSize = 4096

// CachedParser memoizes Parse results in a bounded LRU. Parse is pure, so the
// filename alone is a sufficient key. Safe for concurrent use.
type CachedParser struct {
	cache *lru.Cache[string, ParsedInfo]
}

// NewCachedParser creates a parser cache holding at most size entries.
// A non-positive size falls back to DefaultCacheSize.
func NewCachedParser(size int) *CachedParser {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, ParsedInfo](size)
	if err != nil {
		// lru.New only fails for size <= 0
		panic(err)
	}
	return &CachedParser{cache: cache}
}

// Parse returns the cached result for filename, parsing on a miss.
func (c *CachedParser) Parse(filename string) ParsedInfo {
	if info, ok := c.cache.Get(filename); ok {
		return info
	}
	info := Parse(filename)
	c.cache.Add(filename, info)
	return info
}

// Len returns the number of cached entries.
func (c *CachedParser) Len() int {
	return c.cache.Len()
}

// Purge drops every cached entry.
func (c *CachedParser) Purge() {
	c.cache.Purge()
}
