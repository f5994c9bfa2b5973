// Package suggestcache implements the persistent, bounded, time-expiring
// remote-suggestion cache of spec §4.7: a process-wide map from UTF-8
// midashi to a timestamped candidate list, protected by a single
// reader-writer lock and mirrored to disk as a SHA-1-signed serialized
// blob.
//
// Grounded on the teacher's use of json-iterator/go for on-disk
// serialization (the project already depends on it for fast JSON
// marshaling) and on src/skk/google_cache.rs's read/write/get/put shape
// from the retrieved original source.
package suggestcache

import (
	"bytes"
	"crypto/sha1"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/wachikun/yaskkserv2/internal/yaskkerr"
	"k8s.io/klog/v2"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// entry is the on-disk/in-memory shape of one cached midashi's value: a
// fresh-write timestamp (Unix seconds) followed by its candidate strings,
// matching spec §4.7's "list whose first element is a decimal Unix-seconds
// timestamp... followed by candidate byte strings".
type entry struct {
	Timestamp  int64    `json:"ts"`
	Candidates [][]byte `json:"c"`
}

// Cache is the process-wide suggestion cache. The zero value is not usable;
// construct with New or Load.
type Cache struct {
	mu       sync.RWMutex
	data     map[string]entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// New returns an empty cache with the given capacity and TTL.
func New(capacity int, ttlSeconds int64) *Cache {
	return &Cache{
		data:     make(map[string]entry),
		capacity: capacity,
		ttl:      time.Duration(ttlSeconds) * time.Second,
		now:      time.Now,
	}
}

// Load reads a persisted cache file (spec §6.4: 20-byte SHA-1 followed by
// the serialized map). A missing file yields an empty, usable cache (first
// run); a present-but-unreadable file yields CacheOpen; a present file
// whose hash does not match its payload yields BrokenCache.
func Load(path string, capacity int, ttlSeconds int64) (*Cache, error) {
	c := New(capacity, ttlSeconds)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, yaskkerr.Wrap(yaskkerr.CacheOpen, "open suggestion cache "+path, err)
	}
	if len(raw) < sha1.Size {
		return nil, yaskkerr.New(yaskkerr.BrokenCache, "suggestion cache truncated")
	}
	wantHash, payload := raw[:sha1.Size], raw[sha1.Size:]
	sum := sha1.Sum(payload)
	if !bytes.Equal(sum[:], wantHash) {
		return nil, yaskkerr.New(yaskkerr.BrokenCache, "suggestion cache hash mismatch")
	}
	var data map[string]entry
	if err := jsonAPI.Unmarshal(payload, &data); err != nil {
		return nil, yaskkerr.Wrap(yaskkerr.BrokenCache, "suggestion cache deserialize", err)
	}
	c.data = data
	return c, nil
}

// Get returns the cached candidates for midashi (UTF-8), dropping the
// timestamp, or (nil, false) if absent.
func (c *Cache) Get(midashi []byte) ([][]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[string(midashi)]
	if !ok {
		return nil, false
	}
	return e.Candidates, true
}

// Put implements spec §4.7's put(): insert-with-fresh-timestamp, filter
// expired entries, evict oldest entries until within capacity, replace
// the map, and persist to path. The whole sequence runs under the write
// lock as one short critical section.
func (c *Cache) Put(path string, midashi []byte, candidates [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := string(midashi)
	if existing, ok := c.data[key]; ok && candidatesEqual(existing.Candidates, candidates) {
		return nil
	}

	next := make(map[string]entry, len(c.data)+1)
	for k, v := range c.data {
		next[k] = v
	}
	next[key] = entry{Timestamp: c.now().Unix(), Candidates: candidates}

	cutoff := c.now().Add(-c.ttl).Unix()
	for k, v := range next {
		if v.Timestamp < cutoff {
			klog.V(3).Infof("suggestcache: expiring %q", k)
			delete(next, k)
		}
	}

	for len(next) > c.capacity {
		oldestKey := ""
		var oldestTs int64
		first := true
		for k, v := range next {
			if first || v.Timestamp < oldestTs {
				oldestKey, oldestTs, first = k, v.Timestamp, false
			}
		}
		delete(next, oldestKey)
	}

	c.data = next
	return c.persist(path)
}

func (c *Cache) persist(path string) error {
	payload, err := jsonAPI.Marshal(c.data)
	if err != nil {
		return yaskkerr.Wrap(yaskkerr.Serialize, "serialize suggestion cache", err)
	}
	sum := sha1.Sum(payload)
	out := make([]byte, 0, sha1.Size+len(payload))
	out = append(out, sum[:]...)
	out = append(out, payload...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return yaskkerr.Wrap(yaskkerr.Io, "write suggestion cache "+path, err)
	}
	return nil
}

// candidatesEqual short-circuits Put's no-op-write case. Candidate lists can
// run to dozens of entries per midashi, so a cheap xxhash digest over the
// joined bytes rejects the common unequal case without a field-by-field
// bytes.Equal walk; a digest match still falls through to the exact compare
// since xxhash is not collision-free.
func candidatesEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	if digest(a) != digest(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func digest(candidates [][]byte) uint64 {
	h := xxhash.New()
	for _, c := range candidates {
		_, _ = h.Write(c)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Len returns the current entry count; exposed for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Keys returns a sorted snapshot of cached midashi keys; exposed for tests
// and diagnostics.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
