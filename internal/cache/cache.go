// Package cache holds worker query results for a short time so repeated
// resource reads do not queue behind slow commands.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lydakis/kicad-mcp/internal/dispatch"
)

type entry struct {
	resp    dispatch.Response
	created time.Time
	expires time.Time
}

// Cache is an in-memory TTL cache keyed by operation and arguments. A zero
// TTL disables it. The zero value is not usable; call New.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// New returns a cache whose entries live for ttl.
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now, entries: map[string]entry{}}
}

// Enabled reports whether entries are retained at all.
func (c *Cache) Enabled() bool {
	return c != nil && c.ttl > 0
}

// Get looks up a cached response. Expired entries are removed.
func (c *Cache) Get(op string, args map[string]any) (dispatch.Response, bool) {
	if !c.Enabled() {
		return nil, false
	}
	key, err := Key(op, args)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.resp, true
}

// Age returns how long ago a live entry was stored.
func (c *Cache) Age(op string, args map[string]any) (time.Duration, bool) {
	if !c.Enabled() {
		return 0, false
	}
	key, err := Key(op, args)
	if err != nil {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return 0, false
	}
	age := c.now().Sub(e.created)
	if age < 0 {
		age = 0
	}
	return age, true
}

// Put stores a successful response. Worker-reported failures are not cached.
func (c *Cache) Put(op string, args map[string]any, resp dispatch.Response) error {
	if !c.Enabled() || !resp.Success() {
		return nil
	}
	key, err := Key(op, args)
	if err != nil {
		return err
	}

	now := c.now()
	c.mu.Lock()
	c.entries[key] = entry{resp: resp, created: now, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key hashes op and the canonical JSON encoding of args. encoding/json
// sorts map keys, so equal argument maps produce equal keys.
func Key(op string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding cache key for %s: %w", op, err)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s", op, data)
	return hex.EncodeToString(h.Sum(nil))[:32], nil
}
