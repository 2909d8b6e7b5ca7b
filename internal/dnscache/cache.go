// Package dnscache implements the TTL-bounded host→addresses cache the
// dialer consults before every connection attempt, grounded on the
// teacher's own net.Resolver wrapping in internal/dialer/dns.go.
package dnscache

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AddressInfo is a single resolved endpoint, already split by family so
// the Happy Eyeballs dialer doesn't need to re-inspect each address.
type AddressInfo struct {
	Addr netip.Addr
}

// IsV6 reports whether this address is an IPv6 literal.
func (a AddressInfo) IsV6() bool { return a.Addr.Is6() && !a.Addr.Is4In6() }

// Result is a resolution split into family buckets in the order the OS
// resolver returned them.
type Result struct {
	V4, V6 []AddressInfo
}

// Empty reports whether a resolution produced no addresses in either
// bucket.
func (r Result) Empty() bool { return len(r.V4) == 0 && len(r.V6) == 0 }

type entry struct {
	result   Result
	cachedAt time.Time
	ttl      time.Duration
}

func (e *entry) fresh(now time.Time) bool {
	return now.Sub(e.cachedAt) < e.ttl
}

// Cache is a mutex-protected host→Result map with hit/miss counters.
// The blocking system resolution runs outside the lock so concurrent
// lookups for different hosts never serialize on each other.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	hits    uint64
	misses  uint64

	ttl      time.Duration
	resolver *net.Resolver
}

// New creates a Cache with the given default TTL for freshly resolved
// entries. A nil resolver uses net.DefaultResolver.
func New(ttl time.Duration, resolver *net.Resolver) *Cache {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Cache{
		entries:  make(map[string]*entry),
		ttl:      ttl,
		resolver: resolver,
	}
}

func key(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Resolve returns the address list for host:port, serving a fresh cache
// entry if one exists and performing — and caching — a fresh system
// resolution otherwise.
func (c *Cache) Resolve(ctx context.Context, host string, port int) (Result, error) {
	k := key(host, port)
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[k]; ok {
		if e.fresh(now) {
			c.hits++
			r := e.result
			c.mu.Unlock()
			return r, nil
		}
		delete(c.entries, k)
	}
	c.misses++
	c.mu.Unlock()

	addrs, err := c.doResolve(ctx, host)
	if err != nil {
		return Result{}, err
	}
	result := split(addrs)

	if !result.Empty() {
		c.mu.Lock()
		c.entries[k] = &entry{result: result, cachedAt: time.Now(), ttl: c.ttl}
		c.mu.Unlock()
	}
	return result, nil
}

func (c *Cache) doResolve(ctx context.Context, host string) ([]netip.Addr, error) {
	ipAddrs, err := c.resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	out := make([]netip.Addr, 0, len(ipAddrs))
	for _, ip := range ipAddrs {
		if a, ok := netip.AddrFromSlice(ip); ok {
			out = append(out, a.Unmap())
		}
	}
	return out, nil
}

func split(addrs []netip.Addr) Result {
	var r Result
	for _, a := range addrs {
		if a.Is4() {
			r.V4 = append(r.V4, AddressInfo{Addr: a})
		} else {
			r.V6 = append(r.V6, AddressInfo{Addr: a})
		}
	}
	return r
}

// Warmup resolves host:port and discards the result, populating the
// cache as a side effect.
func (c *Cache) Warmup(ctx context.Context, host string, port int) {
	c.Resolve(ctx, host, port)
}

// Cleanup erases every entry whose age has reached its TTL.
func (c *Cache) Cleanup() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for k, e := range c.entries {
		if !e.fresh(now) {
			delete(c.entries, k)
			evicted++
		}
	}
	if evicted > 0 {
		logrus.WithField("evicted", evicted).Debug("dnscache: cleanup evicted expired entries")
	}
}

// Clear empties the cache entirely, without touching hit/miss counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// HitsMisses returns the cumulative hit and miss counts.
func (c *Cache) HitsMisses() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
