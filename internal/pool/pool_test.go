package pool

import (
	"net"
	"testing"
	"time"
)

func TestAcquireOnEmptyPoolReturnsAbsent(t *testing.T) {
	p := New(10, time.Minute)
	_, ok := p.Acquire(Key{Host: "example", Port: 80})
	if ok {
		t.Fatal("expected no connection in an empty pool")
	}
}

func TestReleaseThenAcquireReturnsSameConn(t *testing.T) {
	p := New(10, time.Minute)
	client, server := net.Pipe()
	defer server.Close()

	key := Key{Host: "example", Port: 80}
	c := Put(client)
	p.Release(key, c)

	got, ok := p.Acquire(key)
	if !ok {
		t.Fatal("expected acquire to find the released connection")
	}
	if got != c {
		t.Fatal("expected the exact same pooled connection back")
	}
}

func TestCleanupIdleEvictsExpired(t *testing.T) {
	p := New(10, time.Millisecond)
	client, server := net.Pipe()
	defer server.Close()

	key := Key{Host: "example", Port: 80}
	p.Release(key, Put(client))

	time.Sleep(5 * time.Millisecond)
	p.CleanupIdle()

	_, ok := p.Acquire(key)
	if ok {
		t.Fatal("expected idle connection to have been evicted")
	}
}

func TestReleaseOverCapacityClosesInsteadOfPooling(t *testing.T) {
	p := New(1, time.Minute)
	key := Key{Host: "example", Port: 80}

	c1, s1 := net.Pipe()
	defer s1.Close()
	p.Release(key, Put(c1))

	c2, s2 := net.Pipe()
	defer s2.Close()
	p.Release(key, Put(c2))

	// second release should have closed c2 since the pool is full
	if _, err := c2.Write([]byte("x")); err == nil {
		t.Fatal("expected over-capacity connection to be closed")
	}
}
