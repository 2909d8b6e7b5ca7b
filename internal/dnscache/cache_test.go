package dnscache

import (
	"context"
	"testing"
	"time"
)

func TestResolveCachesAndCountsHits(t *testing.T) {
	c := New(time.Minute, nil)

	if _, err := c.Resolve(context.Background(), "localhost", 80); err != nil {
		t.Skipf("localhost did not resolve in this environment: %v", err)
	}
	hits, misses := c.HitsMisses()
	if misses != 1 || hits != 0 {
		t.Fatalf("after first resolve: hits=%d misses=%d", hits, misses)
	}

	if _, err := c.Resolve(context.Background(), "localhost", 80); err != nil {
		t.Fatal(err)
	}
	hits, misses = c.HitsMisses()
	if hits != 1 || misses != 1 {
		t.Fatalf("after second resolve: hits=%d misses=%d", hits, misses)
	}
}

func TestStaleEntryIsEvictedAsMiss(t *testing.T) {
	c := New(time.Nanosecond, nil)
	if _, err := c.Resolve(context.Background(), "localhost", 80); err != nil {
		t.Skipf("localhost did not resolve: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := c.Resolve(context.Background(), "localhost", 80); err != nil {
		t.Fatal(err)
	}
	_, misses := c.HitsMisses()
	if misses != 2 {
		t.Fatalf("expected stale entry to count as a second miss, got misses=%d", misses)
	}
}

func TestClearEmptiesCache(t *testing.T) {
	c := New(time.Minute, nil)
	if _, err := c.Resolve(context.Background(), "localhost", 80); err != nil {
		t.Skipf("localhost did not resolve: %v", err)
	}
	c.Clear()
	if len(c.entries) != 0 {
		t.Fatal("expected cache to be empty after Clear")
	}
}
