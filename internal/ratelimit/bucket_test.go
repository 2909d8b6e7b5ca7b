package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestUnlimitedIsSideEffectFree(t *testing.T) {
	b := New(0, 0)
	start := time.Now()
	for i := 0; i < 1000; i++ {
		if err := b.Acquire(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("unlimited bucket should not block")
	}
}

func TestBurstThenBlocks(t *testing.T) {
	b := New(10, 10)
	start := time.Now()
	for i := 0; i < 10; i++ {
		if !b.TryAcquire() {
			t.Fatalf("acquire %d should succeed immediately", i)
		}
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("10 immediate acquires took %v", elapsed)
	}
	if b.TryAcquire() {
		t.Fatal("11th immediate acquire should fail")
	}
}

func TestSetRateResets(t *testing.T) {
	b := New(1, 1)
	b.TryAcquire()
	b.SetRate(100, 100)
	for i := 0; i < 100; i++ {
		if !b.TryAcquire() {
			t.Fatalf("acquire %d should succeed after raising rate", i)
		}
	}
}
