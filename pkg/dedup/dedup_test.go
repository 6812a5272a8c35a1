package dedup

import (
	"testing"
	"time"
)

func TestSuppressorSuppressesWithinTTL(t *testing.T) {
	s := New(time.Minute, 10)

	if !s.ShouldNotify("cycle-failed:12345") {
		t.Fatal("first occurrence suppressed")
	}
	if s.ShouldNotify("cycle-failed:12345") {
		t.Fatal("repeat within TTL not suppressed")
	}
	if !s.ShouldNotify("cycle-failed:67890") {
		t.Fatal("unrelated key suppressed")
	}
}

func TestSuppressorReset(t *testing.T) {
	s := New(time.Minute, 10)

	s.ShouldNotify("k")
	s.Reset("k")
	if !s.ShouldNotify("k") {
		t.Fatal("key still suppressed after reset")
	}
}

func TestSuppressorExpiry(t *testing.T) {
	s := New(10*time.Millisecond, 10)

	s.ShouldNotify("k")
	time.Sleep(20 * time.Millisecond)
	if !s.ShouldNotify("k") {
		t.Fatal("key still suppressed after TTL")
	}
}

func TestSuppressorEmptyKey(t *testing.T) {
	s := New(time.Minute, 10)
	if !s.ShouldNotify("") || !s.ShouldNotify("") {
		t.Fatal("empty key must never be suppressed")
	}
}
