package cache

import (
	"testing"
	"time"
)

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory()

	if err := m.Put("k", "v", 60); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := m.Get("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v" {
		t.Errorf("got %q, want %q", got, "v")
	}
}

func TestMemoryMissingKey(t *testing.T) {
	m := NewMemory()

	if _, err := m.Get("absent"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Put("k", "v", 10)

	now = now.Add(9 * time.Second)
	if _, err := m.Get("k"); err != nil {
		t.Fatalf("entry expired early: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := m.Get("k"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound after expiry", err)
	}
}

func TestMemoryZeroTTLDoesNotExpire(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }

	m.Put("k", "v", 0)

	now = now.Add(24 * time.Hour)
	if _, err := m.Get("k"); err != nil {
		t.Errorf("zero-ttl entry expired: %v", err)
	}
}

func TestMemoryRemove(t *testing.T) {
	m := NewMemory()
	m.Put("k", "v", 60)

	if err := m.Remove("k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := m.Get("k"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound after remove", err)
	}
	// Removing an absent key is not an error.
	if err := m.Remove("k"); err != nil {
		t.Errorf("second remove: %v", err)
	}
}
