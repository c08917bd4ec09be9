package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_SetGet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.Set(ctx, "key", []byte("value"), time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, err := m.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if string(got) != "value" {
		t.Fatalf("Get = %q, want %q", got, "value")
	}
}

func TestMemoryStore_MissReturnsNil(t *testing.T) {
	m := NewMemoryStore()

	got, err := m.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != nil {
		t.Fatalf("Get = %q, want nil", got)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.Set(ctx, "key", []byte("value"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	got, err := m.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got != nil {
		t.Fatalf("expired entry still returned: %q", got)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.Set(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := m.Set(ctx, "b", []byte("2"), time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	if err := m.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	for _, k := range []string{"a", "b"} {
		got, err := m.Get(ctx, k)
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if got != nil {
			t.Fatalf("deleted key %q still returned: %q", k, got)
		}
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.Set(ctx, "key", []byte("value"), time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	first, _ := m.Get(ctx, "key")
	first[0] = 'X'

	second, _ := m.Get(ctx, "key")
	if string(second) != "value" {
		t.Fatalf("cached value mutated through returned slice: %q", second)
	}
}

func TestMemoryStore_RemoveExpired(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.Set(ctx, "old", []byte("1"), -time.Second); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := m.Set(ctx, "fresh", []byte("2"), time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	m.removeExpired()

	m.mu.RLock()
	_, oldKept := m.entries["old"]
	_, freshKept := m.entries["fresh"]
	m.mu.RUnlock()

	if oldKept {
		t.Fatalf("expired entry was not removed")
	}
	if !freshKept {
		t.Fatalf("fresh entry was removed")
	}
}
