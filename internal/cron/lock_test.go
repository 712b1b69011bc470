package cron

import (
	"context"
	"testing"
	"time"
)

type memoryStore struct {
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExcludesSecondOwner(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	first, err := NewRedisLock(store, "library:lock:cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, _ := NewRedisLock(store, "library:lock:cron", time.Minute)

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("second owner must not acquire a held lock")
	}
	// A non-owner release leaves the lock in place.
	if err := second.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, held := store.values["library:lock:cron"]; !held {
		t.Fatal("lock released by non-owner")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected lock to be free after owner release")
	}
}

func TestRedisLockReleaseAfterLeaseTakenOver(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	lock, _ := NewRedisLock(store, "library:lock:cron", time.Minute)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	// Lease expired and another replica took it.
	store.values["library:lock:cron"] = "other-owner"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["library:lock:cron"] != "other-owner" {
		t.Fatal("release must not remove a lease held by another owner")
	}
}

func TestNewRedisLockValidatesInput(t *testing.T) {
	if _, err := NewRedisLock(nil, "key", 0); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisLock(newMemoryStore(), "", 0); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestLocalLock(t *testing.T) {
	lock := NewLocalLock()
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if ok, _ := lock.Acquire(ctx); ok {
		t.Fatal("expected second acquire to fail")
	}
	_ = lock.Release(ctx)
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release")
	}
}
