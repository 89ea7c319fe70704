package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memStorage struct {
	entries map[string]any
}

func newMemStorage() *memStorage {
	return &memStorage{entries: make(map[string]any)}
}

func (s *memStorage) Get(ctx context.Context, key string, val any) error {
	stored, ok := s.entries[key]
	if !ok {
		return ErrNotFound
	}
	*(val.(*string)) = stored.(string)
	return nil
}

func (s *memStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	s.entries[key] = val
	return nil
}

func (s *memStorage) Delete(ctx context.Context, key string) error {
	if _, ok := s.entries[key]; !ok {
		return ErrNotFound
	}
	delete(s.entries, key)
	return nil
}

func TestStoreKeyPrefix(t *testing.T) {
	backend := newMemStorage()
	s := New[string](backend, "tk:")

	if err := s.Set(context.Background(), "abc", "value", time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if _, ok := backend.entries["tk:abc"]; !ok {
		t.Fatalf("expected prefixed key, stored keys: %v", backend.entries)
	}

	got, err := s.Get(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != "value" {
		t.Errorf("got %q, want %q", got, "value")
	}
}

func TestStoreRemove(t *testing.T) {
	s := New[string](newMemStorage(), "tk:")

	if err := s.Set(context.Background(), "abc", "value", time.Minute); err != nil {
		t.Fatal(err)
	}
	got, err := s.Remove(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if got != "value" {
		t.Errorf("got %q, want %q", got, "value")
	}

	// second remove finds nothing
	if _, err := s.Remove(context.Background(), "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := New[string](newMemStorage(), "tk:")
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
