package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Storage is a minimal key-value backend with per-key expiry.
type Storage interface {
	Get(ctx context.Context, key string, val any) error
	Set(ctx context.Context, key string, val any, expiresIn time.Duration) error
	Delete(ctx context.Context, key string) error
}

type store[T any] struct {
	storage Storage
}

func (s *store[T]) Get(ctx context.Context, key string) (T, error) {
	var obj T
	err := s.storage.Get(ctx, key, &obj)
	return obj, err
}

func (s *store[T]) Set(ctx context.Context, key string, val T, expiresIn time.Duration) error {
	return s.storage.Set(ctx, key, val, expiresIn)
}

// Remove fetches and deletes the value in one call, returning ErrNotFound
// when the key does not exist. Used for single-use tokens.
func (s *store[T]) Remove(ctx context.Context, key string) (T, error) {
	obj, err := s.Get(ctx, key)
	if err != nil {
		return obj, err
	}
	return obj, s.storage.Delete(ctx, key)
}

func (s *store[T]) Delete(ctx context.Context, key string) error {
	return s.storage.Delete(ctx, key)
}

type Store[T any] interface {
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, val T, expiresIn time.Duration) error
	Remove(ctx context.Context, key string) (T, error)
	Delete(ctx context.Context, key string) error
}

func New[T any](storage Storage, keyPrefix string) Store[T] {
	return &store[T]{
		storage: StorageWithPrefix(storage, keyPrefix),
	}
}
