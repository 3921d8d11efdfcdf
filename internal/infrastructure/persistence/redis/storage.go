package redis

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// Storage is an origin-scoped key/value store for the local star mirror.
// Keys live under local:{origin}: and never expire.
type Storage struct {
	cache  *Cache
	prefix string
}

// NewStorage scopes cache to origin.
func NewStorage(cache *Cache, origin string) *Storage {
	if origin == "" {
		origin = "default"
	}
	return &Storage{cache: cache, prefix: PrefixLocal + origin + ":"}
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.cache.GetString(ctx, s.prefix+key)
	if errors.Is(err, ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Storage) Set(ctx context.Context, key, value string) error {
	return s.cache.SetString(ctx, s.prefix+key, value)
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.cache.Delete(ctx, s.prefix+key)
}

func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	full, err := s.cache.ScanKeys(ctx, s.prefix+"*")
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, s.prefix))
	}
	sort.Strings(keys)
	return keys, nil
}
