package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session keys in a shared Redis database.
const DefaultRedisPrefix = "jarvis:session:"

// RedisStore keeps each payload under prefix+id. Keys never expire.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

// List implements Store.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	return newestFirst(keys), nil
}

// Read implements Store.
func (s *RedisStore) Read(ctx context.Context, id string) ([]byte, bool, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Op: "read", Key: id, Err: err}
	}
	return payload, true, nil
}

// Write implements Store.
func (s *RedisStore) Write(ctx context.Context, id string, payload []byte) error {
	if err := s.client.Set(ctx, s.key(id), payload, 0).Err(); err != nil {
		return &Error{Op: "write", Key: id, Err: err}
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return &Error{Op: "delete", Key: id, Err: err}
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
