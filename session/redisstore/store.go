// Package redisstore keeps the durable session mirror in Redis, for tills that share a login
// across terminals or run without a writable disk.
package redisstore

import (
	"context"
	"time"

	"github.com/jrsteele09/go-pos-client/session"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const opTimeout = 5 * time.Second

var _ session.Store = (*Store)(nil)

// Store implements session.Store on Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration // 0 keeps keys until cleared
}

type Option func(*Store)

// WithTTL expires stored keys after ttl.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// Open connects to the Redis server at dsn (redis://host:port/db) and pings it.
func Open(dsn string, options ...Option) (*Store, error) {
	opt, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[redisstore.Open] redis.ParseURL")
	}
	opt.PoolSize = 4
	opt.DialTimeout = opTimeout

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[redisstore.Open] ping")
	}
	return New(client, options...), nil
}

// New wraps an existing client.
func New(client *redis.Client, options ...Option) *Store {
	s := &Store{client: client}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", session.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "[redisstore.Get] %s", key)
	}
	return v, nil
}

func (s *Store) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return errors.Wrapf(s.client.Set(ctx, key, value, s.ttl).Err(), "[redisstore.Set] %s", key)
}

// Delete removes all keys with a single DEL.
func (s *Store) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return errors.Wrap(s.client.Del(ctx, keys...).Err(), "[redisstore.Delete]")
}

func (s *Store) Close() error {
	return s.client.Close()
}
