package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ticket:"

// RedisStore backs the Ticket Store with a shared Redis instance, matching
// the TICKET_STORE_BINDING process configuration in production deployments.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr (a redis:// URL, as passed to TICKET_STORE_BINDING).
func NewRedisStore(addr string) (*RedisStore, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("ticket: parse TICKET_STORE_BINDING: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisStoreFromClient wraps an already-constructed client, for callers
// that want to share a connection pool across subsystems.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Issue implements Store.
func (s *RedisStore) Issue(ctx context.Context, subject string) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	rec := Record{
		Subject:   subject,
		ExpiresAt: time.Now().Add(TTL),
	}
	data, err := rec.marshal()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, keyPrefix+id, data, TTL).Err(); err != nil {
		return "", fmt.Errorf("ticket: issue: %w", err)
	}
	return id, nil
}

// Consume implements Store. GETDEL is atomic on the Redis server: of any
// number of concurrent callers presenting the same id, exactly one observes
// a non-nil value.
func (s *RedisStore) Consume(ctx context.Context, id string) (string, error) {
	data, err := s.client.GetDel(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalid
	}
	if err != nil {
		return "", fmt.Errorf("ticket: consume: %w", err)
	}

	rec, err := unmarshalRecord(data)
	if err != nil {
		return "", fmt.Errorf("ticket: consume: decode record: %w", err)
	}
	if !rec.valid(time.Now()) {
		return "", ErrInvalid
	}
	return rec.Subject, nil
}
