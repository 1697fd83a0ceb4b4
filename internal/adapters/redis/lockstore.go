package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const holdKeyPrefix = "hold:"

// LockStore is the fast mutual-exclusion store backing ticket holds.
// SetNX with a TTL is the cross-process arbiter: first writer wins.
type LockStore struct {
	client *redis.Client
}

func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func (s *LockStore) Client() *redis.Client {
	return s.client
}

// Acquire sets hold:<ticketID> to holderID iff absent. Returns false when
// another holder already owns the key.
func (s *LockStore) Acquire(ctx context.Context, ticketID, holderID string, ttl time.Duration) (bool, error) {
	res := s.client.SetNX(ctx, holdKeyPrefix+ticketID, holderID, ttl)
	return res.Val(), res.Err()
}

// Release deletes the lock key regardless of who holds it.
func (s *LockStore) Release(ctx context.Context, ticketID string) error {
	return s.client.Del(ctx, holdKeyPrefix+ticketID).Err()
}

func (s *LockStore) Holder(ctx context.Context, ticketID string) (string, error) {
	val, err := s.client.Get(ctx, holdKeyPrefix+ticketID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (s *LockStore) IsLocked(ctx context.Context, ticketID string) (bool, error) {
	n, err := s.client.Exists(ctx, holdKeyPrefix+ticketID).Result()
	return n > 0, err
}
