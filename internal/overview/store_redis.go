package overview

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldVersion = "version"
	fieldPayload = "payload"

	maxWriteAttempts = 3
)

var errWriteConflict = errors.New("overview: redis store: write conflict")

// RedisStore shares snapshots between processes. Writes keep the same
// version rule as the in-memory cache using optimistic transactions.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisStore constructs a store; ttl <= 0 keeps entries until evicted.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, prefix: "outletdash:"}
}

// Load reads a snapshot.
func (s *RedisStore) Load(ctx context.Context, key string) (*Snapshot, bool, error) {
	if s == nil || s.client == nil {
		return nil, false, nil
	}
	payload, err := s.client.HGet(ctx, s.prefix+key, fieldPayload).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, false, err
	}
	return &snap, true, nil
}

// Save writes snap unless the stored version is newer. It reports whether the
// value was written.
func (s *RedisStore) Save(ctx context.Context, key string, snap *Snapshot) (bool, error) {
	if s == nil || s.client == nil || snap == nil {
		return false, nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return false, err
	}
	rkey := s.prefix + key
	written := false
	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, rkey, fieldVersion).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil && current > snap.Version {
			written = false
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rkey, fieldVersion, snap.Version, fieldPayload, payload)
			if s.ttl > 0 {
				pipe.Expire(ctx, rkey, s.ttl)
			}
			return nil
		})
		written = err == nil
		return err
	}
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, rkey)
		if err == nil {
			return written, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return false, err
	}
	return false, errWriteConflict
}
