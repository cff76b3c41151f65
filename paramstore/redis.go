package paramstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash the snapshot is stored under.
const DefaultRedisKey = "regtune:best_params"

// lastUpdatedField holds the snapshot timestamp inside the hash. Family
// identifiers never collide with it.
const lastUpdatedField = "last_updated"

// RedisStore keeps the snapshot in one Redis hash: a JSON-encoded Entry per
// family field and the snapshot timestamp in the last_updated field.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore returns a store using client and key. An empty key means
// DefaultRedisKey.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}

	return &RedisStore{client: client, key: key}
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, persistenceError("cache.open", fmt.Errorf("redis ping: %w", err))
	}

	return client, nil
}

// Load implements Store. A missing hash is an empty snapshot.
func (s *RedisStore) Load(ctx context.Context) (Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Snapshot{}, persistenceError("cache.load", err)
	}

	snap := Snapshot{Families: make(map[string]Entry, len(fields))}

	for field, value := range fields {
		if field == lastUpdatedField {
			snap.LastUpdated = parseTime(value)
			continue
		}

		var e Entry
		if err := json.Unmarshal([]byte(value), &e); err != nil {
			return Snapshot{}, persistenceError("cache.load", fmt.Errorf("field %q: %w", field, err))
		}

		snap.Families[field] = e
	}

	return snap, nil
}

// Save implements Store. The hash is replaced in a MULTI/EXEC transaction.
func (s *RedisStore) Save(ctx context.Context, snapshot Snapshot) error {
	values := make(map[string]any, len(snapshot.Families)+1)

	for family, e := range snapshot.Families {
		b, err := json.Marshal(e)
		if err != nil {
			return persistenceError("cache.save", fmt.Errorf("family %q: %w", family, err))
		}

		values[family] = string(b)
	}

	if !snapshot.LastUpdated.IsZero() {
		values[lastUpdatedField] = snapshot.LastUpdated.Format(time.RFC3339Nano)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)

		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}

		return nil
	})

	return persistenceError("cache.save", err)
}
