package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const indexPrefix = "attendance:token:"

// RedisIndex keeps a token→session cache with a TTL slightly past the
// window, giving ValidateToken an O(1) hot path without a DB round trip.
type RedisIndex struct {
	client *redis.Client
}

// NewRedisIndex creates the index.
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

// Put stores the session keyed by its token. The TTL outlives the expiry
// by a minute so a just-expired token still resolves to ExpiredToken
// instead of a cache miss.
func (i *RedisIndex) Put(ctx context.Context, s Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt) + time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	return i.client.Set(ctx, indexPrefix+s.Token, payload, ttl).Err()
}

// Get resolves a token; a miss or decode failure falls back to the DB.
func (i *RedisIndex) Get(ctx context.Context, token string) (*Session, bool) {
	raw, err := i.client.Get(ctx, indexPrefix+token).Bytes()
	if err != nil {
		return nil, false
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// Del drops a token, used when its session closes.
func (i *RedisIndex) Del(ctx context.Context, token string) error {
	return i.client.Del(ctx, indexPrefix+token).Err()
}
