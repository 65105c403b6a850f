package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const verificationKeyPrefix = "verification:"

// RedisVerificationStore keeps sign-in tokens in Redis with a TTL matching the
// token expiry. GETDEL makes consumption atomic across API replicas.
type RedisVerificationStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisVerificationStore wraps an existing client.
func NewRedisVerificationStore(rdb *redis.Client) *RedisVerificationStore {
	return &RedisVerificationStore{rdb: rdb, now: time.Now}
}

func (s *RedisVerificationStore) CreateVerificationToken(ctx context.Context, vt VerificationToken) error {
	ttl := vt.Expires.Sub(s.now())
	if ttl <= 0 {
		return errors.New("verification token already expired")
	}
	if err := s.rdb.Set(ctx, verificationKey(vt.Identifier, vt.Token), vt.Expires.UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}
	return nil
}

func (s *RedisVerificationStore) UseVerificationToken(ctx context.Context, identifier, token string) (*VerificationToken, error) {
	raw, err := s.rdb.GetDel(ctx, verificationKey(identifier, token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("use verification token: %w", err)
	}
	expires, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("decode verification token expiry: %w", err)
	}
	return &VerificationToken{Identifier: identifier, Token: token, Expires: expires}, nil
}

func verificationKey(identifier, token string) string {
	return verificationKeyPrefix + identifier + ":" + token
}
