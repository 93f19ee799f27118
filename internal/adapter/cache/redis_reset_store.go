// Package cache holds Redis-backed alternatives to the Postgres stores.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quickmart/quickmart-auth/internal/domain"
	"github.com/quickmart/quickmart-auth/internal/repository"
)

// RedisResetTokenStore keeps password reset tokens in Redis. Expiry rides on
// the key TTL and single-use consumption on GETDEL, which removes the key in
// the same atomic step that reads it.
type RedisResetTokenStore struct {
	client redis.UniversalClient
}

var _ repository.ResetTokenRepository = (*RedisResetTokenStore)(nil)

// NewRedisResetTokenStore constructs a Redis-backed reset token store.
func NewRedisResetTokenStore(client redis.UniversalClient) *RedisResetTokenStore {
	return &RedisResetTokenStore{client: client}
}

func resetKey(userID int64, token string) string {
	return fmt.Sprintf("pwreset:%d:%s", userID, token)
}

type resetPayload struct {
	ID       int64     `json:"id"`
	IssuedAt time.Time `json:"issued_at"`
}

// Create stores the token under a TTL matching its expiry.
func (s *RedisResetTokenStore) Create(ctx context.Context, token domain.PasswordResetToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("reset token already expired")
	}
	payload, err := json.Marshal(resetPayload{ID: token.ID, IssuedAt: token.IssuedAt})
	if err != nil {
		return fmt.Errorf("marshal reset token: %w", err)
	}
	if err := s.client.Set(ctx, resetKey(token.UserID, token.Token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist reset token: %w", err)
	}
	return nil
}

// Consume removes and returns the key atomically; at most one concurrent
// caller observes the value.
func (s *RedisResetTokenStore) Consume(ctx context.Context, userID int64, token string) (bool, error) {
	err := s.client.GetDel(ctx, resetKey(userID, token)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}
	return true, nil
}
