package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/quickmart/quickmart-auth/internal/domain"
	"github.com/quickmart/quickmart-auth/internal/repository"
)

const resetTokenBytes = 32

// ResetTokenService generates and consumes single-use password reset tokens
// with an explicit issuance time and TTL.
type ResetTokenService struct {
	repo repository.ResetTokenRepository
	node *snowflake.Node
	ttl  time.Duration
}

// NewResetTokenService wires the token store. A non-positive TTL falls back
// to one hour.
func NewResetTokenService(repo repository.ResetTokenRepository, node *snowflake.Node, ttl time.Duration) *ResetTokenService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResetTokenService{repo: repo, node: node, ttl: ttl}
}

// Generate mints an opaque token bound to the user and persists it with its
// expiry. The raw value exists only in the returned string and the delivery
// channel; it is never echoed back through the API.
func (s *ResetTokenService) Generate(ctx context.Context, userID int64) (string, error) {
	raw, err := randomToken(resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	now := time.Now().UTC()
	token := domain.PasswordResetToken{
		ID:        s.node.Generate().Int64(),
		UserID:    userID,
		Token:     raw,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, token); err != nil {
		return "", fmt.Errorf("persist reset token: %w", err)
	}
	return raw, nil
}

// ValidateAndConsume reports whether the token was valid, and invalidates it
// in the same step. Expired, mismatched, and previously consumed tokens all
// come back false; none of those are errors.
func (s *ResetTokenService) ValidateAndConsume(ctx context.Context, userID int64, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ok, err := s.repo.Consume(ctx, userID, token)
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}
	return ok, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
