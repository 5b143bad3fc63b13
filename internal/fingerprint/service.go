package fingerprint

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoToken is returned when no device token exists for the session.
var ErrNoToken = errors.New("fingerprint: no token for session")

const keyPrefix = "fingerprint:"

// Service manages short-lived device-identification tokens, one per checkout
// session. The token feeds the risk check of secured payment methods and is
// released after every payment attempt, successful or not.
type Service struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewService builds a Service. ttl bounds how long an abandoned checkout
// keeps its token.
func NewService(client redis.UniversalClient, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{client: client, ttl: ttl}
}

// Acquire returns the session's device token, generating and storing one on
// first use.
func (s *Service) Acquire(ctx context.Context, sessionID string) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	ok, err := s.client.SetNX(ctx, keyPrefix+sessionID, token, s.ttl).Result()
	if err != nil {
		return "", err
	}
	if ok {
		return token, nil
	}
	return s.Token(ctx, sessionID)
}

// Token fetches the session's token without creating one.
func (s *Service) Token(ctx context.Context, sessionID string) (string, error) {
	token, err := s.client.Get(ctx, keyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// Release drops the session's token.
func (s *Service) Release(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, keyPrefix+sessionID).Err()
}
