package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"giveaway-bot/internal/features/giveaway/repository"

	goredis "github.com/redis/go-redis/v9"
)

type captchaStore struct {
	client *goredis.Client
}

// NewCaptchaStore creates the Redis-backed captcha challenge store. A user
// has at most one pending challenge at a time.
func NewCaptchaStore(client *goredis.Client) repository.CaptchaStore {
	return &captchaStore{client: client}
}

func challengeKey(userID int64) string {
	return fmt.Sprintf("captcha:challenge:%d", userID)
}

func (s *captchaStore) SetChallenge(ctx context.Context, userID int64, challenge *repository.CaptchaChallenge, ttl time.Duration) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to marshal captcha challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengeKey(userID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store captcha challenge for user %d: %w", userID, err)
	}
	return nil
}

func (s *captchaStore) GetChallenge(ctx context.Context, userID int64) (*repository.CaptchaChallenge, error) {
	raw, err := s.client.Get(ctx, challengeKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read captcha challenge for user %d: %w", userID, err)
	}
	var challenge repository.CaptchaChallenge
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return nil, fmt.Errorf("corrupt captcha challenge for user %d: %w", userID, err)
	}
	return &challenge, nil
}

// DecrementAttempts burns one attempt in place, keeping the remaining TTL so
// retries never extend the challenge lifetime.
func (s *captchaStore) DecrementAttempts(ctx context.Context, userID int64) (int, error) {
	challenge, err := s.GetChallenge(ctx, userID)
	if err != nil {
		return 0, err
	}
	if challenge == nil {
		return 0, nil
	}

	challenge.AttemptsLeft--
	if challenge.AttemptsLeft <= 0 {
		if err := s.ClearChallenge(ctx, userID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	payload, err := json.Marshal(challenge)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal captcha challenge: %w", err)
	}
	err = s.client.Set(ctx, challengeKey(userID), payload, goredis.KeepTTL).Err()
	if err != nil {
		return 0, fmt.Errorf("failed to update captcha challenge for user %d: %w", userID, err)
	}
	return challenge.AttemptsLeft, nil
}

func (s *captchaStore) ClearChallenge(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, challengeKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear captcha challenge for user %d: %w", userID, err)
	}
	return nil
}
