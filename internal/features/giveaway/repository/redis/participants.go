package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"giveaway-bot/internal/features/giveaway/repository"

	goredis "github.com/redis/go-redis/v9"
)

// Participant data for one giveaway lives in three keys: a list preserving
// join order, a set for O(1) membership, and a marker key that tells an
// expired store apart from an empty one. All three share the same TTL.
type participantStore struct {
	client *goredis.Client
}

// NewParticipantStore creates the Redis-backed participant store.
func NewParticipantStore(client *goredis.Client) repository.ParticipantStore {
	return &participantStore{client: client}
}

func listKey(giveawayID int64) string {
	return fmt.Sprintf("giveaway:%d:participants:list", giveawayID)
}

func setKey(giveawayID int64) string {
	return fmt.Sprintf("giveaway:%d:participants:set", giveawayID)
}

func metaKey(giveawayID int64) string {
	return fmt.Sprintf("giveaway:%d:participants", giveawayID)
}

func (s *participantStore) Create(ctx context.Context, giveawayID int64) error {
	if err := s.client.Set(ctx, metaKey(giveawayID), "1", 0).Err(); err != nil {
		return fmt.Errorf("failed to create participant store for giveaway %d: %w", giveawayID, err)
	}
	return nil
}

func (s *participantStore) exists(ctx context.Context, giveawayID int64) error {
	n, err := s.client.Exists(ctx, metaKey(giveawayID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check participant store for giveaway %d: %w", giveawayID, err)
	}
	if n == 0 {
		return fmt.Errorf("giveaway %d: %w", giveawayID, repository.ErrParticipantsGone)
	}
	return nil
}

func (s *participantStore) Add(ctx context.Context, giveawayID, userID int64) (bool, error) {
	if err := s.exists(ctx, giveawayID); err != nil {
		return false, err
	}

	added, err := s.client.SAdd(ctx, setKey(giveawayID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add participant %d to giveaway %d: %w", userID, giveawayID, err)
	}
	if added == 0 {
		return false, nil
	}
	if err := s.client.RPush(ctx, listKey(giveawayID), userID).Err(); err != nil {
		return false, fmt.Errorf("failed to append participant %d to giveaway %d: %w", userID, giveawayID, err)
	}
	return true, nil
}

func (s *participantStore) IsMember(ctx context.Context, giveawayID, userID int64) (bool, error) {
	if err := s.exists(ctx, giveawayID); err != nil {
		return false, err
	}
	ok, err := s.client.SIsMember(ctx, setKey(giveawayID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check participant %d of giveaway %d: %w", userID, giveawayID, err)
	}
	return ok, nil
}

func (s *participantStore) Count(ctx context.Context, giveawayID int64) (int64, error) {
	if err := s.exists(ctx, giveawayID); err != nil {
		return 0, err
	}
	count, err := s.client.SCard(ctx, setKey(giveawayID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count participants of giveaway %d: %w", giveawayID, err)
	}
	return count, nil
}

func (s *participantStore) Members(ctx context.Context, giveawayID int64) ([]int64, error) {
	return s.listRange(ctx, giveawayID, 0, -1)
}

// LastN returns the most recent n joiners in join order.
func (s *participantStore) LastN(ctx context.Context, giveawayID int64, n int64) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.listRange(ctx, giveawayID, -n, -1)
}

func (s *participantStore) listRange(ctx context.Context, giveawayID, start, stop int64) ([]int64, error) {
	if err := s.exists(ctx, giveawayID); err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, listKey(giveawayID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read participants of giveaway %d: %w", giveawayID, err)
	}
	members := make([]int64, 0, len(raw))
	for _, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt participant entry %q in giveaway %d: %w", v, giveawayID, err)
		}
		members = append(members, id)
	}
	return members, nil
}

func (s *participantStore) Expire(ctx context.Context, giveawayID int64, ttl time.Duration) error {
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, metaKey(giveawayID), ttl)
	pipe.Expire(ctx, listKey(giveawayID), ttl)
	pipe.Expire(ctx, setKey(giveawayID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to expire participants of giveaway %d: %w", giveawayID, err)
	}
	return nil
}
