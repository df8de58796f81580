package service

import (
	"context"

	"giveaway-bot/internal/utils/random"
)

// SelectWinners draws up to count winners from candidates. Candidates are
// shuffled with a cryptographically secure shuffle, then walked until enough
// eligible users are found. Users in exclude and duplicates are skipped, so
// the function can both pick the initial winner set and extend it later.
//
// It returns fewer than count winners when the eligible pool runs dry; the
// caller decides whether that is acceptable.
func SelectWinners(
	ctx context.Context,
	candidates []int64,
	count int,
	exclude map[int64]bool,
	eligible func(ctx context.Context, userID int64) bool,
) ([]int64, error) {
	if count <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	pool := make([]int64, len(candidates))
	copy(pool, candidates)
	if err := random.Shuffle(pool); err != nil {
		return nil, err
	}

	winners := make([]int64, 0, count)
	seen := make(map[int64]bool, len(pool))
	for _, userID := range pool {
		if len(winners) == count {
			break
		}
		if seen[userID] || exclude[userID] {
			continue
		}
		seen[userID] = true

		if eligible != nil && !eligible(ctx, userID) {
			continue
		}
		winners = append(winners, userID)
	}
	return winners, nil
}
