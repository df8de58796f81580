package service

import (
	"context"
	"testing"
	"time"

	"giveaway-bot/internal/features/giveaway/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_PublishesDueGiveaways(t *testing.T) {
	engine, repo, _, messenger := newTestEngine()
	sched := NewScheduler(engine, repo, time.Minute)
	ctx := context.Background()
	now := time.Now()

	dueID, err := engine.Create(ctx, &models.Definition{
		CreatorID: 1, ChannelID: -1, Text: "due", Button: "Join", WinnersCount: 1,
		PostAt: timePtr(now.Add(-time.Minute)),
		EndAt:  timePtr(now.Add(time.Hour)),
	})
	require.NoError(t, err)

	futureID, err := engine.Create(ctx, &models.Definition{
		CreatorID: 1, ChannelID: -1, Text: "future", Button: "Join", WinnersCount: 1,
		PostAt: timePtr(now.Add(time.Hour)),
		EndAt:  timePtr(now.Add(2 * time.Hour)),
	})
	require.NoError(t, err)

	require.NoError(t, sched.tick(ctx, now))

	due, _ := repo.GetByID(ctx, dueID)
	assert.Equal(t, models.StatusPublished, due.Status)

	future, _ := repo.GetByID(ctx, futureID)
	assert.Equal(t, models.StatusNotPublished, future.Status,
		"a giveaway scheduled for later must not be posted yet")

	assert.Len(t, messenger.posts, 1)
}

func TestScheduler_PublishesImmediatelyWhenUnscheduled(t *testing.T) {
	engine, repo, _, _ := newTestEngine()
	sched := NewScheduler(engine, repo, time.Minute)
	ctx := context.Background()

	id, err := engine.Create(ctx, &models.Definition{
		CreatorID: 1, ChannelID: -1, Text: "now", Button: "Join", WinnersCount: 1,
		EndAt: timePtr(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	require.NoError(t, sched.tick(ctx, time.Now()))

	g, _ := repo.GetByID(ctx, id)
	assert.Equal(t, models.StatusPublished, g.Status)
}

func TestScheduler_FinishesExpiredGiveaways(t *testing.T) {
	engine, repo, participants, _ := newTestEngine()
	sched := NewScheduler(engine, repo, time.Minute)
	ctx := context.Background()
	now := time.Now()

	expired := seedPublished(t, engine, repo, participants, &models.Giveaway{
		ChannelID: -1, MessageID: 1, EndAt: timePtr(now.Add(-time.Minute)),
	})
	running := seedPublished(t, engine, repo, participants, &models.Giveaway{
		ChannelID: -1, MessageID: 2, EndAt: timePtr(now.Add(time.Hour)),
	})

	require.NoError(t, sched.tick(ctx, now))

	g, _ := repo.GetByID(ctx, expired.ID)
	assert.Equal(t, models.StatusFinished, g.Status)

	g, _ = repo.GetByID(ctx, running.ID)
	assert.Equal(t, models.StatusPublished, g.Status)
}

func TestScheduler_TickIsRepeatable(t *testing.T) {
	engine, repo, participants, messenger := newTestEngine()
	sched := NewScheduler(engine, repo, time.Minute)
	ctx := context.Background()
	now := time.Now()

	g := seedPublished(t, engine, repo, participants, &models.Giveaway{
		ChannelID: -1, MessageID: 1, EndAt: timePtr(now.Add(-time.Minute)),
	})
	_, err := participants.Add(ctx, g.ID, 10)
	require.NoError(t, err)

	require.NoError(t, sched.tick(ctx, now))
	replies := len(messenger.replies)

	// A finished giveaway is not picked up again on later ticks.
	require.NoError(t, sched.tick(ctx, now.Add(time.Minute)))
	assert.Equal(t, replies, len(messenger.replies))

	stored, _ := repo.GetByID(ctx, g.ID)
	assert.Equal(t, models.StatusFinished, stored.Status)
}

func TestScheduler_StartStop(t *testing.T) {
	engine, repo, _, _ := newTestEngine()
	sched := NewScheduler(engine, repo, 10*time.Millisecond)

	sched.Start()
	time.Sleep(30 * time.Millisecond)
	sched.Stop()
}
