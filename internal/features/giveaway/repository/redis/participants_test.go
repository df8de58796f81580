package redis

import (
	"context"
	"testing"
	"time"

	"giveaway-bot/internal/features/giveaway/repository"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestParticipantStore_AddIsIdempotent(t *testing.T) {
	_, client := newTestClient(t)
	store := NewParticipantStore(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, 1))

	added, err := store.Add(ctx, 1, 100)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.Add(ctx, 1, 100)
	require.NoError(t, err)
	assert.False(t, added, "second join of the same user must not be reported as new")

	count, err := store.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestParticipantStore_IsMember(t *testing.T) {
	_, client := newTestClient(t)
	store := NewParticipantStore(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, 1))
	_, err := store.Add(ctx, 1, 100)
	require.NoError(t, err)

	member, err := store.IsMember(ctx, 1, 100)
	require.NoError(t, err)
	assert.True(t, member)

	member, err = store.IsMember(ctx, 1, 200)
	require.NoError(t, err)
	assert.False(t, member)

	_, err = store.IsMember(ctx, 404, 100)
	assert.ErrorIs(t, err, repository.ErrParticipantsGone)
}

func TestParticipantStore_MembersPreserveJoinOrder(t *testing.T) {
	_, client := newTestClient(t)
	store := NewParticipantStore(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, 7))
	for _, id := range []int64{30, 10, 20} {
		_, err := store.Add(ctx, 7, id)
		require.NoError(t, err)
	}

	members, err := store.Members(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{30, 10, 20}, members)
}

func TestParticipantStore_LastN(t *testing.T) {
	_, client := newTestClient(t)
	store := NewParticipantStore(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, 7))
	for _, id := range []int64{1, 2, 3, 4, 5} {
		_, err := store.Add(ctx, 7, id)
		require.NoError(t, err)
	}

	last, err := store.LastN(ctx, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, last)

	// Asking for more than exist returns everyone.
	last, err = store.LastN(ctx, 7, 50)
	require.NoError(t, err)
	assert.Len(t, last, 5)

	last, err = store.LastN(ctx, 7, 0)
	require.NoError(t, err)
	assert.Empty(t, last)
}

func TestParticipantStore_GoneAfterExpiry(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewParticipantStore(client)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, 9))
	_, err := store.Add(ctx, 9, 1)
	require.NoError(t, err)

	require.NoError(t, store.Expire(ctx, 9, time.Hour))
	mr.FastForward(2 * time.Hour)

	_, err = store.Members(ctx, 9)
	assert.ErrorIs(t, err, repository.ErrParticipantsGone)

	_, err = store.Count(ctx, 9)
	assert.ErrorIs(t, err, repository.ErrParticipantsGone)

	_, err = store.Add(ctx, 9, 2)
	assert.ErrorIs(t, err, repository.ErrParticipantsGone)
}

func TestParticipantStore_MissingStore(t *testing.T) {
	_, client := newTestClient(t)
	store := NewParticipantStore(client)

	_, err := store.Add(context.Background(), 404, 1)
	assert.ErrorIs(t, err, repository.ErrParticipantsGone)
}
