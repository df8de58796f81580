package telegram

import (
	"context"
	"testing"

	usermodels "giveaway-bot/internal/features/user/models"
	userrepo "giveaway-bot/internal/features/user/repository"

	"github.com/stretchr/testify/assert"
)

type stubUsers struct {
	users map[int64]*usermodels.User
}

func (s *stubUsers) Upsert(ctx context.Context, u *usermodels.User) error { return nil }

func (s *stubUsers) GetByID(ctx context.Context, id int64) (*usermodels.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, userrepo.ErrUserNotFound
	}
	return u, nil
}

func TestHandler_IsAdmin(t *testing.T) {
	users := &stubUsers{users: map[int64]*usermodels.User{
		5: {ID: 5, IsAdmin: true},
		6: {ID: 6},
	}}
	h := NewHandler(nil, nil, users, []int64{99})
	ctx := context.Background()

	assert.True(t, h.isAdmin(ctx, 99), "configured operator id")
	assert.True(t, h.isAdmin(ctx, 5), "flagged in the stored user record")
	assert.False(t, h.isAdmin(ctx, 6))
	assert.False(t, h.isAdmin(ctx, 7), "unknown user")
}
