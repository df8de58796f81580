package repository

import (
	"context"
	"errors"

	"giveaway-bot/internal/features/user/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository stores user records. Upsert keeps names fresh on every
// contact with the bot.
type UserRepository interface {
	Upsert(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
}
