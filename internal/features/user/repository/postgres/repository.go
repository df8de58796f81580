package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"giveaway-bot/internal/features/user/models"
	"giveaway-bot/internal/features/user/repository"
)

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) repository.UserRepository {
	return &postgresRepository{db: db}
}

// Upsert registers a user or refreshes their names. The is_admin and mailing
// flags are managed separately and survive re-registration.
func (r *postgresRepository) Upsert(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, first_name, last_name, created, updated)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			updated = now()`,
		user.ID, user.Username, user.FirstName, user.LastName)
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", user.ID, err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	var username, lastName sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, is_admin, mailing, created, updated
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &username, &u.FirstName, &lastName, &u.IsAdmin, &u.Mailing, &u.Created, &u.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	u.Username = username.String
	u.LastName = lastName.String
	return &u, nil
}
