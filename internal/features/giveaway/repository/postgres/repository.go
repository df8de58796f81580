package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"giveaway-bot/internal/features/giveaway/models"
	"giveaway-bot/internal/features/giveaway/repository"

	"github.com/lib/pq"
)

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates the durable giveaway repository. Every call
// acquires its own connection from the pool; there is no shared session.
func NewPostgresRepository(db *sql.DB) repository.GiveawayRepository {
	return &postgresRepository{db: db}
}

const giveawayColumns = `
	id, creator_id, channel_id, text, media_type, media, button,
	sponsor_channel_ids, extra_conditions, captcha, winners_count,
	post_at, end_at, end_count, status, post_url, message_id,
	participants_count, winner_ids, created, updated`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGiveaway(row rowScanner) (*models.Giveaway, error) {
	var g models.Giveaway
	var sponsors, winners pq.Int64Array
	var mediaType, media, extra, postURL sql.NullString
	var postAt, endAt sql.NullTime
	var endCount, messageID sql.NullInt64

	err := row.Scan(
		&g.ID, &g.CreatorID, &g.ChannelID, &g.Text, &mediaType, &media, &g.Button,
		&sponsors, &extra, &g.Captcha, &g.WinnersCount,
		&postAt, &endAt, &endCount, &g.Status, &postURL, &messageID,
		&g.ParticipantsCount, &winners, &g.Created, &g.Updated,
	)
	if err != nil {
		return nil, err
	}

	g.SponsorChannelIDs = sponsors
	g.WinnerIDs = winners
	g.MediaType = models.MediaType(mediaType.String)
	g.Media = media.String
	g.ExtraConditions = extra.String
	g.PostURL = postURL.String
	if postAt.Valid {
		t := postAt.Time
		g.PostAt = &t
	}
	if endAt.Valid {
		t := endAt.Time
		g.EndAt = &t
	}
	if endCount.Valid {
		c := endCount.Int64
		g.EndCount = &c
	}
	if messageID.Valid {
		g.MessageID = messageID.Int64
	}
	return &g, nil
}

func (r *postgresRepository) Create(ctx context.Context, def *models.Definition) (int64, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO giveaways (
			creator_id, channel_id, text, media_type, media, button,
			sponsor_channel_ids, extra_conditions, captcha, winners_count,
			post_at, end_at, end_count, status, winner_ids, created, updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, '{}', now(), now())
		RETURNING id`,
		def.CreatorID, def.ChannelID, def.Text, string(def.MediaType), def.Media, def.Button,
		pq.Array(def.SponsorChannelIDs), def.ExtraConditions, def.Captcha, def.WinnersCount,
		def.PostAt, def.EndAt, def.EndCount, string(models.StatusNotPublished),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create giveaway: %w", err)
	}
	return id, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id int64) (*models.Giveaway, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+giveawayColumns+` FROM giveaways WHERE id = $1`, id)

	g, err := scanGiveaway(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrGiveawayNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get giveaway %d: %w", id, err)
	}
	return g, nil
}

func (r *postgresRepository) GetByCreator(ctx context.Context, creatorID int64) ([]*models.Giveaway, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+giveawayColumns+` FROM giveaways WHERE creator_id = $1 ORDER BY id DESC`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list giveaways for creator %d: %w", creatorID, err)
	}
	defer rows.Close()
	return collectGiveaways(rows)
}

func collectGiveaways(rows *sql.Rows) ([]*models.Giveaway, error) {
	var out []*models.Giveaway
	for rows.Next() {
		g, err := scanGiveaway(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListDue returns giveaways the scheduler should look at. Count-based
// giveaways always show up in ToEvaluate; only the live participant count can
// tell whether their threshold is actually met.
func (r *postgresRepository) ListDue(ctx context.Context, now time.Time) (*repository.DueGiveaways, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+giveawayColumns+` FROM giveaways
		WHERE (status = $1 AND (post_at IS NULL OR post_at <= $3))
		   OR (status = $2 AND (end_at <= $3 OR end_count IS NOT NULL))
		ORDER BY id`,
		string(models.StatusNotPublished), string(models.StatusPublished), now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due giveaways: %w", err)
	}
	defer rows.Close()

	all, err := collectGiveaways(rows)
	if err != nil {
		return nil, err
	}

	due := &repository.DueGiveaways{}
	for _, g := range all {
		switch g.Status {
		case models.StatusNotPublished:
			due.ToPublish = append(due.ToPublish, g)
		case models.StatusPublished:
			due.ToEvaluate = append(due.ToEvaluate, g)
		}
	}
	return due, nil
}

func (r *postgresRepository) TransitionStatus(ctx context.Context, id int64, status models.GiveawayStatus) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	// Repeated transition into the current status is a scheduler retry, not
	// an error.
	if current.Status == status {
		return nil
	}
	if !current.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, current.Status, status)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE giveaways SET status = $1, updated = now() WHERE id = $2 AND status = $3`,
		string(status), id, string(current.Status))
	if err != nil {
		return fmt.Errorf("failed to transition giveaway %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Lost a race; re-read to distinguish a concurrent identical
		// transition from a genuinely illegal one.
		after, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if after.Status == status {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", repository.ErrInvalidTransition, after.Status, status)
	}
	return nil
}

func (r *postgresRepository) RecordPublish(ctx context.Context, id int64, postURL string, messageID int64) error {
	return r.execOnGiveaway(ctx, id,
		`UPDATE giveaways SET post_url = $2, message_id = $3, updated = now() WHERE id = $1`,
		id, postURL, messageID)
}

func (r *postgresRepository) RecordFinish(ctx context.Context, id int64, participantsCount int64) error {
	return r.execOnGiveaway(ctx, id,
		`UPDATE giveaways SET participants_count = $2, updated = now() WHERE id = $1`,
		id, participantsCount)
}

func (r *postgresRepository) AppendWinners(ctx context.Context, id int64, winners []int64) error {
	if len(winners) == 0 {
		return nil
	}
	return r.execOnGiveaway(ctx, id,
		`UPDATE giveaways SET winner_ids = winner_ids || $2, updated = now() WHERE id = $1`,
		id, pq.Array(winners))
}

func (r *postgresRepository) UpdateEndCondition(ctx context.Context, id int64, endAt *time.Time, endCount *int64) error {
	if (endAt == nil) == (endCount == nil) {
		return fmt.Errorf("exactly one of end_at and end_count must be set")
	}
	return r.execOnGiveaway(ctx, id,
		`UPDATE giveaways SET end_at = $2, end_count = $3, updated = now() WHERE id = $1`,
		id, endAt, endCount)
}

func (r *postgresRepository) execOnGiveaway(ctx context.Context, id int64, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update giveaway %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrGiveawayNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM giveaways WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete giveaway %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrGiveawayNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteByChannel(ctx context.Context, channelID int64) ([]*models.Giveaway, error) {
	rows, err := r.db.QueryContext(ctx,
		`DELETE FROM giveaways WHERE channel_id = $1 RETURNING `+giveawayColumns, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete giveaways for channel %d: %w", channelID, err)
	}
	defer rows.Close()
	return collectGiveaways(rows)
}

func (r *postgresRepository) DetachSponsorChannel(ctx context.Context, channelID int64) ([]*models.Giveaway, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE giveaways
		SET sponsor_channel_ids = array_remove(sponsor_channel_ids, $1), updated = now()
		WHERE $1 = ANY(sponsor_channel_ids) AND status <> $2
		RETURNING `+giveawayColumns,
		channelID, string(models.StatusFinished))
	if err != nil {
		return nil, fmt.Errorf("failed to detach sponsor channel %d: %w", channelID, err)
	}
	defer rows.Close()

	affected, err := collectGiveaways(rows)
	if err != nil {
		return nil, err
	}

	// Only the giveaways that lost their last sponsor need intervention; the
	// rest keep running with the remaining sponsors.
	var orphaned []*models.Giveaway
	for _, g := range affected {
		if len(g.SponsorChannelIDs) == 0 {
			orphaned = append(orphaned, g)
		}
	}
	return orphaned, nil
}
