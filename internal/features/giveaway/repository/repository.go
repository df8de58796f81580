package repository

import (
	"context"
	"errors"
	"time"

	"giveaway-bot/internal/features/giveaway/models"
)

var (
	ErrGiveawayNotFound  = errors.New("giveaway not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrParticipantsGone  = errors.New("participant set is no longer available")
)

// DueGiveaways is the result of a scheduler poll. ToEvaluate is a coarse
// filter: count-based giveaways are re-checked against the live participant
// count downstream.
type DueGiveaways struct {
	ToPublish  []*models.Giveaway
	ToEvaluate []*models.Giveaway
}

// GiveawayRepository is the durable store for giveaway definitions and status.
type GiveawayRepository interface {
	Create(ctx context.Context, def *models.Definition) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Giveaway, error)
	GetByCreator(ctx context.Context, creatorID int64) ([]*models.Giveaway, error)
	ListDue(ctx context.Context, now time.Time) (*DueGiveaways, error)

	// TransitionStatus enforces the forward-only status order. Repeating a
	// transition into the current status is a no-op, not an error, so the
	// scheduler can retry safely.
	TransitionStatus(ctx context.Context, id int64, status models.GiveawayStatus) error

	RecordPublish(ctx context.Context, id int64, postURL string, messageID int64) error
	RecordFinish(ctx context.Context, id int64, participantsCount int64) error
	AppendWinners(ctx context.Context, id int64, winners []int64) error
	UpdateEndCondition(ctx context.Context, id int64, endAt *time.Time, endCount *int64) error

	Delete(ctx context.Context, id int64) error

	// DeleteByChannel removes every giveaway homed in the channel and returns
	// the removed rows so creators can be notified.
	DeleteByChannel(ctx context.Context, channelID int64) ([]*models.Giveaway, error)

	// DetachSponsorChannel drops the channel from the sponsor list of every
	// giveaway that requires it and returns the giveaways that thereby lost
	// their last sponsor, so the caller can force-finish them.
	DetachSponsorChannel(ctx context.Context, channelID int64) ([]*models.Giveaway, error)
}

// ParticipantStore is the ephemeral per-giveaway membership set.
type ParticipantStore interface {
	Create(ctx context.Context, giveawayID int64) error

	// Add reports whether the user was newly added; false means the user was
	// already a member and upstream must not congratulate twice.
	Add(ctx context.Context, giveawayID, userID int64) (bool, error)

	// IsMember reports whether the user already joined without mutating
	// anything, so the join flow can answer repeat attempts first.
	IsMember(ctx context.Context, giveawayID, userID int64) (bool, error)

	Count(ctx context.Context, giveawayID int64) (int64, error)
	Members(ctx context.Context, giveawayID int64) ([]int64, error)
	LastN(ctx context.Context, giveawayID int64, n int64) ([]int64, error)
	Expire(ctx context.Context, giveawayID int64, ttl time.Duration) error
}

// CaptchaChallenge is a pending captcha for one user.
type CaptchaChallenge struct {
	GiveawayID   int64  `json:"giveaway_id"`
	Answer       string `json:"answer"`
	AttemptsLeft int    `json:"attempts_left"`
}

// CaptchaStore keeps short-lived captcha challenges keyed by user id.
type CaptchaStore interface {
	SetChallenge(ctx context.Context, userID int64, challenge *CaptchaChallenge, ttl time.Duration) error

	// GetChallenge returns nil when no challenge is pending or it expired.
	GetChallenge(ctx context.Context, userID int64) (*CaptchaChallenge, error)

	// DecrementAttempts burns one attempt, keeping the remaining TTL.
	DecrementAttempts(ctx context.Context, userID int64) (int, error)

	ClearChallenge(ctx context.Context, userID int64) error
}
