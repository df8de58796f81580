package service

import (
	"context"
	"errors"
	"time"

	"giveaway-bot/internal/common/logger"
	"giveaway-bot/internal/common/syncx"
	"giveaway-bot/internal/features/captcha"
	"giveaway-bot/internal/features/giveaway/models"
	"giveaway-bot/internal/features/giveaway/repository"
)

// JoinOutcome tells the transport layer how to answer a join attempt.
type JoinOutcome string

const (
	// JoinedOK means the user is now a participant.
	JoinedOK JoinOutcome = "joined"

	// AlreadyJoined means the user was a participant before this attempt.
	AlreadyJoined JoinOutcome = "already_joined"

	// JoinClosed means the giveaway is not accepting participants (not
	// published yet, or already finished).
	JoinClosed JoinOutcome = "closed"

	// NotSubscribed means required channel subscriptions are missing.
	NotSubscribed JoinOutcome = "not_subscribed"

	// CaptchaRequired means a captcha was sent and the join is parked until
	// the user answers it.
	CaptchaRequired JoinOutcome = "captcha_required"
)

// JoinResult is the outcome of a join attempt plus the data the transport
// needs to phrase the reply.
type JoinResult struct {
	Outcome JoinOutcome

	// MissingChannels is set for NotSubscribed: the resolved channels the
	// user still has to subscribe to.
	MissingChannels []*models.Channel
}

// CaptchaOutcome tells the transport layer how a captcha answer went.
type CaptchaOutcome string

const (
	CaptchaNone      CaptchaOutcome = "none"
	CaptchaPassed    CaptchaOutcome = "passed"
	CaptchaWrong     CaptchaOutcome = "wrong"
	CaptchaExhausted CaptchaOutcome = "exhausted"
)

// CaptchaResult carries the answer verdict and, on success, the join result
// the captcha was guarding.
type CaptchaResult struct {
	Outcome      CaptchaOutcome
	AttemptsLeft int
	Join         *JoinResult
}

// JoinService handles the participant-facing flow: joining a giveaway via a
// deep link and answering captchas.
type JoinService struct {
	engine       *Engine
	participants repository.ParticipantStore
	captchas     repository.CaptchaStore
	verifier     *Verifier
	messenger    Messenger

	// locks serializes joins per giveaway, so a count-based finish is
	// triggered exactly when the threshold is crossed.
	locks *syncx.KeyedMutex

	captchaTTL      time.Duration
	captchaAttempts int
}

func NewJoinService(
	engine *Engine,
	participants repository.ParticipantStore,
	captchas repository.CaptchaStore,
	verifier *Verifier,
	messenger Messenger,
	captchaTTL time.Duration,
	captchaAttempts int,
) *JoinService {
	if captchaAttempts <= 0 {
		captchaAttempts = 3
	}
	return &JoinService{
		engine:          engine,
		participants:    participants,
		captchas:        captchas,
		verifier:        verifier,
		messenger:       messenger,
		locks:           syncx.NewKeyedMutex(),
		captchaTTL:      captchaTTL,
		captchaAttempts: captchaAttempts,
	}
}

// Join processes a join attempt. The gates run in a fixed order: a closed
// giveaway first, then an existing membership, then subscription
// requirements, then the captcha if the giveaway has one. Repeating a join
// is harmless: the user stays a participant exactly once and is told they
// already joined, without being re-issued a captcha or sent back to a
// sponsor channel.
func (s *JoinService) Join(ctx context.Context, giveawayID, userID int64) (*JoinResult, error) {
	g, err := s.engine.GetByID(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if g.Status != models.StatusPublished {
		return &JoinResult{Outcome: JoinClosed}, nil
	}

	member, err := s.participants.IsMember(ctx, g.ID, userID)
	if errors.Is(err, repository.ErrParticipantsGone) {
		return &JoinResult{Outcome: JoinClosed}, nil
	}
	if err != nil {
		return nil, err
	}
	if member {
		return &JoinResult{Outcome: AlreadyJoined}, nil
	}

	if missing := s.verifier.MissingChannels(ctx, g, userID); len(missing) > 0 {
		return &JoinResult{
			Outcome:         NotSubscribed,
			MissingChannels: resolveChannels(ctx, s.messenger, missing),
		}, nil
	}

	if g.Captcha {
		if err := s.issueCaptcha(ctx, g, userID); err != nil {
			return nil, err
		}
		return &JoinResult{Outcome: CaptchaRequired}, nil
	}

	return s.completeJoin(ctx, g, userID)
}

// HasPendingCaptcha reports whether the user owes a captcha answer, so the
// transport can route their next plain message here.
func (s *JoinService) HasPendingCaptcha(ctx context.Context, userID int64) (bool, error) {
	challenge, err := s.captchas.GetChallenge(ctx, userID)
	if err != nil {
		return false, err
	}
	return challenge != nil, nil
}

// CancelCaptcha drops the user's pending challenge, if any.
func (s *JoinService) CancelCaptcha(ctx context.Context, userID int64) error {
	return s.captchas.ClearChallenge(ctx, userID)
}

// SubmitCaptcha verifies a captcha answer. A correct answer completes the
// parked join; a wrong one burns an attempt until the challenge is gone.
func (s *JoinService) SubmitCaptcha(ctx context.Context, userID int64, reply string) (*CaptchaResult, error) {
	challenge, err := s.captchas.GetChallenge(ctx, userID)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		return &CaptchaResult{Outcome: CaptchaNone}, nil
	}

	if !captcha.Verify(challenge.Answer, reply) {
		left, err := s.captchas.DecrementAttempts(ctx, userID)
		if err != nil {
			return nil, err
		}
		if left == 0 {
			return &CaptchaResult{Outcome: CaptchaExhausted}, nil
		}
		return &CaptchaResult{Outcome: CaptchaWrong, AttemptsLeft: left}, nil
	}

	if err := s.captchas.ClearChallenge(ctx, userID); err != nil {
		return nil, err
	}

	g, err := s.engine.GetByID(ctx, challenge.GiveawayID)
	if err != nil {
		return nil, err
	}
	if g.Status != models.StatusPublished {
		return &CaptchaResult{Outcome: CaptchaPassed, Join: &JoinResult{Outcome: JoinClosed}}, nil
	}

	join, err := s.completeJoin(ctx, g, userID)
	if err != nil {
		return nil, err
	}
	return &CaptchaResult{Outcome: CaptchaPassed, Join: join}, nil
}

func (s *JoinService) issueCaptcha(ctx context.Context, g *models.Giveaway, userID int64) error {
	challenge, err := captcha.NewChallenge(captcha.DefaultLength)
	if err != nil {
		return err
	}
	err = s.captchas.SetChallenge(ctx, userID, &repository.CaptchaChallenge{
		GiveawayID:   g.ID,
		Answer:       challenge.Answer,
		AttemptsLeft: s.captchaAttempts,
	}, s.captchaTTL)
	if err != nil {
		return err
	}
	return s.messenger.SendPhoto(ctx, userID, challenge.Image,
		"Please enter the digits from the image to join the giveaway.")
}

func (s *JoinService) completeJoin(ctx context.Context, g *models.Giveaway, userID int64) (*JoinResult, error) {
	s.locks.Lock(g.ID)
	defer s.locks.Unlock(g.ID)

	added, err := s.participants.Add(ctx, g.ID, userID)
	if errors.Is(err, repository.ErrParticipantsGone) {
		return &JoinResult{Outcome: JoinClosed}, nil
	}
	if err != nil {
		return nil, err
	}
	if !added {
		return &JoinResult{Outcome: AlreadyJoined}, nil
	}

	count, err := s.participants.Count(ctx, g.ID)
	if err != nil {
		logger.Warn().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to count participants after join")
		return &JoinResult{Outcome: JoinedOK}, nil
	}

	// A count-based giveaway finishes the moment the threshold is reached,
	// without waiting for the next scheduler tick; otherwise the post's
	// counter button reflects the new count right away.
	if g.EndCount != nil && count >= *g.EndCount {
		if err := s.engine.Finish(ctx, g); err != nil {
			logger.Error().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to finish full giveaway")
		}
	} else if err := s.engine.RefreshPostCounter(ctx, g, count); err != nil {
		logger.Error().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to finish giveaway with unreachable post")
	}

	return &JoinResult{Outcome: JoinedOK}, nil
}

// resolveChannels turns channel ids into displayable records, degrading to a
// bare id when the lookup fails.
func resolveChannels(ctx context.Context, resolver models.ChannelResolver, channelIDs []int64) []*models.Channel {
	channels := make([]*models.Channel, 0, len(channelIDs))
	for _, id := range channelIDs {
		ch, err := models.RefByID(id).Resolve(ctx, resolver)
		if err != nil {
			logger.Warn().Err(err).Int64("channel_id", id).Msg("Failed to resolve channel")
			ch = &models.Channel{ID: id}
		}
		channels = append(channels, ch)
	}
	return channels
}
