package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "giveaway-bot/internal/common/errors"
	"giveaway-bot/internal/common/logger"
	"giveaway-bot/internal/features/giveaway/models"
	"giveaway-bot/internal/features/giveaway/repository"
	userrepo "giveaway-bot/internal/features/user/repository"

	"golang.org/x/time/rate"
)

// Engine owns the giveaway lifecycle: publishing due giveaways, finishing
// them, selecting winners and fanning out notifications. It is driven by the
// Scheduler for time-based work and by the join flow for count-based
// completion.
type Engine struct {
	repo         repository.GiveawayRepository
	participants repository.ParticipantStore
	messenger    Messenger
	verifier     *Verifier
	alerts       *OperatorAlerts
	users        userrepo.UserRepository

	// limiter paces every outbound Bot API call the engine makes, so posts,
	// button edits, announcements and DM fan-out stay under the flood limits.
	limiter *rate.Limiter

	participantsTTL time.Duration
}

func NewEngine(
	repo repository.GiveawayRepository,
	participants repository.ParticipantStore,
	messenger Messenger,
	verifier *Verifier,
	alerts *OperatorAlerts,
	users userrepo.UserRepository,
	sendDelay time.Duration,
	participantsTTL time.Duration,
) *Engine {
	if sendDelay <= 0 {
		sendDelay = 50 * time.Millisecond
	}
	return &Engine{
		repo:            repo,
		participants:    participants,
		messenger:       messenger,
		verifier:        verifier,
		alerts:          alerts,
		users:           users,
		limiter:         rate.NewLimiter(rate.Every(sendDelay), 1),
		participantsTTL: participantsTTL,
	}
}

// pace spaces outbound Bot API calls. A cancelled context just lets the next
// call fail on its own.
func (e *Engine) pace(ctx context.Context) {
	_ = e.limiter.Wait(ctx)
}

// Create validates and stores a new giveaway. Publication happens on the
// next scheduler tick once post_at is due (or immediately when it is unset).
func (e *Engine) Create(ctx context.Context, def *models.Definition) (int64, error) {
	id, err := e.repo.Create(ctx, def)
	if err != nil {
		return 0, err
	}
	logger.Info().Int64("giveaway_id", id).Int64("creator_id", def.CreatorID).Msg("Giveaway created")
	return id, nil
}

func (e *Engine) GetByID(ctx context.Context, id int64) (*models.Giveaway, error) {
	g, err := e.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrGiveawayNotFound) {
		return nil, apperrors.NewGiveawayNotFoundError(id)
	}
	return g, err
}

func (e *Engine) ListByCreator(ctx context.Context, creatorID int64) ([]*models.Giveaway, error) {
	return e.repo.GetByCreator(ctx, creatorID)
}

// Delete removes an unpublished giveaway.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	g, err := e.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if g.Status != models.StatusNotPublished {
		return apperrors.New(apperrors.ErrCodeInvalidTransition, "only unpublished giveaways can be deleted").
			WithDetail("giveaway_id", id).
			WithDetail("status", string(g.Status))
	}
	return e.repo.Delete(ctx, id)
}

// Publish posts the giveaway to its home channel and moves it to PUBLISHED.
// An inaccessible home channel cancels the giveaway entirely: the row is
// deleted and the creator is told, since a giveaway whose post can never
// exist has no future.
func (e *Engine) Publish(ctx context.Context, g *models.Giveaway) error {
	sponsors := resolveChannels(ctx, e.messenger, g.SponsorChannelIDs)
	content := PostContent{
		Text:        renderPostBody(g, sponsors),
		MediaType:   g.MediaType,
		Media:       g.Media,
		ButtonLabel: renderJoinButton(g, 0),
		ButtonURL:   e.joinURL(g),
	}

	e.pace(ctx)
	messageID, postURL, err := e.messenger.SendChannelPost(ctx, g.ChannelID, content)
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrPostNotFound) {
		logger.Warn().
			Err(err).
			Int64("giveaway_id", g.ID).
			Int64("channel_id", g.ChannelID).
			Msg("Home channel inaccessible, cancelling giveaway")
		if delErr := e.repo.Delete(ctx, g.ID); delErr != nil && !errors.Is(delErr, repository.ErrGiveawayNotFound) {
			return delErr
		}
		e.notify(ctx, g.CreatorID, renderHomeChannelLost(g))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to publish giveaway %d: %w", g.ID, err)
	}

	if err := e.participants.Create(ctx, g.ID); err != nil {
		return err
	}
	if err := e.repo.TransitionStatus(ctx, g.ID, models.StatusPublished); err != nil {
		return err
	}
	if err := e.repo.RecordPublish(ctx, g.ID, postURL, messageID); err != nil {
		return err
	}

	g.Status = models.StatusPublished
	g.PostURL = postURL
	g.MessageID = messageID

	e.notify(ctx, g.CreatorID, renderPublished(g))
	logger.Info().Int64("giveaway_id", g.ID).Str("post_url", postURL).Msg("Giveaway published")
	return nil
}

// Evaluate checks a published giveaway's end condition and finishes it when
// due. now is passed in so the scheduler's clock is the single time source.
// A still-running giveaway gets its post counter redrawn, which doubles as
// the tick-time probe for a deleted post.
func (e *Engine) Evaluate(ctx context.Context, g *models.Giveaway, now time.Time) error {
	if g.Status != models.StatusPublished {
		return nil
	}
	if g.DeadlinePassed(now) {
		return e.Finish(ctx, g)
	}
	count, err := e.participants.Count(ctx, g.ID)
	if errors.Is(err, repository.ErrParticipantsGone) {
		if g.EndCount != nil {
			// Nothing can ever push the count over the threshold again.
			return e.Finish(ctx, g)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if g.EndCount != nil && count >= *g.EndCount {
		return e.Finish(ctx, g)
	}
	return e.RefreshPostCounter(ctx, g, count)
}

// RefreshPostCounter redraws the join button so it shows the live participant
// count. An unreachable post finishes the giveaway on the spot; that is how a
// deleted post gets detected before its end condition.
func (e *Engine) RefreshPostCounter(ctx context.Context, g *models.Giveaway, count int64) error {
	e.pace(ctx)
	err := e.messenger.EditPostButton(ctx, g.ChannelID, g.MessageID, renderJoinButton(g, count), e.joinURL(g))
	switch {
	case errors.Is(err, ErrPostNotFound), errors.Is(err, ErrForbidden):
		logger.Warn().Err(err).Int64("giveaway_id", g.ID).Msg("Giveaway post unreachable, finishing early")
		return e.Finish(ctx, g)
	case err != nil:
		logger.Warn().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to refresh participant counter")
	}
	return nil
}

// Finish ends a published giveaway: freezes the post button, selects and
// verifies winners, announces the result and records the outcome. The
// FINISHED status is written after the outward-facing sends, so a crash
// mid-sequence is retried by the next tick and may repeat announcements
// rather than lose them.
func (e *Engine) Finish(ctx context.Context, g *models.Giveaway) error {
	postGone := false
	e.pace(ctx)
	err := e.messenger.EditPostButton(ctx, g.ChannelID, g.MessageID, "Results", e.resultsURL(g))
	switch {
	case errors.Is(err, ErrPostNotFound), errors.Is(err, ErrForbidden):
		postGone = true
		logger.Warn().Err(err).Int64("giveaway_id", g.ID).Msg("Giveaway post unreachable, finishing without it")
	case err != nil:
		logger.Warn().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to update post button")
	}

	members, err := e.participants.Members(ctx, g.ID)
	if errors.Is(err, repository.ErrParticipantsGone) {
		members = nil
	} else if err != nil {
		return err
	}

	// A deleted post means the giveaway was withdrawn from the channel; it
	// is closed without drawing winners or announcing anything there.
	var winners []int64
	if !postGone {
		winners, err = SelectWinners(ctx, members, g.WinnersCount, nil, func(ctx context.Context, userID int64) bool {
			return e.verifier.Eligible(ctx, g, userID)
		})
		if err != nil {
			return err
		}

		announcement := renderAnnouncement(e.winnerLabels(ctx, winners), e.resultsURL(g))
		e.pace(ctx)
		err = e.messenger.ReplyToPost(ctx, g.ChannelID, g.MessageID, announcement)
		if errors.Is(err, ErrPostNotFound) {
			// The post vanished between the button edit and the reply;
			// announce without the reply threading.
			e.pace(ctx)
			if err := e.messenger.SendMessage(ctx, g.ChannelID, announcement); err != nil {
				logger.Warn().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to announce results")
			}
		} else if err != nil && !errors.Is(err, ErrForbidden) {
			logger.Warn().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to announce results as reply")
		}
	}

	e.notifyWinners(ctx, g, winners)

	if err := e.repo.AppendWinners(ctx, g.ID, winners); err != nil {
		return err
	}
	count := int64(len(members))
	if err := e.repo.RecordFinish(ctx, g.ID, count); err != nil {
		return err
	}
	if err := e.repo.TransitionStatus(ctx, g.ID, models.StatusFinished); err != nil {
		return err
	}

	if err := e.participants.Expire(ctx, g.ID, e.participantsTTL); err != nil {
		logger.Warn().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to set participant TTL")
	}

	g.Status = models.StatusFinished
	g.ParticipantsCount = count
	g.WinnerIDs = append(g.WinnerIDs, winners...)

	if postGone {
		e.notify(ctx, g.CreatorID, renderPostLost(g))
	} else {
		e.notify(ctx, g.CreatorID, renderFinishedForCreator(g, len(winners)))
	}
	logger.Info().
		Int64("giveaway_id", g.ID).
		Int64("participants", count).
		Int("winners", len(winners)).
		Msg("Giveaway finished")
	return nil
}

// ForceFinish ends a published giveaway ahead of its end condition.
func (e *Engine) ForceFinish(ctx context.Context, id int64) error {
	g, err := e.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch g.Status {
	case models.StatusFinished:
		return nil
	case models.StatusNotPublished:
		return apperrors.New(apperrors.ErrCodeInvalidTransition, "giveaway has not been published yet").
			WithDetail("giveaway_id", id)
	}
	return e.Finish(ctx, g)
}

// AddWinners draws extra winners for a finished giveaway, excluding everyone
// who already won. It fails with NO_PARTICIPANTS when the participant list
// has expired or no eligible candidates remain.
func (e *Engine) AddWinners(ctx context.Context, id int64, count int) ([]int64, error) {
	if count <= 0 {
		return nil, apperrors.NewValidationError("count", "must be greater than zero")
	}
	g, err := e.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status != models.StatusFinished {
		return nil, apperrors.New(apperrors.ErrCodeInvalidTransition, "winners can only be added to a finished giveaway").
			WithDetail("giveaway_id", id).
			WithDetail("status", string(g.Status))
	}

	members, err := e.participants.Members(ctx, g.ID)
	if errors.Is(err, repository.ErrParticipantsGone) {
		return nil, apperrors.New(apperrors.ErrCodeNoParticipants, "the participant list has expired").
			WithDetail("giveaway_id", id)
	}
	if err != nil {
		return nil, err
	}

	exclude := make(map[int64]bool, len(g.WinnerIDs))
	for _, w := range g.WinnerIDs {
		exclude[w] = true
	}

	winners, err := SelectWinners(ctx, members, count, exclude, func(ctx context.Context, userID int64) bool {
		return e.verifier.Eligible(ctx, g, userID)
	})
	if err != nil {
		return nil, err
	}
	if len(winners) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeNoParticipants, "no eligible participants left").
			WithDetail("giveaway_id", id)
	}

	if err := e.repo.AppendWinners(ctx, g.ID, winners); err != nil {
		return nil, err
	}
	e.notifyWinners(ctx, g, winners)

	logger.Info().Int64("giveaway_id", g.ID).Int("added", len(winners)).Msg("Extra winners added")
	return winners, nil
}

// UpdateEndCondition replaces the end condition of a giveaway that has not
// finished yet. Setting a deadline clears the participant target and vice
// versa; a count-based condition may fire on the next scheduler tick if the
// threshold is already met.
func (e *Engine) UpdateEndCondition(ctx context.Context, id int64, endAt *time.Time, endCount *int64) error {
	if (endAt == nil) == (endCount == nil) {
		return apperrors.NewValidationError("end_condition", "exactly one of deadline and participant target must be set")
	}
	if endCount != nil && *endCount <= 0 {
		return apperrors.NewValidationError("end_count", "must be greater than zero")
	}
	g, err := e.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if g.Status == models.StatusFinished {
		return apperrors.New(apperrors.ErrCodeInvalidTransition, "a finished giveaway cannot be rescheduled").
			WithDetail("giveaway_id", id)
	}

	if endAt != nil && endAt.Before(time.Now().Add(minDeadlineLead)) {
		return apperrors.NewValidationError("end_at",
			fmt.Sprintf("must be at least %s in the future", minDeadlineLead))
	}
	if endCount != nil && g.Status == models.StatusPublished {
		// The target must still be ahead of the current count, otherwise the
		// change would finish the giveaway as a side effect.
		count, err := e.participants.Count(ctx, g.ID)
		if err != nil && !errors.Is(err, repository.ErrParticipantsGone) {
			return err
		}
		if err == nil && *endCount <= count {
			return apperrors.NewValidationError("end_count", "must exceed the current participant count").
				WithDetail("current_count", count)
		}
	}

	return e.repo.UpdateEndCondition(ctx, id, endAt, endCount)
}

// minDeadlineLead keeps deadline edits from instantly expiring a giveaway.
const minDeadlineLead = 5 * time.Minute

// RecentParticipants returns the newest n participants, in join order.
func (e *Engine) RecentParticipants(ctx context.Context, id int64, n int64) ([]int64, error) {
	if _, err := e.GetByID(ctx, id); err != nil {
		return nil, err
	}
	recent, err := e.participants.LastN(ctx, id, n)
	if errors.Is(err, repository.ErrParticipantsGone) {
		return nil, apperrors.New(apperrors.ErrCodeNoParticipants, "the participant list has expired").
			WithDetail("giveaway_id", id)
	}
	return recent, err
}

// Results answers a user's results query for one giveaway.
func (e *Engine) Results(ctx context.Context, giveawayID, userID int64) (string, error) {
	g, err := e.GetByID(ctx, giveawayID)
	if err != nil {
		return "", err
	}
	var labels []string
	if g.Status == models.StatusFinished {
		labels = e.winnerLabels(ctx, g.WinnerIDs)
	}
	return renderResults(g, userID, labels), nil
}

// HandleChannelRemoved reacts to the bot losing a channel. Giveaways homed
// there are cancelled outright; giveaways that only listed it as a sponsor
// drop the requirement, and the ones left with no sponsors at all are
// finished early.
func (e *Engine) HandleChannelRemoved(ctx context.Context, channelID int64) error {
	removed, err := e.repo.DeleteByChannel(ctx, channelID)
	if err != nil {
		return err
	}
	for _, g := range removed {
		e.notify(ctx, g.CreatorID, renderHomeChannelLost(g))
	}
	if len(removed) > 0 {
		e.alerts.Alert(ctx, fmt.Sprintf("Channel %d removed, %d giveaway(s) cancelled", channelID, len(removed)))
	}

	orphaned, err := e.repo.DetachSponsorChannel(ctx, channelID)
	if err != nil {
		return err
	}
	for _, g := range orphaned {
		e.notify(ctx, g.CreatorID, renderSponsorLost(g, channelID))
		if g.Status == models.StatusPublished {
			if err := e.Finish(ctx, g); err != nil {
				logger.Error().Err(err).Int64("giveaway_id", g.ID).Msg("Failed to finish orphaned giveaway")
			}
		}
	}
	return nil
}

// winnerLabels resolves winner ids into the names shown in announcements.
// Everyone who joined came through /start and got registered, so a missing
// record is unusual; those fall back to the bare id.
func (e *Engine) winnerLabels(ctx context.Context, winners []int64) []string {
	labels := make([]string, 0, len(winners))
	for _, id := range winners {
		u, err := e.users.GetByID(ctx, id)
		if err != nil {
			labels = append(labels, fmt.Sprintf("id %d", id))
			continue
		}
		labels = append(labels, u.DisplayName())
	}
	return labels
}

// notifyWinners delivers direct messages to winners, paced by the send
// limiter. Delivery failures (blocked bot, closed DMs) are logged and
// skipped; the winner stays recorded either way.
func (e *Engine) notifyWinners(ctx context.Context, g *models.Giveaway, winners []int64) {
	for _, userID := range winners {
		if err := e.limiter.Wait(ctx); err != nil {
			return
		}
		if err := e.messenger.SendMessage(ctx, userID, renderWinnerMessage(g)); err != nil {
			logger.Warn().
				Err(err).
				Int64("giveaway_id", g.ID).
				Int64("user_id", userID).
				Msg("Failed to notify winner")
		}
	}
}

// notify sends a best-effort direct message.
func (e *Engine) notify(ctx context.Context, userID int64, text string) {
	e.pace(ctx)
	if err := e.messenger.SendMessage(ctx, userID, text); err != nil {
		logger.Warn().Err(err).Int64("user_id", userID).Msg("Failed to notify user")
	}
}
