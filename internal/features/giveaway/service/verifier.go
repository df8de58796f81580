package service

import (
	"context"
	"fmt"

	"giveaway-bot/internal/common/logger"
	"giveaway-bot/internal/features/giveaway/models"
)

// Verifier checks a user's subscription to every channel a giveaway
// requires. It is used both at join time and again at winner selection, so a
// user who left a channel after joining never wins.
type Verifier struct {
	messenger Messenger
	alerts    *OperatorAlerts
}

func NewVerifier(messenger Messenger, alerts *OperatorAlerts) *Verifier {
	return &Verifier{messenger: messenger, alerts: alerts}
}

// MissingChannels returns the required channels the user is not subscribed
// to. A verification failure against one channel is reported to the operator
// channel and treated as "not subscribed" rather than blocking the whole
// check.
func (v *Verifier) MissingChannels(ctx context.Context, g *models.Giveaway, userID int64) []int64 {
	var missing []int64
	for _, channelID := range g.RequiredChannels() {
		status, err := v.messenger.GetMembershipStatus(ctx, channelID, userID)
		if err != nil {
			logger.Warn().
				Err(err).
				Int64("giveaway_id", g.ID).
				Int64("channel_id", channelID).
				Int64("user_id", userID).
				Msg("Subscription check failed")
			v.alerts.Alert(ctx, fmt.Sprintf(
				"Subscription check failed: giveaway %d, channel %d, user %d: %v",
				g.ID, channelID, userID, err))
			missing = append(missing, channelID)
			continue
		}
		if !status.Subscribed() {
			missing = append(missing, channelID)
		}
	}
	return missing
}

// Eligible reports whether the user currently satisfies every subscription
// requirement of the giveaway.
func (v *Verifier) Eligible(ctx context.Context, g *models.Giveaway, userID int64) bool {
	return len(v.MissingChannels(ctx, g, userID)) == 0
}

// OperatorAlerts forwards operational problems to a service channel. A zero
// channel id disables it.
type OperatorAlerts struct {
	messenger Messenger
	channelID int64
}

func NewOperatorAlerts(messenger Messenger, channelID int64) *OperatorAlerts {
	return &OperatorAlerts{messenger: messenger, channelID: channelID}
}

func (a *OperatorAlerts) Alert(ctx context.Context, text string) {
	if a == nil || a.channelID == 0 {
		return
	}
	if err := a.messenger.SendMessage(ctx, a.channelID, text); err != nil {
		logger.Error().Err(err).Msg("Failed to deliver operator alert")
	}
}
