package models

import (
	"time"

	"github.com/samber/lo"
)

// GiveawayStatus represents the lifecycle state of a giveaway.
// Transitions are strictly forward-only: NOT_PUBLISHED -> PUBLISHED -> FINISHED.
type GiveawayStatus string

const (
	StatusNotPublished GiveawayStatus = "NOT_PUBLISHED"
	StatusPublished    GiveawayStatus = "PUBLISHED"
	StatusFinished     GiveawayStatus = "FINISHED"
)

// CanTransitionTo reports whether moving to target is a legal forward step.
// A transition to the current status is not legal here; repositories treat it
// as an idempotent no-op instead.
func (s GiveawayStatus) CanTransitionTo(target GiveawayStatus) bool {
	switch s {
	case StatusNotPublished:
		return target == StatusPublished
	case StatusPublished:
		return target == StatusFinished
	default:
		return false
	}
}

// MediaType tags the optional post attachment.
type MediaType string

const (
	MediaNone      MediaType = ""
	MediaPhoto     MediaType = "photo"
	MediaVideo     MediaType = "video"
	MediaAnimation MediaType = "animation"
)

// Giveaway is the central entity: one promotion posted to a home channel.
type Giveaway struct {
	ID        int64     `json:"id"`
	CreatorID int64     `json:"creator_id"`
	ChannelID int64     `json:"channel_id"`
	Text      string    `json:"text"`
	MediaType MediaType `json:"media_type,omitempty"`
	Media     string    `json:"media,omitempty"`
	Button    string    `json:"button"`

	SponsorChannelIDs []int64 `json:"sponsor_channel_ids"`
	ExtraConditions   string  `json:"extra_conditions,omitempty"`
	Captcha           bool    `json:"captcha"`

	WinnersCount int        `json:"winners_count"`
	PostAt       *time.Time `json:"post_at,omitempty"`
	EndAt        *time.Time `json:"end_at,omitempty"`
	EndCount     *int64     `json:"end_count,omitempty"`

	Status            GiveawayStatus `json:"status"`
	PostURL           string         `json:"post_url,omitempty"`
	MessageID         int64          `json:"message_id,omitempty"`
	ParticipantsCount int64          `json:"participants_count"`
	WinnerIDs         []int64        `json:"winner_ids"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// RequiredChannels returns the channel set a participant must be subscribed
// to: all sponsor channels plus the home channel unless it is already listed.
// Order is insertion order; it matters for display only.
func (g *Giveaway) RequiredChannels() []int64 {
	if lo.Contains(g.SponsorChannelIDs, g.ChannelID) {
		return g.SponsorChannelIDs
	}
	required := make([]int64, 0, len(g.SponsorChannelIDs)+1)
	required = append(required, g.ChannelID)
	required = append(required, g.SponsorChannelIDs...)
	return required
}

// IsWinner reports whether the user is already in the winner list.
func (g *Giveaway) IsWinner(userID int64) bool {
	return lo.Contains(g.WinnerIDs, userID)
}

// DueForPublish reports whether the giveaway should be posted at now.
func (g *Giveaway) DueForPublish(now time.Time) bool {
	if g.Status != StatusNotPublished {
		return false
	}
	return g.PostAt == nil || !g.PostAt.After(now)
}

// DeadlinePassed reports whether a time-based end condition has elapsed.
func (g *Giveaway) DeadlinePassed(now time.Time) bool {
	return g.EndAt != nil && !g.EndAt.After(now)
}
