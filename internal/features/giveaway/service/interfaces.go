package service

import (
	"context"
	"errors"

	"giveaway-bot/internal/features/giveaway/models"
)

// Transport-level sentinel errors the engine branches on. The Telegram
// adapter maps raw API failures onto these; everything else surfaces as-is.
var (
	// ErrPostNotFound means the message the call targeted no longer exists,
	// typically because the channel post was deleted by an admin.
	ErrPostNotFound = errors.New("message not found")

	// ErrForbidden means the bot lacks access: kicked from the channel or
	// blocked by the user.
	ErrForbidden = errors.New("access forbidden")
)

// MemberStatus is a user's membership state in a channel, as reported by the
// messaging platform.
type MemberStatus string

const (
	MemberStatusCreator       MemberStatus = "creator"
	MemberStatusAdministrator MemberStatus = "administrator"
	MemberStatusMember        MemberStatus = "member"
	MemberStatusRestricted    MemberStatus = "restricted"
	MemberStatusLeft          MemberStatus = "left"
	MemberStatusKicked        MemberStatus = "kicked"
)

// Subscribed reports whether the status counts as an active subscription.
// Restricted members are deliberately not counted.
func (s MemberStatus) Subscribed() bool {
	switch s {
	case MemberStatusCreator, MemberStatusAdministrator, MemberStatusMember:
		return true
	default:
		return false
	}
}

// PostContent is a channel post to publish: body, optional media attachment
// and the join button.
type PostContent struct {
	Text        string
	MediaType   models.MediaType
	Media       string
	ButtonLabel string
	ButtonURL   string
}

// Messenger is the messaging transport the engine drives. Implementations
// translate platform failures into ErrPostNotFound / ErrForbidden where the
// distinction matters.
type Messenger interface {
	models.ChannelResolver

	// SendChannelPost publishes a post and returns its message id and a
	// public URL for it.
	SendChannelPost(ctx context.Context, channelID int64, content PostContent) (messageID int64, postURL string, err error)

	// EditPostButton swaps the post's inline button. ErrPostNotFound means
	// the post was deleted out from under us.
	EditPostButton(ctx context.Context, channelID, messageID int64, label, url string) error

	// ReplyToPost announces text as a reply in the channel. Callers fall back
	// to SendChannelPost-style plain sends when the parent is gone.
	ReplyToPost(ctx context.Context, channelID, messageID int64, text string) error

	// SendMessage delivers a direct message to a user or service channel.
	SendMessage(ctx context.Context, chatID int64, text string) error

	// SendPhoto delivers an in-memory image with a caption.
	SendPhoto(ctx context.Context, chatID int64, image []byte, caption string) error

	// GetMembershipStatus reports the user's membership in a channel.
	GetMembershipStatus(ctx context.Context, channelID, userID int64) (MemberStatus, error)

	// BotUsername returns the bot's own username for deep link construction.
	BotUsername() string
}
