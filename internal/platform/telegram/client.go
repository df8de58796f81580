// Package telegram adapts the Bot API client to the messaging interface the
// giveaway engine drives.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"giveaway-bot/internal/common/logger"
	giveawaymodels "giveaway-bot/internal/features/giveaway/models"
	"giveaway-bot/internal/features/giveaway/service"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Client wraps the Bot API client and carries the bot's own identity.
type Client struct {
	bot      *bot.Bot
	username string
}

// NewClient builds the adapter around an already constructed bot and fetches
// the bot's identity once up front.
func NewClient(ctx context.Context, b *bot.Bot) (*Client, error) {
	me, err := b.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to identify bot: %w", err)
	}
	logger.Info().Str("bot_username", me.Username).Msg("Telegram client ready")
	return &Client{bot: b, username: me.Username}, nil
}

func (c *Client) BotUsername() string {
	return c.username
}

// mapError translates raw Bot API failures into the sentinel errors the
// engine branches on.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bot.ErrorForbidden) {
		return fmt.Errorf("%w: %v", service.ErrForbidden, err)
	}
	msg := err.Error()
	if errors.Is(err, bot.ErrorNotFound) ||
		strings.Contains(msg, "message to edit not found") ||
		strings.Contains(msg, "message to be replied not found") ||
		strings.Contains(msg, "chat not found") {
		return fmt.Errorf("%w: %v", service.ErrPostNotFound, err)
	}
	return err
}

func joinButton(label, url string) models.ReplyMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: label, URL: url}},
		},
	}
}

func (c *Client) SendChannelPost(ctx context.Context, channelID int64, content service.PostContent) (int64, string, error) {
	markup := joinButton(content.ButtonLabel, content.ButtonURL)

	var msg *models.Message
	var err error
	switch content.MediaType {
	case giveawaymodels.MediaPhoto:
		msg, err = c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:      channelID,
			Photo:       &models.InputFileString{Data: content.Media},
			Caption:     content.Text,
			ReplyMarkup: markup,
		})
	case giveawaymodels.MediaVideo:
		msg, err = c.bot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:      channelID,
			Video:       &models.InputFileString{Data: content.Media},
			Caption:     content.Text,
			ReplyMarkup: markup,
		})
	case giveawaymodels.MediaAnimation:
		msg, err = c.bot.SendAnimation(ctx, &bot.SendAnimationParams{
			ChatID:      channelID,
			Animation:   &models.InputFileString{Data: content.Media},
			Caption:     content.Text,
			ReplyMarkup: markup,
		})
	default:
		msg, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      channelID,
			Text:        content.Text,
			ReplyMarkup: markup,
		})
	}
	if err != nil {
		return 0, "", mapError(err)
	}

	return int64(msg.ID), c.postURL(ctx, channelID, msg.ID), nil
}

// postURL builds a t.me link for a channel message. Private channels get the
// t.me/c form keyed by the channel's internal id.
func (c *Client) postURL(ctx context.Context, channelID int64, messageID int) string {
	chat, err := c.bot.GetChat(ctx, &bot.GetChatParams{ChatID: channelID})
	if err == nil && chat.Username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", chat.Username, messageID)
	}
	internal := channelID
	if internal < 0 {
		internal = -internal
	}
	// Supergroup/channel ids carry a -100 prefix on the wire.
	const marker = int64(1000000000000)
	if internal > marker {
		internal = internal % marker
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", internal, messageID)
}

func (c *Client) EditPostButton(ctx context.Context, channelID, messageID int64, label, url string) error {
	_, err := c.bot.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      channelID,
		MessageID:   int(messageID),
		ReplyMarkup: joinButton(label, url),
	})
	return mapError(err)
}

func (c *Client) ReplyToPost(ctx context.Context, channelID, messageID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: channelID,
		Text:   text,
		ReplyParameters: &models.ReplyParameters{
			MessageID: int(messageID),
		},
	})
	return mapError(err)
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return mapError(err)
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, image []byte, caption string) error {
	_, err := c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: "captcha.png", Data: bytes.NewReader(image)},
		Caption: caption,
	})
	return mapError(err)
}

func (c *Client) GetMembershipStatus(ctx context.Context, channelID, userID int64) (service.MemberStatus, error) {
	member, err := c.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: channelID,
		UserID: userID,
	})
	if err != nil {
		return "", mapError(err)
	}

	switch member.Type {
	case models.ChatMemberTypeOwner:
		return service.MemberStatusCreator, nil
	case models.ChatMemberTypeAdministrator:
		return service.MemberStatusAdministrator, nil
	case models.ChatMemberTypeMember:
		return service.MemberStatusMember, nil
	case models.ChatMemberTypeRestricted:
		return service.MemberStatusRestricted, nil
	case models.ChatMemberTypeBanned:
		return service.MemberStatusKicked, nil
	default:
		return service.MemberStatusLeft, nil
	}
}

func (c *Client) ResolveChannel(ctx context.Context, channelID int64) (*giveawaymodels.Channel, error) {
	chat, err := c.bot.GetChat(ctx, &bot.GetChatParams{ChatID: channelID})
	if err != nil {
		return nil, mapError(err)
	}

	link := chat.InviteLink
	if link == "" && chat.Username != "" {
		link = "https://t.me/" + chat.Username
	}
	return &giveawaymodels.Channel{
		ID:         chat.ID,
		Title:      chat.Title,
		InviteLink: link,
	}, nil
}
