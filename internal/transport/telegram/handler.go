// Package telegram is the bot-facing transport: it parses updates and
// commands, applies authorization, and phrases replies. All lifecycle logic
// lives in the giveaway service.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "giveaway-bot/internal/common/errors"
	"giveaway-bot/internal/common/logger"
	"giveaway-bot/internal/features/giveaway/service"
	usermodels "giveaway-bot/internal/features/user/models"
	userrepo "giveaway-bot/internal/features/user/repository"
	"giveaway-bot/internal/utils/deeplink"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/samber/lo"
)

// Handler routes bot updates to the giveaway services.
type Handler struct {
	engine   *service.Engine
	join     *service.JoinService
	users    userrepo.UserRepository
	adminIDs []int64
}

func NewHandler(engine *service.Engine, join *service.JoinService, users userrepo.UserRepository, adminIDs []int64) *Handler {
	return &Handler{
		engine:   engine,
		join:     join,
		users:    users,
		adminIDs: adminIDs,
	}
}

// RegisterCommands attaches the command handlers. Everything else funnels
// through HandleUpdate, which must be installed as the default handler.
func (h *Handler) RegisterCommands(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypeExact, h.handleCancel)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/my", bot.MatchTypeExact, h.handleMyGiveaways)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/finish", bot.MatchTypePrefix, h.handleFinish)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/delete", bot.MatchTypePrefix, h.handleDelete)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/addwinners", bot.MatchTypePrefix, h.handleAddWinners)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/deadline", bot.MatchTypePrefix, h.handleDeadline)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/target", bot.MatchTypePrefix, h.handleTarget)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/recent", bot.MatchTypePrefix, h.handleRecent)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, h.handleHelp)
}

// HandleUpdate is the default handler: captcha answers arrive as plain text,
// and channel membership updates tell us when the bot loses a channel.
func (h *Handler) HandleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.MyChatMember != nil {
		h.processChatMemberUpdate(ctx, update.MyChatMember)
		return
	}
	if update.Message == nil || update.Message.From == nil {
		return
	}
	if update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}

	userID := update.Message.From.ID
	pending, err := h.join.HasPendingCaptcha(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to check pending captcha")
		return
	}
	if pending {
		h.processCaptchaAnswer(ctx, b, update.Message)
	}
}

func (h *Handler) processChatMemberUpdate(ctx context.Context, upd *models.ChatMemberUpdated) {
	if upd.Chat.Type != models.ChatTypeChannel {
		return
	}
	status := upd.NewChatMember.Type
	if status != models.ChatMemberTypeLeft && status != models.ChatMemberTypeBanned {
		return
	}

	logger.Info().Int64("channel_id", upd.Chat.ID).Msg("Bot removed from channel")
	if err := h.engine.HandleChannelRemoved(ctx, upd.Chat.ID); err != nil {
		logger.Error().Err(err).Int64("channel_id", upd.Chat.ID).Msg("Failed to handle channel removal")
	}
}

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	h.rememberUser(ctx, msg.From)

	payload := strings.TrimSpace(strings.TrimPrefix(msg.Text, "/start"))
	if payload == "" {
		h.reply(ctx, b, msg.Chat.ID,
			"Hi! Follow a giveaway link to participate, or send /help to see what I can do.")
		return
	}

	kind, giveawayID, err := deeplink.Parse(payload)
	if err != nil {
		logger.Warn().Err(err).Str("payload", payload).Msg("Unparseable start payload")
		h.reply(ctx, b, msg.Chat.ID, "This link does not look like a giveaway link.")
		return
	}

	switch kind {
	case deeplink.KindJoin:
		h.processJoin(ctx, b, msg.Chat.ID, giveawayID, msg.From.ID)
	case deeplink.KindCheck:
		h.processResultsCheck(ctx, b, msg.Chat.ID, giveawayID, msg.From.ID)
	}
}

func (h *Handler) processJoin(ctx context.Context, b *bot.Bot, chatID, giveawayID, userID int64) {
	res, err := h.join.Join(ctx, giveawayID, userID)
	if err != nil {
		h.replyError(ctx, b, chatID, err)
		return
	}

	switch res.Outcome {
	case service.JoinedOK:
		h.reply(ctx, b, chatID, "You're in! Good luck.")
	case service.AlreadyJoined:
		h.reply(ctx, b, chatID, "You are already participating in this giveaway.")
	case service.JoinClosed:
		h.reply(ctx, b, chatID, "This giveaway is not accepting participants right now.")
	case service.NotSubscribed:
		var sb strings.Builder
		sb.WriteString("To participate you need to subscribe to:\n")
		for _, ch := range res.MissingChannels {
			if ch.InviteLink != "" {
				fmt.Fprintf(&sb, "- %s (%s)\n", ch.Title, ch.InviteLink)
			} else {
				fmt.Fprintf(&sb, "- %s\n", ch.Title)
			}
		}
		sb.WriteString("Then follow the giveaway link again.")
		h.reply(ctx, b, chatID, sb.String())
	case service.CaptchaRequired:
		// The captcha image has already been sent; nothing else to say.
	}
}

func (h *Handler) processResultsCheck(ctx context.Context, b *bot.Bot, chatID, giveawayID, userID int64) {
	text, err := h.engine.Results(ctx, giveawayID, userID)
	if err != nil {
		h.replyError(ctx, b, chatID, err)
		return
	}
	h.reply(ctx, b, chatID, text)
}

func (h *Handler) processCaptchaAnswer(ctx context.Context, b *bot.Bot, msg *models.Message) {
	res, err := h.join.SubmitCaptcha(ctx, msg.From.ID, strings.TrimSpace(msg.Text))
	if err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err)
		return
	}

	switch res.Outcome {
	case service.CaptchaPassed:
		switch res.Join.Outcome {
		case service.JoinedOK:
			h.reply(ctx, b, msg.Chat.ID, "Correct! You're in. Good luck.")
		case service.AlreadyJoined:
			h.reply(ctx, b, msg.Chat.ID, "Correct! You are already participating.")
		default:
			h.reply(ctx, b, msg.Chat.ID, "Correct, but the giveaway has closed in the meantime.")
		}
	case service.CaptchaWrong:
		h.reply(ctx, b, msg.Chat.ID,
			fmt.Sprintf("Wrong answer, %d attempt(s) left.", res.AttemptsLeft))
	case service.CaptchaExhausted:
		h.reply(ctx, b, msg.Chat.ID,
			"Out of attempts. Follow the giveaway link again to get a new captcha.")
	case service.CaptchaNone:
		h.reply(ctx, b, msg.Chat.ID,
			"The captcha has expired. Follow the giveaway link again.")
	}
}

func (h *Handler) handleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if err := h.join.CancelCaptcha(ctx, msg.From.ID); err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err)
		return
	}
	h.reply(ctx, b, msg.Chat.ID, "Cancelled.")
}

func (h *Handler) handleMyGiveaways(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	giveaways, err := h.engine.ListByCreator(ctx, msg.From.ID)
	if err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err)
		return
	}
	if len(giveaways) == 0 {
		h.reply(ctx, b, msg.Chat.ID, "You have no giveaways yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your giveaways:\n")
	for _, g := range giveaways {
		fmt.Fprintf(&sb, "#%d [%s] %d participant(s)", g.ID, g.Status, g.ParticipantsCount)
		if g.PostURL != "" {
			fmt.Fprintf(&sb, " %s", g.PostURL)
		}
		sb.WriteByte('\n')
	}
	h.reply(ctx, b, msg.Chat.ID, sb.String())
}

func (h *Handler) handleFinish(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	giveawayID, ok := h.parseGiveawayArg(ctx, b, msg, "/finish")
	if !ok {
		return
	}
	if !h.authorizeOwner(ctx, b, msg, giveawayID) {
		return
	}
	if err := h.engine.ForceFinish(ctx, giveawayID); err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err)
		return
	}
	h.reply(ctx, b, msg.Chat.ID, fmt.Sprintf("Giveaway #%d finished.", giveawayID))
}

func (h *Handler) handleDelete(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	giveawayID, ok := h.parseGiveawayArg(ctx, b, msg, "/delete")
	if !ok {
		return
	}
	if !h.authorizeOwner(ctx, b, msg, giveawayID) {
		return
	}
	if err := h.engine.Delete(ctx, giveawayID); err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err)
		return
	}
	h.reply(ctx, b, msg.Chat.ID, fmt.Sprintf("Giveaway #%d deleted.", giveawayID))
}

func (h *Handler) handleAddWinners(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	args := strings.Fields(strings.TrimPrefix(msg.Text, "/addwinners"))
	if len(args) != 2 {
		h.reply(ctx, b, msg.Chat.ID, "Usage: /addwinners <giveaway id> <count>")
		return
	}
	giveawayID, err1 := strconv.ParseInt(args[0], 10, 64)
	count, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		h.reply(ctx, b, msg.Chat.ID, "Usage: /addwinners <giveaway id> <count>")
		return
	}
	if !h.authorizeOwner(ctx, b, msg, giveawayID) {
		return
	}

	winners, err := h.engine.AddWinners(ctx, giveawayID, count)
	if err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err)
		return
	}
	h.reply(ctx, b, msg.Chat.ID,
		fmt.Sprintf("Added %d winner(s) to giveaway #%d.", len(winners), giveawayID))
}

// handleDeadline switches a giveaway to a time-based end condition.
func (h *Handler) handleDeadline(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	args := strings.Fields(strings.TrimPrefix(msg.Text, "/deadline"))
	if len(args) != 2 {
		h.reply(ctx, b, msg.Chat.ID, "Usage: /deadline <giveaway id> <RFC3339 time>, e.g. /deadline 7 2026-09-01T18:00:00Z")
		return
	}
	giveawayID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		h.reply(ctx, b, msg.Chat.ID, "The giveaway id must be a number.")
		return
	}
	endAt, err := time.Parse(time.RFC3339, args[1])
	if err != nil {
		h.reply(ctx, b, msg.Chat.ID, "Could not parse the time, use RFC3339 like 2026-09-01T18:00:00Z.")
		return
	}
	if !h.authorizeOwner(ctx, b, msg, giveawayID) {
		return
	}
	if err := h.engine.UpdateEndCondition(ctx, giveawayID, &endAt, nil); err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err)
		return
	}
	h.reply(ctx, b, msg.Chat.ID,
		fmt.Sprintf("Giveaway #%d now ends at %s.", giveawayID, endAt.Format(time.RFC3339)))
}

// handleTarget switches a giveaway to a participant-count end condition.
func (h *Handler) handleTarget(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	args := strings.Fields(strings.TrimPrefix(msg.Text, "/target"))
	if len(args) != 2 {
		h.reply(ctx, b, msg.Chat.ID, "Usage: /target <giveaway id> <participant count>")
		return
	}
	giveawayID, err1 := strconv.ParseInt(args[0], 10, 64)
	count, err2 := strconv.ParseInt(args[1], 10, 64)
	if err1 != nil || err2 != nil {
		h.reply(ctx, b, msg.Chat.ID, "Usage: /target <giveaway id> <participant count>")
		return
	}
	if !h.authorizeOwner(ctx, b, msg, giveawayID) {
		return
	}
	if err := h.engine.UpdateEndCondition(ctx, giveawayID, nil, &count); err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err)
		return
	}
	h.reply(ctx, b, msg.Chat.ID,
		fmt.Sprintf("Giveaway #%d now ends at %d participant(s).", giveawayID, count))
}

func (h *Handler) handleRecent(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	giveawayID, ok := h.parseGiveawayArg(ctx, b, msg, "/recent")
	if !ok {
		return
	}
	if !h.authorizeOwner(ctx, b, msg, giveawayID) {
		return
	}

	recent, err := h.engine.RecentParticipants(ctx, giveawayID, 10)
	if err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err)
		return
	}
	if len(recent) == 0 {
		h.reply(ctx, b, msg.Chat.ID, "No participants yet.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Latest %d participant(s):\n", len(recent))
	for _, userID := range recent {
		if u, err := h.users.GetByID(ctx, userID); err == nil {
			fmt.Fprintf(&sb, "- %s\n", u.DisplayName())
		} else {
			fmt.Fprintf(&sb, "- id %d\n", userID)
		}
	}
	h.reply(ctx, b, msg.Chat.ID, sb.String())
}

func (h *Handler) handleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, strings.Join([]string{
		"/my - list your giveaways",
		"/finish <id> - finish a running giveaway early",
		"/delete <id> - delete an unpublished giveaway",
		"/addwinners <id> <count> - draw extra winners for a finished giveaway",
		"/deadline <id> <time> - end the giveaway at a point in time",
		"/target <id> <count> - end the giveaway at a participant count",
		"/recent <id> - show the latest participants",
		"/cancel - cancel a pending captcha",
	}, "\n"))
}

// parseGiveawayArg reads the single numeric argument of a command.
func (h *Handler) parseGiveawayArg(ctx context.Context, b *bot.Bot, msg *models.Message, command string) (int64, bool) {
	arg := strings.TrimSpace(strings.TrimPrefix(msg.Text, command))
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		h.reply(ctx, b, msg.Chat.ID, fmt.Sprintf("Usage: %s <giveaway id>", command))
		return 0, false
	}
	return id, true
}

// isAdmin allows users flagged as admins in their stored record as well as
// the statically configured operator ids.
func (h *Handler) isAdmin(ctx context.Context, userID int64) bool {
	if lo.Contains(h.adminIDs, userID) {
		return true
	}
	u, err := h.users.GetByID(ctx, userID)
	return err == nil && u.IsAdmin
}

// authorizeOwner allows the giveaway's creator and admins.
func (h *Handler) authorizeOwner(ctx context.Context, b *bot.Bot, msg *models.Message, giveawayID int64) bool {
	if h.isAdmin(ctx, msg.From.ID) {
		return true
	}
	g, err := h.engine.GetByID(ctx, giveawayID)
	if err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err)
		return false
	}
	if g.CreatorID != msg.From.ID {
		h.reply(ctx, b, msg.Chat.ID, "Only the giveaway's creator can do that.")
		return false
	}
	return true
}

func (h *Handler) rememberUser(ctx context.Context, from *models.User) {
	err := h.users.Upsert(ctx, &usermodels.User{
		ID:        from.ID,
		Username:  from.Username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	})
	if err != nil {
		logger.Warn().Err(err).Int64("user_id", from.ID).Msg("Failed to store user")
	}
}

func (h *Handler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		logger.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send reply")
	}
}

// replyError phrases an application error for the user; anything unexpected
// becomes a generic apology and a log line.
func (h *Handler) replyError(ctx context.Context, b *bot.Bot, chatID int64, err error) {
	if appErr, ok := apperrors.AsAppError(err); ok {
		switch appErr.Code {
		case apperrors.ErrCodeGiveawayNotFound:
			h.reply(ctx, b, chatID, "This giveaway does not exist anymore.")
			return
		case apperrors.ErrCodeNoParticipants:
			h.reply(ctx, b, chatID, "There are no eligible participants left to draw from.")
			return
		case apperrors.ErrCodeValidation, apperrors.ErrCodeInvalidTransition:
			h.reply(ctx, b, chatID, appErr.Message)
			return
		}
	}
	logger.Error().Err(err).Int64("chat_id", chatID).Msg("Unhandled error in bot handler")
	h.reply(ctx, b, chatID, "Something went wrong, please try again later.")
}
