package service

import (
	"fmt"
	"strings"

	"giveaway-bot/internal/features/giveaway/models"
	"giveaway-bot/internal/utils/deeplink"
)

// Message texts the engine sends. Kept together so the whole user-facing
// vocabulary of the bot is in one place.

func (e *Engine) joinURL(g *models.Giveaway) string {
	return deeplink.URL(e.messenger.BotUsername(), deeplink.Join(g.ID))
}

func (e *Engine) resultsURL(g *models.Giveaway) string {
	return deeplink.URL(e.messenger.BotUsername(), deeplink.Check(g.ID))
}

// renderJoinButton labels the join button with the live participant count.
func renderJoinButton(g *models.Giveaway, count int64) string {
	return fmt.Sprintf("%s (%d)", g.Button, count)
}

// renderPostBody appends the participation conditions to the creator's text
// so a reader sees what to subscribe to and when the giveaway ends.
func renderPostBody(g *models.Giveaway, sponsors []*models.Channel) string {
	var sb strings.Builder
	sb.WriteString(g.Text)
	if len(sponsors) > 0 || g.ExtraConditions != "" {
		sb.WriteString("\n\nTo participate:\n")
		for _, ch := range sponsors {
			title := ch.Title
			if title == "" {
				title = fmt.Sprintf("channel %d", ch.ID)
			}
			if ch.InviteLink != "" {
				fmt.Fprintf(&sb, "- subscribe to %s: %s\n", title, ch.InviteLink)
			} else {
				fmt.Fprintf(&sb, "- subscribe to %s\n", title)
			}
		}
		if g.ExtraConditions != "" {
			fmt.Fprintf(&sb, "- %s\n", g.ExtraConditions)
		}
	}
	if cond := renderEndCondition(g); cond != "" {
		sb.WriteString("\n")
		sb.WriteString(cond)
	}
	return sb.String()
}

func renderEndCondition(g *models.Giveaway) string {
	switch {
	case g.EndAt != nil:
		return fmt.Sprintf("Ends %s.", g.EndAt.UTC().Format("2006-01-02 15:04 UTC"))
	case g.EndCount != nil:
		return fmt.Sprintf("Ends once %d participant(s) have joined.", *g.EndCount)
	}
	return ""
}

func renderWinnerList(labels []string) string {
	var sb strings.Builder
	for i, label := range labels {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, label)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderAnnouncement(winnerLabels []string, resultsURL string) string {
	if len(winnerLabels) == 0 {
		return "The giveaway has ended. No winners could be determined."
	}
	return fmt.Sprintf("The giveaway has ended! Winners:\n%s\nCheck the results: %s",
		renderWinnerList(winnerLabels), resultsURL)
}

func renderWinnerMessage(g *models.Giveaway) string {
	return fmt.Sprintf("Congratulations! You won the giveaway \"%s\". The organizer will contact you about your prize.",
		headline(g.Text))
}

func renderPublished(g *models.Giveaway) string {
	return fmt.Sprintf("Your giveaway \"%s\" has been published: %s", headline(g.Text), g.PostURL)
}

func renderFinishedForCreator(g *models.Giveaway, winnerCount int) string {
	return fmt.Sprintf("Your giveaway \"%s\" has finished with %d participant(s) and %d winner(s).",
		headline(g.Text), g.ParticipantsCount, winnerCount)
}

func renderPostLost(g *models.Giveaway) string {
	return fmt.Sprintf("Your giveaway \"%s\" was closed without winners: its channel post no longer exists.",
		headline(g.Text))
}

func renderHomeChannelLost(g *models.Giveaway) string {
	return fmt.Sprintf("Your giveaway \"%s\" was cancelled: the bot no longer has access to the channel it was posted to.",
		headline(g.Text))
}

func renderSponsorLost(g *models.Giveaway, channelID int64) string {
	return fmt.Sprintf("Sponsor channel %d was removed from your giveaway \"%s\": the bot lost access to it.",
		channelID, headline(g.Text))
}

// renderResults answers a user asking how a giveaway went for them.
func renderResults(g *models.Giveaway, userID int64, winnerLabels []string) string {
	switch g.Status {
	case models.StatusNotPublished:
		return "This giveaway has not started yet."
	case models.StatusPublished:
		text := "This giveaway is still running. Results will be available once it ends."
		if cond := renderEndCondition(g); cond != "" {
			text += " " + cond
		}
		return text
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "The giveaway \"%s\" has ended with %d participant(s) and %d winner(s).",
		headline(g.Text), g.ParticipantsCount, len(g.WinnerIDs))
	if len(winnerLabels) > 0 {
		fmt.Fprintf(&sb, "\nWinners:\n%s", renderWinnerList(winnerLabels))
	}
	if g.IsWinner(userID) {
		sb.WriteString("\n" + renderWinnerMessage(g))
	} else {
		sb.WriteString("\nUnfortunately you did not win this time.")
	}
	return sb.String()
}

// headline trims the post text down to a short recognizable label.
func headline(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	const max = 48
	if len(text) > max {
		return strings.TrimSpace(text[:max]) + "..."
	}
	return text
}
