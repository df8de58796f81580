package models

import (
	"time"

	apperrors "giveaway-bot/internal/common/errors"
)

// Definition is the validated input for creating a giveaway. It is produced
// either directly or through the step-checked Draft builder.
type Definition struct {
	CreatorID         int64
	ChannelID         int64
	Text              string
	MediaType         MediaType
	Media             string
	Button            string
	SponsorChannelIDs []int64
	ExtraConditions   string
	Captcha           bool
	WinnersCount      int

	// PostAt nil means "publish immediately on save".
	PostAt *time.Time

	// Exactly one of EndAt / EndCount must be set.
	EndAt    *time.Time
	EndCount *int64
}

// Validate enforces the creation invariants: a positive winner target and
// exactly one end condition.
func (d *Definition) Validate() error {
	if d.WinnersCount <= 0 {
		return apperrors.NewValidationError("winners_count", "must be greater than zero")
	}
	if d.ChannelID == 0 {
		return apperrors.NewValidationError("channel_id", "home channel is required")
	}
	if d.Text == "" {
		return apperrors.NewValidationError("text", "post text is required")
	}
	if d.Button == "" {
		return apperrors.NewValidationError("button", "join button label is required")
	}
	if d.EndAt != nil && d.EndCount != nil {
		return apperrors.NewValidationError("end_condition", "end_at and end_count are mutually exclusive")
	}
	if d.EndAt == nil && d.EndCount == nil {
		return apperrors.NewValidationError("end_condition", "either end_at or end_count must be set")
	}
	if d.EndCount != nil && *d.EndCount <= 0 {
		return apperrors.NewValidationError("end_count", "must be greater than zero")
	}
	return nil
}
