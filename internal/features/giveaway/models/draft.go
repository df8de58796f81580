package models

import (
	"time"

	apperrors "giveaway-bot/internal/common/errors"
)

// CreationStep tags the stage a creation dialog is at. Each step owns the
// fields collected at that stage, so a half-built draft can never be read as
// a finished definition.
type CreationStep string

const (
	StepMediaAndText    CreationStep = "media_and_text"
	StepButtonLabel     CreationStep = "button_label"
	StepSponsorChannels CreationStep = "sponsor_channels"
	StepWinnersCount    CreationStep = "winners_count"
	StepSchedule        CreationStep = "schedule"
	StepEndCondition    CreationStep = "end_condition"
	StepComplete        CreationStep = "complete"
)

// Draft accumulates a giveaway definition across dialog steps. It is the
// typed surface a conversational UI drives; Build refuses to produce a
// Definition until every required step has been passed.
type Draft struct {
	Step      CreationStep
	CreatorID int64
	ChannelID int64

	Text      string
	MediaType MediaType
	Media     string

	Button string

	SponsorChannelIDs []int64
	ExtraConditions   string
	Captcha           bool

	WinnersCount int

	PostAt   *time.Time
	EndAt    *time.Time
	EndCount *int64
}

// NewDraft starts a draft for a creator posting into a home channel.
func NewDraft(creatorID, channelID int64) *Draft {
	return &Draft{
		Step:      StepMediaAndText,
		CreatorID: creatorID,
		ChannelID: channelID,
	}
}

func (d *Draft) require(step CreationStep) error {
	if d.Step != step {
		return apperrors.New(apperrors.ErrCodeValidation, "creation step out of order").
			WithDetail("expected", string(d.Step)).
			WithDetail("got", string(step))
	}
	return nil
}

// SetMediaAndText records the post body with an optional attachment.
func (d *Draft) SetMediaAndText(text string, mediaType MediaType, media string) error {
	if err := d.require(StepMediaAndText); err != nil {
		return err
	}
	if text == "" {
		return apperrors.NewValidationError("text", "post text is required")
	}
	d.Text = text
	d.MediaType = mediaType
	d.Media = media
	d.Step = StepButtonLabel
	return nil
}

// SetButtonLabel records the call-to-action label.
func (d *Draft) SetButtonLabel(label string) error {
	if err := d.require(StepButtonLabel); err != nil {
		return err
	}
	if label == "" {
		return apperrors.NewValidationError("button", "join button label is required")
	}
	d.Button = label
	d.Step = StepSponsorChannels
	return nil
}

// SetSponsorChannels records the sponsor channel list, advisory conditions
// and the captcha flag. The list may be empty: the home channel is always
// implicitly required.
func (d *Draft) SetSponsorChannels(channelIDs []int64, extraConditions string, captcha bool) error {
	if err := d.require(StepSponsorChannels); err != nil {
		return err
	}
	d.SponsorChannelIDs = channelIDs
	d.ExtraConditions = extraConditions
	d.Captcha = captcha
	d.Step = StepWinnersCount
	return nil
}

// SetWinnersCount records the winner target.
func (d *Draft) SetWinnersCount(count int) error {
	if err := d.require(StepWinnersCount); err != nil {
		return err
	}
	if count <= 0 {
		return apperrors.NewValidationError("winners_count", "must be greater than zero")
	}
	d.WinnersCount = count
	d.Step = StepSchedule
	return nil
}

// SetSchedule records the publish time; nil means publish immediately.
func (d *Draft) SetSchedule(postAt *time.Time) error {
	if err := d.require(StepSchedule); err != nil {
		return err
	}
	d.PostAt = postAt
	d.Step = StepEndCondition
	return nil
}

// SetDeadline completes the draft with a time-based end condition.
func (d *Draft) SetDeadline(endAt time.Time) error {
	if err := d.require(StepEndCondition); err != nil {
		return err
	}
	d.EndAt = &endAt
	d.EndCount = nil
	d.Step = StepComplete
	return nil
}

// SetEndCount completes the draft with a participant-count end condition.
func (d *Draft) SetEndCount(count int64) error {
	if err := d.require(StepEndCondition); err != nil {
		return err
	}
	if count <= 0 {
		return apperrors.NewValidationError("end_count", "must be greater than zero")
	}
	d.EndCount = &count
	d.EndAt = nil
	d.Step = StepComplete
	return nil
}

// Build converts a completed draft into a validated Definition.
func (d *Draft) Build() (*Definition, error) {
	if d.Step != StepComplete {
		return nil, apperrors.New(apperrors.ErrCodeValidation, "draft is not complete").
			WithDetail("step", string(d.Step))
	}
	def := &Definition{
		CreatorID:         d.CreatorID,
		ChannelID:         d.ChannelID,
		Text:              d.Text,
		MediaType:         d.MediaType,
		Media:             d.Media,
		Button:            d.Button,
		SponsorChannelIDs: d.SponsorChannelIDs,
		ExtraConditions:   d.ExtraConditions,
		Captcha:           d.Captcha,
		WinnersCount:      d.WinnersCount,
		PostAt:            d.PostAt,
		EndAt:             d.EndAt,
		EndCount:          d.EndCount,
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}
