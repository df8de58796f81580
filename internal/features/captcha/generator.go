// Package captcha generates digit challenges rendered as PNG images.
package captcha

import (
	"bytes"
	"fmt"

	"giveaway-bot/internal/utils/random"

	"github.com/dchest/captcha"
	"github.com/google/uuid"
)

const (
	// DefaultLength matches what fits comfortably in a chat reply.
	DefaultLength = 6

	imageWidth  = captcha.StdWidth
	imageHeight = captcha.StdHeight
)

// Challenge is a freshly generated captcha: the rendered image to show and
// the digit string the user must type back.
type Challenge struct {
	ID     string
	Answer string
	Image  []byte
}

// NewChallenge generates a challenge of n digits.
func NewChallenge(n int) (*Challenge, error) {
	if n <= 0 {
		n = DefaultLength
	}

	id := uuid.NewString()
	answer, err := random.Digits(n)
	if err != nil {
		return nil, err
	}
	digits := make([]byte, n)
	for i := 0; i < n; i++ {
		digits[i] = answer[i] - '0'
	}

	var buf bytes.Buffer
	img := captcha.NewImage(id, digits, imageWidth, imageHeight)
	if _, err := img.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render captcha image: %w", err)
	}

	return &Challenge{
		ID:     id,
		Answer: answer,
		Image:  buf.Bytes(),
	}, nil
}

// Verify compares a user reply against the expected digit string.
func Verify(answer, reply string) bool {
	return answer != "" && answer == reply
}
