// Package deeplink encodes giveaway ids into bot start payloads.
//
// Telegram start payloads only allow [A-Za-z0-9_-], so ids travel as
// unpadded url-safe base64 of their decimal form behind an action prefix.
package deeplink

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags what a start payload asks for.
type Kind string

const (
	KindJoin  Kind = "join_giveaway"
	KindCheck Kind = "checkgive"
)

const (
	joinPrefix  = string(KindJoin) + "_"
	checkPrefix = string(KindCheck) + "_"
)

// Encode converts a giveaway id into its payload form.
func Encode(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// Decode reverses Encode.
func Decode(encoded string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return 0, fmt.Errorf("malformed deep link payload: %w", err)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed deep link payload: %w", err)
	}
	return id, nil
}

// Join builds the start payload for joining a giveaway.
func Join(id int64) string {
	return joinPrefix + Encode(id)
}

// Check builds the start payload for checking giveaway results.
func Check(id int64) string {
	return checkPrefix + Encode(id)
}

// URL builds a full t.me deep link for the payload.
func URL(botUsername, payload string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, payload)
}

// Parse splits a start payload into its action and giveaway id. It returns
// an error for payloads this bot did not mint.
func Parse(payload string) (Kind, int64, error) {
	switch {
	case strings.HasPrefix(payload, joinPrefix):
		id, err := Decode(strings.TrimPrefix(payload, joinPrefix))
		return KindJoin, id, err
	case strings.HasPrefix(payload, checkPrefix):
		id, err := Decode(strings.TrimPrefix(payload, checkPrefix))
		return KindCheck, id, err
	default:
		return "", 0, fmt.Errorf("unknown deep link payload %q", payload)
	}
}
