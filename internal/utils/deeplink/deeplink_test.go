package deeplink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, id := range []int64{1, 42, 999999, 1<<62 + 12345} {
		decoded, err := Decode(Encode(id))
		require.NoError(t, err)
		assert.Equal(t, id, decoded)
	}
}

func TestParse(t *testing.T) {
	kind, id, err := Parse(Join(77))
	require.NoError(t, err)
	assert.Equal(t, KindJoin, kind)
	assert.Equal(t, int64(77), id)

	kind, id, err = Parse(Check(78))
	require.NoError(t, err)
	assert.Equal(t, KindCheck, kind)
	assert.Equal(t, int64(78), id)
}

func TestParse_Rejects(t *testing.T) {
	_, _, err := Parse("start_something_else")
	assert.Error(t, err)

	_, _, err = Parse("join_giveaway_!!!")
	assert.Error(t, err)

	// Valid base64 that does not decode to a decimal id.
	_, _, err = Parse("join_giveaway_" + "aGVsbG8")
	assert.Error(t, err)
}

func TestURL(t *testing.T) {
	assert.Equal(t,
		"https://t.me/prize_bot?start="+Join(5),
		URL("prize_bot", Join(5)))
}
