package scancode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTicketID = "a1b2c3d4e5f6g7h"
	testEventID  = "e1v2e3n4t5i6d7x"
)

func newTestCodec(t *testing.T) *Codec {
	c, err := NewCodec("test-secret")
	require.NoError(t, err)
	return c
}

func TestCodec_EncodeDecode_RoundTrip(t *testing.T) {
	c := newTestCodec(t)

	code, err := c.Encode(testTicketID, testEventID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "ET1."))

	payload, err := c.Decode(code)
	require.NoError(t, err)
	assert.Equal(t, testTicketID, payload.TicketID)
	assert.Equal(t, testEventID, payload.EventID)
	assert.False(t, payload.Bare)
}

func TestCodec_Encode_Deterministic(t *testing.T) {
	c := newTestCodec(t)

	first, err := c.Encode(testTicketID, testEventID)
	require.NoError(t, err)
	second, err := c.Encode(testTicketID, testEventID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCodec_Encode_RejectsBadIdentifiers(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Encode("short", testEventID)
	assert.Error(t, err)
	_, err = c.Encode(testTicketID, "UPPER.case.bad!")
	assert.Error(t, err)
}

func TestCodec_Decode_TamperedTokenIsForged(t *testing.T) {
	c := newTestCodec(t)

	code, err := c.Encode(testTicketID, testEventID)
	require.NoError(t, err)

	// Flip the last token character
	last := code[len(code)-1]
	flip := byte('0')
	if last == '0' {
		flip = '1'
	}
	tampered := code[:len(code)-1] + string(flip)

	_, err = c.Decode(tampered)
	assert.ErrorIs(t, err, ErrForged)
}

func TestCodec_Decode_SwappedEventIsForged(t *testing.T) {
	c := newTestCodec(t)

	code, err := c.Encode(testTicketID, testEventID)
	require.NoError(t, err)

	// Token was minted for a different event
	other := strings.Replace(code, testEventID, "o1t2h3e4r5e6v7t", 1)
	_, err = c.Decode(other)
	assert.ErrorIs(t, err, ErrForged)
}

func TestCodec_Decode_ForeignSecretIsForged(t *testing.T) {
	mint, err := NewCodec("attacker-secret")
	require.NoError(t, err)
	code, err := mint.Encode(testTicketID, testEventID)
	require.NoError(t, err)

	c := newTestCodec(t)
	_, err = c.Decode(code)
	assert.ErrorIs(t, err, ErrForged)
}

func TestCodec_Decode_BareTicketID(t *testing.T) {
	c := newTestCodec(t)

	payload, err := c.Decode(testTicketID)
	require.NoError(t, err)
	assert.True(t, payload.Bare)
	assert.Equal(t, testTicketID, payload.TicketID)
	assert.Empty(t, payload.EventID)
}

func TestCodec_Decode_Malformed(t *testing.T) {
	c := newTestCodec(t)

	cases := []string{
		"",
		"   ",
		"not a code",
		"ET1.",
		"ET1.onlyoneidentain",
		"ET1." + testTicketID + "." + testEventID,              // missing token
		"ET1." + testTicketID + "." + testEventID + ".xyz",    // token wrong length
		"ET1." + testTicketID + "." + testEventID + ".deadbeef.extra",
		"ET2." + testTicketID + "." + testEventID + ".deadbeef",
		"TOO-SHORT-ID",
	}
	for _, raw := range cases {
		_, err := c.Decode(raw)
		assert.ErrorIs(t, err, ErrMalformed, "raw=%q", raw)
	}
}

func TestCodec_Decode_TrimsWhitespace(t *testing.T) {
	c := newTestCodec(t)

	code, err := c.Encode(testTicketID, testEventID)
	require.NoError(t, err)

	payload, err := c.Decode("  " + code + "\n")
	require.NoError(t, err)
	assert.Equal(t, testTicketID, payload.TicketID)
}

func TestNewCodec_EmptySecret(t *testing.T) {
	_, err := NewCodec("")
	assert.Error(t, err)
}

func TestFingerprint_StableAndOpaque(t *testing.T) {
	raw := "ET1.garbage.input.deadbeef"
	assert.Equal(t, Fingerprint(raw), Fingerprint(raw))
	assert.NotContains(t, Fingerprint(raw), "garbage")
	assert.Len(t, Fingerprint(raw), 64)
}
