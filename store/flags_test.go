package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Functions

// TestEncodeFlags executes a table of flag set serializations.
func TestEncodeFlags(t *testing.T) {

	tests := []struct {
		set  FlagSet
		info string
	}{
		{NewFlagSet(), "2,"},
		{NewFlagSet(FlagSeen), "2,S"},
		{NewFlagSet(FlagDeleted, FlagSeen), "2,ST"},
		{NewFlagSet(FlagSeen, FlagDeleted), "2,ST"},
		{NewFlagSet(FlagDraft, FlagFlagged, FlagAnswered, FlagSeen, FlagDeleted), "2,DFRST"},
		{NewFlagSet(FlagRecent), "2,"},
		{NewFlagSet(FlagRecent, FlagAnswered), "2,R"},
	}

	for i, tt := range tests {

		info := EncodeFlags(tt.set)
		if info != tt.info {
			t.Fatalf("[store.TestEncodeFlags] Test %d: expected info '%s' but got '%s'", i, tt.info, info)
		}
	}
}

// TestDecodeFlags checks that decoding inverts encoding and
// that malformed info sections are rejected.
func TestDecodeFlags(t *testing.T) {

	set, err := DecodeFlags("2,RS")
	require.Nil(t, err, "expected decoding '2,RS' to succeed but received: %v", err)

	assert.True(t, set.Has(FlagAnswered), "expected decoded set to contain \\Answered")
	assert.True(t, set.Has(FlagSeen), "expected decoded set to contain \\Seen")
	assert.Equal(t, 2, len(set), "expected decoded set to contain exactly two flags")

	// Unknown letters are skipped, not rejected.
	set, err = DecodeFlags("2,PSa")
	require.Nil(t, err, "expected decoding '2,PSa' to succeed but received: %v", err)
	assert.True(t, set.Equal(NewFlagSet(FlagSeen)), "expected only \\Seen to survive decoding '2,PSa'")

	for _, info := range []string{"", "S", "1,S", "3,S", "x,S"} {

		_, err := DecodeFlags(info)
		assert.NotNil(t, err, "expected decoding info '%s' to fail", info)
	}
}

// TestFlagsRoundTrip checks that any order of additions yields
// the same persisted file name suffix.
func TestFlagsRoundTrip(t *testing.T) {

	first := NewFlagSet(FlagSeen, FlagFlagged, FlagDeleted)

	second := NewFlagSet()
	second.Add(FlagDeleted)
	second.Add(FlagFlagged)
	second.Add(FlagSeen)

	assert.Equal(t, EncodeFlags(first), EncodeFlags(second), "expected identical info suffix independent of insertion order")

	decoded, err := DecodeFlags(EncodeFlags(first))
	require.Nil(t, err, "expected round-trip decoding to succeed but received: %v", err)
	assert.True(t, decoded.Equal(first), "expected decoded set to equal original set")
}

// TestFlagSetString checks the canonical rendering used in
// FETCH and SELECT answers.
func TestFlagSetString(t *testing.T) {

	assert.Equal(t, "()", NewFlagSet().String())
	assert.Equal(t, "(\\Seen)", NewFlagSet(FlagSeen).String())
	assert.Equal(t, "(\\Answered \\Seen)", NewFlagSet(FlagSeen, FlagAnswered).String())
	assert.Equal(t, "(\\Seen \\Recent)", NewFlagSet(FlagRecent, FlagSeen).String())
}
