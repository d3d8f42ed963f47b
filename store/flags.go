package store

import (
	"fmt"
	"sort"
	"strings"
)

// Constants

// System flags defined by RFC 3501 that petrel knows how
// to persist in a message file name.
const (
	FlagSeen     Flag = "\\Seen"
	FlagAnswered Flag = "\\Answered"
	FlagFlagged  Flag = "\\Flagged"
	FlagDeleted  Flag = "\\Deleted"
	FlagDraft    Flag = "\\Draft"
	FlagRecent   Flag = "\\Recent"
)

// Variables

// flagToRune maps each persistable system flag to the
// single letter used in the Maildir info suffix. Recent
// is deliberately absent: a message is recent exactly as
// long as it resides in the new subdirectory.
var flagToRune = map[Flag]rune{
	FlagDraft:    'D',
	FlagFlagged:  'F',
	FlagAnswered: 'R',
	FlagSeen:     'S',
	FlagDeleted:  'T',
}

// runeToFlag is the inverse of flagToRune.
var runeToFlag = map[rune]Flag{
	'D': FlagDraft,
	'F': FlagFlagged,
	'R': FlagAnswered,
	'S': FlagSeen,
	'T': FlagDeleted,
}

// Structs and Types

// Flag represents one IMAP message flag in its wire form,
// e.g. '\Seen'.
type Flag string

// FlagSet is an unordered set of message flags.
type FlagSet map[Flag]struct{}

// Functions

// NewFlagSet builds a set from the supplied flags.
func NewFlagSet(flags ...Flag) FlagSet {

	set := make(FlagSet, len(flags))
	for _, flag := range flags {
		set[flag] = struct{}{}
	}

	return set
}

// Has reports whether flag is contained in the set.
func (set FlagSet) Has(flag Flag) bool {
	_, found := set[flag]
	return found
}

// Add inserts flag into the set.
func (set FlagSet) Add(flag Flag) {
	set[flag] = struct{}{}
}

// Remove deletes flag from the set.
func (set FlagSet) Remove(flag Flag) {
	delete(set, flag)
}

// Copy returns an independent copy of the set.
func (set FlagSet) Copy() FlagSet {

	cp := make(FlagSet, len(set))
	for flag := range set {
		cp[flag] = struct{}{}
	}

	return cp
}

// Equal reports whether both sets contain exactly
// the same flags.
func (set FlagSet) Equal(other FlagSet) bool {

	if len(set) != len(other) {
		return false
	}

	for flag := range set {
		if !other.Has(flag) {
			return false
		}
	}

	return true
}

// String renders the set as a parenthesized IMAP flag list
// in canonical order, e.g. '(\Answered \Seen)'.
func (set FlagSet) String() string {

	letters := make([]rune, 0, len(set))
	extra := make([]string, 0, 1)

	for flag := range set {

		if r, ok := flagToRune[flag]; ok {
			letters = append(letters, r)
		} else {
			extra = append(extra, string(flag))
		}
	}

	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })
	sort.Strings(extra)

	parts := make([]string, 0, (len(letters) + len(extra)))
	for _, r := range letters {
		parts = append(parts, string(runeToFlag[r]))
	}
	if set.Has(FlagRecent) {
		parts = append(parts, string(FlagRecent))
	}
	for _, e := range extra {
		if e != string(FlagRecent) {
			parts = append(parts, e)
		}
	}

	return fmt.Sprintf("(%s)", strings.Join(parts, " "))
}

// EncodeFlags serializes the persistable part of the set into
// a Maildir info suffix, e.g. '2,ST' for '\Seen \Deleted'. The
// letters are sorted ascending so that independent processes
// converge on the same file name for the same flag set. Recent
// and unknown keywords are never encoded.
func EncodeFlags(set FlagSet) string {

	letters := make([]rune, 0, len(set))

	for flag := range set {
		if r, ok := flagToRune[flag]; ok {
			letters = append(letters, r)
		}
	}

	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })

	return fmt.Sprintf("2,%s", string(letters))
}

// DecodeFlags parses a Maildir info suffix back into a flag
// set. Info sections of experimental version 1 or without the
// '2,' prefix are rejected. Letters outside the known system
// set are ignored, matching what other Maildir software does.
func DecodeFlags(info string) (FlagSet, error) {

	if (len(info) < 2) || (info[1] != ',') {
		return nil, fmt.Errorf("malformed info section '%s' in message file name", info)
	}

	if info[0] == '1' {
		return nil, fmt.Errorf("experimental info section '%s' not supported", info)
	}

	if info[0] != '2' {
		return nil, fmt.Errorf("unknown Maildir info version in '%s'", info)
	}

	set := make(FlagSet, len(info)-2)

	for _, r := range info[2:] {

		if flag, ok := runeToFlag[r]; ok {
			set[flag] = struct{}{}
		}
	}

	return set, nil
}
