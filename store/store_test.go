package store

import (
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Functions

// newTestStore creates a store in a temporary directory with
// one prepared user.
func newTestStore(t *testing.T) *Store {

	s, err := NewStore(log.NewNopLogger(), t.TempDir(), ".")
	require.Nil(t, err, "expected creating test store to succeed but received: %v", err)

	require.Nil(t, s.EnsureUser("user0"), "expected creating test user to succeed")

	return s
}

// TestOpenMailboxShared checks that concurrent opens of the
// same mailbox observe the same Mailbox value.
func TestOpenMailboxShared(t *testing.T) {

	s := newTestStore(t)

	first, err := s.OpenMailbox("user0", "INBOX")
	require.Nil(t, err, "expected opening INBOX to succeed but received: %v", err)

	second, err := s.OpenMailbox("user0", "inbox")
	require.Nil(t, err, "expected opening inbox to succeed but received: %v", err)

	assert.True(t, (first == second), "expected both opens to return the identical Mailbox value")

	_, err = s.OpenMailbox("user0", "DoesNotExist")
	assert.NotNil(t, err, "expected opening an absent mailbox to fail")
}

// TestCreateDeleteMailbox executes mailbox life cycle
// operations including the INBOX guards.
func TestCreateDeleteMailbox(t *testing.T) {

	s := newTestStore(t)

	require.Nil(t, s.CreateMailbox("user0", "Archive"), "expected creating mailbox to succeed")
	assert.True(t, s.MailboxExists("user0", "Archive"))

	assert.NotNil(t, s.CreateMailbox("user0", "Archive"), "expected creating an existing mailbox to fail")
	assert.NotNil(t, s.CreateMailbox("user0", "INBOX"), "expected creating INBOX to fail")
	assert.NotNil(t, s.CreateMailbox("user0", "inbox"), "expected creating inbox to fail")
	assert.NotNil(t, s.CreateMailbox("user0", "evil..name"), "expected empty name segments to be rejected")
	assert.NotNil(t, s.CreateMailbox("user0", "a...b"), "expected path traversal segments to be rejected")

	require.Nil(t, s.DeleteMailbox("user0", "Archive"), "expected deleting mailbox to succeed")
	assert.False(t, s.MailboxExists("user0", "Archive"))

	assert.NotNil(t, s.DeleteMailbox("user0", "Archive"), "expected deleting an absent mailbox to fail")
	assert.NotNil(t, s.DeleteMailbox("user0", "INBOX"), "expected deleting INBOX to fail")
}

// TestListMailboxes executes LIST globs against a small
// mailbox hierarchy.
func TestListMailboxes(t *testing.T) {

	s := newTestStore(t)

	for _, name := range []string{"Archive", "Archive.2025", "Archive.2026", "Work"} {
		require.Nil(t, s.CreateMailbox("user0", name), "expected creating mailbox '%s' to succeed", name)
	}

	names := func(entries []ListEntry) []string {

		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.Name
		}

		return out
	}

	entries, err := s.ListMailboxes("user0", "", "*")
	require.Nil(t, err, "expected listing '*' to succeed but received: %v", err)
	assert.Equal(t, []string{"Archive", "Archive.2025", "Archive.2026", "INBOX", "Work"}, names(entries))

	// '%' stops at the hierarchy separator.
	entries, err = s.ListMailboxes("user0", "", "%")
	require.Nil(t, err, "expected listing '%%' to succeed but received: %v", err)
	assert.Equal(t, []string{"Archive", "INBOX", "Work"}, names(entries))

	entries, err = s.ListMailboxes("user0", "Archive.", "%")
	require.Nil(t, err, "expected listing below Archive to succeed but received: %v", err)
	assert.Equal(t, []string{"Archive.2025", "Archive.2026"}, names(entries))

	entries, err = s.ListMailboxes("user0", "", "Archive")
	require.Nil(t, err, "expected listing 'Archive' to succeed but received: %v", err)
	require.Equal(t, 1, len(entries))
	assert.Contains(t, entries[0].Attributes, "\\HasChildren")

	entries, err = s.ListMailboxes("user0", "", "Work")
	require.Nil(t, err, "expected listing 'Work' to succeed but received: %v", err)
	require.Equal(t, 1, len(entries))
	assert.Contains(t, entries[0].Attributes, "\\HasNoChildren")
	assert.Contains(t, entries[0].Attributes, "\\Unmarked")
}

// TestStatusMailbox checks that STATUS counts do not consume
// Recent flags.
func TestStatusMailbox(t *testing.T) {

	s := newTestStore(t)

	mbox, err := s.OpenMailbox("user0", "INBOX")
	require.Nil(t, err, "expected opening INBOX to succeed but received: %v", err)

	_, err = mbox.Deliver([]byte("status test\r\n"))
	require.Nil(t, err, "expected delivery to succeed but received: %v", err)

	summary, err := s.StatusMailbox("user0", "INBOX")
	require.Nil(t, err, "expected status to succeed but received: %v", err)
	assert.Equal(t, uint32(1), summary.Exists)
	assert.Equal(t, uint32(1), summary.Recent)

	summary, err = s.StatusMailbox("user0", "INBOX")
	require.Nil(t, err, "expected repeated status to succeed but received: %v", err)
	assert.Equal(t, uint32(1), summary.Recent, "expected status to leave Recent flags untouched")
}
