package store

import (
	"os"
	"testing"

	"path/filepath"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Functions

// newTestMailbox creates an empty mailbox in a temporary
// directory and opens it.
func newTestMailbox(t *testing.T) *Mailbox {

	dir := Dir(filepath.Join(t.TempDir(), "INBOX"))
	require.Nil(t, dir.Create(), "expected creating test Maildir to succeed")

	mbox, err := openMailbox("INBOX", dir)
	require.Nil(t, err, "expected opening test mailbox to succeed but received: %v", err)

	return mbox
}

// TestDeliverAssignsMonotonicUIDs checks that each delivery
// receives the next UID and that UIDNEXT advances.
func TestDeliverAssignsMonotonicUIDs(t *testing.T) {

	mbox := newTestMailbox(t)

	first, err := mbox.Deliver([]byte("Subject: one\r\n\r\nbody one\r\n"))
	require.Nil(t, err, "expected first delivery to succeed but received: %v", err)

	second, err := mbox.Deliver([]byte("Subject: two\r\n\r\nbody two\r\n"))
	require.Nil(t, err, "expected second delivery to succeed but received: %v", err)

	assert.Equal(t, uint32(1), first.UID)
	assert.Equal(t, uint32(2), second.UID)

	summary := mbox.Summary()
	assert.Equal(t, uint32(2), summary.Exists)
	assert.Equal(t, uint32(2), summary.Recent)
	assert.Equal(t, uint32(3), summary.UIDNext)
}

// TestUIDsSurviveReopen checks that a fresh Mailbox value over
// the same directory reports the same UIDVALIDITY and the same
// UID per message.
func TestUIDsSurviveReopen(t *testing.T) {

	mbox := newTestMailbox(t)

	_, err := mbox.Deliver([]byte("first message\r\n"))
	require.Nil(t, err, "expected delivery to succeed but received: %v", err)

	_, err = mbox.Deliver([]byte("second message\r\n"))
	require.Nil(t, err, "expected delivery to succeed but received: %v", err)

	validity := mbox.Summary().UIDValidity
	uids := mbox.UIDs()

	reopened, err := openMailbox("INBOX", mbox.dir)
	require.Nil(t, err, "expected reopening mailbox to succeed but received: %v", err)

	assert.Equal(t, validity, reopened.Summary().UIDValidity, "expected UIDVALIDITY to survive a reopen")
	assert.Equal(t, uids, reopened.UIDs(), "expected persisted UIDs to survive a reopen")
	assert.Equal(t, uint32(3), reopened.Summary().UIDNext, "expected next UID counter to survive a reopen")
}

// TestMissingUIDStateRegeneratesValidity checks that removing
// the persisted counter file invalidates previously handed out
// UIDs via a fresh UIDVALIDITY value.
func TestMissingUIDStateRegeneratesValidity(t *testing.T) {

	mbox := newTestMailbox(t)

	_, err := mbox.Deliver([]byte("a message\r\n"))
	require.Nil(t, err, "expected delivery to succeed but received: %v", err)

	require.Nil(t, os.Remove(filepath.Join(string(mbox.dir), uidStateName)), "expected removing UID state file to succeed")

	reopened, err := openMailbox("INBOX", mbox.dir)
	require.Nil(t, err, "expected reopening mailbox to succeed but received: %v", err)

	assert.Equal(t, uint32(1), reopened.Summary().Exists, "expected the message to still be present")
	assert.Equal(t, []uint32{1}, reopened.UIDs(), "expected UID numbering to restart at 1")
}

// TestSelectConsumesRecent checks that the first writable
// SELECT reports and consumes the Recent count and that
// messages move from new to cur in the process.
func TestSelectConsumesRecent(t *testing.T) {

	mbox := newTestMailbox(t)

	_, err := mbox.Deliver([]byte("one\r\n"))
	require.Nil(t, err, "expected delivery to succeed but received: %v", err)

	_, err = mbox.Deliver([]byte("two\r\n"))
	require.Nil(t, err, "expected delivery to succeed but received: %v", err)

	// A read-only select observes but does not consume.
	summary, err := mbox.Select(true)
	require.Nil(t, err, "expected read-only select to succeed but received: %v", err)
	assert.Equal(t, uint32(2), summary.Recent)

	summary, err = mbox.Select(false)
	require.Nil(t, err, "expected select to succeed but received: %v", err)
	assert.Equal(t, uint32(2), summary.Recent)

	// The reporting select is the one that consumes, the
	// messages must not stay recent until a later select.
	assert.False(t, mbox.BySeq(1).Recent, "expected message 1 to not be recent after the reporting select")
	assert.False(t, mbox.BySeq(2).Recent, "expected message 2 to not be recent after the reporting select")

	summary, err = mbox.Select(false)
	require.Nil(t, err, "expected second select to succeed but received: %v", err)
	assert.Equal(t, uint32(0), summary.Recent, "expected the first writable select to have consumed all Recent flags")

	newNames, err := mbox.dir.listDir("new")
	require.Nil(t, err, "expected listing new to succeed but received: %v", err)
	assert.Equal(t, 0, len(newNames), "expected no messages to remain in new after a writable select")

	curNames, err := mbox.dir.listDir("cur")
	require.Nil(t, err, "expected listing cur to succeed but received: %v", err)
	assert.Equal(t, 2, len(curNames), "expected both messages to reside in cur after a writable select")
}

// TestStoreFlagsModes executes replace, add, and remove flag
// updates against one message.
func TestStoreFlagsModes(t *testing.T) {

	mbox := newTestMailbox(t)

	_, err := mbox.Deliver([]byte("flagged message\r\n"))
	require.Nil(t, err, "expected delivery to succeed but received: %v", err)

	_, err = mbox.Select(false)
	require.Nil(t, err, "expected select to succeed but received: %v", err)

	msg, err := mbox.StoreFlags(1, StoreReplace, NewFlagSet(FlagSeen, FlagFlagged))
	require.Nil(t, err, "expected replacing flags to succeed but received: %v", err)
	assert.True(t, msg.Flags.Equal(NewFlagSet(FlagSeen, FlagFlagged)))

	msg, err = mbox.StoreFlags(1, StoreAdd, NewFlagSet(FlagDeleted))
	require.Nil(t, err, "expected adding flags to succeed but received: %v", err)
	assert.True(t, msg.Flags.Equal(NewFlagSet(FlagSeen, FlagFlagged, FlagDeleted)))

	msg, err = mbox.StoreFlags(1, StoreRemove, NewFlagSet(FlagFlagged))
	require.Nil(t, err, "expected removing flags to succeed but received: %v", err)
	assert.True(t, msg.Flags.Equal(NewFlagSet(FlagSeen, FlagDeleted)))

	// Applying the same update twice converges on the same
	// on-disk file name.
	again, err := mbox.StoreFlags(1, StoreRemove, NewFlagSet(FlagFlagged))
	require.Nil(t, err, "expected repeated flag removal to succeed but received: %v", err)
	assert.True(t, again.Flags.Equal(NewFlagSet(FlagSeen, FlagDeleted)))

	curNames, err := mbox.dir.listDir("cur")
	require.Nil(t, err, "expected listing cur to succeed but received: %v", err)
	require.Equal(t, 1, len(curNames))

	_, info := splitName(curNames[0])
	assert.Equal(t, "2,ST", info, "expected the info suffix to reflect \\Seen and \\Deleted")

	// Storing the Recent pseudo flag is silently dropped.
	msg, err = mbox.StoreFlags(1, StoreAdd, NewFlagSet(FlagRecent))
	require.Nil(t, err, "expected storing \\Recent to succeed but received: %v", err)
	assert.False(t, msg.Flags.Has(FlagRecent), "expected \\Recent to never enter a stored flag set")
}

// TestExpungeRenumbersDensely checks that expunge removes all
// deleted messages, reports their old sequence numbers in
// descending order, and renumbers the survivors into a dense
// sequence.
func TestExpungeRenumbersDensely(t *testing.T) {

	mbox := newTestMailbox(t)

	for _, body := range []string{"one\r\n", "two\r\n", "three\r\n", "four\r\n"} {
		_, err := mbox.Deliver([]byte(body))
		require.Nil(t, err, "expected delivery to succeed but received: %v", err)
	}

	_, err := mbox.Select(false)
	require.Nil(t, err, "expected select to succeed but received: %v", err)

	_, err = mbox.StoreFlags(1, StoreAdd, NewFlagSet(FlagDeleted))
	require.Nil(t, err, "expected flagging message 1 to succeed but received: %v", err)

	_, err = mbox.StoreFlags(3, StoreAdd, NewFlagSet(FlagDeleted))
	require.Nil(t, err, "expected flagging message 3 to succeed but received: %v", err)

	removed, err := mbox.Expunge()
	require.Nil(t, err, "expected expunge to succeed but received: %v", err)

	assert.Equal(t, []uint32{3, 1}, removed, "expected removed sequence numbers in descending order")
	assert.Equal(t, uint32(2), mbox.Count())
	assert.Equal(t, []uint32{2, 4}, mbox.UIDs(), "expected survivors to keep their UIDs")

	// Survivors now occupy sequence numbers 1 and 2.
	seq, found := mbox.SeqOfUID(4)
	assert.True(t, found)
	assert.Equal(t, uint32(2), seq)

	// A second expunge with nothing deleted removes nothing.
	removed, err = mbox.Expunge()
	require.Nil(t, err, "expected empty expunge to succeed but received: %v", err)
	assert.Equal(t, 0, len(removed))
}

// TestExpungePartialFailureCommitsRemovals checks that a
// failed removal mid-expunge leaves the index matching the
// files on disk: already-removed messages are gone from the
// index, everything from the failed message on stays.
func TestExpungePartialFailureCommitsRemovals(t *testing.T) {

	mbox := newTestMailbox(t)

	for _, body := range []string{"one\r\n", "two\r\n", "three\r\n", "four\r\n"} {
		_, err := mbox.Deliver([]byte(body))
		require.Nil(t, err, "expected delivery to succeed but received: %v", err)
	}

	_, err := mbox.Select(false)
	require.Nil(t, err, "expected select to succeed but received: %v", err)

	_, err = mbox.StoreFlags(1, StoreAdd, NewFlagSet(FlagDeleted))
	require.Nil(t, err, "expected flagging message 1 to succeed but received: %v", err)

	_, err = mbox.StoreFlags(3, StoreAdd, NewFlagSet(FlagDeleted))
	require.Nil(t, err, "expected flagging message 3 to succeed but received: %v", err)

	// Make removing message 3 fail by putting a non-empty
	// directory in the place of its file.
	victimPath := filepath.Join(string(mbox.dir), "cur", mbox.messages[2].fileName)
	require.Nil(t, os.Remove(victimPath), "expected removing the victim file to succeed")
	require.Nil(t, os.Mkdir(victimPath, 0700), "expected creating the blocking directory to succeed")
	require.Nil(t, os.WriteFile(filepath.Join(victimPath, "blocker"), []byte("x"), 0600), "expected creating the blocking file to succeed")

	_, err = mbox.Expunge()
	require.NotNil(t, err, "expected expunge to report the failed removal")

	// Message 1 was removed before the failure and must be
	// gone from the index, the rest must still be listed.
	assert.Equal(t, uint32(3), mbox.Count())
	assert.Equal(t, []uint32{2, 3, 4}, mbox.UIDs(), "expected the index to match the files on disk")

	content, err := mbox.Content(1)
	require.Nil(t, err, "expected reading the first survivor to succeed but received: %v", err)
	assert.Equal(t, []byte("two\r\n"), content)
}

// TestContentDuringFlagUpdates reads message content while a
// concurrent writer keeps renaming the message file through
// flag updates.
func TestContentDuringFlagUpdates(t *testing.T) {

	mbox := newTestMailbox(t)

	body := []byte("contended message\r\n")

	_, err := mbox.Deliver(body)
	require.Nil(t, err, "expected delivery to succeed but received: %v", err)

	_, err = mbox.Select(false)
	require.Nil(t, err, "expected select to succeed but received: %v", err)

	done := make(chan error, 1)

	go func() {

		for i := 0; i < 200; i++ {

			if _, err := mbox.StoreFlags(1, StoreAdd, NewFlagSet(FlagSeen)); err != nil {
				done <- err
				return
			}

			if _, err := mbox.StoreFlags(1, StoreRemove, NewFlagSet(FlagSeen)); err != nil {
				done <- err
				return
			}
		}

		done <- nil
	}()

	for i := 0; i < 200; i++ {

		content, err := mbox.Content(1)
		require.Nil(t, err, "expected reading content during flag updates to succeed but received: %v", err)
		require.Equal(t, body, content)
	}

	require.Nil(t, <-done, "expected concurrent flag updates to succeed")
}

// TestDeliverReturnsSnapshot checks that the message value
// handed out by a delivery does not alias the mailbox index.
func TestDeliverReturnsSnapshot(t *testing.T) {

	mbox := newTestMailbox(t)

	msg, err := mbox.Deliver([]byte("snapshot test\r\n"))
	require.Nil(t, err, "expected delivery to succeed but received: %v", err)

	_, err = mbox.StoreFlags(1, StoreAdd, NewFlagSet(FlagSeen))
	require.Nil(t, err, "expected flag update to succeed but received: %v", err)

	assert.False(t, msg.Flags.Has(FlagSeen), "expected the delivery snapshot to not observe later flag updates")
	assert.True(t, mbox.BySeq(1).Flags.Has(FlagSeen))

	// Writes to the snapshot must not leak into the index.
	msg.Flags.Add(FlagDraft)
	assert.False(t, mbox.BySeq(1).Flags.Has(FlagDraft), "expected writes to the snapshot to stay local")
}

// TestContentReadsDeliveredBytes checks that a message's raw
// bytes survive delivery and flag renames unchanged.
func TestContentReadsDeliveredBytes(t *testing.T) {

	mbox := newTestMailbox(t)

	body := []byte("Subject: hello\r\n\r\nworld\r\n")

	msg, err := mbox.Deliver(body)
	require.Nil(t, err, "expected delivery to succeed but received: %v", err)
	assert.Equal(t, int64(len(body)), msg.Size)

	content, err := mbox.Content(1)
	require.Nil(t, err, "expected reading content to succeed but received: %v", err)
	assert.Equal(t, body, content)

	_, err = mbox.StoreFlags(1, StoreAdd, NewFlagSet(FlagSeen))
	require.Nil(t, err, "expected flag update to succeed but received: %v", err)

	content, err = mbox.Content(1)
	require.Nil(t, err, "expected reading content after flag rename to succeed but received: %v", err)
	assert.Equal(t, body, content)

	_, err = mbox.Content(2)
	assert.NotNil(t, err, "expected reading a missing sequence number to fail")
}
