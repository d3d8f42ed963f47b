package imap

import (
	"fmt"
	"strings"

	"github.com/go-kit/kit/log/level"

	"github.com/go-petrel/petrel/store"
)

// Functions

// requireMailboxState sends the tagged BAD answer when the
// session holds no selected mailbox. It reports whether the
// handler may proceed; the second value mirrors the handler
// continuation convention.
func (s *service) requireMailboxState(c *Connection, sess *Session, req *Request, command string) (proceed bool, cont bool) {

	if sess.State == StateMailbox {
		return true, true
	}

	err := c.Send(fmt.Sprintf("%s BAD Command %s cannot be executed in this state", req.Tag, command))
	if err != nil {
		sendFailed(c, s.logger, err)
		return false, false
	}

	return false, true
}

// resolveSequenceSet expands a parsed sequence set into the
// current sequence numbers of the addressed messages. In UID
// mode the set ranges over UIDs and is translated back to
// sequence numbers; addressed numbers without a message are
// silently skipped in both modes.
func resolveSequenceSet(mbox *store.Mailbox, set SeqSet, byUID bool) []uint32 {

	if !byUID {
		return set.Resolve(mbox.Count())
	}

	uids := mbox.UIDs()
	if len(uids) == 0 {
		return nil
	}

	seqs := make([]uint32, 0, len(uids))

	for _, uid := range set.Resolve(uids[len(uids)-1]) {

		if seq, found := mbox.SeqOfUID(uid); found {
			seqs = append(seqs, seq)
		}
	}

	return seqs
}

// Fetch returns attributes and content of the messages
// addressed by a sequence-number or UID set.
func (s *service) Fetch(c *Connection, sess *Session, req *Request, byUID bool) bool {

	command := "FETCH"
	if byUID {
		command = "UID FETCH"
	}

	proceed, cont := s.requireMailboxState(c, sess, req, command)
	if !proceed {
		return cont
	}

	args, err := ParseArguments(req.Payload)
	if (err != nil) || (len(args) != 2) {

		err := c.Send(fmt.Sprintf("%s BAD Command %s was not sent with a sequence set and a fetch item list", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	seqSet, err := ParseSeqSet(args[0])
	if err != nil {

		err := c.Send(fmt.Sprintf("%s BAD Command %s was sent with an invalid sequence set", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	items := strings.Fields(strings.Trim(args[1], "()"))

	// Validate the fetch items before touching any message,
	// an invalid item must not cause partial side effects.
	needsContent := false
	needsSeen := false

	for _, item := range items {

		switch strings.ToUpper(item) {

		case "FLAGS", "UID", "INTERNALDATE", "RFC822.SIZE":

		case "RFC822", "BODY[]":
			needsContent = true
			needsSeen = true

		case "BODY.PEEK[]":
			needsContent = true

		default:

			err := c.Send(fmt.Sprintf("%s BAD Unsupported fetch item '%s'", req.Tag, item))
			if err != nil {
				sendFailed(c, s.logger, err)
				return false
			}

			return true
		}
	}

	if len(items) == 0 {

		err := c.Send(fmt.Sprintf("%s BAD Command %s was sent with an empty fetch item list", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	mbox := sess.SelectedMailbox

	for _, seq := range resolveSequenceSet(mbox, seqSet, byUID) {

		// Fetching content marks the message seen, unless the
		// mailbox was selected read-only or the client asked
		// to peek.
		if needsSeen && !sess.ReadOnly {

			_, err := mbox.StoreFlags(seq, store.StoreAdd, store.NewFlagSet(store.FlagSeen))
			if err != nil {

				c.Send("* BAD Internal server error, sorry. Closing connection.")

				level.Error(s.logger).Log(
					"msg", fmt.Sprintf("error setting Seen flag during fetch for user %s", sess.UserName),
					"err", err,
				)

				return false
			}
		}

		msg := mbox.BySeq(seq)
		if msg == nil {
			continue
		}

		var content []byte
		if needsContent {

			content, err = mbox.Content(seq)
			if err != nil {

				c.Send("* BAD Internal server error, sorry. Closing connection.")

				level.Error(s.logger).Log(
					"msg", fmt.Sprintf("error reading message content during fetch for user %s", sess.UserName),
					"err", err,
				)

				return false
			}
		}

		parts := make([]string, 0, len(items)+1)

		// A UID fetch always reports the UID item, whether
		// requested or not.
		if byUID {
			parts = append(parts, fmt.Sprintf("UID %d", msg.UID))
		}

		for _, item := range items {

			switch strings.ToUpper(item) {

			case "FLAGS":
				parts = append(parts, fmt.Sprintf("FLAGS %s", fetchFlags(msg)))

			case "UID":
				if !byUID {
					parts = append(parts, fmt.Sprintf("UID %d", msg.UID))
				}

			case "INTERNALDATE":
				parts = append(parts, fmt.Sprintf("INTERNALDATE %s", formatInternalDate(msg.InternalDate)))

			case "RFC822.SIZE":
				parts = append(parts, fmt.Sprintf("RFC822.SIZE %d", msg.Size))

			case "RFC822":
				parts = append(parts, fmt.Sprintf("RFC822 %s", formatLiteral(content)))

			case "BODY[]", "BODY.PEEK[]":
				parts = append(parts, fmt.Sprintf("BODY[] %s", formatLiteral(content)))
			}
		}

		err := c.Send(fmt.Sprintf("* %d FETCH (%s)", seq, strings.Join(parts, " ")))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}
	}

	if err := c.Send(fmt.Sprintf("%s OK %s completed", req.Tag, command)); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Store updates the flags of the messages addressed by a
// sequence-number or UID set.
func (s *service) Store(c *Connection, sess *Session, req *Request, byUID bool) bool {

	command := "STORE"
	if byUID {
		command = "UID STORE"
	}

	proceed, cont := s.requireMailboxState(c, sess, req, command)
	if !proceed {
		return cont
	}

	if sess.ReadOnly {

		err := c.Send(fmt.Sprintf("%s NO Mailbox is selected read-only", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	args, err := ParseArguments(req.Payload)
	if (err != nil) || (len(args) < 3) {

		err := c.Send(fmt.Sprintf("%s BAD Command %s was not sent with a sequence set, an update mode, and a flag list", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	seqSet, err := ParseSeqSet(args[0])
	if err != nil {

		err := c.Send(fmt.Sprintf("%s BAD Command %s was sent with an invalid sequence set", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	mode := strings.ToUpper(args[1])

	silent := strings.HasSuffix(mode, ".SILENT")
	mode = strings.TrimSuffix(mode, ".SILENT")

	var storeMode store.StoreMode

	switch mode {

	case "FLAGS":
		storeMode = store.StoreReplace

	case "+FLAGS":
		storeMode = store.StoreAdd

	case "-FLAGS":
		storeMode = store.StoreRemove

	default:

		err := c.Send(fmt.Sprintf("%s BAD Command %s was sent with an unknown update mode", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	flags, err := ParseFlags(strings.Join(args[2:], " "))
	if err != nil {

		err := c.Send(fmt.Sprintf("%s BAD Command %s was sent with an invalid flag list", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	mbox := sess.SelectedMailbox

	for _, seq := range resolveSequenceSet(mbox, seqSet, byUID) {

		msg, err := mbox.StoreFlags(seq, storeMode, flags)
		if err != nil {

			c.Send("* BAD Internal server error, sorry. Closing connection.")

			level.Error(s.logger).Log(
				"msg", fmt.Sprintf("error storing flags for user %s", sess.UserName),
				"err", err,
			)

			return false
		}

		if silent {
			continue
		}

		answer := fmt.Sprintf("* %d FETCH (FLAGS %s)", seq, fetchFlags(msg))
		if byUID {
			answer = fmt.Sprintf("* %d FETCH (UID %d FLAGS %s)", seq, msg.UID, fetchFlags(msg))
		}

		if err := c.Send(answer); err != nil {
			sendFailed(c, s.logger, err)
			return false
		}
	}

	if err := c.Send(fmt.Sprintf("%s OK %s completed", req.Tag, command)); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Expunge removes all messages flagged Deleted from the
// selected mailbox and reports each removal under its
// pre-removal sequence number, highest first.
func (s *service) Expunge(c *Connection, sess *Session, req *Request) bool {

	proceed, cont := s.requireMailboxState(c, sess, req, "EXPUNGE")
	if !proceed {
		return cont
	}

	if sess.ReadOnly {

		err := c.Send(fmt.Sprintf("%s NO Mailbox is selected read-only", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	if len(req.Payload) > 0 {

		err := c.Send(fmt.Sprintf("%s BAD Command EXPUNGE was sent with extra parameters", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	removed, err := sess.SelectedMailbox.Expunge()
	if err != nil {

		c.Send("* BAD Internal server error, sorry. Closing connection.")

		level.Error(s.logger).Log(
			"msg", fmt.Sprintf("error expunging mailbox for user %s", sess.UserName),
			"err", err,
		)

		return false
	}

	for _, seq := range removed {

		if err := c.Send(fmt.Sprintf("* %d EXPUNGE", seq)); err != nil {
			sendFailed(c, s.logger, err)
			return false
		}
	}

	if err := c.Send(fmt.Sprintf("%s OK EXPUNGE completed", req.Tag)); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Close expunges the selected mailbox without untagged
// responses and returns the session to authenticated state.
// In read-only mode nothing is expunged.
func (s *service) Close(c *Connection, sess *Session, req *Request) bool {

	proceed, cont := s.requireMailboxState(c, sess, req, "CLOSE")
	if !proceed {
		return cont
	}

	if len(req.Payload) > 0 {

		err := c.Send(fmt.Sprintf("%s BAD Command CLOSE was sent with extra parameters", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	if !sess.ReadOnly {

		if _, err := sess.SelectedMailbox.Expunge(); err != nil {

			c.Send("* BAD Internal server error, sorry. Closing connection.")

			level.Error(s.logger).Log(
				"msg", fmt.Sprintf("error expunging mailbox during close for user %s", sess.UserName),
				"err", err,
			)

			return false
		}
	}

	sess.Deselect()

	if err := c.Send(fmt.Sprintf("%s OK CLOSE completed", req.Tag)); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Check handles the IMAP CHECK command. Every mutation is
// written to stable storage before its answer goes out, so
// the requested checkpoint is already in place.
func (s *service) Check(c *Connection, sess *Session, req *Request) bool {

	proceed, cont := s.requireMailboxState(c, sess, req, "CHECK")
	if !proceed {
		return cont
	}

	if len(req.Payload) > 0 {

		err := c.Send(fmt.Sprintf("%s BAD Command CHECK was sent with extra parameters", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	if err := c.Send(fmt.Sprintf("%s OK CHECK completed", req.Tag)); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}
