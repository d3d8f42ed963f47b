package imap

import (
	"fmt"
	"strings"

	"github.com/go-kit/kit/log/level"

	"github.com/go-petrel/petrel/store"
)

// Functions

// selectMailbox carries out the shared part of SELECT and
// EXAMINE: it opens the named mailbox, reports its counts,
// and puts the session into mailbox state.
func (s *service) selectMailbox(c *Connection, sess *Session, req *Request, readOnly bool) bool {

	command := "SELECT"
	if readOnly {
		command = "EXAMINE"
	}

	if (sess.State != StateAuthenticated) && (sess.State != StateMailbox) {

		err := c.Send(fmt.Sprintf("%s BAD Command %s cannot be executed in this state", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	args, err := ParseArguments(req.Payload)
	if (err != nil) || (len(args) != 1) {

		err := c.Send(fmt.Sprintf("%s BAD Command %s was not sent with exactly one mailbox name", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	// Selecting a new mailbox first deselects the current
	// one, even when the new one turns out not to exist.
	if sess.State == StateMailbox {
		sess.Deselect()
	}

	mbox, err := s.mailStore.OpenMailbox(sess.UserName, args[0])
	if err != nil {

		err := c.Send(fmt.Sprintf("%s NO Mailbox does not exist", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	summary, err := mbox.Select(readOnly)
	if err != nil {

		c.Send("* BAD Internal server error, sorry. Closing connection.")

		level.Error(s.logger).Log(
			"msg", fmt.Sprintf("error selecting mailbox for user %s", sess.UserName),
			"err", err,
		)

		return false
	}

	sess.State = StateMailbox
	sess.SelectedMailbox = mbox
	sess.ReadOnly = readOnly

	var answer strings.Builder

	fmt.Fprintf(&answer, "* %d EXISTS\r\n", summary.Exists)
	fmt.Fprintf(&answer, "* %d RECENT\r\n", summary.Recent)

	if summary.FirstUnseen > 0 {
		fmt.Fprintf(&answer, "* OK [UNSEEN %d] Message %d is first unseen\r\n", summary.FirstUnseen, summary.FirstUnseen)
	}

	fmt.Fprintf(&answer, "* OK [UIDVALIDITY %d] UIDs valid\r\n", summary.UIDValidity)
	fmt.Fprintf(&answer, "* OK [UIDNEXT %d] Predicted next UID\r\n", summary.UIDNext)
	fmt.Fprintf(&answer, "* FLAGS %s\r\n", allSystemFlags())
	fmt.Fprintf(&answer, "* OK [PERMANENTFLAGS %s] Flags are permanent\r\n", allSystemFlags())

	access := "READ-WRITE"
	if readOnly {
		access = "READ-ONLY"
	}

	fmt.Fprintf(&answer, "%s OK [%s] %s completed", req.Tag, access, command)

	if err := c.Send(answer.String()); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Select puts the session into mailbox state on the named
// mailbox, read-write. The first writable select consumes
// the Recent flags it reports.
func (s *service) Select(c *Connection, sess *Session, req *Request) bool {
	return s.selectMailbox(c, sess, req, false)
}

// Examine puts the session into mailbox state on the named
// mailbox, read-only. Neither Recent flags nor any message
// state are altered, now or by later commands.
func (s *service) Examine(c *Connection, sess *Session, req *Request) bool {
	return s.selectMailbox(c, sess, req, true)
}

// Create adds a new mailbox for the logged in user.
func (s *service) Create(c *Connection, sess *Session, req *Request) bool {

	if (sess.State != StateAuthenticated) && (sess.State != StateMailbox) {

		err := c.Send(fmt.Sprintf("%s BAD Command CREATE cannot be executed in this state", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	args, err := ParseArguments(req.Payload)
	if (err != nil) || (len(args) != 1) {

		err := c.Send(fmt.Sprintf("%s BAD Command CREATE was not sent with exactly one mailbox name", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	if err := s.mailStore.CreateMailbox(sess.UserName, args[0]); err != nil {

		err := c.Send(fmt.Sprintf("%s NO Cannot create mailbox with that name", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	if err := c.Send(fmt.Sprintf("%s OK CREATE completed", req.Tag)); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Delete removes a mailbox of the logged in user together
// with all messages it contains.
func (s *service) Delete(c *Connection, sess *Session, req *Request) bool {

	if (sess.State != StateAuthenticated) && (sess.State != StateMailbox) {

		err := c.Send(fmt.Sprintf("%s BAD Command DELETE cannot be executed in this state", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	args, err := ParseArguments(req.Payload)
	if (err != nil) || (len(args) != 1) {

		err := c.Send(fmt.Sprintf("%s BAD Command DELETE was not sent with exactly one mailbox name", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	if err := s.mailStore.DeleteMailbox(sess.UserName, args[0]); err != nil {

		err := c.Send(fmt.Sprintf("%s NO Cannot delete that mailbox", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	if err := c.Send(fmt.Sprintf("%s OK DELETE completed", req.Tag)); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// listMailboxes carries out the shared part of LIST and LSUB.
// Petrel treats every existing mailbox as subscribed, so both
// commands enumerate the same names.
func (s *service) listMailboxes(c *Connection, sess *Session, req *Request, command string) bool {

	if (sess.State != StateAuthenticated) && (sess.State != StateMailbox) {

		err := c.Send(fmt.Sprintf("%s BAD Command %s cannot be executed in this state", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	args, err := ParseArguments(req.Payload)
	if (err != nil) || (len(args) != 2) {

		err := c.Send(fmt.Sprintf("%s BAD Command %s was not sent with exactly two parameters", req.Tag, command))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	sep := s.mailStore.Separator()

	var answer strings.Builder

	// An empty pattern asks for the hierarchy delimiter and
	// the root of the reference name, nothing is enumerated.
	if args[1] == "" {

		fmt.Fprintf(&answer, "* %s (\\Noselect) \"%s\" \"\"\r\n", command, sep)

	} else {

		entries, err := s.mailStore.ListMailboxes(sess.UserName, args[0], args[1])
		if err != nil {

			err := c.Send(fmt.Sprintf("%s BAD Command %s was sent with an invalid pattern", req.Tag, command))
			if err != nil {
				sendFailed(c, s.logger, err)
				return false
			}

			return true
		}

		for _, entry := range entries {
			fmt.Fprintf(&answer, "* %s (%s) \"%s\" \"%s\"\r\n", command, strings.Join(entry.Attributes, " "), sep, entry.Name)
		}
	}

	fmt.Fprintf(&answer, "%s OK %s completed", req.Tag, command)

	if err := c.Send(answer.String()); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// List enumerates mailbox names matching a glob pattern.
func (s *service) List(c *Connection, sess *Session, req *Request) bool {
	return s.listMailboxes(c, sess, req, "LIST")
}

// Lsub enumerates subscribed mailbox names.
func (s *service) Lsub(c *Connection, sess *Session, req *Request) bool {
	return s.listMailboxes(c, sess, req, "LSUB")
}

// Status reports counts about a mailbox without selecting it
// and without consuming Recent flags.
func (s *service) Status(c *Connection, sess *Session, req *Request) bool {

	if (sess.State != StateAuthenticated) && (sess.State != StateMailbox) {

		err := c.Send(fmt.Sprintf("%s BAD Command STATUS cannot be executed in this state", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	args, err := ParseArguments(req.Payload)
	if (err != nil) || (len(args) != 2) {

		err := c.Send(fmt.Sprintf("%s BAD Command STATUS was not sent with a mailbox name and a status item list", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	summary, err := s.mailStore.StatusMailbox(sess.UserName, args[0])
	if err != nil {

		err := c.Send(fmt.Sprintf("%s NO Mailbox does not exist", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	items := strings.Fields(strings.Trim(args[1], "()"))
	if len(items) == 0 {

		err := c.Send(fmt.Sprintf("%s BAD Command STATUS was sent with an empty status item list", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	parts := make([]string, 0, len(items))

	for _, item := range items {

		switch strings.ToUpper(item) {

		case "MESSAGES":
			parts = append(parts, fmt.Sprintf("MESSAGES %d", summary.Exists))

		case "RECENT":
			parts = append(parts, fmt.Sprintf("RECENT %d", summary.Recent))

		case "UIDNEXT":
			parts = append(parts, fmt.Sprintf("UIDNEXT %d", summary.UIDNext))

		case "UIDVALIDITY":
			parts = append(parts, fmt.Sprintf("UIDVALIDITY %d", summary.UIDValidity))

		case "UNSEEN":
			parts = append(parts, fmt.Sprintf("UNSEEN %d", summary.Unseen))

		default:

			err := c.Send(fmt.Sprintf("%s BAD Unknown status item '%s'", req.Tag, item))
			if err != nil {
				sendFailed(c, s.logger, err)
				return false
			}

			return true
		}
	}

	answer := fmt.Sprintf("* STATUS \"%s\" (%s)\r\n%s OK STATUS completed", store.NormalizeMailboxName(args[0]), strings.Join(parts, " "), req.Tag)

	if err := c.Send(answer); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}
