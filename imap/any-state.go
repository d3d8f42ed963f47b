package imap

import (
	"fmt"
)

// Functions

// Capability handles the IMAP CAPABILITY command.
// It outputs the supported actions in the current state.
func (s *service) Capability(c *Connection, sess *Session, req *Request) bool {

	if len(req.Payload) > 0 {

		// If payload was not empty to CAPABILITY command,
		// this is a client error. Return BAD statement.
		err := c.Send(fmt.Sprintf("%s BAD Command CAPABILITY was sent with extra parameters", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	// Send mandatory capability options. This means, AUTH=PLAIN
	// is allowed and nothing else.
	err := c.Send(fmt.Sprintf("* CAPABILITY IMAP4rev1 AUTH=PLAIN\r\n%s OK CAPABILITY completed", req.Tag))
	if err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Noop handles the IMAP NOOP command. When a mailbox is
// selected, the current message count is reported so polling
// clients notice new deliveries.
func (s *service) Noop(c *Connection, sess *Session, req *Request) bool {

	if len(req.Payload) > 0 {

		err := c.Send(fmt.Sprintf("%s BAD Command NOOP was sent with extra parameters", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	answer := fmt.Sprintf("%s OK NOOP completed", req.Tag)

	if sess.State == StateMailbox {
		answer = fmt.Sprintf("* %d EXISTS\r\n%s", sess.SelectedMailbox.Count(), answer)
	}

	if err := c.Send(answer); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Logout correctly ends a connection with a client. The
// session moves to logout state, terminating the receive
// loop after the answer went out.
func (s *service) Logout(c *Connection, sess *Session, req *Request) bool {

	if len(req.Payload) > 0 {

		// If payload was not empty to LOGOUT command,
		// this is a client error. Return BAD statement.
		err := c.Send(fmt.Sprintf("%s BAD Command LOGOUT was sent with extra parameters", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	sess.State = StateLogout
	sess.SelectedMailbox = nil

	// Signal success to client.
	err := c.Send(fmt.Sprintf("* BYE Terminating connection\r\n%s OK LOGOUT completed", req.Tag))
	if err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}
