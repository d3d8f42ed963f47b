package imap

import (
	"fmt"

	"github.com/go-kit/kit/log/level"
)

// Functions

// Login performs a plain text authentication of the supplied
// user credentials and, on success, moves the session into
// authenticated state.
func (s *service) Login(c *Connection, sess *Session, req *Request) bool {

	if sess.State != StateNotAuthenticated {

		// Connection was already once authenticated, cannot
		// do that a second time, client error. Send tagged
		// BAD response.
		err := c.Send(fmt.Sprintf("%s BAD Command LOGIN cannot be executed in this state", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	userCredentials, err := ParseArguments(req.Payload)
	if (err != nil) || (len(userCredentials) != 2) {

		// If payload did not contain exactly two elements,
		// this is a client error. Return BAD statement.
		err := c.Send(fmt.Sprintf("%s BAD Command LOGIN was not sent with exactly two parameters", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	// Perform the actual authentication.
	err = s.authenticator.AuthenticatePlain(userCredentials[0], userCredentials[1], c.ClientAddr)
	if err != nil {

		// If supplied credentials failed to authenticate
		// client, they are invalid. Return NO statement.
		err := c.Send(fmt.Sprintf("%s NO Name and / or password wrong", req.Tag))
		if err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	// The user's INBOX maildir might not exist yet when no
	// message was ever delivered to it.
	if err := s.mailStore.EnsureUser(userCredentials[0]); err != nil {

		c.Send("* BAD Internal server error, sorry. Closing connection.")

		level.Error(s.logger).Log(
			"msg", fmt.Sprintf("error preparing maildir for user %s", userCredentials[0]),
			"err", err,
		)

		return false
	}

	sess.State = StateAuthenticated
	sess.UserName = userCredentials[0]

	// Signal success to client.
	err = c.Send(fmt.Sprintf("%s OK LOGIN completed", req.Tag))
	if err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}
