package lmtp

import (
	"fmt"
	"net"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/go-petrel/petrel/store"
)

// Structs

type service struct {
	logger    log.Logger
	mailStore *store.Store
	hostname  string
}

// Session tracks the delivery state of one LMTP connection:
// whether the client introduced itself, the envelope under
// construction, and delivery counters for the middlewares.
type Session struct {
	ClientAddr string
	Greeted    bool
	SenderSet  bool
	Sender     string
	Recipients []string
	Closed     bool

	Delivered uint64
	Rejected  uint64
}

// Interfaces

// Service defines the LMTP operations petrel provides. Each
// handler reports whether the connection may continue to be
// served.
type Service interface {

	// Lhlo answers the client introduction with the
	// capability listing of this server.
	Lhlo(c *Connection, s *Session, arg string) bool

	// MailFrom opens a new delivery envelope.
	MailFrom(c *Connection, s *Session, arg string) bool

	// RcptTo adds one recipient to the envelope. The
	// recipient's mailbox is checked here, a delivery to an
	// unknown user is refused before any data is read.
	RcptTo(c *Connection, s *Session, arg string) bool

	// Data reads the dot-terminated message content and
	// performs one atomic delivery per accepted recipient,
	// answering with one status line each.
	Data(c *Connection, s *Session) bool

	// Rset discards the envelope under construction.
	Rset(c *Connection, s *Session) bool

	// Noop does nothing, successfully.
	Noop(c *Connection, s *Session) bool

	// Quit ends the connection with the closing reply.
	Quit(c *Connection, s *Session) bool
}

// Functions

// NewService takes in all required parameters for the LMTP
// front end and returns a service struct wrapping them.
func NewService(logger log.Logger, mailStore *store.Store, hostname string) Service {

	return &service{
		logger:    logger,
		mailStore: mailStore,
		hostname:  hostname,
	}
}

// Run loops over incoming requests on the supplied listener
// and dispatches each connection into its own goroutine. All
// commands are routed through the supplied Service value, so
// wrapping middlewares observe every executed command.
func Run(listener net.Listener, svc Service, logger log.Logger, hostname string) error {

	for {
		// Accept request or fail on error.
		conn, err := listener.Accept()
		if err != nil {
			return errors.Wrap(err, "accepting incoming LMTP connection failed")
		}

		// Dispatch into own goroutine.
		go handleConnection(conn, svc, logger, hostname)
	}
}

// handleConnection reads commands from one accepted client
// connection and invokes the correct Service method for each
// until the client quits or the connection dies.
func handleConnection(conn net.Conn, svc Service, logger log.Logger, hostname string) {

	c := NewConnection(conn)
	defer c.Terminate()

	s := &Session{
		ClientAddr: c.ClientAddr,
	}

	err := c.Send(fmt.Sprintf("220 %s LMTP server ready", hostname))
	if err != nil {
		sendFailed(c, logger, err)
		return
	}

	cmdOK := true

	for !s.Closed {

		line, err := c.Receive()
		if err != nil {

			if err.Error() == "EOF" {
				level.Debug(logger).Log("msg", fmt.Sprintf("client at %s disconnected", c.ClientAddr))
			} else {
				level.Error(logger).Log(
					"msg", fmt.Sprintf("error while receiving text from client %s", c.ClientAddr),
					"err", err,
				)
			}

			return
		}

		upper := strings.ToUpper(line)

		switch {

		case strings.HasPrefix(upper, "LHLO"):
			cmdOK = svc.Lhlo(c, s, strings.TrimSpace(line[4:]))

		case strings.HasPrefix(upper, "MAIL FROM:"):
			cmdOK = svc.MailFrom(c, s, strings.TrimSpace(line[10:]))

		case strings.HasPrefix(upper, "RCPT TO:"):
			cmdOK = svc.RcptTo(c, s, strings.TrimSpace(line[8:]))

		case upper == "DATA":
			cmdOK = svc.Data(c, s)

		case upper == "RSET":
			cmdOK = svc.Rset(c, s)

		case upper == "NOOP":
			cmdOK = svc.Noop(c, s)

		case upper == "QUIT":
			cmdOK = svc.Quit(c, s)

		default:

			err := c.Send("500 Syntax error, command unrecognized")
			if err != nil {
				sendFailed(c, logger, err)
				return
			}
		}

		if !cmdOK {
			return
		}
	}
}

// sendFailed logs a failed write to the client.
func sendFailed(c *Connection, logger log.Logger, err error) {

	level.Error(logger).Log(
		"msg", fmt.Sprintf("error while sending text to client %s", c.ClientAddr),
		"err", err,
	)
}

// extractAddress strips the angle brackets of an envelope
// address argument and returns the bare address.
func extractAddress(arg string) (string, error) {

	arg = strings.TrimSpace(arg)
	arg = strings.TrimPrefix(arg, "<")
	arg = strings.TrimSuffix(arg, ">")

	if strings.ContainsAny(arg, " <>") {
		return "", fmt.Errorf("malformed address argument")
	}

	return arg, nil
}

// localPart returns the part of an address before the '@',
// which is the mailbox user on this host.
func localPart(address string) string {

	if idx := strings.IndexByte(address, '@'); idx >= 0 {
		return address[:idx]
	}

	return address
}

// resetEnvelope discards the delivery envelope under
// construction.
func resetEnvelope(s *Session) {
	s.SenderSet = false
	s.Sender = ""
	s.Recipients = nil
}

// Lhlo answers the client introduction with the capability
// listing of this server. A repeated LHLO resets the session.
func (s *service) Lhlo(c *Connection, sess *Session, arg string) bool {

	if arg == "" {

		if err := c.Send("501 Syntax error in parameters"); err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	sess.Greeted = true
	resetEnvelope(sess)

	answer := fmt.Sprintf("250-%s\r\n250-8BITMIME\r\n250 PIPELINING", s.hostname)

	if err := c.Send(answer); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// MailFrom opens a new delivery envelope.
func (s *service) MailFrom(c *Connection, sess *Session, arg string) bool {

	if !sess.Greeted || sess.SenderSet {

		if err := c.Send("503 Bad sequence of commands"); err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	sender, err := extractAddress(arg)
	if err != nil {

		if err := c.Send("501 Syntax error in parameters"); err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	sess.SenderSet = true
	sess.Sender = sender

	if err := c.Send("250 OK"); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// RcptTo adds one recipient to the envelope. An unknown user
// is refused right here, before any message data is read.
func (s *service) RcptTo(c *Connection, sess *Session, arg string) bool {

	if !sess.SenderSet {

		if err := c.Send("503 Bad sequence of commands"); err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	address, err := extractAddress(arg)
	if err != nil || localPart(address) == "" {

		if err := c.Send("501 Syntax error in parameters"); err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	user := localPart(address)

	if !s.mailStore.MailboxExists(user, "INBOX") {

		sess.Rejected++

		if err := c.Send("550 No such user"); err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	sess.Recipients = append(sess.Recipients, user)

	if err := c.Send("250 OK"); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Data reads the dot-terminated message content and performs
// one atomic delivery per accepted recipient. Each recipient
// receives its own status line, in the order the recipients
// were declared; a failed delivery to one recipient does not
// touch the answers of the others.
func (s *service) Data(c *Connection, sess *Session) bool {

	if len(sess.Recipients) == 0 {

		if err := c.Send("503 Bad sequence - no recipients"); err != nil {
			sendFailed(c, s.logger, err)
			return false
		}

		return true
	}

	if err := c.Send("354 Start mail input; end with <CRLF>.<CRLF>"); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	var body strings.Builder

	for {

		line, err := c.Receive()
		if err != nil {

			level.Error(s.logger).Log(
				"msg", fmt.Sprintf("error while receiving message data from client %s", c.ClientAddr),
				"err", err,
			)

			return false
		}

		if line == "." {
			break
		}

		// Undo the transparency stuffing of leading dots.
		if strings.HasPrefix(line, "..") {
			line = line[1:]
		}

		body.WriteString(line)
		body.WriteString("\r\n")
	}

	content := []byte(body.String())

	for _, user := range sess.Recipients {

		mbox, err := s.mailStore.OpenMailbox(user, "INBOX")
		if err == nil {
			_, err = mbox.Deliver(content)
		}

		if err != nil {

			level.Error(s.logger).Log(
				"msg", fmt.Sprintf("error delivering message to user %s", user),
				"err", err,
			)

			if err := c.Send("451 Error in processing."); err != nil {
				sendFailed(c, s.logger, err)
				return false
			}

			continue
		}

		sess.Delivered++

		if err := c.Send("250 OK"); err != nil {
			sendFailed(c, s.logger, err)
			return false
		}
	}

	resetEnvelope(sess)

	return true
}

// Rset discards the envelope under construction.
func (s *service) Rset(c *Connection, sess *Session) bool {

	resetEnvelope(sess)

	if err := c.Send("250 OK"); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Noop does nothing, successfully.
func (s *service) Noop(c *Connection, sess *Session) bool {

	if err := c.Send("250 OK"); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}

// Quit ends the connection with the closing reply.
func (s *service) Quit(c *Connection, sess *Session) bool {

	sess.Closed = true

	if err := c.Send(fmt.Sprintf("221 %s Closing connection", s.hostname)); err != nil {
		sendFailed(c, s.logger, err)
		return false
	}

	return true
}
