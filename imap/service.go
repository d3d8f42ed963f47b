package imap

import (
	"fmt"
	"net"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/go-petrel/petrel/auth"
	"github.com/go-petrel/petrel/store"
)

// Structs

type service struct {
	logger        log.Logger
	authenticator auth.PlainAuthenticator
	mailStore     *store.Store
}

// Interfaces

// Service defines the IMAP operations petrel provides. Each
// handler receives the connection, the session it operates
// on, and the parsed request, and reports whether the
// connection may continue to be served.
type Service interface {

	// Capability handles the IMAP CAPABILITY command.
	// It outputs the supported actions in the current state.
	Capability(c *Connection, s *Session, req *Request) bool

	// Noop handles the IMAP NOOP command. It refreshes the
	// client's view of the selected mailbox size if any.
	Noop(c *Connection, s *Session, req *Request) bool

	// Logout correctly ends a connection with a client.
	Logout(c *Connection, s *Session, req *Request) bool

	// Login performs a plain text authentication of the
	// supplied user credentials.
	Login(c *Connection, s *Session, req *Request) bool

	// Select puts the session into mailbox state on the
	// named mailbox, read-write.
	Select(c *Connection, s *Session, req *Request) bool

	// Examine puts the session into mailbox state on the
	// named mailbox, read-only.
	Examine(c *Connection, s *Session, req *Request) bool

	// Create adds a new mailbox for the logged in user.
	Create(c *Connection, s *Session, req *Request) bool

	// Delete removes a mailbox of the logged in user.
	Delete(c *Connection, s *Session, req *Request) bool

	// List enumerates mailbox names matching a glob pattern.
	List(c *Connection, s *Session, req *Request) bool

	// Lsub enumerates subscribed mailbox names. Petrel treats
	// every existing mailbox as subscribed.
	Lsub(c *Connection, s *Session, req *Request) bool

	// Status reports counts about a mailbox without
	// selecting it.
	Status(c *Connection, s *Session, req *Request) bool

	// Check handles the IMAP CHECK command, a requested
	// checkpoint that petrel answers immediately because
	// every mutation is already on stable storage.
	Check(c *Connection, s *Session, req *Request) bool

	// Fetch returns attributes and content of the messages
	// addressed by a sequence-number or UID set.
	Fetch(c *Connection, s *Session, req *Request, byUID bool) bool

	// Store updates the flags of the messages addressed by a
	// sequence-number or UID set.
	Store(c *Connection, s *Session, req *Request, byUID bool) bool

	// Expunge removes all messages flagged Deleted from the
	// selected mailbox.
	Expunge(c *Connection, s *Session, req *Request) bool

	// Close expunges silently and leaves mailbox state.
	Close(c *Connection, s *Session, req *Request) bool
}

// Functions

// NewService takes in all required parameters for the IMAP
// front end and returns a service struct wrapping them.
func NewService(logger log.Logger, authenticator auth.PlainAuthenticator, mailStore *store.Store) Service {

	return &service{
		logger:        logger,
		authenticator: authenticator,
		mailStore:     mailStore,
	}
}

// Run loops over incoming requests on the supplied listener
// and dispatches each connection into its own goroutine. All
// commands are routed through the supplied Service value, so
// wrapping middlewares observe every executed command.
func Run(listener net.Listener, svc Service, logger log.Logger, greeting string, maxLineLength int) error {

	for {
		// Accept request or fail on error.
		conn, err := listener.Accept()
		if err != nil {
			return errors.Wrap(err, "accepting incoming IMAP connection failed")
		}

		// Dispatch into own goroutine.
		go handleConnection(conn, svc, logger, greeting, maxLineLength)
	}
}

// receiveRequest reads the next complete request from the
// client, resolving literal continuations: whenever the line
// ends in a '{n}' announcement, a continuation response is
// sent, exactly n octets are consumed from the wire, and the
// re-assembled line is parsed again. The fatal return value
// signals that the connection cannot be served further.
func receiveRequest(c *Connection, logger log.Logger) (req *Request, fatal bool) {

	rawReq, err := c.Receive()
	if err != nil {
		receiveFailed(c, logger, err)
		return nil, true
	}

	// Parse received next raw request into struct.
	req, err = ParseRequest(rawReq)
	if err != nil {

		// Signal error to client.
		if err := c.Send(err.Error()); err != nil {
			sendFailed(c, logger, err)
			return nil, true
		}

		return nil, false
	}

	for req.LiteralBytes > 0 {

		if err := c.Send("+ Ready for literal data"); err != nil {
			sendFailed(c, logger, err)
			return nil, true
		}

		literal, err := c.ReadLiteral(req.LiteralBytes)
		if err != nil {
			receiveFailed(c, logger, err)
			return nil, true
		}

		// The rest of the command line follows directly
		// after the literal octets.
		rest, err := c.Receive()
		if err != nil {
			receiveFailed(c, logger, err)
			return nil, true
		}

		// Splice the literal back into the command line as a
		// quoted string and parse the line again. Another
		// literal announcement may follow.
		idx := strings.LastIndex(rawReq, "{")
		rawReq = rawReq[:idx] + quoteString(string(literal)) + rest

		req, err = ParseRequest(rawReq)
		if err != nil {

			if err := c.Send(err.Error()); err != nil {
				sendFailed(c, logger, err)
				return nil, true
			}

			return nil, false
		}
	}

	return req, false
}

// receiveFailed handles a failed read from the client. A
// plain disconnect is logged quietly, an overlong line makes
// the stream unframeable and is answered with an untagged BYE
// before closing.
func receiveFailed(c *Connection, logger log.Logger, err error) {

	if err.Error() == "EOF" {
		level.Debug(logger).Log("msg", fmt.Sprintf("client at %s disconnected", c.ClientAddr))
		return
	}

	if err == ErrLineTooLong {
		c.Send("* BYE Request line too long")
		return
	}

	level.Error(logger).Log(
		"msg", fmt.Sprintf("error while receiving text from client %s", c.ClientAddr),
		"err", err,
	)
}

// sendFailed logs a failed write to the client.
func sendFailed(c *Connection, logger log.Logger, err error) {

	level.Error(logger).Log(
		"msg", fmt.Sprintf("error while sending text to client %s", c.ClientAddr),
		"err", err,
	)
}

// handleConnection performs the main actions on one accepted
// client connection: it sends the greeting, reads and parses
// commands, and invokes the correct Service method for each
// supplied IMAP command until the session reaches logout
// state or the connection dies.
func handleConnection(conn net.Conn, svc Service, logger log.Logger, greeting string, maxLineLength int) {

	// Create a new connection struct for incoming request.
	c := NewConnection(conn, maxLineLength)
	defer c.Terminate()

	s := &Session{
		State:      StateNotAuthenticated,
		ClientAddr: c.ClientAddr,
	}

	// Send initial server greeting.
	err := c.Send(fmt.Sprintf("* OK [CAPABILITY IMAP4rev1 AUTH=PLAIN] %s", greeting))
	if err != nil {
		sendFailed(c, logger, err)
		return
	}

	// As long as we did not receive a LOGOUT command from
	// the client or experienced an error, we accept requests.
	cmdOK := true

	for s.State != StateLogout {

		req, fatal := receiveRequest(c, logger)
		if fatal {
			return
		}
		if req == nil {
			continue
		}

		cmd := req.Command

		// The UID prefix reroutes to the FETCH or STORE
		// handler in UID addressing mode.
		byUID := false
		if cmd == "UID" {

			subReq := strings.SplitN(req.Payload, " ", 2)

			cmd = strings.ToUpper(subReq[0])
			if (cmd != "FETCH") && (cmd != "STORE") {

				err := c.Send(fmt.Sprintf("%s BAD Received invalid IMAP command", req.Tag))
				if err != nil {
					sendFailed(c, logger, err)
					return
				}

				continue
			}

			byUID = true
			req.Payload = ""
			if len(subReq) > 1 {
				req.Payload = subReq[1]
			}
		}

		switch cmd {

		case "CAPABILITY":
			cmdOK = svc.Capability(c, s, req)

		case "NOOP":
			cmdOK = svc.Noop(c, s, req)

		case "LOGOUT":
			cmdOK = svc.Logout(c, s, req)

		case "LOGIN":
			cmdOK = svc.Login(c, s, req)

		case "SELECT":
			cmdOK = svc.Select(c, s, req)

		case "EXAMINE":
			cmdOK = svc.Examine(c, s, req)

		case "CREATE":
			cmdOK = svc.Create(c, s, req)

		case "DELETE":
			cmdOK = svc.Delete(c, s, req)

		case "LIST":
			cmdOK = svc.List(c, s, req)

		case "LSUB":
			cmdOK = svc.Lsub(c, s, req)

		case "STATUS":
			cmdOK = svc.Status(c, s, req)

		case "CHECK":
			cmdOK = svc.Check(c, s, req)

		case "FETCH":
			cmdOK = svc.Fetch(c, s, req, byUID)

		case "STORE":
			cmdOK = svc.Store(c, s, req, byUID)

		case "EXPUNGE":
			cmdOK = svc.Expunge(c, s, req)

		case "CLOSE":
			cmdOK = svc.Close(c, s, req)

		default:
			// Client sent inappropriate command. Signal tagged error.
			err := c.Send(fmt.Sprintf("%s BAD Received invalid IMAP command", req.Tag))
			if err != nil {
				sendFailed(c, logger, err)
				return
			}
		}

		// Executed command above indicated failure in
		// operation. Return from function.
		if !cmdOK {
			return
		}
	}
}
