package lmtp

import (
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Structs

type loggingService struct {
	logger  log.Logger
	service Service
}

// Functions

// NewLoggingService wraps a provided existing
// service with the provided logger.
func NewLoggingService(s Service, logger log.Logger) Service {
	return &loggingService{logger, s}
}

// logCommand emits one structured line per executed command.
func (s *loggingService) logCommand(method string, sess *Session, ok bool) {

	logger := log.With(s.logger,
		"method", method,
		"client", sess.ClientAddr,
		"recipients", len(sess.Recipients),
	)

	if !ok {
		level.Info(logger).Log("msg", "failed to perform operation "+method+" correctly")
	} else {
		level.Debug(logger).Log("msg", "handled "+method)
	}
}

func (s *loggingService) Lhlo(c *Connection, sess *Session, arg string) bool {

	ok := s.service.Lhlo(c, sess, arg)
	s.logCommand("LHLO", sess, ok)

	return ok
}

func (s *loggingService) MailFrom(c *Connection, sess *Session, arg string) bool {

	ok := s.service.MailFrom(c, sess, arg)
	s.logCommand("MAIL", sess, ok)

	return ok
}

func (s *loggingService) RcptTo(c *Connection, sess *Session, arg string) bool {

	ok := s.service.RcptTo(c, sess, arg)
	s.logCommand("RCPT", sess, ok)

	return ok
}

func (s *loggingService) Data(c *Connection, sess *Session) bool {

	ok := s.service.Data(c, sess)
	s.logCommand("DATA", sess, ok)

	return ok
}

func (s *loggingService) Rset(c *Connection, sess *Session) bool {

	ok := s.service.Rset(c, sess)
	s.logCommand("RSET", sess, ok)

	return ok
}

func (s *loggingService) Noop(c *Connection, sess *Session) bool {

	ok := s.service.Noop(c, sess)
	s.logCommand("NOOP", sess, ok)

	return ok
}

func (s *loggingService) Quit(c *Connection, sess *Session) bool {

	ok := s.service.Quit(c, sess)
	s.logCommand("QUIT", sess, ok)

	return ok
}
