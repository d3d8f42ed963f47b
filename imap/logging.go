package imap

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
func (s *loggingService) logCommand(method string, sess *Session, req *Request, ok bool) {

	logger := log.With(s.logger,
		"method", method,
		"state", sess.State,
		"user", sess.UserName,
		"tag", req.Tag,
	)

	if !ok {
		level.Info(logger).Log("msg", "failed to perform operation "+method+" correctly")
	} else {
		level.Debug(logger).Log("msg", "handled "+method)
	}
}

func (s *loggingService) Capability(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Capability(c, sess, req)
	s.logCommand("CAPABILITY", sess, req, ok)

	return ok
}

func (s *loggingService) Noop(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Noop(c, sess, req)
	s.logCommand("NOOP", sess, req, ok)

	return ok
}

func (s *loggingService) Logout(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Logout(c, sess, req)
	s.logCommand("LOGOUT", sess, req, ok)

	return ok
}

func (s *loggingService) Login(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Login(c, sess, req)
	s.logCommand("LOGIN", sess, req, ok)

	return ok
}

func (s *loggingService) Select(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Select(c, sess, req)
	s.logCommand("SELECT", sess, req, ok)

	return ok
}

func (s *loggingService) Examine(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Examine(c, sess, req)
	s.logCommand("EXAMINE", sess, req, ok)

	return ok
}

func (s *loggingService) Create(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Create(c, sess, req)
	s.logCommand("CREATE", sess, req, ok)

	return ok
}

func (s *loggingService) Delete(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Delete(c, sess, req)
	s.logCommand("DELETE", sess, req, ok)

	return ok
}

func (s *loggingService) List(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.List(c, sess, req)
	s.logCommand("LIST", sess, req, ok)

	return ok
}

func (s *loggingService) Lsub(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Lsub(c, sess, req)
	s.logCommand("LSUB", sess, req, ok)

	return ok
}

func (s *loggingService) Status(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Status(c, sess, req)
	s.logCommand("STATUS", sess, req, ok)

	return ok
}

func (s *loggingService) Check(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Check(c, sess, req)
	s.logCommand("CHECK", sess, req, ok)

	return ok
}

func (s *loggingService) Fetch(c *Connection, sess *Session, req *Request, byUID bool) bool {

	ok := s.service.Fetch(c, sess, req, byUID)
	s.logCommand("FETCH", sess, req, ok)

	return ok
}

func (s *loggingService) Store(c *Connection, sess *Session, req *Request, byUID bool) bool {

	ok := s.service.Store(c, sess, req, byUID)
	s.logCommand("STORE", sess, req, ok)

	return ok
}

func (s *loggingService) Expunge(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Expunge(c, sess, req)
	s.logCommand("EXPUNGE", sess, req, ok)

	return ok
}

func (s *loggingService) Close(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Close(c, sess, req)
	s.logCommand("CLOSE", sess, req, ok)

	return ok
}
