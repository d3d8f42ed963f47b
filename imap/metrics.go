package imap

import (
	"github.com/go-kit/kit/metrics"
)

// Structs

type metricsService struct {
	service  Service
	logins   metrics.Counter
	logouts  metrics.Counter
	selects  metrics.Counter
	fetches  metrics.Counter
	expunges metrics.Counter
}

// Functions

// NewMetricsService wraps a provided existing service with
// the provided command counters.
func NewMetricsService(s Service, logins metrics.Counter, logouts metrics.Counter, selects metrics.Counter, fetches metrics.Counter, expunges metrics.Counter) Service {

	return &metricsService{
		service:  s,
		logins:   logins,
		logouts:  logouts,
		selects:  selects,
		fetches:  fetches,
		expunges: expunges,
	}
}

func (s *metricsService) Capability(c *Connection, sess *Session, req *Request) bool {
	return s.service.Capability(c, sess, req)
}

func (s *metricsService) Noop(c *Connection, sess *Session, req *Request) bool {
	return s.service.Noop(c, sess, req)
}

func (s *metricsService) Logout(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Logout(c, sess, req)

	if ok && (sess.State == StateLogout) {
		s.logouts.Add(1)
	}

	return ok
}

func (s *metricsService) Login(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Login(c, sess, req)

	if ok && (sess.State == StateAuthenticated) {
		s.logins.Add(1)
	}

	return ok
}

func (s *metricsService) Select(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Select(c, sess, req)

	if ok && (sess.State == StateMailbox) {
		s.selects.Add(1)
	}

	return ok
}

func (s *metricsService) Examine(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Examine(c, sess, req)

	if ok && (sess.State == StateMailbox) {
		s.selects.Add(1)
	}

	return ok
}

func (s *metricsService) Create(c *Connection, sess *Session, req *Request) bool {
	return s.service.Create(c, sess, req)
}

func (s *metricsService) Delete(c *Connection, sess *Session, req *Request) bool {
	return s.service.Delete(c, sess, req)
}

func (s *metricsService) List(c *Connection, sess *Session, req *Request) bool {
	return s.service.List(c, sess, req)
}

func (s *metricsService) Lsub(c *Connection, sess *Session, req *Request) bool {
	return s.service.Lsub(c, sess, req)
}

func (s *metricsService) Status(c *Connection, sess *Session, req *Request) bool {
	return s.service.Status(c, sess, req)
}

func (s *metricsService) Check(c *Connection, sess *Session, req *Request) bool {
	return s.service.Check(c, sess, req)
}

func (s *metricsService) Fetch(c *Connection, sess *Session, req *Request, byUID bool) bool {

	ok := s.service.Fetch(c, sess, req, byUID)

	if ok {
		s.fetches.Add(1)
	}

	return ok
}

func (s *metricsService) Store(c *Connection, sess *Session, req *Request, byUID bool) bool {
	return s.service.Store(c, sess, req, byUID)
}

func (s *metricsService) Expunge(c *Connection, sess *Session, req *Request) bool {

	ok := s.service.Expunge(c, sess, req)

	if ok {
		s.expunges.Add(1)
	}

	return ok
}

func (s *metricsService) Close(c *Connection, sess *Session, req *Request) bool {
	return s.service.Close(c, sess, req)
}
