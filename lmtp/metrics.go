package lmtp

import (
	"github.com/go-kit/kit/metrics"
)

// Structs

type metricsService struct {
	service    Service
	deliveries metrics.Counter
	rejections metrics.Counter
}

// Functions

// NewMetricsService wraps a provided existing service with
// counters for performed deliveries and refused recipients.
func NewMetricsService(s Service, deliveries metrics.Counter, rejections metrics.Counter) Service {

	return &metricsService{
		service:    s,
		deliveries: deliveries,
		rejections: rejections,
	}
}

func (s *metricsService) Lhlo(c *Connection, sess *Session, arg string) bool {
	return s.service.Lhlo(c, sess, arg)
}

func (s *metricsService) MailFrom(c *Connection, sess *Session, arg string) bool {
	return s.service.MailFrom(c, sess, arg)
}

func (s *metricsService) RcptTo(c *Connection, sess *Session, arg string) bool {

	before := sess.Rejected
	ok := s.service.RcptTo(c, sess, arg)

	s.rejections.Add(float64(sess.Rejected - before))

	return ok
}

func (s *metricsService) Data(c *Connection, sess *Session) bool {

	before := sess.Delivered
	ok := s.service.Data(c, sess)

	s.deliveries.Add(float64(sess.Delivered - before))

	return ok
}

func (s *metricsService) Rset(c *Connection, sess *Session) bool {
	return s.service.Rset(c, sess)
}

func (s *metricsService) Noop(c *Connection, sess *Session) bool {
	return s.service.Noop(c, sess)
}

func (s *metricsService) Quit(c *Connection, sess *Session) bool {
	return s.service.Quit(c, sess)
}
