package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type PetrelMetrics struct {
	IMAP *IMAPMetrics
	LMTP *LMTPMetrics
}

type IMAPMetrics struct {
	Logins   metrics.Counter
	Logouts  metrics.Counter
	Selects  metrics.Counter
	Fetches  metrics.Counter
	Expunges metrics.Counter
}

type LMTPMetrics struct {
	Deliveries metrics.Counter
	Rejections metrics.Counter
}

func NewPetrelMetrics(prometheusAddr string) *PetrelMetrics {

	m := &PetrelMetrics{}

	if prometheusAddr == "" {

		m.IMAP = &IMAPMetrics{
			Logins:   discard.NewCounter(),
			Logouts:  discard.NewCounter(),
			Selects:  discard.NewCounter(),
			Fetches:  discard.NewCounter(),
			Expunges: discard.NewCounter(),
		}
		m.LMTP = &LMTPMetrics{
			Deliveries: discard.NewCounter(),
			Rejections: discard.NewCounter(),
		}

		return m
	}

	m.IMAP = &IMAPMetrics{
		Logins: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "petrel",
			Subsystem: "imap",
			Name:      "logins_total",
			Help:      "Number of logins",
		}, nil),
		Logouts: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "petrel",
			Subsystem: "imap",
			Name:      "logouts_total",
			Help:      "Number of logouts",
		}, nil),
		Selects: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "petrel",
			Subsystem: "imap",
			Name:      "selects_total",
			Help:      "Number of selected mailboxes",
		}, nil),
		Fetches: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "petrel",
			Subsystem: "imap",
			Name:      "fetches_total",
			Help:      "Number of executed FETCH commands",
		}, nil),
		Expunges: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "petrel",
			Subsystem: "imap",
			Name:      "expunges_total",
			Help:      "Number of executed EXPUNGE commands",
		}, nil),
	}

	m.LMTP = &LMTPMetrics{
		Deliveries: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "petrel",
			Subsystem: "lmtp",
			Name:      "deliveries_total",
			Help:      "Number of delivered messages",
		}, nil),
		Rejections: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "petrel",
			Subsystem: "lmtp",
			Name:      "rejections_total",
			Help:      "Number of refused recipients",
		}, nil),
	}

	return m
}

func runPromHTTP(logger log.Logger, addr string) {

	if addr == "" {
		level.Debug(logger).Log("msg", "prometheus addr is empty, not exposing prometheus metrics")
		return
	}

	http.Handle("/metrics", promhttp.Handler())

	level.Info(logger).Log("msg", "prometheus handler listening", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		level.Warn(logger).Log("msg", "failed to serve prometheus metrics", "err", err)
	}
}
