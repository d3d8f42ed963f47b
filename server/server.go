package server

import (
	"fmt"
	"net"

	"crypto/tls"

	"github.com/pkg/errors"
)

// Functions

// NewListener opens up a TCP socket on the supplied address.
// When certificate and key locations are provided, the socket
// only accepts TLS connections.
func NewListener(addr string, certLoc string, keyLoc string) (net.Listener, error) {

	if (certLoc == "") || (keyLoc == "") {

		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, errors.Wrapf(err, "listening on '%s' failed", addr)
		}

		return listener, nil
	}

	// TLS config is taken from the excellent blog post
	// "Achieving a Perfect SSL Labs Score with Go":
	// https://blog.bracelab.com/achieving-perfect-ssl-labs-score-with-go
	tlsConfig := &tls.Config{
		Certificates:             make([]tls.Certificate, 1),
		MinVersion:               tls.VersionTLS12,
		CurvePreferences:         []tls.CurveID{tls.CurveP521, tls.CurveP384, tls.CurveP256},
		PreferServerCipherSuites: true,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
			tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_RSA_WITH_AES_256_CBC_SHA,
		},
	}

	var err error

	// Put in supplied TLS cert and key.
	tlsConfig.Certificates[0], err = tls.LoadX509KeyPair(certLoc, keyLoc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load TLS cert and key")
	}

	listener, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("listening for TLS connections on '%s' failed with: %v", addr, err)
	}

	return listener, nil
}
