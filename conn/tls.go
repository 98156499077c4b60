// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package conn

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// NewTLSConfig builds the server TLS configuration the engine upgrades
// connections with. It loads a PEM certificate chain and PKCS#8 private key
// and requests, but does not require, a client certificate: the resulting
// configuration lets EXTERNAL SASL become available when a client presents
// and validates a certificate while still accepting peers who present none.
//
// caPool is the pool a presented client certificate is verified against; a
// nil pool falls back to the OS trust store via tls.Config's own default
// (appropriate for server deployments that trust the same CAs their OS
// does for client certs, which matches this engine's expected deployment).
func NewTLSConfig(certPEM, keyPEM []byte, caPool *x509.CertPool) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("conn: loading TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    caPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
