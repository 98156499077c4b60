// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package conn wraps a duplex network connection with the three capability
// flags the stream engine negotiates against (STARTTLS-allowed, secure,
// peer-authenticated) and an in-place upgrade to TLS.
package conn // import "github.com/mdm/confidante/conn"

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"
)

// Conn is a duplex byte channel annotated with the negotiation state the
// stream engine needs: whether STARTTLS may still be offered, whether the
// channel is already running over TLS, and whether the peer has presented
// and had validated a client certificate.
type Conn struct {
	nc            net.Conn
	starttlsOK    bool
	secure        bool
	authenticated bool
}

// New wraps nc. starttlsAllowed should be false if nc is already secure by
// some means other than this package's Upgrade (there is no such case in
// this engine today, but the flag is independent of secure so a caller could
// in principle hand in a pre-secured channel with STARTTLS still off).
func New(nc net.Conn, starttlsAllowed bool) *Conn {
	return &Conn{nc: nc, starttlsOK: starttlsAllowed}
}

// Read reads data from the connection.
func (c *Conn) Read(b []byte) (int, error) { return c.nc.Read(b) }

// Write writes data to the connection.
func (c *Conn) Write(b []byte) (int, error) { return c.nc.Write(b) }

// Close closes the connection. Any blocked Read or Write is unblocked and
// returns an error.
func (c *Conn) Close() error { return c.nc.Close() }

// IsStartTLSAllowed reports whether STARTTLS may still be offered on this
// channel (it is cleared once TLS has been negotiated).
func (c *Conn) IsStartTLSAllowed() bool { return c.starttlsOK }

// IsSecure reports whether the channel is currently running over TLS.
func (c *Conn) IsSecure() bool { return c.secure }

// IsAuthenticated reports whether the peer presented a client certificate
// that validated against the TLS configuration's client CA pool.
func (c *Conn) IsAuthenticated() bool { return c.authenticated }

var errAlreadySecure = errors.New("conn: connection is already secure")

// Upgrade consumes c and drives a server-side TLS handshake over its
// underlying channel using cfg, returning a new Conn over the TLS session.
// It fails if c is already secure. If the wrapped channel is a *Debug tee,
// the returned Conn's channel is also a *Debug tee under the same UUID, so
// logs from before and after the upgrade land in the same pair of files.
func (c *Conn) Upgrade(ctx context.Context, cfg *tls.Config) (*Conn, error) {
	if c.secure {
		return nil, errAlreadySecure
	}

	tlsConn := tls.Server(c.nc, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("conn: tls handshake: %w", err)
	}

	var upgraded net.Conn = tlsConn
	if dbg, ok := c.nc.(*Debug); ok {
		upgraded = dbg.rewrap(tlsConn)
	}

	state := tlsConn.ConnectionState()
	return &Conn{
		nc: upgraded,
		// RFC 6120 §5.4.3.1: a server MUST NOT offer STARTTLS again once TLS
		// negotiation has completed on the stream.
		starttlsOK:    false,
		secure:        true,
		authenticated: len(state.VerifiedChains) > 0,
	}, nil
}

// ChannelBinding returns the RFC 9266 "tls-exporter" channel-binding token
// for the current TLS session, for use by SASL -PLUS mechanisms. It reports
// false if the channel is not running over TLS. Go's crypto/tls deliberately
// does not expose the Finished-message digests the older "tls-unique" binding
// type needs (they were retired after the triple-handshake attack), so
// tls-exporter, built on the exported keying material RFC 5705 already
// provides, is the only channel-binding type this engine can offer.
func (c *Conn) ChannelBinding() ([]byte, bool) {
	tlsConn, ok := c.tlsConn()
	if !ok {
		return nil, false
	}
	data, err := tlsConn.ExportKeyingMaterial("EXPORTER-Channel-Binding", nil, 32)
	if err != nil {
		return nil, false
	}
	return data, true
}

// tlsConn returns the underlying *tls.Conn, unwrapping a *Debug tee if
// present, or false if the channel isn't running over TLS.
func (c *Conn) tlsConn() (*tls.Conn, bool) {
	nc := c.nc
	if dbg, ok := nc.(*Debug); ok {
		nc = dbg.Conn
	}
	tlsConn, ok := nc.(*tls.Conn)
	return tlsConn, ok
}

// SetDeadline sets the read and write deadlines on the underlying channel.
func (c *Conn) SetDeadline(t time.Time) error { return c.nc.SetDeadline(t) }

// SetReadDeadline sets the read deadline on the underlying channel.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.nc.SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline on the underlying channel.
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.nc.SetWriteDeadline(t) }

// LocalAddr returns the local network address, if known.
func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// RemoteAddr returns the remote network address, if known.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }
