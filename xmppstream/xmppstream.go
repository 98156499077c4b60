// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmppstream owns a connection's parser/writer pair and the two
// operations that rebuild them in place: reset (after SASL success) and
// TLS upgrade (after STARTTLS), both of which must discard any buffered XML
// state per RFC 6120 §4.3.3 while keeping the underlying socket intact.
package xmppstream // import "github.com/mdm/confidante/xmppstream"

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/mdm/confidante/conn"
	"github.com/mdm/confidante/stanza"
	"github.com/mdm/confidante/xmlmodel"
)

// Stream owns one connection's parser and writer. All of its methods are
// safe for concurrent use; the mutex matches the teacher's `conn.go`
// `flock sync.Mutex` idiom for guarding mutable connection state, since both
// Reset and UpgradeTLS replace the parser/writer pair out from under
// whichever goroutine is mid-read or mid-write.
type Stream struct {
	mu     sync.Mutex
	conn   *conn.Conn
	parser *stanza.Parser
	writer *stanza.Writer
}

// New builds a Stream around an already-accepted connection, constructing
// its initial parser and writer.
func New(c *conn.Conn) *Stream {
	return &Stream{
		conn:   c,
		parser: stanza.NewParser(c),
		writer: stanza.NewWriter(c),
	}
}

// Next reads the next frame from the current parser.
func (s *Stream) Next(ctx context.Context) (stanza.Frame, error) {
	s.mu.Lock()
	p := s.parser
	s.mu.Unlock()
	return p.Next(ctx)
}

// WriteStreamHeader writes the stream-opening tag through the current
// writer.
func (s *Stream) WriteStreamHeader(hdr stanza.StreamHeader, includeDecl bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.WriteStreamHeader(hdr, includeDecl)
}

// WriteElement writes el through the current writer.
func (s *Stream) WriteElement(el *xmlmodel.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.WriteElement(el)
}

// WriteStreamClose writes the stream-closing tag through the current
// writer.
func (s *Stream) WriteStreamClose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.WriteStreamClose()
}

// IsStartTLSAllowed reports whether the underlying connection still permits
// a STARTTLS negotiation.
func (s *Stream) IsStartTLSAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.IsStartTLSAllowed()
}

// IsSecure reports whether the underlying connection is running over TLS.
func (s *Stream) IsSecure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.IsSecure()
}

// IsAuthenticated reports whether the peer presented and had validated a
// TLS client certificate.
func (s *Stream) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.IsAuthenticated()
}

// ChannelBinding returns the RFC 9266 tls-exporter channel-binding token for
// the underlying connection, for SASL -PLUS mechanisms. It reports false if
// the connection is not currently running over TLS.
func (s *Stream) ChannelBinding() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.ChannelBinding()
}

// Reset discards the current parser and writer (and any state they hold,
// such as buffered bytes or namespace scopes) and rebuilds fresh ones
// around the same underlying connection. Required after SASL success
// (RFC 6120 §6.4.6) and, via UpgradeTLS, after STARTTLS.
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Stream) resetLocked() {
	s.parser = stanza.NewParser(s.conn)
	s.writer = stanza.NewWriter(s.conn)
}

// UpgradeTLS drives a TLS handshake over the underlying connection using
// cfg, then resets the parser and writer around the upgraded connection.
// It fails if the connection is already secure.
func (s *Stream) UpgradeTLS(ctx context.Context, cfg *tls.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	upgraded, err := s.conn.Upgrade(ctx, cfg)
	if err != nil {
		return err
	}
	s.conn = upgraded
	s.resetLocked()
	return nil
}
