// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmppstream_test

import (
	"context"
	"net"
	"testing"

	"github.com/mdm/confidante/conn"
	"github.com/mdm/confidante/stanza"
	"github.com/mdm/confidante/xmppstream"
)

func TestNextReadsStreamStart(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := conn.New(server, true)
	s := xmppstream.New(c)

	go client.Write([]byte(`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`))

	f, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != stanza.StreamStart {
		t.Fatalf("got kind %v, want StreamStart", f.Kind)
	}
}

func TestResetRebuildsParserAroundFreshBytes(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := conn.New(server, true)
	s := xmppstream.New(c)

	go client.Write([]byte(`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`))
	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Reset()

	go client.Write([]byte(`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`))
	f, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error reading after reset: %v", err)
	}
	if f.Kind != stanza.StreamStart {
		t.Fatalf("got kind %v, want StreamStart", f.Kind)
	}
}

func TestStreamFlagsDelegateToConn(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := conn.New(server, true)
	s := xmppstream.New(c)

	if !s.IsStartTLSAllowed() {
		t.Error("expected STARTTLS allowed")
	}
	if s.IsSecure() {
		t.Error("expected not secure")
	}
	if s.IsAuthenticated() {
		t.Error("expected not authenticated")
	}
}
