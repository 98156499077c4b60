// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides namespace constants shared across the stream engine.
package ns // import "github.com/mdm/confidante/internal/ns"

// List of namespaces used while negotiating and routing an inbound stream.
const (
	Bind     = "urn:ietf:params:xml:ns:xmpp-bind"
	SASL     = "urn:ietf:params:xml:ns:xmpp-sasl"
	StartTLS = "urn:ietf:params:xml:ns:xmpp-tls"
	XML      = "http://www.w3.org/XML/1998/namespace"
	XMLNS    = "http://www.w3.org/2000/xmlns/"

	// Client is the default content namespace for client-to-server streams.
	Client = "jabber:client"
	// Server is the default content namespace for server-to-server streams.
	Server = "jabber:server"
	// Stream is the namespace of the stream:stream root element and the
	// stream:error and stream:features children.
	Stream = "http://etherx.jabber.org/streams"
	// StreamError is the namespace of the RFC 6120 §4.9.3 error conditions.
	StreamError = "urn:ietf:params:xml:ns:xmpp-streams"
)
