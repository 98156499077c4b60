// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package stanza implements the streaming XML reader and writer that sit
// directly on top of a negotiated connection: recognizing the stream-root
// start tag, decoding each subsequent first-level child into a tree of
// xmlmodel.Element nodes, and writing such trees back out with the
// namespace-prefix bookkeeping the wire format requires.
package stanza // import "github.com/mdm/confidante/stanza"

import (
	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/stream"
	"github.com/mdm/confidante/xmlmodel"
)

// Kind identifies which field of a Frame is populated.
type Kind int

const (
	// StreamStart is produced exactly once, for the opening <stream:stream>
	// tag, and carries the negotiated Header.
	StreamStart Kind = iota
	// XMLFragment is produced for every first-level child of the stream
	// (a stanza, a SASL element, a feature request, and so on) and carries
	// the decoded Element.
	XMLFragment
)

// StreamHeader is the metadata carried on the opening <stream:stream> tag.
type StreamHeader struct {
	To      jid.JID
	From    jid.JID
	ID      stream.ID
	Version stream.Version
	Lang    string
}

// Frame is one unit of input read from, or output written to, a negotiated
// stream: either the stream-opening tag or one first-level child element.
type Frame struct {
	Kind    Kind
	Header  StreamHeader
	Element *xmlmodel.Element
}
