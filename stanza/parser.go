// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/mdm/confidante/internal/decl"
	"github.com/mdm/confidante/internal/ns"
	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/stream"
	"github.com/mdm/confidante/xmlmodel"
)

// Parser reads Frames off of an underlying byte stream. A Parser is stateful:
// the first successful call to Next always returns a StreamStart frame, and
// every call after that returns an XMLFragment until the peer closes the
// stream (io.EOF) or sends malformed input or a stream-level error.
type Parser struct {
	dec     xml.TokenReader
	started bool
}

// NewParser wraps r in a token decoder and returns a Parser ready to read the
// stream header.
func NewParser(r io.Reader) *Parser {
	return &Parser{dec: decl.Skip(xml.NewDecoder(r))}
}

// Next reads and returns the next Frame, blocking until a full frame is
// available, ctx is done, or the underlying reader returns an error.
//
// A non-nil *stream.Error indicates the peer (or this parser, on their
// behalf) reported an unrecoverable stream-level condition; io.EOF indicates
// the peer closed the stream in the expected way.
func (p *Parser) Next(ctx context.Context) (Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		default:
		}

		tok, err := p.dec.Token()
		if err != nil {
			return Frame{}, err
		}

		switch t := tok.(type) {
		case xml.CharData:
			if !p.started {
				continue
			}
			if len(bytes.TrimLeft(t, " \t\r\n")) != 0 {
				return Frame{}, stream.NotWellFormed
			}
		case xml.StartElement:
			if !p.started {
				hdr, err := p.readHeader(t)
				if err != nil {
					return Frame{}, err
				}
				p.started = true
				return Frame{Kind: StreamStart, Header: hdr}, nil
			}
			return p.readFragment(t)
		case xml.EndElement:
			if p.started && t.Name.Local == "stream" && t.Name.Space == ns.Stream {
				return Frame{}, io.EOF
			}
			return Frame{}, stream.BadFormat
		case xml.ProcInst, xml.Comment, xml.Directive:
			return Frame{}, stream.RestrictedXML
		}
	}
}

// readHeader validates and extracts the stream-root start tag's attributes.
func (p *Parser) readHeader(t xml.StartElement) (StreamHeader, error) {
	if t.Name.Local != "stream" || t.Name.Space != ns.Stream {
		return StreamHeader{}, stream.InvalidNamespace
	}

	var hdr StreamHeader
	for _, attr := range t.Attr {
		switch attr.Name {
		case xml.Name{Space: "", Local: "to"}:
			j, err := jid.Parse(attr.Value)
			if err != nil {
				return hdr, stream.ImproperAddressing
			}
			hdr.To = j
		case xml.Name{Space: "", Local: "from"}:
			j, err := jid.Parse(attr.Value)
			if err != nil {
				return hdr, stream.ImproperAddressing
			}
			hdr.From = j
		case xml.Name{Space: "", Local: "id"}:
			hdr.ID = stream.ID(attr.Value)
		case xml.Name{Space: "", Local: "version"}:
			v, err := stream.ParseVersion(attr.Value)
			if err != nil {
				return hdr, stream.BadFormat
			}
			hdr.Version = v
		case xml.Name{Space: "", Local: "xmlns"}:
			if attr.Value != ns.Client {
				return hdr, stream.InvalidNamespace
			}
		case xml.Name{Space: "xmlns", Local: "stream"}:
			if attr.Value != ns.Stream {
				return hdr, stream.InvalidNamespace
			}
		case xml.Name{Space: ns.XML, Local: "lang"}:
			hdr.Lang = attr.Value
		}
	}
	if hdr.Version != (stream.Version{}) && hdr.Version != stream.DefaultVersion {
		return hdr, stream.UnsupportedVersion
	}
	return hdr, nil
}

// readFragment decodes t and its full subtree, returning either the decoded
// fragment or, if t is the stream:error element, the fatal error it carries.
func (p *Parser) readFragment(t xml.StartElement) (Frame, error) {
	if t.Name.Space == ns.Stream && t.Name.Local == "error" {
		se, err := p.readStreamError(t)
		if err != nil {
			return Frame{}, err
		}
		return Frame{}, se
	}
	if t.Name.Space == ns.Stream {
		return Frame{}, fmt.Errorf("stanza: unknown stream-namespaced element %q: %w", t.Name.Local, stream.UnsupportedStanzaType)
	}

	el, err := buildElement(p.dec, t)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Kind: XMLFragment, Element: el}, nil
}

// readStreamError decodes a <stream:error> element into a stream.Error: the
// local name of its first child element is the condition, and any character
// data anywhere in the subtree is the optional human-readable text.
func (p *Parser) readStreamError(t xml.StartElement) (stream.Error, error) {
	el, err := buildElement(p.dec, t)
	if err != nil {
		return stream.Error{}, err
	}
	se := stream.Error{Err: "undefined-condition"}
	for _, c := range el.Children {
		if child, ok := c.(*xmlmodel.Element); ok {
			se.Err = child.Name.Local
			se.Text = child.Text()
			break
		}
	}
	return se, nil
}

// buildElement consumes tokens from dec until the EndElement matching start
// is seen, building an *xmlmodel.Element tree as it goes. Go's encoding/xml
// does not distinguish CDATA sections from ordinary character data at the
// token level, so every xml.CharData becomes an xmlmodel.Text node; this
// parser never produces an xmlmodel.CData node.
func buildElement(dec xml.TokenReader, start xml.StartElement) (*xmlmodel.Element, error) {
	el := &xmlmodel.Element{Name: start.Name}
	for _, a := range start.Attr {
		el.Attr = append(el.Attr, xmlmodel.Attr{Name: a.Name, Value: a.Value})
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := buildElement(dec, t)
			if err != nil {
				return nil, err
			}
			el.AddChild(child)
		case xml.CharData:
			el.AddText(string(t))
		case xml.Comment:
			el.AddChild(xmlmodel.Comment(string(t)))
		case xml.ProcInst:
			el.AddChild(xmlmodel.ProcInst{Target: t.Target, Inst: string(t.Inst)})
		case xml.EndElement:
			return el, nil
		}
	}
}
