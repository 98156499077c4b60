// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/stanza"
	"github.com/mdm/confidante/stream"
	"github.com/mdm/confidante/xmlmodel"
)

func TestParserReadsStreamHeader(t *testing.T) {
	const doc = `<?xml version="1.0"?><stream:stream to='example.com' id='abc123' version='1.0' xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`
	p := stanza.NewParser(strings.NewReader(doc))
	f, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Kind != stanza.StreamStart {
		t.Fatalf("got kind %v, want StreamStart", f.Kind)
	}
	if f.Header.ID != "abc123" {
		t.Errorf("got id %q, want abc123", f.Header.ID)
	}
	if f.Header.To != jid.MustParse("example.com") {
		t.Errorf("got to %v, want example.com", f.Header.To)
	}
	if f.Header.Version != stream.DefaultVersion {
		t.Errorf("got version %v, want %v", f.Header.Version, stream.DefaultVersion)
	}
}

func TestParserReadsFragment(t *testing.T) {
	const doc = `<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'><auth xmlns='urn:ietf:params:xml:ns:xmpp-sasl' mechanism='PLAIN'>AGZvbwBiYXI=</auth>`
	p := stanza.NewParser(strings.NewReader(doc))
	if _, err := p.Next(context.Background()); err != nil {
		t.Fatalf("unexpected error reading header: %v", err)
	}
	f, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error reading fragment: %v", err)
	}
	if f.Kind != stanza.XMLFragment {
		t.Fatalf("got kind %v, want XMLFragment", f.Kind)
	}
	if !f.Element.Is("auth", "urn:ietf:params:xml:ns:xmpp-sasl") {
		t.Errorf("got element %v, want auth", f.Element.Name)
	}
	if mech, ok := f.Element.Attribute("mechanism", ""); !ok || mech != "PLAIN" {
		t.Errorf("got mechanism %q, ok=%v", mech, ok)
	}
	if f.Element.Text() != "AGZvbwBiYXI=" {
		t.Errorf("got text %q", f.Element.Text())
	}
}

func TestParserStreamClose(t *testing.T) {
	const doc = `<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'></stream:stream>`
	p := stanza.NewParser(strings.NewReader(doc))
	if _, err := p.Next(context.Background()); err != nil {
		t.Fatalf("unexpected error reading header: %v", err)
	}
	_, err := p.Next(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestParserStreamError(t *testing.T) {
	const doc = `<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'><stream:error><restricted-xml xmlns='urn:ietf:params:xml:ns:xmpp-streams'/></stream:error>`
	p := stanza.NewParser(strings.NewReader(doc))
	if _, err := p.Next(context.Background()); err != nil {
		t.Fatalf("unexpected error reading header: %v", err)
	}
	_, err := p.Next(context.Background())
	se, ok := err.(stream.Error)
	if !ok {
		t.Fatalf("got error %v (%T), want stream.Error", err, err)
	}
	if se.Err != "restricted-xml" {
		t.Errorf("got condition %q, want restricted-xml", se.Err)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := stanza.NewWriter(&buf)
	hdr := stanza.StreamHeader{
		ID:      "s2s3",
		From:    jid.MustParse("example.com"),
		Version: stream.DefaultVersion,
	}
	if err := w.WriteStreamHeader(hdr, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	features := xmlmodel.New("features", "http://etherx.jabber.org/streams")
	features.WithChild("mechanisms", "urn:ietf:params:xml:ns:xmpp-sasl", func(e *xmlmodel.Element) {
		e.SetAttribute("xmlns", "", "urn:ietf:params:xml:ns:xmpp-sasl")
		e.WithChild("mechanism", "", func(m *xmlmodel.Element) {
			m.AddText("SCRAM-SHA-256")
		})
	})
	if err := w.WriteElement(features); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.WriteStreamClose(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<stream:stream`,
		`id='s2s3'`,
		`from='example.com'`,
		`xmlns='jabber:client'`,
		`xmlns:stream='http://etherx.jabber.org/streams'`,
		`<stream:features>`,
		`<mechanisms xmlns='urn:ietf:params:xml:ns:xmpp-sasl'>`,
		`<mechanism>SCRAM-SHA-256</mechanism>`,
		`</stream:features>`,
		`</stream:stream>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q; full output: %s", want, out)
		}
	}
}

func TestWriterUnresolvableNamespaceErrors(t *testing.T) {
	var buf bytes.Buffer
	w := stanza.NewWriter(&buf)
	el := xmlmodel.New("foo", "urn:example:unbound")
	if err := w.WriteElement(el); err == nil {
		t.Errorf("expected an error writing an element with no bound namespace")
	}
}
