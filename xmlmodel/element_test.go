// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmlmodel_test

import (
	"testing"

	"github.com/mdm/confidante/xmlmodel"
)

func TestSetAttributeReplacesExisting(t *testing.T) {
	e := xmlmodel.New("iq", "jabber:client")
	e.SetAttribute("id", "", "abc123")
	e.SetAttribute("id", "", "def456")

	if got := len(e.Attr); got != 1 {
		t.Fatalf("got %d attrs, want 1", got)
	}
	v, ok := e.Attribute("id", "")
	if !ok || v != "def456" {
		t.Errorf("got (%q, %v), want (\"def456\", true)", v, ok)
	}
}

func TestAttributeMissing(t *testing.T) {
	e := xmlmodel.New("iq", "jabber:client")
	if _, ok := e.Attribute("type", ""); ok {
		t.Error("got ok=true for an attribute that was never set")
	}
}

func TestWithChildAppendsAndConfigures(t *testing.T) {
	e := xmlmodel.New("iq", "jabber:client")
	child := e.WithChild("query", "jabber:iq:roster", func(c *xmlmodel.Element) {
		c.SetAttribute("ver", "", "1")
	})

	if got := e.FindChild("query", "jabber:iq:roster"); got != child {
		t.Error("FindChild did not return the child appended by WithChild")
	}
	if v, _ := child.Attribute("ver", ""); v != "1" {
		t.Errorf("got ver=%q, want 1", v)
	}
}

func TestFindChildNoMatch(t *testing.T) {
	e := xmlmodel.New("iq", "jabber:client")
	e.AddText("hello")
	if got := e.FindChild("query", "jabber:iq:roster"); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestIs(t *testing.T) {
	e := xmlmodel.New("bind", "urn:ietf:params:xml:ns:xmpp-bind")
	if !e.Is("bind", "urn:ietf:params:xml:ns:xmpp-bind") {
		t.Error("Is returned false for the element's own name")
	}
	if e.Is("bind", "jabber:client") {
		t.Error("Is returned true for a mismatched namespace")
	}
}

func TestTextConcatenatesDescendants(t *testing.T) {
	root := xmlmodel.New("message", "jabber:client")
	root.WithChild("body", "jabber:client", func(body *xmlmodel.Element) {
		body.AddText("hello, ")
		body.AddChild(xmlmodel.CData("world"))
		body.AddChild(xmlmodel.Comment("ignored"))
	})

	if got := root.Text(); got != "hello, world" {
		t.Errorf("got %q, want %q", got, "hello, world")
	}
}
