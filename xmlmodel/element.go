// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package xmlmodel

import "encoding/xml"

// Node is implemented by every kind of child an Element may hold: another
// Element, character data, CDATA, a comment, or a processing instruction.
type Node interface {
	node()
}

// Text is a run of character data.
type Text string

func (Text) node() {}

// CData is a run of CDATA-escaped character data. It behaves identically to
// Text for the purposes of Element.Text, but is kept distinct so a writer
// that cares can re-emit it as a CDATA section.
type CData string

func (CData) node() {}

// Comment is an XML comment. Comments are skipped by Element.Text.
type Comment string

func (Comment) node() {}

// ProcInst is an XML processing instruction. Processing instructions are
// skipped by Element.Text.
type ProcInst struct {
	Target string
	Inst   string
}

func (ProcInst) node() {}

// Attr is a namespace-qualified attribute.
type Attr struct {
	Name  xml.Name
	Value string
}

// Element is a namespace-qualified XML element: a name, its attributes, and
// an ordered sequence of child nodes.
//
// Every element and namespaced attribute must reference a namespace URI that
// is either the empty (unqualified) namespace or one that a writer can
// resolve from an ancestor's xmlns declarations (see package stanza's
// Writer); the parser that builds these trees resolves namespaces as it
// reads, so a tree built by the parser always satisfies this invariant.
type Element struct {
	Name     xml.Name
	Attr     []Attr
	Children []Node
}

func (*Element) node() {}

// New constructs an empty element with the given local name and, optionally,
// namespace ("" leaves the element unqualified).
func New(local, namespace string) *Element {
	return &Element{Name: xml.Name{Space: namespace, Local: local}}
}

// SetAttribute sets (or replaces) the value of the attribute identified by
// (local, namespace).
func (e *Element) SetAttribute(local, namespace, value string) {
	name := xml.Name{Space: namespace, Local: local}
	for i := range e.Attr {
		if e.Attr[i].Name == name {
			e.Attr[i].Value = value
			return
		}
	}
	e.Attr = append(e.Attr, Attr{Name: name, Value: value})
}

// Attribute returns the value of the attribute identified by (local,
// namespace) and whether it was present.
func (e *Element) Attribute(local, namespace string) (string, bool) {
	name := xml.Name{Space: namespace, Local: local}
	for _, a := range e.Attr {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AddChild appends a child node.
func (e *Element) AddChild(n Node) {
	e.Children = append(e.Children, n)
}

// AddText appends a Text child containing s.
func (e *Element) AddText(s string) {
	e.AddChild(Text(s))
}

// WithChild creates a new child element with the given name and namespace,
// passes it to build for further mutation, then appends it. It mirrors the
// builder style used when constructing response stanzas by hand.
func (e *Element) WithChild(local, namespace string, build func(*Element)) *Element {
	child := New(local, namespace)
	if build != nil {
		build(child)
	}
	e.AddChild(child)
	return child
}

// FindChild returns the first direct child element matching (local,
// namespace), or nil if none does.
func (e *Element) FindChild(local, namespace string) *Element {
	name := xml.Name{Space: namespace, Local: local}
	for _, c := range e.Children {
		if child, ok := c.(*Element); ok && child.Name == name {
			return child
		}
	}
	return nil
}

// Is reports whether the element's qualified name matches (local,
// namespace).
func (e *Element) Is(local, namespace string) bool {
	return e.Name == xml.Name{Space: namespace, Local: local}
}

// Text concatenates the Text and CData content of the element and all of its
// descendants, in document order. Comments and processing instructions are
// skipped.
func (e *Element) Text() string {
	var b []byte
	var walk func(n Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case Text:
			b = append(b, v...)
		case CData:
			b = append(b, v...)
		case *Element:
			for _, c := range v.Children {
				walk(c)
			}
		}
	}
	for _, c := range e.Children {
		walk(c)
	}
	return string(b)
}
