// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/mdm/confidante/internal/decl"
	"github.com/mdm/confidante/internal/ns"
	"github.com/mdm/confidante/xmlmodel"
)

// nsScope is one level of namespace bindings: a map of prefix ("" for the
// default namespace) to namespace URI, as declared by xmlns/xmlns:* attributes
// on one element.
type nsScope map[string]string

// Writer serializes xmlmodel.Element trees, maintaining a stack of namespace
// scopes so that elements and attributes are written with the correct prefix
// (or none, if they're in scope as the default namespace) and never redeclare
// a binding an ancestor already provides.
//
// We don't use an xml.Encoder, both because the standard library encoder
// can't easily be made to emit the hand-rolled <stream:stream> root tag (it
// insists on a matching end tag written through the same encoder) and because
// a direct Fprintf of a root tag we fully control is faster and exactly as
// well-formed as encoding it would be.
type Writer struct {
	bw    *bufio.Writer
	stack []nsScope
}

// NewWriter returns a Writer that seeds its namespace stack with the two
// reserved bindings every XML document gets for free.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw: bufio.NewWriter(w),
		stack: []nsScope{{
			"xml":   ns.XML,
			"xmlns": ns.XMLNS,
		}},
	}
}

// WriteStreamHeader writes the XML declaration (if includeDecl) and the
// opening <stream:stream> tag for hdr, then pushes a namespace scope
// declaring the default "jabber:client" and "stream" bindings so that
// subsequently written elements (such as <stream:features>) resolve against
// them without redeclaring xmlns on every child.
func (w *Writer) WriteStreamHeader(hdr StreamHeader, includeDecl bool) error {
	var err error
	if includeDecl {
		_, err = fmt.Fprint(w.bw, decl.XMLHeader)
		if err != nil {
			return err
		}
	}

	_, err = fmt.Fprint(w.bw, `<stream:stream`)
	if err != nil {
		return err
	}
	if hdr.ID != "" {
		if err = w.writeQuotedAttr("id", hdr.ID.String()); err != nil {
			return err
		}
	}
	if !hdr.From.IsZero() {
		if err = w.writeQuotedAttr("from", hdr.From.String()); err != nil {
			return err
		}
	}
	if !hdr.To.IsZero() {
		if err = w.writeQuotedAttr("to", hdr.To.String()); err != nil {
			return err
		}
	}
	if err = w.writeQuotedAttr("version", hdr.Version.String()); err != nil {
		return err
	}
	if hdr.Lang != "" {
		if err = w.writeQuotedAttr("xml:lang", hdr.Lang); err != nil {
			return err
		}
	}
	if err = w.writeQuotedAttr("xmlns", ns.Client); err != nil {
		return err
	}
	if err = w.writeQuotedAttr("xmlns:stream", ns.Stream); err != nil {
		return err
	}
	if _, err = fmt.Fprint(w.bw, ">"); err != nil {
		return err
	}

	w.stack = append(w.stack, nsScope{"": ns.Client, "stream": ns.Stream})
	return w.bw.Flush()
}

// WriteStreamClose writes the closing </stream:stream> tag, pops the scope
// pushed by WriteStreamHeader, and flushes.
func (w *Writer) WriteStreamClose() error {
	if len(w.stack) > 1 {
		w.stack = w.stack[:len(w.stack)-1]
	}
	if _, err := fmt.Fprint(w.bw, `</stream:stream>`); err != nil {
		return err
	}
	return w.bw.Flush()
}

func (w *Writer) writeQuotedAttr(name, value string) error {
	if _, err := fmt.Fprintf(w.bw, " %s='", name); err != nil {
		return err
	}
	if err := xml.EscapeText(w.bw, []byte(value)); err != nil {
		return err
	}
	_, err := fmt.Fprint(w.bw, "'")
	return err
}

// resolve walks the scope stack from the innermost (most recently pushed)
// scope outward, returning the first prefix bound to uri. The empty string is
// a valid result meaning "the default namespace, no prefix needed".
func (w *Writer) resolve(uri string) (prefix string, ok bool) {
	for i := len(w.stack) - 1; i >= 0; i-- {
		scope := w.stack[i]
		if scope[""] == uri {
			return "", true
		}
		for p, u := range scope {
			if p != "" && u == uri {
				return p, true
			}
		}
	}
	return "", false
}

// WriteElement serializes el and its descendants, then flushes — every
// stream:features, SASL challenge/success/failure, STARTTLS proceed, and
// bind-result write goes through this method, and none of them may sit in
// the buffer waiting for a later, unrelated write to push them out.
func (w *Writer) WriteElement(el *xmlmodel.Element) error {
	if err := w.writeElement(el); err != nil {
		return err
	}
	return w.bw.Flush()
}

// writeElement is WriteElement's unflushed body, called directly by
// writeNode for descendants so that only the outermost call pays for a
// flush.
func (w *Writer) writeElement(el *xmlmodel.Element) error {
	scope := nsScope{}
	for _, a := range el.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			scope[""] = a.Value
		case a.Name.Space == "xmlns":
			scope[a.Name.Local] = a.Value
		}
	}
	w.stack = append(w.stack, scope)
	defer func() { w.stack = w.stack[:len(w.stack)-1] }()

	tag, err := w.qualify(el.Name)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.bw, "<%s", tag); err != nil {
		return err
	}

	for _, a := range el.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			if err := w.writeQuotedAttr("xmlns", a.Value); err != nil {
				return err
			}
			continue
		case a.Name.Space == "xmlns":
			if err := w.writeQuotedAttr("xmlns:"+a.Name.Local, a.Value); err != nil {
				return err
			}
			continue
		}
		attrTag := a.Name.Local
		if a.Name.Space != "" {
			prefix, ok := w.resolve(a.Name.Space)
			if !ok || prefix == "" {
				return fmt.Errorf("stanza: cannot resolve a prefix for attribute namespace %q", a.Name.Space)
			}
			attrTag = prefix + ":" + a.Name.Local
		}
		if err := w.writeQuotedAttr(attrTag, a.Value); err != nil {
			return err
		}
	}

	if len(el.Children) == 0 {
		_, err := fmt.Fprint(w.bw, "/>")
		return err
	}
	if _, err := fmt.Fprint(w.bw, ">"); err != nil {
		return err
	}
	for _, c := range el.Children {
		if err := w.writeNode(c); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w.bw, "</%s>", tag)
	return err
}

func (w *Writer) writeNode(n xmlmodel.Node) error {
	switch v := n.(type) {
	case xmlmodel.Text:
		return xml.EscapeText(w.bw, []byte(v))
	case xmlmodel.CData:
		_, err := fmt.Fprintf(w.bw, "<![CDATA[%s]]>", string(v))
		return err
	case xmlmodel.Comment:
		_, err := fmt.Fprintf(w.bw, "<!--%s-->", string(v))
		return err
	case xmlmodel.ProcInst:
		_, err := fmt.Fprintf(w.bw, "<?%s %s?>", v.Target, v.Inst)
		return err
	case *xmlmodel.Element:
		return w.writeElement(v)
	}
	return fmt.Errorf("stanza: unknown node type %T", n)
}

// qualify resolves name against the current namespace stack and returns the
// tag to write, e.g. "stream:features" or "query" (unqualified or default).
func (w *Writer) qualify(name xml.Name) (string, error) {
	if name.Space == "" {
		return name.Local, nil
	}
	prefix, ok := w.resolve(name.Space)
	if !ok {
		return "", fmt.Errorf("stanza: cannot resolve a prefix for element namespace %q", name.Space)
	}
	if prefix == "" {
		return name.Local, nil
	}
	return prefix + ":" + name.Local, nil
}

// Flush flushes any buffered output to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}
