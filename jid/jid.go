// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package jid

import (
	"encoding/xml"
	"errors"
	"net"
	"strings"
)

// JID is an XMPP address: a local part, a domain part, and an optional
// resource part. It is a comparable value type so JIDs can be used directly
// as map keys (the router keys its peer table on bound JID).
type JID struct {
	Local    string
	Domain   string
	Resource string
}

// Parse splits s into its constituent parts and validates them, returning a
// JID. Parse rejects localparts and resourceparts that are empty-but-present
// (a bare "@" or "/" with nothing following) and domainparts that are out of
// the RFC 7622 length bounds.
func Parse(s string) (JID, error) {
	local, domain, resource, err := SplitString(s)
	if err != nil {
		return JID{}, err
	}
	if err := commonChecks(local, domain, resource); err != nil {
		return JID{}, err
	}
	return JID{Local: local, Domain: domain, Resource: resource}, nil
}

// MustParse is like Parse but panics on error. It exists for building JIDs
// from constants, such as a server domain baked into configuration.
func MustParse(s string) JID {
	j, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return j
}

// IsZero reports whether j is the zero JID (no part set).
func (j JID) IsZero() bool {
	return j == JID{}
}

// Bare returns a copy of j with the resourcepart removed.
func (j JID) Bare() JID {
	j.Resource = ""
	return j
}

// Bind returns a copy of j with the resourcepart replaced by resource.
func (j JID) Bind(resource string) JID {
	j.Resource = resource
	return j
}

// Equal reports whether j and other refer to the same address. JID is a
// comparable struct so this is equivalent to j == other; provided for
// readability at call sites.
func (j JID) Equal(other JID) bool {
	return j == other
}

// String returns the canonical "local@domain/resource" form, omitting parts
// that are absent.
func (j JID) String() string {
	var b strings.Builder
	if j.Local != "" {
		b.WriteString(j.Local)
		b.WriteByte('@')
	}
	b.WriteString(j.Domain)
	if j.Resource != "" {
		b.WriteByte('/')
		b.WriteString(j.Resource)
	}
	return b.String()
}

// MarshalXMLAttr implements xml.MarshalerAttr so a JID can be written
// directly as the "to" or "from" attribute of a stream header or stanza.
func (j JID) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: j.String()}, nil
}

// UnmarshalXMLAttr implements xml.UnmarshalerAttr.
func (j *JID) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := Parse(attr.Value)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

// SplitString splits out the localpart, domainpart, and resourcepart from a
// string representation of a JID. The parts are not guaranteed to be valid;
// use commonChecks or Parse for a validated result.
func SplitString(s string) (localpart, domainpart, resourcepart string, err error) {
	// RFC 7622 §3.1 Fundamentals: match the separator characters '@' and '/'
	// before applying any transformation algorithms, since those could
	// decompose certain Unicode code points into the separator characters.
	parts := strings.SplitAfterN(s, "/", 2)

	if strings.HasSuffix(parts[0], "/") {
		if len(parts) == 2 && parts[1] != "" {
			resourcepart = parts[1]
		} else {
			return "", "", "", errors.New("jid: resourcepart must be larger than 0 bytes")
		}
	}

	norp := strings.TrimSuffix(parts[0], "/")
	nolp := strings.SplitAfterN(norp, "@", 2)
	if nolp[0] == "@" {
		return "", "", "", errors.New("jid: localpart must be larger than 0 bytes")
	}

	switch len(nolp) {
	case 1:
		domainpart = nolp[0]
	case 2:
		domainpart = nolp[1]
		localpart = strings.TrimSuffix(nolp[0], "@")
	}

	// A trailing dot on the domainpart is a label separator and is ignored
	// for routing, comparison, and URI construction purposes (RFC 7622 §3.2).
	domainpart = strings.TrimSuffix(domainpart, ".")

	return localpart, domainpart, resourcepart, nil
}

func checkIP6String(domainpart string) error {
	if l := len(domainpart); l > 2 && strings.HasPrefix(domainpart, "[") && strings.HasSuffix(domainpart, "]") {
		if ip := net.ParseIP(domainpart[1 : l-1]); ip == nil || ip.To4() != nil {
			return errors.New("jid: domainpart is not a valid IPv6 address")
		}
	}
	return nil
}

func commonChecks(localpart, domainpart, resourcepart string) error {
	if len(localpart) > 1023 {
		return errors.New("jid: localpart must be smaller than 1024 bytes")
	}
	// RFC 7622 §3.3.1 forbids these characters in the localpart even though
	// the IdentifierClass base class doesn't.
	if strings.ContainsAny(localpart, "\"&'/:<>@") {
		return errors.New("jid: localpart contains forbidden characters")
	}
	if len(resourcepart) > 1023 {
		return errors.New("jid: resourcepart must be smaller than 1024 bytes")
	}
	if l := len(domainpart); l < 1 || l > 1023 {
		return errors.New("jid: domainpart must be between 1 and 1023 bytes")
	}
	return checkIP6String(domainpart)
}
