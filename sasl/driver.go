// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package sasl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mdm/confidante/credential"
	"github.com/mdm/confidante/internal/ns"
	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/stanza"
	"github.com/mdm/confidante/xmlmodel"
	"github.com/mdm/confidante/xmppstream"
)

// maxConsecutiveFailures is the number of consecutive SCRAM step failures
// (bad proof, unknown user) this driver tolerates within one <auth> attempt
// before giving up on the stream entirely.
const maxConsecutiveFailures = 3

var (
	// ErrNotApplicable is returned by Negotiate when element is not a
	// {xmpp-sasl}auth element; the caller should try the next negotiable
	// feature rather than treat this as any kind of failure.
	ErrNotApplicable = errors.New("sasl: element is not an auth request")

	// ErrAborted is returned after the peer sends <abort/>.
	ErrAborted = errors.New("sasl: authentication aborted by peer")

	// ErrTooManyFailures is returned once the peer has failed
	// maxConsecutiveFailures authentication attempts in a row within a
	// single exchange; the caller should close the stream without writing
	// an additional stream-level error, since a SASL <failure/> has
	// already told the peer why.
	ErrTooManyFailures = errors.New("sasl: too many consecutive authentication failures")
)

// Driver negotiates the SASL stream feature for one domain against a
// credential lookup.
type Driver struct {
	domain string
	lookup credential.Lookup
}

// NewDriver returns a Driver that authenticates bare JIDs under domain,
// looking up stored SCRAM entries through lookup.
func NewDriver(domain string, lookup credential.Lookup) *Driver {
	return &Driver{domain: domain, lookup: lookup}
}

// AdvertiseFeature builds the <mechanisms/> element this engine offers in
// <stream:features> given the channel's secure and authenticated state.
func (d *Driver) AdvertiseFeature(secure, authenticated bool) *xmlmodel.Element {
	mechanisms := xmlmodel.New("mechanisms", ns.SASL)
	mechanisms.SetAttribute("xmlns", "", ns.SASL)
	for _, name := range Mechanisms(secure, authenticated) {
		mech := xmlmodel.New("mechanism", ns.SASL)
		mech.AddText(name)
		mechanisms.AddChild(mech)
	}
	return mechanisms
}

// Negotiate drives the SASL exchange triggered by element, which must be a
// {xmpp-sasl}auth element (ErrNotApplicable is returned immediately
// otherwise, without writing anything, so the caller can try this element
// against a different feature). On success it returns the authenticated
// peer's bare JID; strm's writer has already carried every challenge,
// response wait, and the closing <success/> or <failure/>.
func (d *Driver) Negotiate(ctx context.Context, strm *xmppstream.Stream, element *xmlmodel.Element) (jid.JID, error) {
	if !element.Is("auth", ns.SASL) {
		return jid.JID{}, ErrNotApplicable
	}

	mechName, _ := element.Attribute("mechanism", "")
	mech, plus, ok := resolve(mechName)
	if !ok {
		if err := d.writeFailure(strm, "invalid-mechanism"); err != nil {
			return jid.JID{}, err
		}
		return jid.JID{}, fmt.Errorf("sasl: unsupported mechanism %q", mechName)
	}

	var binding []byte
	if plus {
		b, ok := strm.ChannelBinding()
		if !ok {
			if err := d.writeFailure(strm, "invalid-mechanism"); err != nil {
				return jid.JID{}, err
			}
			return jid.JID{}, fmt.Errorf("sasl: %s requires an active TLS channel binding", mechName)
		}
		binding = b
	}

	payload, err := decodeSaslText(element.Text())
	if err != nil {
		return jid.JID{}, fmt.Errorf("sasl: decoding initial response: %w", err)
	}

	neg := credential.NewNegotiator(mech, plus, d.domain, d.lookup, binding)
	failures := 0
	for {
		result, stepErr := neg.Step(payload)
		if stepErr != nil {
			return jid.JID{}, fmt.Errorf("sasl: %w", stepErr)
		}

		switch result.Kind {
		case credential.ResultChallenge:
			if err := d.writeChallenge(strm, result.Challenge); err != nil {
				return jid.JID{}, err
			}
		case credential.ResultSuccess:
			if err := d.writeSuccess(strm, result.AdditionalData); err != nil {
				return jid.JID{}, err
			}
			return result.JID, nil
		case credential.ResultFailure:
			failures++
			if err := d.writeFailure(strm, "not-authorized"); err != nil {
				return jid.JID{}, err
			}
			if failures >= maxConsecutiveFailures {
				return jid.JID{}, ErrTooManyFailures
			}
			// A fresh negotiator reseeds the server nonce and salt lookup,
			// letting the peer retry without reissuing <auth>.
			neg = credential.NewNegotiator(mech, plus, d.domain, d.lookup, binding)
		}

		frame, err := strm.Next(ctx)
		if err != nil {
			return jid.JID{}, err
		}
		if frame.Kind != stanza.XMLFragment || frame.Element == nil {
			return jid.JID{}, errors.New("sasl: expected an xml fragment while awaiting a sasl response")
		}

		el := frame.Element
		switch {
		case el.Is("response", ns.SASL):
			payload, err = decodeSaslText(el.Text())
			if err != nil {
				return jid.JID{}, fmt.Errorf("sasl: decoding response: %w", err)
			}
		case el.Is("abort", ns.SASL):
			if err := d.writeFailure(strm, "aborted"); err != nil {
				return jid.JID{}, err
			}
			return jid.JID{}, ErrAborted
		default:
			return jid.JID{}, fmt.Errorf("sasl: unexpected element %q while awaiting a sasl response", el.Name.Local)
		}
	}
}

// decodeSaslText base64-decodes s, treating an empty string as an empty
// (not malformed) payload, since RFC 6120 §6.3.1 permits a client to send
// the mechanism's initial response on a later <response> rather than
// inline with <auth>.
func decodeSaslText(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func (d *Driver) writeChallenge(strm *xmppstream.Stream, data []byte) error {
	el := xmlmodel.New("challenge", ns.SASL)
	el.SetAttribute("xmlns", "", ns.SASL)
	el.AddText(base64.StdEncoding.EncodeToString(data))
	return strm.WriteElement(el)
}

func (d *Driver) writeSuccess(strm *xmppstream.Stream, additionalData []byte) error {
	el := xmlmodel.New("success", ns.SASL)
	el.SetAttribute("xmlns", "", ns.SASL)
	if len(additionalData) > 0 {
		el.AddText(base64.StdEncoding.EncodeToString(additionalData))
	}
	return strm.WriteElement(el)
}

func (d *Driver) writeFailure(strm *xmppstream.Stream, condition string) error {
	el := xmlmodel.New("failure", ns.SASL)
	el.SetAttribute("xmlns", "", ns.SASL)
	el.AddChild(xmlmodel.New(condition, ns.SASL))
	return strm.WriteElement(el)
}
