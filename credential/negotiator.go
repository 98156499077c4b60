// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package credential

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/mdm/confidante/jid"
)

// Lookup resolves a SCRAM stored-password entry for an authentication
// identity. It is the narrow interface the negotiator needs from a
// credential store; the store actor is expected to implement it by parsing
// whatever ParseStoredPasswordScram returns for the matching mechanism.
type Lookup interface {
	LookupScram(authid string, mech Mechanism) (StoredPasswordScram, bool)
}

// ResultKind discriminates the variant of Result returned by Negotiator.Step.
type ResultKind int

const (
	// ResultChallenge carries bytes to send to the peer as a <challenge>,
	// with a further <response> expected.
	ResultChallenge ResultKind = iota
	// ResultSuccess carries the authenticated JID and optional data to send
	// alongside <success>.
	ResultSuccess
	// ResultFailure indicates the exchange did not authenticate; the caller
	// emits <failure><not-authorized/></failure>.
	ResultFailure
)

// Result is what one Negotiator.Step call produces.
type Result struct {
	Kind           ResultKind
	Challenge      []byte
	JID            jid.JID
	AdditionalData []byte
}

type negotiatorState int

const (
	stateAwaitClientFirst negotiatorState = iota
	stateSentServerFirst
	stateCompleted
)

// Negotiator drives one SCRAM exchange to completion: AwaitClientFirst ->
// SentServerFirst -> Completed. It is single-use; construct a new one per
// <auth> attempt.
type Negotiator struct {
	mech    Mechanism
	plus    bool
	binding []byte // channel-binding data for this TLS session; nil if !plus
	domain  string
	lookup  Lookup

	state negotiatorState

	authid          string
	gs2Header       string
	clientFirstBare string
	serverFirst     string
	combinedNonce   string
	entry           StoredPasswordScram
	forcedFailure   bool
}

// NewNegotiator constructs a Negotiator for one SCRAM attempt. domain is the
// server's virtual host, used to build the resolved JID on success. binding
// is the current TLS channel's tls-exporter token; it must be
// non-empty when plus is true.
func NewNegotiator(mech Mechanism, plus bool, domain string, lookup Lookup, binding []byte) *Negotiator {
	return &Negotiator{mech: mech, plus: plus, domain: domain, lookup: lookup, binding: binding}
}

// Step feeds payload (the base64-decoded bytes of the current <auth> or
// <response> element) to the negotiator and returns the next Result.
func (n *Negotiator) Step(payload []byte) (Result, error) {
	switch n.state {
	case stateAwaitClientFirst:
		return n.stepClientFirst(payload)
	case stateSentServerFirst:
		return n.stepClientFinal(payload)
	default:
		return Result{}, errors.New("credential: negotiator stepped after completion")
	}
}

// stepClientFirst parses the gs2-header and client-first-message-bare,
// resolves the authentication identity (falling back to a dummy entry for
// unknown users so failure timing doesn't leak their existence), and emits
// the server-first-message.
func (n *Negotiator) stepClientFirst(payload []byte) (Result, error) {
	gs2Header, bare, err := splitGS2Header(string(payload))
	if err != nil {
		return Result{}, err
	}
	if err := n.checkChannelBindingFlag(gs2Header); err != nil {
		return Result{}, err
	}
	n.gs2Header = gs2Header

	attrs := parseScramAttrs(bare)
	authzid, hasAuthzid := gs2Authzid(gs2Header)

	authid, ok := attrs["n"]
	if !ok || authid == "" {
		return Result{}, errors.New("credential: client-first-message missing username")
	}
	authid = unescapeScram(authid)
	if hasAuthzid && authzid != authid {
		return Result{}, errors.New("credential: invalid-authzid")
	}

	clientNonce, ok := attrs["r"]
	if !ok || clientNonce == "" {
		return Result{}, errors.New("credential: client-first-message missing nonce")
	}

	n.authid = authid
	n.clientFirstBare = bare

	entry, ok := n.lookup.LookupScram(authid, n.mech)
	if !ok {
		entry = dummyEntry(n.mech, authid)
		n.forcedFailure = true
	}
	n.entry = entry

	serverNonce, err := newNonce()
	if err != nil {
		return Result{}, err
	}
	n.combinedNonce = clientNonce + serverNonce

	n.serverFirst = fmt.Sprintf("r=%s,s=%s,i=%d",
		n.combinedNonce,
		base64.StdEncoding.EncodeToString(entry.Salt),
		entry.Iterations,
	)
	n.state = stateSentServerFirst
	return Result{Kind: ResultChallenge, Challenge: []byte(n.serverFirst)}, nil
}

// stepClientFinal verifies the client-final-message's channel-binding token,
// nonce echo, and proof, then either succeeds (emitting the server
// signature) or fails.
func (n *Negotiator) stepClientFinal(payload []byte) (Result, error) {
	n.state = stateCompleted

	final := string(payload)
	attrs := parseScramAttrs(final)

	cbind, ok := attrs["c"]
	if !ok {
		return Result{}, errors.New("credential: client-final-message missing channel binding")
	}
	if !n.verifyChannelBinding(cbind) {
		return Result{Kind: ResultFailure}, nil
	}

	nonce, ok := attrs["r"]
	if !ok || nonce != n.combinedNonce {
		return Result{Kind: ResultFailure}, nil
	}

	proofB64, ok := attrs["p"]
	if !ok {
		return Result{}, errors.New("credential: client-final-message missing proof")
	}
	proof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return Result{}, fmt.Errorf("credential: malformed proof: %w", err)
	}

	withoutProof := final[:strings.LastIndex(final, ",p=")]
	authMessage := n.clientFirstBare + "," + n.serverFirst + "," + withoutProof

	clientSignature := n.mech.hmacSum(n.entry.StoredKey, []byte(authMessage))
	if len(proof) != len(clientSignature) {
		return Result{Kind: ResultFailure}, nil
	}
	computedClientKey := xorBytes(clientSignature, proof)
	computedStoredKey := n.mech.hashSum(computedClientKey)

	valid := hmac.Equal(computedStoredKey, n.entry.StoredKey) && !n.forcedFailure
	if !valid {
		return Result{Kind: ResultFailure}, nil
	}

	serverSignature := n.mech.hmacSum(n.entry.ServerKey, []byte(authMessage))
	additionalData := []byte("v=" + base64.StdEncoding.EncodeToString(serverSignature))

	return Result{
		Kind:           ResultSuccess,
		JID:            jid.JID{Local: n.authid, Domain: n.domain},
		AdditionalData: additionalData,
	}, nil
}

// verifyChannelBinding checks the c= parameter against the gs2-header (and,
// for -PLUS variants, the TLS channel-binding token) the client committed
// to in its first message.
func (n *Negotiator) verifyChannelBinding(cbindB64 string) bool {
	var expected []byte
	expected = append(expected, []byte(n.gs2Header)...)
	if n.plus {
		expected = append(expected, n.binding...)
	}
	return cbindB64 == base64.StdEncoding.EncodeToString(expected)
}

// checkChannelBindingFlag validates that the client's gs2 cb-flag is
// consistent with whether this negotiator was constructed for a -PLUS
// mechanism.
func (n *Negotiator) checkChannelBindingFlag(gs2Header string) error {
	cbFlag := gs2Header
	if i := strings.IndexByte(cbFlag, ','); i >= 0 {
		cbFlag = cbFlag[:i]
	}
	switch {
	case strings.HasPrefix(cbFlag, "p="):
		if !n.plus || len(n.binding) == 0 {
			return errors.New("credential: channel binding requested but not available")
		}
	case cbFlag == "n" || cbFlag == "y":
		// Client not using channel binding. Accepted here for both plain and
		// -PLUS mechanisms, but a -PLUS negotiator's verifyChannelBinding
		// still expects the binding token in c=, so such an exchange ends
		// in failure at the client-final step.
	default:
		return fmt.Errorf("credential: malformed gs2 channel-binding flag %q", cbFlag)
	}
	return nil
}

// splitGS2Header splits payload into its gs2-header (cb-flag and optional
// authzid, through the second comma) and the remaining
// client-first-message-bare.
func splitGS2Header(payload string) (header, bare string, err error) {
	first := strings.IndexByte(payload, ',')
	if first < 0 {
		return "", "", errors.New("credential: malformed gs2 header")
	}
	rest := payload[first+1:]
	second := strings.IndexByte(rest, ',')
	if second < 0 {
		return "", "", errors.New("credential: malformed gs2 header")
	}
	header = payload[:first+1+second+1]
	bare = rest[second+1:]
	return header, bare, nil
}

// gs2Authzid extracts the "a=" authzid from a gs2-header, if present.
func gs2Authzid(header string) (authzid string, ok bool) {
	parts := strings.SplitN(header, ",", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[1], "a=") {
		return "", false
	}
	return unescapeScram(strings.TrimPrefix(parts[1], "a=")), true
}

// parseScramAttrs splits a comma-separated SCRAM attribute list ("n=foo,r=bar")
// into a map keyed by the single-letter attribute name.
func parseScramAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		if idx := strings.IndexByte(part, '='); idx > 0 {
			attrs[part[:idx]] = part[idx+1:]
		}
	}
	return attrs
}

// unescapeScram reverses the SCRAM "=2C"/"=3D" escaping of "," and "=" in a
// saslname (RFC 5802 §3).
func unescapeScram(s string) string {
	s = strings.ReplaceAll(s, "=2C", ",")
	s = strings.ReplaceAll(s, "=3D", "=")
	return s
}

// newNonce returns a fresh base64-encoded server nonce of at least 16 random
// bytes. Standard base64's alphabet never produces a ',', so the result is
// safe to embed directly in a comma-separated SCRAM attribute list.
func newNonce() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("credential: generating nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
