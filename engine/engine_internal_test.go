// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"testing"

	"go.uber.org/zap"

	"github.com/mdm/confidante/conn"
	"github.com/mdm/confidante/credential"
	"github.com/mdm/confidante/internal/ns"
	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/router"
	"github.com/mdm/confidante/sasl"
	"github.com/mdm/confidante/xmlmodel"
)

// stubLookup resolves SCRAM entries from an in-memory map, mirroring
// sasl_test's helper of the same name.
type stubLookup map[string]credential.StoredPasswordScram

func (l stubLookup) LookupScram(authid string, mech credential.Mechanism) (credential.StoredPasswordScram, bool) {
	entry, ok := l[authid]
	if !ok || entry.Mechanism.Name != mech.Name {
		return credential.StoredPasswordScram{}, false
	}
	return entry, true
}

func newTestStream(t *testing.T, starttlsAllowed bool, settings Settings) *InboundStream {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	c := conn.New(server, starttlsAllowed)
	routerCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	routerHandle := router.NewHandle(routerCtx, zap.NewNop())
	return New(c, routerHandle, nil, settings, zap.NewNop())
}

func TestNegotiableFeaturesStartTLSFirst(t *testing.T) {
	s := newTestStream(t, true, Settings{ConnectionType: ConnectionTypeClient, TLSRequired: true})
	defer s.conn.Close()

	got := s.negotiableFeatures()
	if len(got) != 1 || got[0] != featureTLS {
		t.Fatalf("negotiableFeatures before any negotiation: got %v, want [featureTLS]", got)
	}
}

func TestNegotiableFeaturesAuthenticationWithoutTLSRequirement(t *testing.T) {
	s := newTestStream(t, false, Settings{ConnectionType: ConnectionTypeClient, TLSRequired: false})
	defer s.conn.Close()

	got := s.negotiableFeatures()
	if len(got) != 1 || got[0] != featureAuthentication {
		t.Fatalf("negotiableFeatures with TLS not required and not allowed: got %v, want [featureAuthentication]", got)
	}
}

func TestNegotiableFeaturesWithholdsAuthenticationWhenTLSRequired(t *testing.T) {
	s := newTestStream(t, false, Settings{ConnectionType: ConnectionTypeClient, TLSRequired: true})
	defer s.conn.Close()

	got := s.negotiableFeatures()
	if len(got) != 0 {
		t.Fatalf("negotiableFeatures with TLS required but unavailable: got %v, want none", got)
	}
}

func TestNegotiableFeaturesResourceBindingAfterAuthentication(t *testing.T) {
	s := newTestStream(t, false, Settings{ConnectionType: ConnectionTypeClient, TLSRequired: false})
	defer s.conn.Close()
	s.info.features[featureAuthentication] = true

	got := s.negotiableFeatures()
	if len(got) != 1 || got[0] != featureResourceBinding {
		t.Fatalf("negotiableFeatures after authentication: got %v, want [featureResourceBinding]", got)
	}
}

func TestNegotiableFeaturesResourceBindingNeverOfferedToServers(t *testing.T) {
	s := newTestStream(t, false, Settings{ConnectionType: ConnectionTypeServer, TLSRequired: false})
	defer s.conn.Close()
	s.info.features[featureAuthentication] = true

	got := s.negotiableFeatures()
	if len(got) != 0 {
		t.Fatalf("negotiableFeatures for a server connection: got %v, want none", got)
	}
}

func TestElementDestinationPrefersToAttribute(t *testing.T) {
	s := newTestStream(t, false, Settings{ConnectionType: ConnectionTypeClient})
	defer s.conn.Close()

	msg := xmlmodel.New("message", ns.Client)
	msg.SetAttribute("to", "", "juliet@example.com/balcony")

	got := s.elementDestination(msg)
	want, _ := jid.Parse("juliet@example.com/balcony")
	if got != want {
		t.Fatalf("elementDestination: got %v, want %v", got, want)
	}
}

func TestElementDestinationFallsBackToPeerJID(t *testing.T) {
	s := newTestStream(t, false, Settings{ConnectionType: ConnectionTypeClient})
	defer s.conn.Close()
	s.info.peerJID, _ = jid.Parse("romeo@example.com/orchard")

	got := s.elementDestination(xmlmodel.New("message", ns.Client))
	if got != s.info.peerJID {
		t.Fatalf("elementDestination without a to attribute: got %v, want %v", got, s.info.peerJID)
	}
}

func TestNegotiateResourceBindingRejectsNonIQ(t *testing.T) {
	s := newTestStream(t, false, Settings{ConnectionType: ConnectionTypeClient})
	defer s.conn.Close()

	_, err := s.negotiateResourceBinding(xmlmodel.New("message", ns.Client))
	if err != errFeatureMismatch {
		t.Fatalf("negotiateResourceBinding on a non-iq element: got err %v, want errFeatureMismatch", err)
	}
}

func TestNegotiateResourceBindingRejectsMissingBindChild(t *testing.T) {
	s := newTestStream(t, false, Settings{ConnectionType: ConnectionTypeClient})
	defer s.conn.Close()

	iq := xmlmodel.New("iq", ns.Client)
	iq.SetAttribute("type", "", "set")
	iq.SetAttribute("id", "", "bind_1")

	_, err := s.negotiateResourceBinding(iq)
	if err != errFeatureMismatch {
		t.Fatalf("negotiateResourceBinding without a bind child: got err %v, want errFeatureMismatch", err)
	}
}

func TestNegotiateStartTLSRejectsWrongElement(t *testing.T) {
	s := newTestStream(t, true, Settings{ConnectionType: ConnectionTypeClient})
	defer s.conn.Close()

	err := s.negotiateStartTLS(nil, xmlmodel.New("auth", ns.SASL))
	if err != errFeatureMismatch {
		t.Fatalf("negotiateStartTLS on a non-starttls element: got err %v, want errFeatureMismatch", err)
	}
}

// TestProcessElementPropagatesSASLAbort drives a real SASL exchange through
// to a client <abort/> and checks that processElement returns sasl.ErrAborted
// rather than swallowing it as a feature mismatch and falling through to
// routing the <auth> element as an ordinary stanza.
func TestProcessElementPropagatesSASLAbort(t *testing.T) {
	entry, err := credential.NewStoredPasswordScram(credential.SHA256, "pencil")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	driver := sasl.NewDriver("localhost", stubLookup{"user": entry})

	client, server := net.Pipe()
	defer client.Close()
	c := conn.New(server, false)
	routerCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	routerHandle := router.NewHandle(routerCtx, zap.NewNop())
	s := New(c, routerHandle, driver, Settings{ConnectionType: ConnectionTypeClient}, zap.NewNop())
	defer s.conn.Close()

	done := make(chan error, 1)
	go func() {
		if _, err := client.Write([]byte(`<stream:stream xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>`)); err != nil {
			done <- err
			return
		}

		const gs2Header = "n,,"
		clientFirstBare := "n=user,r=clientnonce0123456789"
		initial := base64.StdEncoding.EncodeToString([]byte(gs2Header + clientFirstBare))
		auth := fmt.Sprintf(`<auth xmlns='%s' mechanism='SCRAM-SHA-256'>%s</auth>`, ns.SASL, initial)
		if _, err := client.Write([]byte(auth)); err != nil {
			done <- err
			return
		}

		var node struct{ XMLName xml.Name }
		dec := xml.NewDecoder(client)
		if err := dec.Decode(&node); err != nil {
			done <- err
			return
		}
		if node.XMLName.Local != "challenge" {
			done <- fmt.Errorf("got element %q, want challenge", node.XMLName.Local)
			return
		}

		if _, err := client.Write([]byte(fmt.Sprintf(`<abort xmlns='%s'/>`, ns.SASL))); err != nil {
			done <- err
			return
		}
		done <- nil
	}()

	ctx := context.Background()
	if _, err := s.stream.Next(ctx); err != nil {
		t.Fatalf("reading stream header: %v", err)
	}
	frame, err := s.stream.Next(ctx)
	if err != nil {
		t.Fatalf("reading auth element: %v", err)
	}

	err = s.processElement(ctx, frame.Element)
	if !errors.Is(err, sasl.ErrAborted) {
		t.Fatalf("processElement after a sasl abort: got err %v, want sasl.ErrAborted", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("client side: %v", err)
	}
}
