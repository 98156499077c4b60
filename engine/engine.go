// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mdm/confidante/conn"
	"github.com/mdm/confidante/internal/ns"
	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/router"
	"github.com/mdm/confidante/sasl"
	"github.com/mdm/confidante/stanza"
	"github.com/mdm/confidante/stream"
	"github.com/mdm/confidante/xmlmodel"
	"github.com/mdm/confidante/xmppstream"
)

// ConnectionType says whether an inbound connection is a client (subject to
// resource binding) or a server (never bound to a resource).
type ConnectionType int

const (
	ConnectionTypeClient ConnectionType = iota
	ConnectionTypeServer
)

// feature names one of the three negotiable stream features, in the order
// they're always tried.
type feature int

const (
	featureTLS feature = iota
	featureAuthentication
	featureResourceBinding
)

var allFeatures = [...]feature{featureTLS, featureAuthentication, featureResourceBinding}

// Settings configures one InboundStream for the lifetime of its connection.
type Settings struct {
	// ConnectionType is Client or Server, fixed for the life of the stream.
	ConnectionType ConnectionType
	// Domain is this server's virtual host, sent as the outbound stream
	// header's "from". Authentication resolves bare JIDs under the domain
	// the sasl.Driver was constructed with, not this field.
	Domain jid.JID
	// TLSRequired, if true, withholds Authentication from the negotiable
	// feature set until Tls has been negotiated.
	TLSRequired bool
	// TLSConfig drives the STARTTLS handshake. May be nil if STARTTLS is
	// never offered (conn.New's starttlsAllowed flag controls that).
	TLSConfig *tls.Config
}

// streamInfo is the mutable per-stream state accumulated across feature
// negotiations, mirroring the original implementation's StreamInfo.
type streamInfo struct {
	streamID     stream.ID
	peerJID      jid.JID
	peerLanguage string
	features     map[feature]bool
}

// InboundStream drives one accepted connection from header exchange through
// teardown. Construct one per connection with New and call Handle once.
type InboundStream struct {
	conn   *conn.Conn
	stream *xmppstream.Stream
	info   streamInfo

	router router.Handle
	sasl   *sasl.Driver

	stanzaTx chan<- *xmlmodel.Element
	stanzaRx <-chan *xmlmodel.Element

	settings Settings
	log      *zap.Logger
}

// New constructs an InboundStream around an already-accepted connection.
func New(c *conn.Conn, routerHandle router.Handle, saslDriver *sasl.Driver, settings Settings, log *zap.Logger) *InboundStream {
	mailbox := make(chan *xmlmodel.Element, 8)
	return &InboundStream{
		conn:   c,
		stream: xmppstream.New(c),
		info: streamInfo{
			streamID: stream.NewID(),
			features: make(map[feature]bool, len(allFeatures)),
		},
		router:   routerHandle,
		sasl:     saslDriver,
		stanzaTx: mailbox,
		stanzaRx: mailbox,
		settings: settings,
		log:      log,
	}
}

// Handle runs the connection's entire lifecycle, returning only once the
// stream is closed (peer closure, fatal protocol error, or ctx cancellation).
// It never returns an error: fatal conditions are reported to the peer as a
// stream-level error (when possible) and then the socket is closed.
func (s *InboundStream) Handle(ctx context.Context) {
	defer s.conn.Close()

	if err := s.innerHandle(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if errors.Is(err, sasl.ErrAborted) || errors.Is(err, sasl.ErrTooManyFailures) {
			s.log.Debug("closing stream after sasl failure", zap.Error(err))
			_ = s.stream.WriteStreamClose()
			return
		}
		s.handleUnrecoverableError(err)
	}
}

type frameResult struct {
	frame stanza.Frame
	err   error
}

func (s *InboundStream) innerHandle(ctx context.Context) error {
	if err := s.exchangeStreamHeaders(ctx); err != nil {
		return err
	}
	if err := s.advertiseFeatures(); err != nil {
		return err
	}

	frames := make(chan frameResult, 1)
	requestNext := make(chan struct{}, 1)
	go s.readLoop(ctx, frames, requestNext)
	requestNext <- struct{}{}

	defer func() {
		if !s.info.peerJID.IsZero() {
			_ = s.router.Unregister(context.Background(), s.info.peerJID)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-frames:
			if res.err != nil {
				var syntaxErr *xml.SyntaxError
				if errors.Is(res.err, io.EOF) || (errors.As(res.err, &syntaxErr) && syntaxErr.Msg == "unexpected EOF") {
					return s.handlePeerClosure(res.err)
				}
				return fmt.Errorf("engine: reading frame: %w", res.err)
			}
			if res.frame.Kind != stanza.XMLFragment || res.frame.Element == nil {
				return errors.New("engine: expected an xml fragment")
			}
			if err := s.processElement(ctx, res.frame.Element); err != nil {
				return err
			}
			select {
			case requestNext <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case el := <-s.stanzaRx:
			if err := s.stream.WriteElement(el); err != nil {
				return fmt.Errorf("engine: writing outbound stanza: %w", err)
			}
		}
	}
}

// readLoop feeds frames into frames one at a time, only calling Next again
// once requestNext fires. This keeps exactly one goroutine reading at any
// moment: while the main loop is deep inside a feature negotiation that
// reads further frames directly off s.stream (SASL's challenge/response
// loop), this goroutine is parked waiting on requestNext, not racing it.
func (s *InboundStream) readLoop(ctx context.Context, frames chan<- frameResult, requestNext <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-requestNext:
		}

		frame, err := s.stream.Next(ctx)
		select {
		case frames <- frameResult{frame: frame, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// handlePeerClosure treats the end of the peer's input (a peer-sent
// </stream:stream>, which the parser surfaces as io.EOF, or the connection
// closing mid-stream, which encoding/xml reports as an "unexpected EOF"
// syntax error) as a normal, non-fatal end of the stream. innerHandle sends
// every other read error down the fatal path instead.
func (s *InboundStream) handlePeerClosure(err error) error {
	s.log.Debug("stream ended by peer", zap.Error(err))
	_ = s.stream.WriteStreamClose()
	return nil
}

// processElement tries to match element against each currently negotiable
// feature, in order; the first one whose negotiation succeeds has already
// fully handled element. Only errFeatureMismatch ("this isn't the element I
// expected") is swallowed so the next feature is tried; any other error is
// fatal and propagates immediately, since it means the matching feature
// recognized element but failed partway through negotiating it (a SASL
// abort, too many consecutive failures, or an I/O error) rather than element
// simply belonging to a different feature. Only once every negotiable
// feature has been tried and mismatched is element assumed to be an
// application stanza and forwarded to the router.
func (s *InboundStream) processElement(ctx context.Context, element *xmlmodel.Element) error {
	for _, f := range s.negotiableFeatures() {
		err := s.negotiateFeature(ctx, f, element)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errFeatureMismatch) {
			return err
		}
	}

	to := s.elementDestination(element)
	if err := s.router.SendStanza(ctx, to, element); err != nil {
		return fmt.Errorf("engine: routing stanza: %w", err)
	}
	return nil
}

// elementDestination resolves the JID a stanza should be routed to: its own
// "to" attribute if present and parseable, otherwise this stream's bound
// peer JID (so stanzas addressed to "self" by omission still land somewhere).
func (s *InboundStream) elementDestination(element *xmlmodel.Element) jid.JID {
	if to, ok := element.Attribute("to", ""); ok && to != "" {
		if parsed, err := jid.Parse(to); err == nil {
			return parsed
		}
	}
	return s.info.peerJID
}

func (s *InboundStream) negotiableFeatures() []feature {
	var out []feature
	if s.stream.IsStartTLSAllowed() && !s.info.features[featureTLS] {
		out = append(out, featureTLS)
	}
	if (!s.settings.TLSRequired || s.info.features[featureTLS]) && !s.info.features[featureAuthentication] {
		out = append(out, featureAuthentication)
	}
	if s.settings.ConnectionType == ConnectionTypeClient &&
		s.info.features[featureAuthentication] &&
		!s.info.features[featureResourceBinding] {
		out = append(out, featureResourceBinding)
	}
	return out
}

func (s *InboundStream) negotiateFeature(ctx context.Context, f feature, element *xmlmodel.Element) error {
	switch f {
	case featureTLS:
		if err := s.negotiateStartTLS(ctx, element); err != nil {
			return err
		}
		s.info.features[featureTLS] = true
		if err := s.exchangeStreamHeaders(ctx); err != nil {
			return err
		}
		return s.advertiseFeatures()

	case featureAuthentication:
		peerJID, err := s.sasl.Negotiate(ctx, s.stream, element)
		if err != nil {
			if errors.Is(err, sasl.ErrNotApplicable) {
				return errFeatureMismatch
			}
			return err
		}
		s.log.Info("peer authenticated", zap.String("jid", peerJID.String()))
		if err := s.registerPeerJID(ctx, peerJID); err != nil {
			return err
		}
		s.info.features[featureAuthentication] = true
		s.stream.Reset()
		if err := s.exchangeStreamHeaders(ctx); err != nil {
			return err
		}
		return s.advertiseFeatures()

	case featureResourceBinding:
		bound, err := s.negotiateResourceBinding(element)
		if err != nil {
			return err
		}
		if err := s.registerPeerJID(ctx, bound); err != nil {
			return err
		}
		s.info.features[featureResourceBinding] = true
		return nil

	default:
		return fmt.Errorf("engine: unknown feature %d", f)
	}
}

var errFeatureMismatch = errors.New("engine: element does not match this feature")

func (s *InboundStream) negotiateStartTLS(ctx context.Context, element *xmlmodel.Element) error {
	if !element.Is("starttls", ns.StartTLS) {
		return errFeatureMismatch
	}

	proceed := xmlmodel.New("proceed", ns.StartTLS)
	proceed.SetAttribute("xmlns", "", ns.StartTLS)
	if err := s.stream.WriteElement(proceed); err != nil {
		return fmt.Errorf("engine: writing starttls proceed: %w", err)
	}

	return s.stream.UpgradeTLS(ctx, s.settings.TLSConfig)
}

func (s *InboundStream) negotiateResourceBinding(element *xmlmodel.Element) (jid.JID, error) {
	if !element.Is("iq", ns.Client) {
		return jid.JID{}, errFeatureMismatch
	}
	if typ, ok := element.Attribute("type", ""); !ok || typ != "set" {
		return jid.JID{}, errFeatureMismatch
	}
	requestID, ok := element.Attribute("id", "")
	if !ok {
		return jid.JID{}, errors.New("engine: bind iq has no id")
	}
	bindRequest := element.FindChild("bind", ns.Bind)
	if bindRequest == nil {
		return jid.JID{}, errFeatureMismatch
	}

	resource := uuid.New().String()
	if requested := bindRequest.FindChild("resource", ns.Bind); requested != nil {
		if text := requested.Text(); text != "" {
			resource = text
		}
	}

	if s.info.peerJID.IsZero() {
		return jid.JID{}, errors.New("engine: no authenticated entity to bind a resource to")
	}
	bound := s.info.peerJID.Bind(resource)

	response := xmlmodel.New("iq", ns.Client)
	response.SetAttribute("id", "", requestID)
	response.SetAttribute("type", "", "result")
	response.WithChild("bind", ns.Bind, func(bind *xmlmodel.Element) {
		bind.SetAttribute("xmlns", "", ns.Bind)
		bind.WithChild("jid", "", func(jidEl *xmlmodel.Element) {
			jidEl.AddText(bound.String())
		})
	})

	if err := s.stream.WriteElement(response); err != nil {
		return jid.JID{}, fmt.Errorf("engine: writing bind result: %w", err)
	}
	return bound, nil
}

// registerPeerJID replaces the stream's current registration with the
// router: unregistering the old JID (if any) before registering the new
// one (if any), so the router never holds two live mailboxes for the same
// physical connection.
func (s *InboundStream) registerPeerJID(ctx context.Context, newJID jid.JID) error {
	if !s.info.peerJID.IsZero() {
		if err := s.router.Unregister(ctx, s.info.peerJID); err != nil {
			return fmt.Errorf("engine: unregistering previous jid: %w", err)
		}
	}

	s.info.peerJID = newJID

	if !newJID.IsZero() {
		mailbox := router.Mailbox{Stanzas: s.stanzaTx, Done: ctx.Done()}
		if err := s.router.Register(ctx, newJID, mailbox); err != nil {
			return fmt.Errorf("engine: registering jid: %w", err)
		}
	}
	return nil
}

func (s *InboundStream) advertiseFeatures() error {
	features := xmlmodel.New("features", ns.Stream)
	for _, f := range s.negotiableFeatures() {
		switch f {
		case featureTLS:
			el := xmlmodel.New("starttls", ns.StartTLS)
			el.SetAttribute("xmlns", "", ns.StartTLS)
			features.AddChild(el)
		case featureAuthentication:
			features.AddChild(s.sasl.AdvertiseFeature(s.stream.IsSecure(), s.stream.IsAuthenticated()))
		case featureResourceBinding:
			el := xmlmodel.New("bind", ns.Bind)
			el.SetAttribute("xmlns", "", ns.Bind)
			features.AddChild(el)
		}
	}
	return s.stream.WriteElement(features)
}

func (s *InboundStream) exchangeStreamHeaders(ctx context.Context) error {
	frame, err := s.stream.Next(ctx)
	if err != nil {
		return fmt.Errorf("engine: reading stream header: %w", err)
	}
	if frame.Kind != stanza.StreamStart {
		return errors.New("engine: expected a stream header")
	}
	s.info.peerLanguage = frame.Header.Lang
	return s.sendStreamHeader()
}

func (s *InboundStream) sendStreamHeader() error {
	hdr := stanza.StreamHeader{
		From:    s.settings.Domain,
		To:      s.info.peerJID,
		ID:      s.info.streamID,
		Version: stream.DefaultVersion,
	}
	return s.stream.WriteStreamHeader(hdr, true)
}

// handleUnrecoverableError reports err to the peer as a stream-level error,
// best-effort, then closes the stream. It never returns an error of its
// own: by the time it's called the connection is being torn down regardless
// of whether the final courtesy write succeeds.
func (s *InboundStream) handleUnrecoverableError(err error) {
	s.log.Warn("tearing down stream after unrecoverable error", zap.Error(err))

	streamError := xmlmodel.New("error", ns.Stream)
	streamError.WithChild("internal-server-error", ns.StreamError, func(cond *xmlmodel.Element) {
		cond.SetAttribute("xmlns", "", ns.StreamError)
	})

	if writeErr := s.stream.WriteElement(streamError); writeErr != nil {
		s.log.Warn("failed to write stream-level error to peer", zap.Error(writeErr))
	}
	if writeErr := s.stream.WriteStreamClose(); writeErr != nil {
		s.log.Warn("failed to write stream close to peer", zap.Error(writeErr))
	}
}
