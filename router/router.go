// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/xmlmodel"
)

// Mailbox is what a connection registers with the router: the channel its
// stanza-delivery loop reads from, and a signal the router can watch to
// notice that loop is gone. Done is normally the connection's own ctx.Done().
type Mailbox struct {
	Stanzas chan<- *xmlmodel.Element
	Done    <-chan struct{}
}

// managementRequest is satisfied by Register and Unregister commands; apply
// runs only on the router's own goroutine, so entities never needs its own
// lock.
type managementRequest interface {
	apply(entities map[jid.JID]Mailbox)
}

type registerReq struct {
	jid     jid.JID
	mailbox Mailbox
}

func (r registerReq) apply(entities map[jid.JID]Mailbox) {
	entities[r.jid] = r.mailbox
}

type unregisterReq struct {
	jid jid.JID
}

func (r unregisterReq) apply(entities map[jid.JID]Mailbox) {
	delete(entities, r.jid)
}

type stanzaEnvelope struct {
	to      jid.JID
	element *xmlmodel.Element
}

// Handle is a cheaply copyable reference to a running router actor. The
// zero Handle is not usable; construct one with NewHandle.
type Handle struct {
	stanzas    chan<- stanzaEnvelope
	management chan<- managementRequest
}

// NewHandle starts a router actor and returns a Handle to it. The actor
// goroutine runs until ctx is done.
func NewHandle(ctx context.Context, log *zap.Logger) Handle {
	stanzas := make(chan stanzaEnvelope, 8)
	management := make(chan managementRequest, 8)
	go run(ctx, log, stanzas, management)
	return Handle{stanzas: stanzas, management: management}
}

// run is the actor's loop. Stanza delivery and management commands share no
// ordering guarantee with each other; entities is private to this
// goroutine.
func run(ctx context.Context, log *zap.Logger, stanzas <-chan stanzaEnvelope, management <-chan managementRequest) {
	entities := make(map[jid.JID]Mailbox)
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-stanzas:
			routeStanza(ctx, log, entities, env)
		case req := <-management:
			req.apply(entities)
		}
	}
}

// routeStanza looks up env.to, falling back to its bare form for stanzas
// addressed without (or to an unregistered) resource, and forwards the
// element to that entry's mailbox. A mailbox whose Done has fired is
// pruned here rather than eagerly, since the router has no way to learn
// about a dead entry except by trying to use it.
func routeStanza(ctx context.Context, log *zap.Logger, entities map[jid.JID]Mailbox, env stanzaEnvelope) {
	mailbox, ok := entities[env.to]
	key := env.to
	if !ok {
		bare := env.to.Bare()
		mailbox, ok = entities[bare]
		key = bare
	}
	if !ok {
		log.Debug("no registered entity for stanza destination", zap.String("to", env.to.String()))
		return
	}

	select {
	case mailbox.Stanzas <- env.element:
	case <-mailbox.Done:
		delete(entities, key)
		log.Debug("pruned stale router entry", zap.String("jid", key.String()))
	case <-ctx.Done():
	}
}

// Register associates j with mailbox, replacing any existing registration
// for j. A second Register for an already-registered JID silently displaces
// the prior mailbox; no error is reported to the displaced session, since
// the router has no channel back to it.
func (h Handle) Register(ctx context.Context, j jid.JID, mailbox Mailbox) error {
	select {
	case h.management <- registerReq{jid: j, mailbox: mailbox}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes j's registration, if any.
func (h Handle) Unregister(ctx context.Context, j jid.JID) error {
	select {
	case h.management <- unregisterReq{jid: j}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendStanza enqueues element for delivery to the entity registered at to.
// If nothing is registered at to (or its bare form), the stanza is dropped
// and logged; the router has no bounce/error-stanza path of its own.
func (h Handle) SendStanza(ctx context.Context, to jid.JID, element *xmlmodel.Element) error {
	select {
	case h.stanzas <- stanzaEnvelope{to: to, element: element}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
