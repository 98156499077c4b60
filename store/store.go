// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/mdm/confidante/jid"
)

// request is satisfied by every query and command this actor accepts; run
// executes it against backend and reports the result on its own embedded
// reply channel.
type request interface {
	run(ctx context.Context, backend Backend)
}

// Handle is a cheaply copyable reference to a running store actor. The
// zero Handle is not usable; construct one with NewHandle.
type Handle struct {
	queries  chan<- request
	commands chan<- request
}

// NewHandle starts a store actor backed by backend and returns a Handle to
// it. The actor goroutine runs until ctx is done.
func NewHandle(ctx context.Context, backend Backend, log *zap.Logger) Handle {
	queries := make(chan request, 8)
	commands := make(chan request, 8)
	go run(ctx, backend, log, queries, commands)
	return Handle{queries: queries, commands: commands}
}

// run is the actor's loop: queries and commands share no ordering
// guarantee with each other, matching spec.md's two-channel split between
// read and write traffic.
func run(ctx context.Context, backend Backend, log *zap.Logger, queries, commands <-chan request) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-queries:
			q.run(ctx, backend)
		case c := <-commands:
			c.run(ctx, backend)
		}
	}
}

type getStoredPasswordResult struct {
	value string
	err   error
}

type getStoredPasswordReq struct {
	jid   jid.JID
	kind  Kind
	reply chan getStoredPasswordResult
}

func (q getStoredPasswordReq) run(ctx context.Context, backend Backend) {
	value, err := backend.GetStoredPassword(ctx, q.jid, q.kind)
	q.reply <- getStoredPasswordResult{value: value, err: err}
}

// GetStoredPassword looks up the stored-password entry of kind for
// bareJID. It reports ctx.Err() if ctx is done before the actor accepts or
// answers the request.
func (h Handle) GetStoredPassword(ctx context.Context, bareJID jid.JID, kind Kind) (string, error) {
	reply := make(chan getStoredPasswordResult, 1)
	select {
	case h.queries <- getStoredPasswordReq{jid: bareJID, kind: kind, reply: reply}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case res := <-reply:
		return res.value, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// sendCommand delivers req on the commands channel and waits on reply,
// honoring ctx cancellation on both sides of the round trip.
func (h Handle) sendCommand(ctx context.Context, req request, reply <-chan error) error {
	select {
	case h.commands <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type setStoredPasswordReq struct {
	jid   jid.JID
	kind  Kind
	value string
	reply chan error
}

func (c setStoredPasswordReq) run(ctx context.Context, backend Backend) {
	c.reply <- backend.SetStoredPassword(ctx, c.jid, c.kind, c.value)
}

// SetStoredPassword replaces the stored-password entry of kind for
// bareJID.
func (h Handle) SetStoredPassword(ctx context.Context, bareJID jid.JID, kind Kind, value string) error {
	reply := make(chan error, 1)
	return h.sendCommand(ctx, setStoredPasswordReq{jid: bareJID, kind: kind, value: value, reply: reply}, reply)
}

type addUserReq struct {
	jid                            jid.JID
	argon2, scramSha1, scramSha256 string
	reply                          chan error
}

func (c addUserReq) run(ctx context.Context, backend Backend) {
	c.reply <- backend.AddUser(ctx, c.jid, c.argon2, c.scramSha1, c.scramSha256)
}

// AddUser inserts or replaces every stored-password entry for bareJID.
func (h Handle) AddUser(ctx context.Context, bareJID jid.JID, argon2, scramSha1, scramSha256 string) error {
	reply := make(chan error, 1)
	return h.sendCommand(ctx, addUserReq{
		jid: bareJID, argon2: argon2, scramSha1: scramSha1, scramSha256: scramSha256, reply: reply,
	}, reply)
}

type removeUserReq struct {
	jid   jid.JID
	reply chan error
}

func (c removeUserReq) run(ctx context.Context, backend Backend) {
	c.reply <- backend.RemoveUser(ctx, c.jid)
}

// RemoveUser deletes every stored-password entry for bareJID.
func (h Handle) RemoveUser(ctx context.Context, bareJID jid.JID) error {
	reply := make(chan error, 1)
	return h.sendCommand(ctx, removeUserReq{jid: bareJID, reply: reply}, reply)
}
