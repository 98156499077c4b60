// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"errors"

	"github.com/mdm/confidante/jid"
)

// Kind discriminates which of a user's three stored-password entries an
// operation addresses.
type Kind int

const (
	Argon2 Kind = iota
	ScramSha1
	ScramSha256
)

// String returns the column/field name conventionally associated with k.
func (k Kind) String() string {
	switch k {
	case Argon2:
		return "argon2"
	case ScramSha1:
		return "scram_sha1"
	case ScramSha256:
		return "scram_sha256"
	default:
		return "unknown"
	}
}

// ErrNoSuchUser is returned by GetStoredPassword when bareJID has no entry
// for the requested Kind, whether because the user doesn't exist or
// because that particular credential kind was never set for them. The
// negotiator is expected to treat this identically to a wrong-proof
// failure so the two aren't distinguishable from the outside.
var ErrNoSuchUser = errors.New("store: no stored password for that user and kind")

// Backend is the persistence layer a Handle drives from its own
// goroutine. bareJID is always a resourceless JID (j.Bare()); callers are
// responsible for stripping the resource before calling in.
type Backend interface {
	// AddUser inserts or replaces all three stored-password entries for
	// bareJID in one operation. An empty string for any of argon2,
	// scramSha1, or scramSha256 leaves that entry unset.
	AddUser(ctx context.Context, bareJID jid.JID, argon2, scramSha1, scramSha256 string) error
	// RemoveUser deletes every stored-password entry for bareJID.
	RemoveUser(ctx context.Context, bareJID jid.JID) error
	// GetStoredPassword returns the textual stored-password entry of the
	// given Kind for bareJID, or ErrNoSuchUser if none is set.
	GetStoredPassword(ctx context.Context, bareJID jid.JID, kind Kind) (string, error)
	// SetStoredPassword replaces the stored-password entry of the given
	// Kind for bareJID, which must already exist.
	SetStoredPassword(ctx context.Context, bareJID jid.JID, kind Kind, value string) error
}
