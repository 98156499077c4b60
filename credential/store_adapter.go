// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package credential

import (
	"context"
	"fmt"

	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/store"
)

// StoreLookup adapts a store.Handle into a Lookup, resolving an
// authentication identity against domain to build the bare JID the store
// is keyed on, and parsing the stored text back into a StoredPasswordScram
// for the requested mechanism.
type StoreLookup struct {
	ctx    context.Context
	domain string
	handle store.Handle
}

// NewStoreLookup returns a Lookup that resolves authentication identities
// against handle, scoped to domain and ctx. ctx should be long-lived (the
// lifetime of the inbound connection or longer), since LookupScram has no
// other way to plumb cancellation through the Lookup interface.
func NewStoreLookup(ctx context.Context, domain string, handle store.Handle) StoreLookup {
	return StoreLookup{ctx: ctx, domain: domain, handle: handle}
}

func storeKindFor(mech Mechanism) (store.Kind, error) {
	switch mech.Name {
	case "SCRAM-SHA-1":
		return store.ScramSha1, nil
	case "SCRAM-SHA-256":
		return store.ScramSha256, nil
	default:
		return 0, fmt.Errorf("credential: no store kind for mechanism %q", mech.Name)
	}
}

// LookupScram implements Lookup. Any failure, including store.ErrNoSuchUser
// or a malformed stored entry, is reported as a plain "not found" so the
// negotiator falls back to its timing-safe dummy entry rather than
// distinguishing the reasons for the caller.
func (l StoreLookup) LookupScram(authid string, mech Mechanism) (StoredPasswordScram, bool) {
	kind, err := storeKindFor(mech)
	if err != nil {
		return StoredPasswordScram{}, false
	}
	bareJID := jid.JID{Local: authid, Domain: l.domain}
	text, err := l.handle.GetStoredPassword(l.ctx, bareJID, kind)
	if err != nil {
		return StoredPasswordScram{}, false
	}
	entry, err := ParseStoredPasswordScram(mech, text)
	if err != nil {
		return StoredPasswordScram{}, false
	}
	return entry, true
}
