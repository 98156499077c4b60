// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package credential_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/mdm/confidante/credential"
	"github.com/mdm/confidante/jid"
	"github.com/mdm/confidante/store"
)

func mustParseJID(t *testing.T, s string) jid.JID {
	t.Helper()
	j, err := jid.Parse(s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return j
}

func TestStoreLookupRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	handle := store.NewHandle(ctx, backend, zap.NewNop())

	entry, err := credential.NewStoredPasswordScram(credential.SHA256, "r0m30myJuliet")
	if err != nil {
		t.Fatalf("NewStoredPasswordScram: %v", err)
	}

	if err := handle.AddUser(ctx, mustParseJID(t, "juliet@example.com"), "", "", entry.String()); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	lookup := credential.NewStoreLookup(ctx, "example.com", handle)
	got, ok := lookup.LookupScram("juliet", credential.SHA256)
	if !ok {
		t.Fatal("LookupScram: got ok=false, want true")
	}
	if got.String() != entry.String() {
		t.Fatalf("LookupScram: got %q, want %q", got.String(), entry.String())
	}
}

func TestStoreLookupUnknownUser(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	handle := store.NewHandle(ctx, backend, zap.NewNop())

	lookup := credential.NewStoreLookup(ctx, "example.com", handle)
	if _, ok := lookup.LookupScram("nobody", credential.SHA256); ok {
		t.Fatal("LookupScram on unknown user: got ok=true, want false")
	}
}

func TestStoreLookupUnsupportedMechanism(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	handle := store.NewHandle(ctx, backend, zap.NewNop())

	lookup := credential.NewStoreLookup(ctx, "example.com", handle)
	if _, ok := lookup.LookupScram("juliet", credential.Mechanism{Name: "PLAIN"}); ok {
		t.Fatal("LookupScram with an unsupported mechanism: got ok=true, want false")
	}
}
