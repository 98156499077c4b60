// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"sync"

	"github.com/mdm/confidante/jid"
)

type memEntry struct {
	argon2, scramSha1, scramSha256 string
}

func (e memEntry) get(kind Kind) (string, bool) {
	switch kind {
	case Argon2:
		return e.argon2, e.argon2 != ""
	case ScramSha1:
		return e.scramSha1, e.scramSha1 != ""
	case ScramSha256:
		return e.scramSha256, e.scramSha256 != ""
	default:
		return "", false
	}
}

func (e *memEntry) set(kind Kind, value string) {
	switch kind {
	case Argon2:
		e.argon2 = value
	case ScramSha1:
		e.scramSha1 = value
	case ScramSha256:
		e.scramSha256 = value
	}
}

// MemoryBackend is an in-memory Backend, useful for tests and for running
// the engine without a configured database.
type MemoryBackend struct {
	mu    sync.Mutex
	users map[string]memEntry
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{users: make(map[string]memEntry)}
}

func (b *MemoryBackend) AddUser(ctx context.Context, bareJID jid.JID, argon2, scramSha1, scramSha256 string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[bareJID.String()] = memEntry{argon2: argon2, scramSha1: scramSha1, scramSha256: scramSha256}
	return nil
}

func (b *MemoryBackend) RemoveUser(ctx context.Context, bareJID jid.JID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.users, bareJID.String())
	return nil
}

func (b *MemoryBackend) GetStoredPassword(ctx context.Context, bareJID jid.JID, kind Kind) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.users[bareJID.String()]
	if !ok {
		return "", ErrNoSuchUser
	}
	value, ok := entry.get(kind)
	if !ok {
		return "", ErrNoSuchUser
	}
	return value, nil
}

func (b *MemoryBackend) SetStoredPassword(ctx context.Context, bareJID jid.JID, kind Kind, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.users[bareJID.String()]
	if !ok {
		return ErrNoSuchUser
	}
	entry.set(kind, value)
	b.users[bareJID.String()] = entry
	return nil
}
