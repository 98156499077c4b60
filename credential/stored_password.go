// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package credential

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// saltLen is the size, in bytes, of a freshly generated SCRAM salt.
const saltLen = 16

// StoredPasswordScram is what a credential store persists for one
// (bareJID, Mechanism) pair: everything SCRAM verification needs and nothing
// that lets the plaintext password be recovered.
type StoredPasswordScram struct {
	Mechanism  Mechanism
	Iterations int
	Salt       []byte
	StoredKey  []byte
	ServerKey  []byte
}

// NewStoredPasswordScram derives a fresh entry for password under mechanism
// m, using a random salt and DefaultIterations. Called at registration time;
// the PBKDF2 derivation it performs is CPU-bound and should be scheduled on
// a worker pool rather than the connection's own goroutine.
func NewStoredPasswordScram(m Mechanism, password string) (StoredPasswordScram, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return StoredPasswordScram{}, fmt.Errorf("credential: generating salt: %w", err)
	}
	storedKey, serverKey := DeriveKeys(m, password, salt, DefaultIterations)
	return StoredPasswordScram{
		Mechanism:  m,
		Iterations: DefaultIterations,
		Salt:       salt,
		StoredKey:  storedKey,
		ServerKey:  serverKey,
	}, nil
}

// String returns the textual form persisted by the store:
//
//	$<mech-name>$<iter>$<salt-b64>$<stored-key-b64>$<server-key-b64>
func (p StoredPasswordScram) String() string {
	return fmt.Sprintf("$%s$%d$%s$%s$%s",
		p.Mechanism.Name,
		p.Iterations,
		base64.StdEncoding.EncodeToString(p.Salt),
		base64.StdEncoding.EncodeToString(p.StoredKey),
		base64.StdEncoding.EncodeToString(p.ServerKey),
	)
}

// ParseStoredPasswordScram parses s, which must have been produced by
// String for mechanism m. It rejects a field count other than five, a
// mechanism name that doesn't match m, and an iteration count other than
// DefaultIterations (the caller must re-register the user in that case,
// since the stored keys were derived under a different cost factor).
func ParseStoredPasswordScram(m Mechanism, s string) (StoredPasswordScram, error) {
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return StoredPasswordScram{}, fmt.Errorf("credential: malformed stored password: want 5 $-separated fields, got %d", len(fields)-1)
	}
	if fields[1] != m.Name {
		return StoredPasswordScram{}, fmt.Errorf("credential: stored password mechanism %q does not match requested %q", fields[1], m.Name)
	}
	iterations, err := strconv.Atoi(fields[2])
	if err != nil {
		return StoredPasswordScram{}, fmt.Errorf("credential: malformed iteration count %q: %w", fields[2], err)
	}
	if iterations != DefaultIterations {
		return StoredPasswordScram{}, fmt.Errorf("credential: stored password iteration count %d does not match configured %d; caller must re-register", iterations, DefaultIterations)
	}
	salt, err := base64.StdEncoding.DecodeString(fields[3])
	if err != nil {
		return StoredPasswordScram{}, fmt.Errorf("credential: malformed salt: %w", err)
	}
	storedKey, err := base64.StdEncoding.DecodeString(fields[4])
	if err != nil {
		return StoredPasswordScram{}, fmt.Errorf("credential: malformed stored key: %w", err)
	}
	serverKey, err := base64.StdEncoding.DecodeString(fields[5])
	if err != nil {
		return StoredPasswordScram{}, fmt.Errorf("credential: malformed server key: %w", err)
	}
	return StoredPasswordScram{
		Mechanism:  m,
		Iterations: iterations,
		Salt:       salt,
		StoredKey:  storedKey,
		ServerKey:  serverKey,
	}, nil
}

// dummyEntry derives a stored-password entry for an authid that the store
// has no record of. It is never the entry an attacker could match (there is
// no corresponding password). Like a real lookup, which only reads and
// decodes already-derived keys, it runs no PBKDF2 derivation, so the
// negotiator's end-to-end timing does not betray whether authid exists.
func dummyEntry(m Mechanism, authid string) StoredPasswordScram {
	salt := m.hashSum([]byte("credential: dummy salt: " + authid))[:saltLen]
	return StoredPasswordScram{
		Mechanism:  m,
		Iterations: DefaultIterations,
		Salt:       salt,
		StoredKey:  m.hashSum([]byte("credential: dummy stored key: " + authid)),
		ServerKey:  m.hashSum([]byte("credential: dummy server key: " + authid)),
	}
}
