// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2 registration parameters. These are fixed constants rather than
// configuration: changing the cost factor for new registrations doesn't
// require changing how existing PHC strings are verified, since every
// parameter is encoded in the string itself.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// StoredPasswordArgon2 is the registration-only credential: a standard PHC
// string for Argon2id. Unlike StoredPasswordScram, nothing in the inbound
// stream engine authenticates against this directly (PLAIN is recognized but
// not implemented); it exists so a CLI-driven registration path has
// something to hash the operator-supplied plaintext password into before
// the SCRAM entries are derived from it.
type StoredPasswordArgon2 struct {
	time, memory uint32
	threads      uint8
	salt, hash   []byte
}

// NewStoredPasswordArgon2 hashes password with a fresh random salt under the
// package's fixed Argon2id parameters.
func NewStoredPasswordArgon2(password string) (StoredPasswordArgon2, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return StoredPasswordArgon2{}, fmt.Errorf("credential: generating argon2 salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return StoredPasswordArgon2{
		time:    argon2Time,
		memory:  argon2Memory,
		threads: argon2Threads,
		salt:    salt,
		hash:    hash,
	}, nil
}

// String returns the canonical Argon2id PHC string, e.g.
// "$argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>".
func (p StoredPasswordArgon2) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(p.salt),
		base64.RawStdEncoding.EncodeToString(p.hash),
	)
}

// ParseStoredPasswordArgon2 parses a PHC string produced by String.
func ParseStoredPasswordArgon2(s string) (StoredPasswordArgon2, error) {
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return StoredPasswordArgon2{}, fmt.Errorf("credential: malformed argon2 PHC string %q", s)
	}
	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return StoredPasswordArgon2{}, fmt.Errorf("credential: malformed argon2 version field: %w", err)
	}
	var p StoredPasswordArgon2
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return StoredPasswordArgon2{}, fmt.Errorf("credential: malformed argon2 parameter field: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return StoredPasswordArgon2{}, fmt.Errorf("credential: malformed argon2 salt: %w", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return StoredPasswordArgon2{}, fmt.Errorf("credential: malformed argon2 hash: %w", err)
	}
	p.salt, p.hash = salt, hash
	return p, nil
}

// Verify reports whether password hashes to the same digest recorded in p,
// using p's own recorded parameters and salt.
func (p StoredPasswordArgon2) Verify(password string) bool {
	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(computed, p.hash) == 1
}
