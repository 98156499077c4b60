// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package credential

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	"github.com/xdg-go/scram"
	"golang.org/x/crypto/pbkdf2"
)

// Mechanism names the hash function behind one SCRAM variant. It is a value
// type rather than an interface so the negotiator and stored-password codecs
// can pass it around by value; a store keying a lookup on mechanism uses its
// Name field, since a func field keeps Mechanism itself from being a valid
// map key.
type Mechanism struct {
	// Name is the SASL mechanism name this hash corresponds to, e.g.
	// "SCRAM-SHA-1", as it appears in <auth mechanism="..."> and in the
	// stored-password textual format.
	Name string
	New  func() hash.Hash
	Size int
}

// SHA1 and SHA256 are the two SCRAM mechanisms this engine supports; the
// `-PLUS` channel-binding variants reuse these same Mechanism values (PLUS-ness
// is carried separately by the negotiator, not baked into Name, since the
// stored-password format and key derivation are identical either way).
var (
	SHA1   = Mechanism{Name: "SCRAM-SHA-1", New: sha1.New, Size: sha1.Size}
	SHA256 = Mechanism{Name: "SCRAM-SHA-256", New: sha256.New, Size: sha256.Size}
)

// DefaultIterations is the PBKDF2 iteration count used for every newly
// derived entry, and the only iteration count ParseStoredPasswordScram
// accepts.
const DefaultIterations = 4096

// hmacSum returns HMAC-H(key, data) for this mechanism's hash.
func (m Mechanism) hmacSum(key, data []byte) []byte {
	h := hmac.New(m.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// hashSum returns H(data) for this mechanism's hash.
func (m Mechanism) hashSum(data []byte) []byte {
	h := m.New()
	h.Write(data)
	return h.Sum(nil)
}

// DeriveKeys computes the stored key and server key for password under salt
// and iterations, per RFC 5802 §3:
//
//	salted     = PBKDF2-HMAC-H(password, salt, iterations, H_outlen)
//	client_key = HMAC-H(salted, "Client Key")
//	server_key = HMAC-H(salted, "Server Key")
//	stored_key = H(client_key)
//
// The PBKDF2 step is ours; client_key/server_key/stored_key reuse
// xdg-go/scram's HashGeneratorFcn, which implements exactly those three
// derivations for the hash it's given. The plaintext password is never
// retained by the caller past this call; only storedKey and serverKey need
// to be persisted.
func DeriveKeys(m Mechanism, password string, salt []byte, iterations int) (storedKey, serverKey []byte) {
	salted := pbkdf2.Key([]byte(password), salt, iterations, m.Size, m.New)
	hashGen := scram.HashGeneratorFcn(m.New)
	clientKey := hashGen.GetClientKey(salted)
	serverKey = hashGen.GetServerKey(salted)
	storedKey = hashGen.GetStoredKey(clientKey)
	return storedKey, serverKey
}
