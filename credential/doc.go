// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package credential implements the SCRAM-SHA-1/SCRAM-SHA-256 key derivation
// shared by registration and authentication, the server-side SCRAM
// negotiator state machine, and the textual stored-password codecs (Argon2
// for registration, SCRAM for login) that a credential store persists.
package credential // import "github.com/mdm/confidante/credential"
