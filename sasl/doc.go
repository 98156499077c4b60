// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package sasl implements the RFC 6120 §6 SASL feature: mechanism
// advertisement and the auth/challenge/response/success/failure exchange
// that drives one of the credential package's SCRAM negotiators to
// completion. EXTERNAL and PLAIN are recognized as mechanism names (so a
// client that requests them gets a proper invalid-mechanism failure rather
// than a stream-level protocol error) but are never actually negotiated;
// only the two SCRAM families, with and without channel binding, do real
// work here.
package sasl // import "github.com/mdm/confidante/sasl"
