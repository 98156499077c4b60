// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package sasl

import "github.com/mdm/confidante/credential"

// Mechanisms returns the SASL mechanism names to advertise in
// <stream:features>, in order, given the channel's current secure and
// authenticated state. EXTERNAL and PLAIN are included per the same
// availability rules a real implementation would use, even though resolve
// always rejects them: a client is told the name exists, then finds out at
// auth time that nothing backs it.
func Mechanisms(secure, authenticated bool) []string {
	var names []string
	if secure && authenticated {
		names = append(names, "EXTERNAL")
	}
	if secure {
		names = append(names, "PLAIN")
		names = append(names, "SCRAM-SHA-256-PLUS", "SCRAM-SHA-1-PLUS")
	}
	names = append(names, "SCRAM-SHA-256", "SCRAM-SHA-1")
	return names
}

// resolve maps a SASL mechanism name to the credential.Mechanism and
// channel-binding flag that back it. It reports false for any name this
// engine does not actually negotiate, including EXTERNAL and PLAIN.
func resolve(name string) (mech credential.Mechanism, plus bool, ok bool) {
	switch name {
	case "SCRAM-SHA-1":
		return credential.SHA1, false, true
	case "SCRAM-SHA-1-PLUS":
		return credential.SHA1, true, true
	case "SCRAM-SHA-256":
		return credential.SHA256, false, true
	case "SCRAM-SHA-256-PLUS":
		return credential.SHA256, true, true
	default:
		return credential.Mechanism{}, false, false
	}
}
