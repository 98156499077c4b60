// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package engine drives one inbound connection from the first byte to
// stream teardown: header exchange, feature advertisement, best-effort
// feature negotiation (STARTTLS, SASL, resource binding), and steady-state
// relay of stanzas between the peer and the process-wide router.
package engine // import "github.com/mdm/confidante/engine"
