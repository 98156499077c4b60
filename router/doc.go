// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package router is the process-wide stanza router: a single actor
// goroutine owning a JID -> mailbox map, mutated only by its own
// goroutine via Register and Unregister commands, and driving delivery of
// stanzas addressed to those JIDs. Every inbound connection gets a Handle,
// a cheaply copyable reference to the same underlying actor.
package router // import "github.com/mdm/confidante/router"
