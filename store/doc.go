// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package store is the credential store actor: a goroutine owning a
// Backend (a connection pool or an in-memory map) and a pair of channels
// callers send requests on instead of touching the backend directly. This
// isolates blocking database calls in the actor's own goroutine and makes
// a caller's cancellation cheap — give up on the reply, and the actor's
// send into the (buffered) reply channel never blocks.
package store // import "github.com/mdm/confidante/store"
