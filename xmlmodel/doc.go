// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package xmlmodel is an in-memory tree representation of namespace-qualified
// XML elements, built to round-trip through the streaming parser and writer
// in package stanza without losing namespace fidelity.
package xmlmodel // import "github.com/mdm/confidante/xmlmodel"
