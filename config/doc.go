// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package config loads settings from config/defaults.yaml, an optional
// config/overrides.yaml, and CONFIDANTE_-prefixed environment variables, in
// that order of increasing precedence.
package config // import "github.com/mdm/confidante/config"
