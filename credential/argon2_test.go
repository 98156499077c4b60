// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package credential_test

import (
	"testing"

	"github.com/mdm/confidante/credential"
)

func TestStoredPasswordArgon2VerifyRoundTrip(t *testing.T) {
	entry, err := credential.NewStoredPasswordArgon2("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !entry.Verify("hunter2") {
		t.Error("expected the original password to verify")
	}
	if entry.Verify("wrong") {
		t.Error("expected a different password to fail verification")
	}
}

func TestStoredPasswordArgon2StringParseRoundTrip(t *testing.T) {
	entry, err := credential.NewStoredPasswordArgon2("hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := entry.String()

	parsed, err := credential.ParseStoredPasswordArgon2(s)
	if err != nil {
		t.Fatalf("unexpected error parsing %q: %v", s, err)
	}
	if !parsed.Verify("hunter2") {
		t.Error("expected the parsed entry to verify the original password")
	}
	if parsed.String() != s {
		t.Errorf("String() after round-trip = %q, want %q", parsed.String(), s)
	}
}

func TestParseStoredPasswordArgon2RejectsMalformed(t *testing.T) {
	if _, err := credential.ParseStoredPasswordArgon2("not-a-phc-string"); err == nil {
		t.Fatal("expected an error for a non-PHC string")
	}
}
