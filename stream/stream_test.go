// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package stream_test

import (
	"testing"

	"github.com/mdm/confidante/stream"
)

var versionTests = [...]struct {
	in  string
	out stream.Version
	err bool
}{
	0: {in: "1.0", out: stream.Version{Major: 1, Minor: 0}},
	1: {in: "1", err: true},
	2: {in: "1.0.0", err: true},
	3: {in: "a.b", err: true},
}

func TestParseVersion(t *testing.T) {
	for i, tc := range versionTests {
		v, err := stream.ParseVersion(tc.in)
		if tc.err {
			if err == nil {
				t.Errorf("%d: expected error parsing %q", i, tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%d: unexpected error: %v", i, err)
		}
		if v != tc.out {
			t.Errorf("%d: got %v, want %v", i, v, tc.out)
		}
	}
}

func TestVersionRoundTrip(t *testing.T) {
	v := stream.DefaultVersion
	got, err := stream.ParseVersion(v.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != v {
		t.Errorf("got %v, want %v", got, v)
	}
}

func TestNewIDUnique(t *testing.T) {
	a := stream.NewID()
	b := stream.NewID()
	if a == b {
		t.Errorf("two consecutive stream IDs were equal: %v", a)
	}
	if len(a.String()) == 0 {
		t.Errorf("expected a non-empty stream ID")
	}
}

func TestErrorMessage(t *testing.T) {
	if stream.RestrictedXML.Error() != "restricted-xml" {
		t.Errorf("got %q, want restricted-xml", stream.RestrictedXML.Error())
	}
}
