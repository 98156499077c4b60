// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package main

import "testing"

func TestRootCmdHasExpectedSubcommands(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"add-user", "remove-user"} {
		if !names[want] {
			t.Errorf("root command is missing the %q subcommand", want)
		}
	}
}

func TestAddUserRequiresTwoArgs(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"add-user", "juliet@example.com"})
	if err := root.Execute(); err == nil {
		t.Fatal("add-user with one argument: got nil error, want an argument-count error")
	}
}

func TestRemoveUserRequiresOneArg(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"remove-user"})
	if err := root.Execute(); err == nil {
		t.Fatal("remove-user with no arguments: got nil error, want an argument-count error")
	}
}
