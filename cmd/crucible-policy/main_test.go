// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/crucible-foundation/crucible/lib/protecc"
)

func TestParsePermList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    protecc.Permission
		wantErr bool
	}{
		{"read", protecc.PermRead, false},
		{"read,write", protecc.PermRead | protecc.PermWrite, false},
		{" read , exec ", protecc.PermRead | protecc.PermExec, false},
		{"read,,write", protecc.PermRead | protecc.PermWrite, false},
		{"", 0, false},
		{"fly", 0, true},
	}
	for _, test := range tests {
		got, err := parsePermList(test.input)
		if test.wantErr {
			if err == nil {
				t.Errorf("parsePermList(%q): expected error", test.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parsePermList(%q): %v", test.input, err)
			continue
		}
		if got != test.want {
			t.Errorf("parsePermList(%q) = %v, want %v", test.input, got, test.want)
		}
	}
}
