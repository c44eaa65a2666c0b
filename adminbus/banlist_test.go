// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package adminbus

import (
	"os"
	"path/filepath"
	"testing"
)

func writeBanFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "banned_rooms.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write ban file: %v", err)
	}
	return path
}

func TestBanListMatch(t *testing.T) {
	path := writeBanFile(t, "# operator notes\n.*spam.*\n\n^cp\\b\n")
	list, err := LoadBanList(path, nil)
	if err != nil {
		t.Fatalf("LoadBanList failed: %v", err)
	}
	if list.Len() != 2 {
		t.Fatalf("expected 2 patterns, got %d", list.Len())
	}

	tests := []struct {
		roomName string
		want     string
	}{
		{"Free Spam Giveaway", ".*spam.*"},
		{"Spamalot Fans", ".*spam.*"},
		{"Quiet Room", ""},
		{"cp trading", "^cp\\b"},
	}
	for _, test := range tests {
		t.Run(test.roomName, func(t *testing.T) {
			if got := list.Match(test.roomName); got != test.want {
				t.Errorf("Match(%q) = %q, want %q", test.roomName, got, test.want)
			}
		})
	}
}

func TestBanListFirstPatternWins(t *testing.T) {
	path := writeBanFile(t, ".*spam.*\nspamalot\n")
	list, err := LoadBanList(path, nil)
	if err != nil {
		t.Fatalf("LoadBanList failed: %v", err)
	}
	if got := list.Match("Spamalot Fans"); got != ".*spam.*" {
		t.Errorf("expected the first pattern in file order, got %q", got)
	}
}

func TestBanListMissingFile(t *testing.T) {
	list, err := LoadBanList(filepath.Join(t.TempDir(), "nope.txt"), nil)
	if err != nil {
		t.Fatalf("a missing pattern file must not be fatal: %v", err)
	}
	if list.Len() != 0 {
		t.Errorf("expected empty list, got %d patterns", list.Len())
	}
	if got := list.Match("anything"); got != "" {
		t.Errorf("empty list matched %q", got)
	}
}

func TestBanListInvalidPatternSkipped(t *testing.T) {
	path := writeBanFile(t, "[unclosed\n.*spam.*\n")
	list, err := LoadBanList(path, nil)
	if err != nil {
		t.Fatalf("LoadBanList failed: %v", err)
	}
	if list.Len() != 1 {
		t.Fatalf("expected the invalid pattern to be skipped, got %d", list.Len())
	}
	if got := list.Match("spam central"); got != ".*spam.*" {
		t.Errorf("unexpected match: %q", got)
	}
}
