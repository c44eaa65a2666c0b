// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package adminbus

import (
	"testing"
)

func TestExtractCodeBlock(t *testing.T) {
	t.Run("fenced list", func(t *testing.T) {
		block := ExtractCodeBlock("Users:\n```\n@a:example.org\n@b:example.org\n```")
		if block.Label != "Users" {
			t.Errorf("unexpected label: %q", block.Label)
		}
		if len(block.Lines) != 2 || block.Lines[0] != "@a:example.org" || block.Lines[1] != "@b:example.org" {
			t.Errorf("unexpected lines: %v", block.Lines)
		}
		if block.Raw != "" {
			t.Errorf("Raw should be empty when a fence was found: %q", block.Raw)
		}
	})

	t.Run("blank lines inside fence dropped", func(t *testing.T) {
		block := ExtractCodeBlock("Users:\n```\n@a:example.org\n\n  \n@b:example.org\n```")
		if len(block.Lines) != 2 {
			t.Errorf("expected 2 lines, got %v", block.Lines)
		}
	})

	t.Run("no fence falls back to raw", func(t *testing.T) {
		block := ExtractCodeBlock("No users found.")
		if block.Raw != "No users found." {
			t.Errorf("unexpected raw: %q", block.Raw)
		}
		if block.Label != "" || len(block.Lines) != 0 {
			t.Errorf("label/lines should be empty: %+v", block)
		}
	})
}

func TestDecodeRoomList(t *testing.T) {
	t.Run("well formed page", func(t *testing.T) {
		response := "!abc:example.org Members: 42 Name: General Chat\n" +
			"!def:example.org Members: 7 Name: Backroom\n" +
			"!ghi:example.org Members: 3 Name: Quiet Room\n"
		rooms := DecodeRoomList(response)
		if len(rooms) != 3 {
			t.Fatalf("expected 3 rooms, got %d", len(rooms))
		}
		if rooms[0].ID != "!abc:example.org" || rooms[0].MemberCount != 42 || rooms[0].Name != "General Chat" {
			t.Errorf("unexpected first room: %+v", rooms[0])
		}
		if rooms[2].Name != "Quiet Room" {
			t.Errorf("rooms out of file order: %+v", rooms)
		}
	})

	t.Run("malformed lines dropped silently", func(t *testing.T) {
		response := "Room directory, page 3:\n" +
			"!abc:example.org Members: 42 Name: General Chat\n" +
			"this line is garbage\n" +
			"!bad:example.org Members: lots Name: Broken Count\n" +
			"-- end of page --\n"
		rooms := DecodeRoomList(response)
		if len(rooms) != 1 {
			t.Fatalf("expected 1 room, got %d: %+v", len(rooms), rooms)
		}
		if rooms[0].ID != "!abc:example.org" {
			t.Errorf("unexpected room: %+v", rooms[0])
		}
	})

	t.Run("empty response", func(t *testing.T) {
		if rooms := DecodeRoomList(""); len(rooms) != 0 {
			t.Errorf("expected no rooms, got %+v", rooms)
		}
	})
}

func TestDecodeMemberList(t *testing.T) {
	response := "3 Members in Room \"Free Spam Giveaway\":\n" +
		"@spammer:example.org | SpamKing\n" +
		"@lurker:example.org | lurker\n" +
		"@third:example.org|third\n" +
		"footer line\n"
	members := DecodeMemberList(response)
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d: %+v", len(members), members)
	}
	if members[0].UserID != "@spammer:example.org" || members[0].DisplayName != "SpamKing" {
		t.Errorf("unexpected first member: %+v", members[0])
	}
	if members[2].DisplayName != "third" {
		t.Errorf("tight pipe spacing not handled: %+v", members[2])
	}
}
