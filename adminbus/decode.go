// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package adminbus

import (
	"regexp"
	"strconv"
	"strings"
)

// RoomSummary is one row of the homeserver's room directory.
type RoomSummary struct {
	ID          string `json:"room_id"`
	Name        string `json:"name"`
	MemberCount int    `json:"members"`
}

// RoomMember is one entry of a room membership listing.
type RoomMember struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// CodeBlock is the result of extracting a fenced section from an admin
// bot reply. When no fenced block is present, Raw holds the whole
// reply and Label/Lines are empty.
type CodeBlock struct {
	Label string
	Lines []string
	Raw   string
}

var (
	codeBlockPattern  = regexp.MustCompile("(?s)(.*?):\\s*\n```\\s*\n(.*?)\n```")
	roomLinePattern   = regexp.MustCompile(`^(!\S+)\s+Members: (\d+)\s+Name: (.*)`)
	memberLinePattern = regexp.MustCompile(`^(@\S+)\s*\|\s*(\S+)`)
)

// ExtractCodeBlock finds the first fenced code block in an admin bot
// reply, returning its label line and the non-blank lines inside the
// fence. Decoders never fail on malformed input; a reply with no fence
// comes back with Raw set and nothing else.
func ExtractCodeBlock(text string) CodeBlock {
	match := codeBlockPattern.FindStringSubmatch(text)
	if match == nil {
		return CodeBlock{Raw: text}
	}

	var lines []string
	for _, line := range strings.Split(match[2], "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return CodeBlock{
		Label: strings.TrimSpace(match[1]),
		Lines: lines,
	}
}

// DecodeRoomList parses a room directory page. Each line of the form
// "<room-id> Members: <n> Name: <text>" becomes one summary; anything
// else (banners, footers) is dropped silently.
func DecodeRoomList(text string) []RoomSummary {
	var rooms []RoomSummary
	for _, line := range strings.Split(text, "\n") {
		match := roomLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		count, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}
		rooms = append(rooms, RoomSummary{
			ID:          match[1],
			Name:        strings.TrimSpace(match[3]),
			MemberCount: count,
		})
	}
	return rooms
}

// DecodeMemberList parses a membership listing. Each line of the form
// "<user-id> | <display-name>" becomes one entry; other lines are
// dropped silently.
func DecodeMemberList(text string) []RoomMember {
	var members []RoomMember
	for _, line := range strings.Split(text, "\n") {
		match := memberLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		members = append(members, RoomMember{
			UserID:      match[1],
			DisplayName: match[2],
		})
	}
	return members
}
