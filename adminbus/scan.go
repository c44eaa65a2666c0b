// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package adminbus

import (
	"context"
	"errors"
	"fmt"
)

// minRealRoomMembers is the floor below which a room is treated as a
// direct message rather than a real room. The directory lists rooms by
// descending size, so a page of all-small rooms means the scan has
// walked past everything worth moderating.
const minRealRoomMembers = 3

// ScanEventKind identifies one event in a moderation scan stream.
type ScanEventKind string

const (
	// ScanStarting is emitted once before any network activity.
	ScanStarting ScanEventKind = "starting"
	// ScanConnected is emitted after the bus session is established.
	ScanConnected ScanEventKind = "connected"
	// ScanPage is emitted before each directory page is fetched.
	ScanPage ScanEventKind = "page"
	// ScanBannedRoom reports a room whose name matched a ban pattern.
	ScanBannedRoom ScanEventKind = "banned_room"
	// ScanRoomMembers reports the local members of a matched room.
	ScanRoomMembers ScanEventKind = "room_members"
	// ScanRoomError reports a non-fatal per-room failure; the scan
	// continues.
	ScanRoomError ScanEventKind = "room_error"
	// ScanInfo carries a progress note with no data attached, such as
	// the scan reaching the DM-sized tail of the directory.
	ScanInfo ScanEventKind = "info"
	// ScanComplete is the terminal event of a finished scan.
	ScanComplete ScanEventKind = "complete"
	// ScanError is the terminal event of an aborted scan.
	ScanError ScanEventKind = "error"
)

// ScanEvent is one unit of progress from a moderation scan. Which
// fields are set depends on Kind; terminal events always carry
// RoomsScanned and BansFound, even when per-room lookups failed.
type ScanEvent struct {
	Kind ScanEventKind `json:"kind"`

	Page    int         `json:"page,omitempty"`
	Room    RoomSummary `json:"room,omitzero"`
	Pattern string      `json:"pattern,omitempty"`
	Members []RoomMember `json:"members,omitempty"`
	Message string      `json:"message,omitempty"`

	RoomsScanned int `json:"rooms_scanned,omitempty"`
	BansFound    int `json:"bans_found,omitempty"`

	// Err is set on ScanRoomError and ScanError. Not serialized;
	// Message carries the operator-visible text.
	Err error `json:"-"`
}

// terminal reports whether the event ends the stream.
func (e ScanEvent) terminal() bool {
	return e.Kind == ScanComplete || e.Kind == ScanError
}

// StreamModerationScan walks the room directory page by page, flags
// rooms whose names match the ban list, and fetches local members for
// each match, emitting every discovery as soon as it is known. Full
// scans run for tens of seconds; callers consume the channel
// incrementally rather than waiting for the end. The channel closes
// after the terminal event. Cancel ctx to abandon the scan; the
// in-flight command is allowed to finish and its result discarded.
func (b *Bus) StreamModerationScan(ctx context.Context, banned *BanList) <-chan ScanEvent {
	events := make(chan ScanEvent)
	go func() {
		defer close(events)
		b.runScan(ctx, banned, events)
	}()
	return events
}

func (b *Bus) runScan(ctx context.Context, banned *BanList, events chan<- ScanEvent) {
	emit := func(event ScanEvent) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(ScanEvent{Kind: ScanStarting, Message: "connecting to homeserver"}) {
		return
	}
	if err := b.ensureConnected(ctx, false); err != nil {
		emit(ScanEvent{Kind: ScanError, Message: err.Error(), Err: err})
		return
	}
	if !emit(ScanEvent{Kind: ScanConnected, Message: "fetching rooms"}) {
		return
	}

	roomsScanned := 0
	bansFound := 0
	finish := func(kind ScanEventKind, message string, err error) {
		emit(ScanEvent{
			Kind:         kind,
			Message:      message,
			Err:          err,
			RoomsScanned: roomsScanned,
			BansFound:    bansFound,
		})
	}

	for page := 1; ; page++ {
		if !emit(ScanEvent{Kind: ScanPage, Page: page, Message: fmt.Sprintf("checking page %d", page)}) {
			return
		}

		rooms, err := b.ListRoomsPage(ctx, page)
		if err != nil {
			finish(ScanError, fmt.Sprintf("page %d failed: %v", page, err), err)
			return
		}
		if len(rooms) == 0 {
			break
		}
		if allBelowFloor(rooms) {
			// Reached DM-sized rooms; nothing further is worth scanning.
			if !emit(ScanEvent{Kind: ScanInfo, Page: page, Message: "reached DMs and small rooms, stopping"}) {
				return
			}
			break
		}
		roomsScanned += len(rooms)

		for _, room := range rooms {
			if room.MemberCount < minRealRoomMembers {
				continue
			}
			pattern := banned.Match(room.Name)
			if pattern == "" {
				continue
			}
			bansFound++
			if !emit(ScanEvent{
				Kind:      ScanBannedRoom,
				Page:      page,
				Room:      room,
				Pattern:   pattern,
				BansFound: bansFound,
			}) {
				return
			}

			members, err := b.ListLocalMembers(ctx, room.ID)
			if err != nil {
				// Per-room failures are scoped; the scan continues.
				message := fmt.Sprintf("could not fetch members for %s: %v", room.Name, err)
				var timeoutErr *TimeoutError
				if errors.As(err, &timeoutErr) {
					message = fmt.Sprintf("timeout fetching members for %s", room.Name)
				}
				if !emit(ScanEvent{Kind: ScanRoomError, Room: room, Message: message, Err: err}) {
					return
				}
				continue
			}
			if !emit(ScanEvent{Kind: ScanRoomMembers, Room: room, Members: members}) {
				return
			}
		}
	}

	finish(ScanComplete,
		fmt.Sprintf("scan complete: checked %d rooms, found %d with banned names", roomsScanned, bansFound),
		nil)
}

func allBelowFloor(rooms []RoomSummary) bool {
	for _, room := range rooms {
		if room.MemberCount >= minRealRoomMembers {
			return false
		}
	}
	return true
}
