// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package adminbus

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sw1tch/sw1tch/messaging"
)

// Per-command response budgets, matching how long the admin bot takes
// for each command family in practice.
const (
	listRoomsTimeout   = 20 * time.Second
	listMembersTimeout = 30 * time.Second
	moderationTimeout  = 30 * time.Second
)

// dispatchState carries what awaitResponse needs to recognize the
// reply to one dispatched command: the stream position fixed before
// the send, and the send's issue time.
type dispatchState struct {
	cursor    string
	issueTime time.Time
}

// dispatch issues one command into the control room. It fixes a
// correlation cursor with a short sync before sending, so the
// command's own echo and any reply are guaranteed to land after the
// cursor. If the pre-send sync fails the command is not sent at all; a
// command that cannot be correlated must not be issued.
func (b *Bus) dispatch(ctx context.Context, command string) (dispatchState, error) {
	if err := b.ensureConnected(ctx, false); err != nil {
		return dispatchState{}, err
	}
	session, roomID, err := b.currentSession()
	if err != nil {
		return dispatchState{}, err
	}

	syncResponse, err := session.Sync(ctx, messaging.SyncOptions{
		Timeout:    cursorFixTimeoutMS,
		SetTimeout: true,
	})
	if err != nil {
		b.markDisconnected()
		return dispatchState{}, &TransportError{Op: "cursor sync", Err: err}
	}

	state := dispatchState{
		cursor:    syncResponse.NextBatch,
		issueTime: b.clock.Now(),
	}

	if _, err := session.SendMessage(ctx, roomID, messaging.NewTextMessage(command)); err != nil {
		b.markDisconnected()
		return dispatchState{}, &TransportError{Op: "send", Err: err}
	}
	b.markActivity()
	return state, nil
}

// awaitResponse polls the control room from state.cursor until a
// message from the designated responder, sent at or after the issue
// time, satisfies pattern (or is simply the first such message when
// pattern is nil). A non-matching responder message does not end the
// wait; the bot emits intermediate status lines. Events in one poll
// slice are scanned in stream order and the first satisfying one wins.
func (b *Bus) awaitResponse(ctx context.Context, command string, state dispatchState, timeout time.Duration, pattern *regexp.Regexp) (string, error) {
	session, roomID, err := b.currentSession()
	if err != nil {
		return "", err
	}

	cursor := state.cursor
	start := b.clock.Now()
	for {
		if elapsed := b.clock.Since(start); elapsed > timeout {
			return "", &TimeoutError{Command: command, Elapsed: elapsed}
		}

		syncResponse, err := session.Sync(ctx, messaging.SyncOptions{
			Since:      cursor,
			Timeout:    pollSliceTimeoutMS,
			SetTimeout: true,
		})
		if err != nil {
			b.markDisconnected()
			return "", &TransportError{Op: "sync", Err: err}
		}
		cursor = syncResponse.NextBatch

		for _, event := range syncResponse.Rooms.Join[roomID].Timeline.Events {
			if !event.IsMessage() {
				continue
			}
			if event.Sender != b.responder {
				continue
			}
			// origin_server_ts carries millisecond precision, so the
			// issue time must be truncated to the same granularity or a
			// reply stamped in the issue millisecond would be rejected.
			if event.OriginServerTS < state.issueTime.UnixMilli() {
				continue
			}
			if pattern != nil && !pattern.MatchString(event.Content.Body) {
				continue
			}
			b.markActivity()
			return event.Content.Body, nil
		}

		if elapsed := b.clock.Since(start); elapsed > timeout {
			return "", &TimeoutError{Command: command, Elapsed: elapsed}
		}
		b.clock.Sleep(b.pollInterval)
	}
}

// DispatchAndAwait sends one admin command and returns the correlated
// response body. An empty pattern accepts the first responder message
// after the issue time; a non-empty pattern is applied as a
// case-insensitive search over the body.
func (b *Bus) DispatchAndAwait(ctx context.Context, command string, timeout time.Duration, pattern string) (string, error) {
	var compiled *regexp.Regexp
	if pattern != "" {
		var err error
		compiled, err = regexp.Compile("(?i)" + pattern)
		if err != nil {
			return "", fmt.Errorf("adminbus: invalid response pattern %q: %w", pattern, err)
		}
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	state, err := b.dispatch(ctx, command)
	if err != nil {
		return "", err
	}
	return b.awaitResponse(ctx, command, state, timeout, compiled)
}

// ListUsers returns every user ID the homeserver reports.
func (b *Bus) ListUsers(ctx context.Context) ([]string, error) {
	body, err := b.DispatchAndAwait(ctx, "!admin users list-users", b.commandTimeout, "")
	if err != nil {
		return nil, err
	}
	return ExtractCodeBlock(body).Lines, nil
}

// DeactivateUser deactivates one account, waiting for the bot's
// confirmation line. Returns the raw confirmation body.
func (b *Bus) DeactivateUser(ctx context.Context, userID string) (string, error) {
	command := "!admin users deactivate " + userID
	return b.DispatchAndAwait(ctx, command, b.moderationTimeout, "has been deactivated")
}

// DeactivateAllUsers deactivates a batch of accounts with a single
// fenced-list command.
func (b *Bus) DeactivateAllUsers(ctx context.Context, userIDs []string) (string, error) {
	if len(userIDs) == 0 {
		return "", fmt.Errorf("adminbus: no users to deactivate")
	}
	command := "!admin users deactivate-all\n```\n" + strings.Join(userIDs, "\n") + "\n```"
	return b.DispatchAndAwait(ctx, command, b.moderationTimeout, "deactivated")
}

// ListRoomsPage returns one page of the homeserver's room directory,
// excluding already-banned and disabled rooms. Pages start at 1; an
// empty result means the directory is exhausted.
func (b *Bus) ListRoomsPage(ctx context.Context, page int) ([]RoomSummary, error) {
	command := fmt.Sprintf("!admin rooms list-rooms %d --exclude-banned --exclude-disabled", page)
	body, err := b.DispatchAndAwait(ctx, command, b.listRoomsTimeout, "")
	if err != nil {
		return nil, err
	}
	return DecodeRoomList(body), nil
}

// ListLocalMembers returns the members of a room that belong to this
// homeserver.
func (b *Bus) ListLocalMembers(ctx context.Context, roomID string) ([]RoomMember, error) {
	command := "!admin rooms info list-joined-members " + roomID + " --local-only"
	body, err := b.DispatchAndAwait(ctx, command, b.listMembersTimeout, "")
	if err != nil {
		return nil, err
	}
	return DecodeMemberList(body), nil
}

// BanRoom bans a room, waiting for the bot to confirm. Returns the raw
// confirmation body.
func (b *Bus) BanRoom(ctx context.Context, roomID string) (string, error) {
	command := "!admin rooms moderation ban-room " + roomID
	return b.DispatchAndAwait(ctx, command, b.moderationTimeout, "(banned|successfully)")
}
