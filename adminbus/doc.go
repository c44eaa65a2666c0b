// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

// Package adminbus turns the homeserver's chat-based admin interface
// into a synchronous command API. The homeserver's administrative
// surface is a bot that accepts commands and replies as ordinary chat
// messages in a control room, so every call here is an RPC built on
// publish + long-poll + correlate: fix a stream cursor, send the
// command text, then poll the room timeline for the first message from
// the designated responder sent at or after the command's issue time,
// optionally requiring the body to match a response pattern.
//
// A [Bus] owns at most one live Matrix session. All operations funnel
// through a serialized ensure-connected gate that reconnects on
// staleness (the long-poll can die without an error, so an idle timer
// is the only signal) and after transport faults. A command timeout
// leaves the session intact; a transport fault marks it disconnected
// so the next caller reconnects.
//
// Concurrent commands on one Bus are safe: each dispatch/await cycle
// owns its own cursor and filters by sender and issue time, so
// interleaved replies cannot cross-correlate.
package adminbus
