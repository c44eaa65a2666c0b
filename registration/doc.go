// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

// Package registration implements the gatekeeping rules for new
// accounts: the daily open/closed window around the token reset,
// banned username/email/IP list matching, the registration journal,
// and the username availability check against both the journal and the
// homeserver.
package registration
