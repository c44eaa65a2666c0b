// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the slice of the Matrix client-server API
// that the gateway needs: password login, room join, message send,
// incremental /sync long-polling, and the unauthenticated
// register/available probe used by the registration form.
//
// [Client] is an unauthenticated client holding the homeserver URL and
// HTTP transport. Login returns an authenticated [Session] that layers
// an access token on top of the shared Client. Sessions are
// lightweight; the admin command bus holds one long-lived Session,
// while the canary poster creates a short-lived one per post.
//
// All API errors are returned as [*MatrixError] carrying the standard
// Matrix error code (M_FORBIDDEN, M_UNKNOWN_TOKEN, ...) and the HTTP
// status. [IsMatrixError] tests for a specific code. Request URLs are
// built by string concatenation rather than url.URL to avoid
// double-encoding of path segments.
package messaging
