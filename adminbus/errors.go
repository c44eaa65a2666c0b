// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package adminbus

import (
	"fmt"
	"time"

	"github.com/sw1tch/sw1tch/messaging"
)

// AuthError reports rejected credentials during connect. It is fatal:
// the bus does not retry a login the homeserver has refused.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("adminbus: authentication rejected: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError reports a network or protocol fault. It invalidates
// the session: the failing call returns immediately and the next
// caller performs a full reconnect.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("adminbus: transport fault during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that no qualifying response arrived within the
// command's budget. The session is left connected; the admin bot may
// simply have been slow or replied in an unexpected shape.
type TimeoutError struct {
	Command string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("adminbus: command timed out after %s: %s", e.Elapsed.Round(time.Millisecond), e.Command)
}

// classifyConnectError separates fatal credential rejections from
// retryable transport faults during login.
func classifyConnectError(err error) error {
	if messaging.IsMatrixError(err, messaging.ErrCodeForbidden) ||
		messaging.IsMatrixError(err, messaging.ErrCodeUnknownToken) {
		return &AuthError{Err: err}
	}
	return &TransportError{Op: "login", Err: err}
}
