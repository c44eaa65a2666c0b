// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

// Package canary generates, signs, and publishes the warrant canary.
// A canary message pairs the operator's attestations with external
// datestamp proofs (NTP time, the latest news headline from an RSS
// feed, and the newest Bitcoin block) so a reader can verify the
// statement could not have been pre-signed. Signing shells out to gpg
// for clearsigning; the result is verified locally before it is saved
// or posted to Matrix.
package canary
