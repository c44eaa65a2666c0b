// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package canary

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/openpgp/clearsign"
)

// Signer clearsigns canary messages with a local GPG key. Signing
// shells out to gpg so the key never leaves the operator's keyring;
// the agent or a supplied passphrase unlocks it.
type Signer struct {
	// KeyID selects the signing key (--default-key).
	KeyID string
	// WorkDir holds the transient message file handed to gpg.
	WorkDir string
}

// Sign clearsigns the message, returning the armored signed text. The
// passphrase may be empty when the gpg agent holds the key unlocked.
func (s *Signer) Sign(ctx context.Context, message, passphrase string) (string, error) {
	if s.KeyID == "" {
		return "", fmt.Errorf("canary: GPG key ID is not configured")
	}

	if err := os.MkdirAll(s.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("canary: failed to create work directory: %w", err)
	}
	messagePath := filepath.Join(s.WorkDir, "canary_message.txt")
	signedPath := messagePath + ".asc"
	defer os.Remove(messagePath)
	defer os.Remove(signedPath)

	// gpg wants exactly one trailing newline.
	content := strings.TrimRight(message, "\n") + "\n"
	if err := os.WriteFile(messagePath, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("canary: failed to write message file: %w", err)
	}

	args := []string{"--batch", "--yes"}
	if passphrase != "" {
		args = append(args, "--pinentry-mode", "loopback", "--passphrase", passphrase)
	}
	args = append(args, "--clearsign", "--default-key", s.KeyID, messagePath)

	command := exec.CommandContext(ctx, "gpg", args...)
	if output, err := command.CombinedOutput(); err != nil {
		return "", fmt.Errorf("canary: gpg signing failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	signed, err := os.ReadFile(signedPath)
	if err != nil {
		return "", fmt.Errorf("canary: failed to read signed message: %w", err)
	}
	return tightenSignature(string(signed)), nil
}

// tightenSignature drops the blank line gpg emits right after the
// BEGIN PGP SIGNATURE marker, matching the published canary format.
func tightenSignature(signed string) string {
	lines := strings.Split(signed, "\n")
	for i, line := range lines {
		if line == "-----BEGIN PGP SIGNATURE-----" && i+1 < len(lines) && lines[i+1] == "" {
			return strings.Join(append(lines[:i+1], lines[i+2:]...), "\n")
		}
	}
	return signed
}

// loosenSignature restores the blank line after the signature marker
// that tightenSignature removed. The armor parser requires the blank
// line even though gpg --verify accepts its absence.
func loosenSignature(signed string) string {
	lines := strings.Split(signed, "\n")
	for i, line := range lines {
		if line != "-----BEGIN PGP SIGNATURE-----" {
			continue
		}
		if i+1 < len(lines) && lines[i+1] != "" && !strings.Contains(lines[i+1], ": ") {
			rest := append([]string{""}, lines[i+1:]...)
			lines = append(lines[:i+1], rest...)
		}
		break
	}
	return strings.Join(lines, "\n")
}

// VerifySigned checks that the text is a well-formed clearsigned block
// and returns the embedded plaintext. It accepts both the raw gpg
// output and the tightened published form. It does not check the
// signature against a key; it guards against posting a mangled or
// truncated block, not against forgery.
func VerifySigned(signed string) (string, error) {
	block, _ := clearsign.Decode([]byte(loosenSignature(signed)))
	if block == nil {
		return "", fmt.Errorf("canary: text is not a clearsigned message")
	}
	return string(block.Plaintext), nil
}
