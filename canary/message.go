// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package canary

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// Statement is everything that goes into one canary message.
type Statement struct {
	Organization string
	AdminName    string
	AdminTitle   string
	Attestations []string
	Note         string

	Time     time.Time
	Headline Headline
	Block    Block
}

// LoadAttestations reads the operator's attestation lines. Unlike the
// ban lists, a missing attestations file is an error: a canary with no
// attestations is worse than no canary.
func LoadAttestations(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("canary: failed to open attestations file: %w", err)
	}
	defer file.Close()

	var attestations []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			attestations = append(attestations, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("canary: failed to read attestations file: %w", err)
	}
	if len(attestations) == 0 {
		return nil, fmt.Errorf("canary: attestations file %s is empty", path)
	}
	return attestations, nil
}

// BuildMessage renders the plaintext canary. Pure; the caller gathers
// the proofs.
func BuildMessage(statement Statement) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Warrant Canary · %s\n\n",
		statement.Organization, statement.Time.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "I, %s, the %s of %s, state this %s:\n",
		statement.AdminName, statement.AdminTitle, statement.Organization,
		ordinalDate(statement.Time))
	for i, attestation := range statement.Attestations {
		fmt.Fprintf(&b, "  %d. %s %s\n", i+1, statement.Organization, attestation)
	}

	if statement.Note != "" {
		fmt.Fprintf(&b, "\nNOTE: %s\n", statement.Note)
	}

	fmt.Fprintf(&b, "\nDatestamp Proof:\n")
	fmt.Fprintf(&b, "  Daily News:  %q\n", statement.Headline.Title)
	fmt.Fprintf(&b, "  Source URL:  %s\n", statement.Headline.Link)
	fmt.Fprintf(&b, "  BTC block:   #%d, %s\n", statement.Block.Height, statement.Block.Time.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "  Block hash:  %s\n", statement.Block.Hash)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// ordinalDate renders "2nd day of January, 2026".
func ordinalDate(t time.Time) string {
	day := t.Day()
	suffix := "th"
	if day < 11 || day > 13 {
		switch day % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s day of %s, %d", day, suffix, t.Month(), t.Year())
}
