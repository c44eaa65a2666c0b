// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package adminbus

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// banPattern pairs a compiled expression with the literal pattern text
// from the file, so matches can be reported to the operator verbatim.
type banPattern struct {
	raw      string
	compiled *regexp.Regexp
}

// BanList matches room names against operator-supplied regular
// expressions. Matching is case-insensitive substring search.
type BanList struct {
	patterns []banPattern
}

// LoadBanList reads a newline-delimited pattern file. Blank lines and
// "#"-prefixed comments are skipped; patterns that fail to compile are
// logged and skipped. A missing file means nothing is banned, not a
// fatal error, so the gateway runs before the operator has written one.
func LoadBanList(path string, logger *slog.Logger) (*BanList, error) {
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &BanList{}, nil
		}
		return nil, fmt.Errorf("adminbus: failed to open ban pattern file %s: %w", path, err)
	}
	defer file.Close()

	list := &BanList{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		compiled, err := regexp.Compile("(?i)" + line)
		if err != nil {
			logger.Warn("skipping invalid ban pattern", "pattern", line, "error", err)
			continue
		}
		list.patterns = append(list.patterns, banPattern{raw: line, compiled: compiled})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("adminbus: failed to read ban pattern file %s: %w", path, err)
	}
	return list, nil
}

// Match returns the first pattern in file order that matches the room
// name, or the empty string if none do.
func (l *BanList) Match(roomName string) string {
	for _, pattern := range l.patterns {
		if pattern.compiled.MatchString(roomName) {
			return pattern.raw
		}
	}
	return ""
}

// Len reports how many patterns loaded.
func (l *BanList) Len() int {
	return len(l.patterns)
}
