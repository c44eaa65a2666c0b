// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"bufio"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Lists matches registration attempts against the operator's banned
// username, email, and IP files. The files are re-read on every check
// so the operator can edit them without restarting the gateway; they
// are small and checks are infrequent. Missing files mean nothing is
// banned.
type Lists struct {
	dir    string
	logger *slog.Logger
}

// NewLists creates ban lists rooted at the config directory holding
// banned_usernames.txt, banned_emails.txt, and banned_ips.txt.
func NewLists(dir string, logger *slog.Logger) *Lists {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lists{dir: dir, logger: logger}
}

// readLines returns the non-blank lines of a list file.
func (l *Lists) readLines(name string) []string {
	file, err := os.Open(filepath.Join(l.dir, name))
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// UsernameBanned reports whether the username matches any pattern in
// banned_usernames.txt. Patterns are regular expressions applied as a
// case-insensitive search.
func (l *Lists) UsernameBanned(username string) bool {
	for _, line := range l.readLines("banned_usernames.txt") {
		pattern, err := regexp.Compile("(?i)" + line)
		if err != nil {
			l.logger.Warn("invalid pattern in banned_usernames.txt", "pattern", line, "error", err)
			continue
		}
		if pattern.MatchString(username) {
			return true
		}
	}
	return false
}

// EmailBanned reports whether the email matches any entry in
// banned_emails.txt. Entries are glob-style: "*" matches anything and
// dots are literal, so "*@spam.example" bans a whole domain.
func (l *Lists) EmailBanned(email string) bool {
	for _, line := range l.readLines("banned_emails.txt") {
		expr := strings.ReplaceAll(line, ".", `\.`)
		expr = strings.ReplaceAll(expr, "*", ".*")
		pattern, err := regexp.Compile("(?i)^" + expr)
		if err != nil {
			l.logger.Warn("invalid pattern in banned_emails.txt", "pattern", line, "error", err)
			continue
		}
		if pattern.MatchString(email) {
			return true
		}
	}
	return false
}

// IPBanned reports whether the address appears in banned_ips.txt,
// which holds single addresses and CIDR ranges. An unparseable client
// address is not banned; the web layer has already validated it.
func (l *Lists) IPBanned(address string) bool {
	ip, err := netip.ParseAddr(address)
	if err != nil {
		l.logger.Warn("invalid client address for ban check", "address", address)
		return false
	}

	for _, line := range l.readLines("banned_ips.txt") {
		if strings.Contains(line, "/") {
			prefix, err := netip.ParsePrefix(line)
			if err != nil {
				l.logger.Warn("invalid CIDR in banned_ips.txt", "entry", line, "error", err)
				continue
			}
			if prefix.Contains(ip) {
				return true
			}
			continue
		}
		banned, err := netip.ParseAddr(line)
		if err != nil {
			l.logger.Warn("invalid address in banned_ips.txt", "entry", line, "error", err)
			continue
		}
		if banned == ip {
			return true
		}
	}
	return false
}
