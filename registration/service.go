// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sw1tch/sw1tch/messaging"
)

// ServiceConfig holds the dependencies and policy knobs of a Service.
type ServiceConfig struct {
	Journal *Journal
	Lists   *Lists
	Window  Window
	// Client checks username availability against the homeserver.
	Client *messaging.Client
	// TokenPath is the file holding the current registration token.
	TokenPath string
	// MultipleUsersPerEmail permits an email address to register more
	// than one account.
	MultipleUsersPerEmail bool
	// EmailCooldown is the minimum wait between registrations from the
	// same address, when multiple accounts are permitted. Zero disables
	// the cooldown.
	EmailCooldown time.Duration
	Logger        *slog.Logger
}

// Service applies the registration gatekeeping rules. All checks are
// advisory reads; the only mutation is recording a granted request in
// the journal.
type Service struct {
	journal               *Journal
	lists                 *Lists
	window                Window
	client                *messaging.Client
	tokenPath             string
	multipleUsersPerEmail bool
	emailCooldown         time.Duration
	logger                *slog.Logger
}

// NewService creates a Service.
func NewService(config ServiceConfig) (*Service, error) {
	if config.Journal == nil || config.Lists == nil || config.Client == nil {
		return nil, fmt.Errorf("registration: Journal, Lists, and Client are required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		journal:               config.Journal,
		lists:                 config.Lists,
		window:                config.Window,
		client:                config.Client,
		tokenPath:             config.TokenPath,
		multipleUsersPerEmail: config.MultipleUsersPerEmail,
		emailCooldown:         config.EmailCooldown,
		logger:                logger,
	}, nil
}

// Window returns the daily schedule.
func (s *Service) Window() Window { return s.window }

// Journal returns the registration journal.
func (s *Service) Journal() *Journal { return s.journal }

// Lists returns the banned lists.
func (s *Service) Lists() *Lists { return s.lists }

// UsernameAvailable reports whether a username can be granted: not
// banned, not already requested, and free on the homeserver. An
// unreachable homeserver reads as unavailable rather than an error;
// refusing a registration is safer than promising a name that may be
// taken.
func (s *Service) UsernameAvailable(ctx context.Context, username string) bool {
	if s.lists.UsernameBanned(username) {
		s.logger.Info("username check: banned by pattern", "username", username)
		return false
	}
	if s.journal.HasUsername(username) {
		s.logger.Info("username check: already requested", "username", username)
		return false
	}

	available, err := s.client.RegisterAvailable(ctx, username)
	if err != nil {
		s.logger.Warn("username check: homeserver unreachable", "username", username, "error", err)
		return false
	}
	s.logger.Info("username check", "username", username, "available", available)
	return available
}

// EmailCooldownMessage returns a rejection message when the email
// address is still inside its cooldown, or an empty string when the
// address may register.
func (s *Service) EmailCooldownMessage(email string, now time.Time) string {
	latest, found := s.journal.LatestByEmail(email)
	if !found {
		return ""
	}
	if !s.multipleUsersPerEmail {
		return "This email address has already been used to register an account."
	}
	if s.emailCooldown <= 0 {
		return ""
	}
	elapsed := now.Sub(latest.Datetime)
	if elapsed < s.emailCooldown {
		wait := s.emailCooldown - elapsed
		return fmt.Sprintf("Please wait %d seconds before requesting another account.", int(wait.Seconds()))
	}
	return ""
}

// ReadToken returns the current registration token. A missing token
// file is an operational fault surfaced to the caller.
func (s *Service) ReadToken() (string, error) {
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		return "", fmt.Errorf("registration: failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Record appends a granted registration to the journal.
func (s *Service) Record(entry Entry) error {
	return s.journal.Append(entry)
}
