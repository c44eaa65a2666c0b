// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package canary

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sw1tch/sw1tch/lib/config"
	"github.com/sw1tch/sw1tch/messaging"
)

// Service generates, signs, saves, and posts warrant canaries.
type Service struct {
	config  config.CanaryConfig
	sources Sources
	signer  *Signer
	client  *messaging.Client
	// outputPath is where the signed canary is written.
	outputPath string
	// room is where the signed canary is posted.
	room   string
	logger *slog.Logger
}

// ServiceOptions configures NewService.
type ServiceOptions struct {
	Config config.CanaryConfig
	// Sources may be nil, in which case network sources using the
	// configured feed are used.
	Sources Sources
	// Client posts the signed canary to Matrix. May be nil when
	// posting is not needed.
	Client *messaging.Client
	// WorkDir holds transient signing files.
	WorkDir string
	// OutputPath is the published canary.txt location.
	OutputPath string
	// FallbackRoom is used when the canary config names no room.
	FallbackRoom string
	Logger       *slog.Logger
}

// NewService creates a canary Service.
func NewService(options ServiceOptions) *Service {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sources := options.Sources
	if sources == nil {
		sources = &NetworkSources{FeedURL: options.Config.RSS.URL, Logger: logger}
	}
	room := options.Config.Room
	if room == "" {
		room = options.FallbackRoom
	}
	return &Service{
		config:     options.Config,
		sources:    sources,
		signer:     &Signer{KeyID: options.Config.GPGKeyID, WorkDir: options.WorkDir},
		client:     options.Client,
		outputPath: options.OutputPath,
		room:       room,
		logger:     logger,
	}
}

// Generate gathers the datestamp proofs and renders the canary
// plaintext. Any proof failing fails the whole generation; a canary
// with a partial proof section is not worth signing.
func (s *Service) Generate(ctx context.Context, attestations []string, note string) (string, error) {
	now, err := s.sources.Now(ctx)
	if err != nil {
		return "", err
	}
	headline, err := s.sources.Headline(ctx)
	if err != nil {
		return "", err
	}
	block, err := s.sources.LatestBlock(ctx)
	if err != nil {
		return "", err
	}

	return BuildMessage(Statement{
		Organization: s.config.Organization,
		AdminName:    s.config.AdminName,
		AdminTitle:   s.config.AdminTitle,
		Attestations: attestations,
		Note:         note,
		Time:         now,
		Headline:     headline,
		Block:        block,
	}), nil
}

// Sign clearsigns a generated message.
func (s *Service) Sign(ctx context.Context, message, passphrase string) (string, error) {
	signed, err := s.signer.Sign(ctx, message, passphrase)
	if err != nil {
		return "", err
	}
	if _, err := VerifySigned(signed); err != nil {
		return "", err
	}
	return signed, nil
}

// Save writes the signed canary to the published location.
func (s *Service) Save(signed string) error {
	if err := os.WriteFile(s.outputPath, []byte(signed), 0o644); err != nil {
		return fmt.Errorf("canary: failed to save signed canary: %w", err)
	}
	s.logger.Info("warrant canary saved", "path", s.outputPath)
	return nil
}

// Post publishes the signed canary to the configured Matrix room with
// a short-lived session. The caller sees login and send failures; a
// failed logout is only logged.
func (s *Service) Post(ctx context.Context, signed string) error {
	if s.client == nil {
		return fmt.Errorf("canary: no Matrix client configured for posting")
	}
	if _, err := VerifySigned(signed); err != nil {
		return err
	}

	session, err := s.client.Login(ctx, s.config.Credentials.Username, s.config.Credentials.Password)
	if err != nil {
		return fmt.Errorf("canary: matrix login failed: %w", err)
	}
	defer func() {
		if err := session.Logout(ctx); err != nil {
			s.logger.Warn("canary logout failed", "error", err)
		}
	}()

	trimmed := strings.TrimSpace(signed)
	body := fmt.Sprintf(
		"This is the %s Warrant Canary, signed with GPG for authenticity. "+
			"Copy the code block below to verify with `gpg --verify`:\n\n```\n%s\n```",
		s.config.Organization, trimmed)
	formatted := fmt.Sprintf(
		"<p>This is the %s Warrant Canary, signed with GPG for authenticity. "+
			"Copy the code block below to verify with <code>gpg --verify</code>:</p><pre><code>%s</code></pre>",
		s.config.Organization, trimmed)

	if _, err := session.SendMessage(ctx, s.room, messaging.NewHTMLMessage(body, formatted)); err != nil {
		return fmt.Errorf("canary: failed to post to %s: %w", s.room, err)
	}
	s.logger.Info("warrant canary posted", "room", s.room)
	return nil
}
