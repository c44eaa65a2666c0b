// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the sw1tch gateway.
//
// Configuration is loaded from a single YAML file passed via the
// --config flag. There are no fallbacks or automatic discovery: the
// file is the single source of truth, which keeps deployments
// deterministic and auditable. The only processing applied after
// parsing is validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the gateway.
type Config struct {
	// BaseURL is the Matrix homeserver base URL
	// (e.g., "https://matrix.example.org").
	BaseURL string `yaml:"base_url"`

	// Homeserver is the server name users register on
	// (e.g., "example.org"). Appears in emails and page text, and
	// scopes "local user" checks in the admin console.
	Homeserver string `yaml:"homeserver"`

	// Port is the TCP port the HTTP server listens on.
	Port int `yaml:"port"`

	// MatrixAdmin configures the admin command bus.
	MatrixAdmin MatrixAdminConfig `yaml:"matrix_admin"`

	// Registration configures the daily registration window.
	Registration RegistrationConfig `yaml:"registration"`

	// Email configures outbound invite email.
	Email EmailConfig `yaml:"email"`

	// Canary configures the warrant canary.
	Canary CanaryConfig `yaml:"canary"`

	// Paths configures data and config file locations.
	Paths PathsConfig `yaml:"paths"`
}

// MatrixAdminConfig holds the credentials and identities for the
// chat-based admin command bus.
type MatrixAdminConfig struct {
	// Username is the bot account localpart or full user ID used to
	// log in to the homeserver.
	Username string `yaml:"username"`

	// Password is the bot account password. Also doubles as the
	// admin console password (hashed at the auth boundary).
	Password string `yaml:"password"`

	// Room is the control room ID where admin commands are sent
	// (e.g., "!abcdef:example.org").
	Room string `yaml:"room"`

	// SuperAdmin is the user ID whose messages in the control room
	// are treated as authoritative command output
	// (e.g., "@admin:example.org").
	SuperAdmin string `yaml:"super_admin"`

	// StalenessSeconds is how long the bus connection may sit idle
	// before the next command forces a reconnect. Zero uses the
	// default of 300 seconds.
	StalenessSeconds int `yaml:"staleness_seconds"`
}

// RegistrationConfig controls the daily registration window.
type RegistrationConfig struct {
	// TokenResetTimeUTC is the daily token reset time as an HHMM
	// integer (e.g., 2200 for 22:00 UTC).
	TokenResetTimeUTC int `yaml:"token_reset_time_utc"`

	// DowntimeBeforeTokenReset is how many minutes before the reset
	// registration closes.
	DowntimeBeforeTokenReset int `yaml:"downtime_before_token_reset"`

	// MultipleUsersPerEmail allows one email address to request more
	// than one account.
	MultipleUsersPerEmail bool `yaml:"multiple_users_per_email"`

	// EmailCooldown is the minimum seconds between requests from the
	// same email address. Zero disables the cooldown.
	EmailCooldown int `yaml:"email_cooldown"`
}

// EmailConfig configures SMTP delivery and message templates.
type EmailConfig struct {
	SMTP      SMTPConfig     `yaml:"smtp"`
	Templates TemplateConfig `yaml:"templates"`
}

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	UseTLS   bool   `yaml:"use_tls"`
}

// TemplateConfig points at the invite email templates.
type TemplateConfig struct {
	RegistrationToken MessageTemplate `yaml:"registration_token"`
}

// MessageTemplate is a subject line plus paths to the plain-text and
// HTML body templates, relative to Paths.Config.
type MessageTemplate struct {
	Subject  string `yaml:"subject"`
	Body     string `yaml:"body"`
	BodyHTML string `yaml:"body_html"`
}

// CanaryConfig configures warrant canary generation.
type CanaryConfig struct {
	// Organization appears in the canary header and attestations.
	Organization string `yaml:"organization"`

	// GPGKeyID selects the signing key for gpg --clearsign.
	GPGKeyID string `yaml:"gpg_key_id"`

	// AdminName and AdminTitle identify the signer in the statement.
	AdminName  string `yaml:"admin_name"`
	AdminTitle string `yaml:"admin_title"`

	// RSS is the news feed used for the datestamp proof.
	RSS RSSConfig `yaml:"rss"`

	// Credentials is the Matrix account used to post the signed
	// canary. May differ from the admin bus account.
	Credentials CanaryCredentials `yaml:"credentials"`

	// Room is the room the signed canary is posted to. Empty falls
	// back to the admin control room.
	Room string `yaml:"room"`
}

// RSSConfig identifies the news feed for the canary datestamp proof.
type RSSConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// CanaryCredentials is the Matrix login used for posting the canary.
type CanaryCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Data is the directory for runtime state: the registration
	// journal, the current registration token, canary output.
	Data string `yaml:"data"`

	// Config is the directory for operator-maintained files: banned
	// lists, attestations, email templates.
	Config string `yaml:"config"`
}

// Default returns the configuration defaults applied before the file
// is loaded. These exist so every field has a sensible zero value; the
// config file itself is required.
func Default() *Config {
	return &Config{
		BaseURL:    "http://localhost:8008",
		Homeserver: "localhost",
		Port:       8000,
		MatrixAdmin: MatrixAdminConfig{
			StalenessSeconds: 300,
		},
		Registration: RegistrationConfig{
			TokenResetTimeUTC:        2200,
			DowntimeBeforeTokenReset: 30,
			MultipleUsersPerEmail:    true,
		},
		Email: EmailConfig{
			SMTP: SMTPConfig{Port: 587, UseTLS: true},
			Templates: TemplateConfig{
				RegistrationToken: MessageTemplate{
					Subject:  "Your {{.Homeserver}} registration token",
					Body:     "templates/registration_token.txt",
					BodyHTML: "templates/registration_token.html",
				},
			},
		},
		Canary: CanaryConfig{
			AdminName:  "Admin",
			AdminTitle: "administrator",
			RSS: RSSConfig{
				URL:  "https://www.democracynow.org/democracynow.rss",
				Name: "Democracy Now!",
			},
		},
		Paths: PathsConfig{
			Data:   "data",
			Config: "config",
		},
	}
}

// LoadFile loads configuration from the given YAML file, merged over
// the defaults. The result is not validated; call Validate before use.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors. All problems are
// reported together rather than one at a time.
func (c *Config) Validate() error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base_url is required"))
	}
	if c.Homeserver == "" {
		errs = append(errs, fmt.Errorf("homeserver is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 1..65535, got %d", c.Port))
	}

	if c.MatrixAdmin.Username == "" {
		errs = append(errs, fmt.Errorf("matrix_admin.username is required"))
	}
	if c.MatrixAdmin.Password == "" {
		errs = append(errs, fmt.Errorf("matrix_admin.password is required"))
	}
	if c.MatrixAdmin.Room == "" {
		errs = append(errs, fmt.Errorf("matrix_admin.room is required"))
	}
	if c.MatrixAdmin.SuperAdmin == "" {
		errs = append(errs, fmt.Errorf("matrix_admin.super_admin is required"))
	}
	if c.MatrixAdmin.StalenessSeconds < 0 {
		errs = append(errs, fmt.Errorf("matrix_admin.staleness_seconds must not be negative"))
	}

	reset := c.Registration.TokenResetTimeUTC
	if reset < 0 || reset > 2359 || reset%100 > 59 {
		errs = append(errs, fmt.Errorf("registration.token_reset_time_utc must be a valid HHMM value, got %d", reset))
	}
	if c.Registration.DowntimeBeforeTokenReset < 0 {
		errs = append(errs, fmt.Errorf("registration.downtime_before_token_reset must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// DataPath returns a path inside the data directory.
func (c *Config) DataPath(name string) string {
	return filepath.Join(c.Paths.Data, name)
}

// ConfigPath returns a path inside the operator config directory.
func (c *Config) ConfigPath(name string) string {
	return filepath.Join(c.Paths.Config, name)
}
