// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

// Sw1tch is a registration gateway and moderation console for a Matrix
// homeserver. It serves the public registration form, emails the
// shared registration token to approved requesters, and exposes an
// authenticated admin console whose privileged operations run over the
// homeserver's chat-based admin bot.
//
// On startup:
//  1. Loads and validates the YAML configuration.
//  2. Builds the Matrix client and the admin command bus. The bus
//     connects lazily; a homeserver outage at boot does not prevent
//     the gateway from serving the registration page.
//  3. Serves HTTP until SIGINT or SIGTERM, then drains in-flight
//     requests and logs the bus out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sw1tch/sw1tch/adminbus"
	"github.com/sw1tch/sw1tch/canary"
	"github.com/sw1tch/sw1tch/lib/config"
	"github.com/sw1tch/sw1tch/lib/version"
	"github.com/sw1tch/sw1tch/mailer"
	"github.com/sw1tch/sw1tch/messaging"
	"github.com/sw1tch/sw1tch/registration"
	"github.com/sw1tch/sw1tch/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to the YAML configuration file")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("sw1tch %s\n", version.Info())
		return nil
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.BaseURL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	bus, err := adminbus.NewBus(adminbus.BusConfig{
		Client:    client,
		Username:  cfg.MatrixAdmin.Username,
		Password:  cfg.MatrixAdmin.Password,
		Room:      cfg.MatrixAdmin.Room,
		Responder: cfg.MatrixAdmin.SuperAdmin,
		Staleness: time.Duration(cfg.MatrixAdmin.StalenessSeconds) * time.Second,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bus.Close(closeCtx)
	}()

	journal := registration.NewJournal(cfg.DataPath("registrations.json"))
	lists := registration.NewLists(cfg.Paths.Config, logger)
	window := registration.Window{
		ResetTime: cfg.Registration.TokenResetTimeUTC,
		Downtime:  cfg.Registration.DowntimeBeforeTokenReset,
	}
	registrationService, err := registration.NewService(registration.ServiceConfig{
		Journal:               journal,
		Lists:                 lists,
		Window:                window,
		Client:                client,
		TokenPath:             cfg.DataPath("registration_token.txt"),
		MultipleUsersPerEmail: cfg.Registration.MultipleUsersPerEmail,
		EmailCooldown:         time.Duration(cfg.Registration.EmailCooldown) * time.Second,
		Logger:                logger,
	})
	if err != nil {
		return err
	}

	template := cfg.Email.Templates.RegistrationToken
	tokenMailer, err := mailer.New(cfg.Email.SMTP, template.Subject,
		cfg.ConfigPath(template.Body), cfg.ConfigPath(template.BodyHTML), logger)
	if err != nil {
		return err
	}

	canaryService := canary.NewService(canary.ServiceOptions{
		Config:       cfg.Canary,
		Client:       client,
		WorkDir:      cfg.Paths.Data,
		OutputPath:   cfg.DataPath("canary.txt"),
		FallbackRoom: cfg.MatrixAdmin.Room,
		Logger:       logger,
	})

	server := web.NewServer(web.ServerOptions{
		Config:           cfg,
		Logger:           logger,
		Registration:     registrationService,
		Mailer:           tokenMailer,
		Bus:              bus,
		Canary:           canaryService,
		Client:           client,
		BanListPath:      cfg.ConfigPath("banned_rooms.txt"),
		AttestationsPath: cfg.ConfigPath("attestations.txt"),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr, "homeserver", cfg.Homeserver)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
