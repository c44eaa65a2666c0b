// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

// Sw1tch-canary generates, signs, and publishes a warrant canary from
// the command line. It shares the gateway's configuration and
// attestations file, so a canary produced here is identical to one
// produced through the admin console.
//
// The signed canary is written to the data directory; pass --post to
// also publish it to the configured Matrix room.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sw1tch/sw1tch/canary"
	"github.com/sw1tch/sw1tch/lib/config"
	"github.com/sw1tch/sw1tch/lib/version"
	"github.com/sw1tch/sw1tch/messaging"
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
		note        string
		passphrase  string
		post        bool
		timeout     time.Duration
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to the YAML configuration file")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.StringVar(&note, "note", "", "optional note to include in the canary")
	flag.StringVar(&passphrase, "passphrase", "", "GPG key passphrase (omit for agent/pinentry signing)")
	flag.BoolVar(&post, "post", false, "post the signed canary to the configured Matrix room")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for proof gathering and posting")
	flag.Parse()

	if showVersion {
		fmt.Printf("sw1tch-canary %s\n", version.Info())
		return nil
	}

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	attestations, err := canary.LoadAttestations(cfg.ConfigPath("attestations.txt"))
	if err != nil {
		return err
	}

	var client *messaging.Client
	if post {
		client, err = messaging.NewClient(messaging.ClientConfig{
			HomeserverURL: cfg.BaseURL,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
	}

	service := canary.NewService(canary.ServiceOptions{
		Config:       cfg.Canary,
		Client:       client,
		WorkDir:      cfg.Paths.Data,
		OutputPath:   cfg.DataPath("canary.txt"),
		FallbackRoom: cfg.MatrixAdmin.Room,
		Logger:       logger,
	})

	message, err := service.Generate(ctx, attestations, note)
	if err != nil {
		return fmt.Errorf("generating canary: %w", err)
	}
	fmt.Println(message)

	signed, err := service.Sign(ctx, message, passphrase)
	if err != nil {
		return fmt.Errorf("signing canary: %w", err)
	}
	if err := service.Save(signed); err != nil {
		return err
	}
	fmt.Printf("signed canary written to %s\n", cfg.DataPath("canary.txt"))

	if post {
		if err := service.Post(ctx, signed); err != nil {
			return fmt.Errorf("posting canary: %w", err)
		}
		fmt.Println("canary posted to Matrix")
	}
	return nil
}
