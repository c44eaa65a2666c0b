// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package canary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/ntp"
	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
)

// Headline is the freshest entry of the configured news feed.
type Headline struct {
	Title string
	Link  string
}

// Block identifies the newest Bitcoin block at generation time.
type Block struct {
	Height int64
	Hash   string
	Time   time.Time
}

// Sources supplies the external datestamp proofs. Implementations do
// network I/O; tests substitute fixtures.
type Sources interface {
	// Now returns trusted current UTC time.
	Now(ctx context.Context) (time.Time, error)
	// Headline returns the most recent feed entry.
	Headline(ctx context.Context) (Headline, error)
	// LatestBlock returns the newest Bitcoin block.
	LatestBlock(ctx context.Context) (Block, error)
}

// ntpServers are tried in order until one answers. Multiple pools so a
// single unreachable operator does not block canary generation.
var ntpServers = []string{
	"pool.ntp.org",
	"time.nist.gov",
	"time.google.com",
	"0.pool.ntp.org",
	"1.pool.ntp.org",
}

const (
	latestBlockURL   = "https://blockchain.info/latestblock"
	rawBlockURLBase  = "https://blockchain.info/rawblock/"
	sourceFetchLimit = 1 << 20
)

// NetworkSources fetches datestamp proofs from the public internet.
type NetworkSources struct {
	// FeedURL is the RSS feed for the headline proof.
	FeedURL string
	// HTTPClient is used for the block APIs and the feed. If nil,
	// http.DefaultClient.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (s *NetworkSources) httpClient() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

func (s *NetworkSources) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Now queries the NTP server list in order. Every server failing is an
// error; the canary must not silently fall back to the local clock,
// whose drift is exactly what the proof guards against.
func (s *NetworkSources) Now(ctx context.Context) (time.Time, error) {
	for _, server := range ntpServers {
		if err := ctx.Err(); err != nil {
			return time.Time{}, err
		}
		response, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: 10 * time.Second})
		if err != nil {
			s.logger().Warn("ntp query failed", "server", server, "error", err)
			continue
		}
		if err := response.Validate(); err != nil {
			s.logger().Warn("ntp response invalid", "server", server, "error", err)
			continue
		}
		return response.Time.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("canary: no NTP server answered")
}

// Headline fetches the feed and returns its most recent entry by
// published/updated date, falling back to feed order when the entries
// carry no parseable dates.
func (s *NetworkSources) Headline(ctx context.Context) (Headline, error) {
	parser := gofeed.NewParser()
	parser.Client = s.httpClient()

	feed, err := parser.ParseURLWithContext(s.FeedURL, ctx)
	if err != nil {
		return Headline{}, fmt.Errorf("canary: failed to fetch feed %s: %w", s.FeedURL, err)
	}
	if len(feed.Items) == 0 {
		return Headline{}, fmt.Errorf("canary: feed %s has no entries", s.FeedURL)
	}

	selected := feed.Items[0]
	var selectedTime time.Time
	for _, item := range feed.Items {
		itemTime := entryTime(item)
		if itemTime.After(selectedTime) {
			selected = item
			selectedTime = itemTime
		}
	}
	return Headline{Title: selected.Title, Link: selected.Link}, nil
}

func entryTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

// LatestBlock fetches the newest block pointer and then its full
// header. Both requests retry briefly with exponential backoff; the
// block APIs shed load with transient errors routinely.
func (s *NetworkSources) LatestBlock(ctx context.Context) (Block, error) {
	var latest struct {
		Height int64  `json:"height"`
		Hash   string `json:"hash"`
	}
	if err := s.getJSON(ctx, latestBlockURL, &latest); err != nil {
		return Block{}, fmt.Errorf("canary: failed to fetch latest block: %w", err)
	}

	var raw struct {
		Time int64 `json:"time"`
	}
	if err := s.getJSON(ctx, rawBlockURLBase+latest.Hash, &raw); err != nil {
		return Block{}, fmt.Errorf("canary: failed to fetch block %s: %w", latest.Hash, err)
	}

	hash := strings.TrimLeft(latest.Hash, "0")
	if hash == "" {
		hash = "0"
	}
	return Block{
		Height: latest.Height,
		Hash:   hash,
		Time:   time.Unix(raw.Time, 0).UTC(),
	}, nil
}

func (s *NetworkSources) getJSON(ctx context.Context, url string, target any) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		response, err := s.httpClient().Do(request)
		if err != nil {
			return err
		}
		defer response.Body.Close()

		body, err := io.ReadAll(io.LimitReader(response.Body, sourceFetchLimit))
		if err != nil {
			return err
		}
		if response.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d from %s", response.StatusCode, url)
		}
		if err := json.Unmarshal(body, target); err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, policy)
}
