// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package adminbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sw1tch/sw1tch/messaging"
)

const (
	// defaultStaleness is how long a session may sit idle before the
	// next operation forces a reconnect. The long-poll connection can
	// be black-holed by the network without an error; idle time is the
	// only signal.
	defaultStaleness = 5 * time.Minute

	// cursorFixTimeoutMS is the server-side hold for the pre-send sync
	// that fixes a correlation cursor.
	cursorFixTimeoutMS = 1000

	// pollSliceTimeoutMS is the server-side hold for each correlation
	// poll slice.
	pollSliceTimeoutMS = 2000

	// defaultPollInterval is the pause between poll slices.
	defaultPollInterval = 500 * time.Millisecond

	// initialSyncTimeoutMS is the server-side hold for the sync
	// performed at connect time.
	initialSyncTimeoutMS = 5000

	// DefaultCommandTimeout is the response budget used by commands
	// that do not specify their own.
	DefaultCommandTimeout = 10 * time.Second
)

// BusConfig holds the dependencies and identity of a Bus.
type BusConfig struct {
	// Client is the unauthenticated Matrix client used to log in.
	Client *messaging.Client
	// Username and Password are the bot's credentials.
	Username string
	Password string
	// Room is the control room ID or alias.
	Room string
	// Responder is the designated super-admin identity whose messages
	// are treated as authoritative command output.
	Responder string
	// Staleness overrides defaultStaleness when positive.
	Staleness time.Duration
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
	// Clock allows tests to control time. If nil, the real clock.
	Clock clockwork.Clock
}

// Bus is the chat-based admin command bus. It owns at most one live
// Matrix session and serializes connect/reconnect transitions; see the
// package documentation for the correlation model.
type Bus struct {
	client    *messaging.Client
	username  string
	password  string
	room      string
	responder string
	staleness time.Duration
	logger    *slog.Logger
	clock     clockwork.Clock

	// pollInterval and the per-command budgets are shortened in tests.
	pollInterval       time.Duration
	commandTimeout     time.Duration
	listRoomsTimeout   time.Duration
	listMembersTimeout time.Duration
	moderationTimeout  time.Duration

	mu           sync.Mutex
	session      *messaging.Session
	roomID       string
	connected    bool
	lastActivity time.Time
}

// NewBus creates a Bus. No network traffic happens until the first
// operation.
func NewBus(config BusConfig) (*Bus, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("adminbus: Client is required")
	}
	if config.Username == "" || config.Password == "" {
		return nil, fmt.Errorf("adminbus: Username and Password are required")
	}
	if config.Room == "" {
		return nil, fmt.Errorf("adminbus: Room is required")
	}
	if config.Responder == "" {
		return nil, fmt.Errorf("adminbus: Responder is required")
	}

	staleness := config.Staleness
	if staleness <= 0 {
		staleness = defaultStaleness
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Bus{
		client:             config.Client,
		username:           config.Username,
		password:           config.Password,
		room:               config.Room,
		responder:          config.Responder,
		staleness:          staleness,
		logger:             logger,
		clock:              clock,
		pollInterval:       defaultPollInterval,
		commandTimeout:     DefaultCommandTimeout,
		listRoomsTimeout:   listRoomsTimeout,
		listMembersTimeout: listMembersTimeout,
		moderationTimeout:  moderationTimeout,
	}, nil
}

// ensureConnected is the single gate every operation passes through.
// With force set, or when the session has been idle beyond the
// staleness window, it tears down and reconnects. The transition is
// serialized: concurrent callers wait on the in-flight connect rather
// than racing a duplicate login.
func (b *Bus) ensureConnected(ctx context.Context, force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected && !force {
		idle := b.clock.Since(b.lastActivity)
		if idle < b.staleness {
			return nil
		}
		b.logger.Info("matrix session stale, reconnecting",
			"idle", idle.Round(time.Second),
			"staleness_window", b.staleness,
		)
		force = true
	}

	if b.connected && force {
		b.disconnectLocked(ctx)
	}
	return b.connectLocked(ctx)
}

// connectLocked logs in, joins the control room, and performs one
// blocking initial sync so the server has the session registered
// before any command's cursor is fixed. Caller holds b.mu.
func (b *Bus) connectLocked(ctx context.Context) error {
	session, err := b.client.Login(ctx, b.username, b.password)
	if err != nil {
		return classifyConnectError(err)
	}

	roomID, err := session.JoinRoom(ctx, b.room)
	if err != nil {
		// Best-effort logout; the join failure is what matters.
		_ = session.Logout(ctx)
		return &TransportError{Op: "join", Err: err}
	}

	if _, err := session.Sync(ctx, messaging.SyncOptions{
		Timeout:    initialSyncTimeoutMS,
		SetTimeout: true,
	}); err != nil {
		_ = session.Logout(ctx)
		return &TransportError{Op: "initial sync", Err: err}
	}

	b.session = session
	b.roomID = roomID
	b.connected = true
	b.lastActivity = b.clock.Now()
	b.logger.Info("admin bus connected",
		"user_id", session.UserID(),
		"room_id", roomID,
	)
	return nil
}

// disconnectLocked tears down the current session. Logout failures are
// swallowed; a dead token must not block releasing local resources.
// Caller holds b.mu.
func (b *Bus) disconnectLocked(ctx context.Context) {
	if b.session != nil {
		if err := b.session.Logout(ctx); err != nil {
			b.logger.Warn("logout failed during disconnect", "error", err)
		}
		b.session.CloseIdleConnections()
	}
	b.session = nil
	b.roomID = ""
	b.connected = false
}

// Close disconnects the bus. Idempotent.
func (b *Bus) Close(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnectLocked(ctx)
}

// markDisconnected flips the session to disconnected after a transport
// fault so the next caller reconnects. The failing call does not retry.
func (b *Bus) markDisconnected() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		b.session.CloseIdleConnections()
	}
	b.session = nil
	b.roomID = ""
	b.connected = false
}

// markActivity stamps last-activity, keeping the session from going
// stale while commands flow.
func (b *Bus) markActivity() {
	b.mu.Lock()
	b.lastActivity = b.clock.Now()
	b.mu.Unlock()
}

// currentSession returns the live session and resolved control room.
func (b *Bus) currentSession() (*messaging.Session, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected || b.session == nil {
		return nil, "", &TransportError{Op: "session", Err: fmt.Errorf("not connected")}
	}
	return b.session, b.roomID, nil
}
