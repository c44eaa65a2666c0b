// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

// Package web is the HTTP surface of the gateway: the public
// registration form, the authenticated admin console (including the
// streaming moderation scan), and the warrant canary workflow.
package web

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/sw1tch/sw1tch/adminbus"
	"github.com/sw1tch/sw1tch/lib/config"
	"github.com/sw1tch/sw1tch/mailer"
	"github.com/sw1tch/sw1tch/messaging"
	"github.com/sw1tch/sw1tch/registration"
)

// commandBus is the slice of the admin bus the console uses.
type commandBus interface {
	ListUsers(ctx context.Context) ([]string, error)
	DeactivateUser(ctx context.Context, userID string) (string, error)
	DeactivateAllUsers(ctx context.Context, userIDs []string) (string, error)
	BanRoom(ctx context.Context, roomID string) (string, error)
	StreamModerationScan(ctx context.Context, banned *adminbus.BanList) <-chan adminbus.ScanEvent
}

// canaryService is the slice of the canary workflow the console uses.
type canaryService interface {
	Generate(ctx context.Context, attestations []string, note string) (string, error)
	Sign(ctx context.Context, message, passphrase string) (string, error)
	Save(signed string) error
	Post(ctx context.Context, signed string) error
}

// tokenSender delivers registration-token emails.
type tokenSender interface {
	SendRegistrationToken(recipient string, data mailer.TemplateData) error
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	config       *config.Config
	logger       *slog.Logger
	registration *registration.Service
	mailer       tokenSender
	bus          commandBus
	canary       canaryService
	client       *messaging.Client

	// banListPath is the moderation ban-pattern file, re-read per scan
	// so the operator can edit it live.
	banListPath string

	// attestationsPath feeds the canary form.
	attestationsPath string

	// adminToken is the sha256 hex digest of the admin password;
	// console requests present it as auth_token.
	adminToken string
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	Config           *config.Config
	Logger           *slog.Logger
	Registration     *registration.Service
	Mailer           tokenSender
	Bus              commandBus
	Canary           canaryService
	Client           *messaging.Client
	BanListPath      string
	AttestationsPath string
}

// NewServer creates a Server.
func NewServer(options ServerOptions) *Server {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	digest := sha256.Sum256([]byte(options.Config.MatrixAdmin.Password))
	return &Server{
		config:           options.Config,
		logger:           logger,
		registration:     options.Registration,
		mailer:           options.Mailer,
		bus:              options.Bus,
		canary:           options.Canary,
		client:           options.Client,
		banListPath:      options.BanListPath,
		attestationsPath: options.AttestationsPath,
		adminToken:       hex.EncodeToString(digest[:]),
	}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/time", s.handleTime)
	mux.HandleFunc("POST /register", s.handleRegister)

	mux.HandleFunc("GET /_admin/login", s.handleAdminLoginPage)
	mux.HandleFunc("POST /_admin/login", s.handleAdminLogin)
	mux.HandleFunc("GET /_admin/{$}", s.requireAdmin(s.handleAdminPanel))
	mux.HandleFunc("GET /_admin/view_unfulfilled", s.requireAdmin(s.handleViewUnfulfilled))
	mux.HandleFunc("POST /_admin/purge_unfulfilled_registrations", s.requireAdmin(s.handlePurgeUnfulfilled))
	mux.HandleFunc("GET /_admin/view_undocumented", s.requireAdmin(s.handleViewUndocumented))
	mux.HandleFunc("POST /_admin/deactivate_undocumented_users", s.requireAdmin(s.handleDeactivateUndocumented))
	mux.HandleFunc("POST /_admin/retroactively_document_users", s.requireAdmin(s.handleRetroDocumentation))
	mux.HandleFunc("GET /_admin/moderate_rooms_stream", s.requireAdmin(s.handleModerationStream))
	mux.HandleFunc("POST /_admin/ban_room", s.requireAdmin(s.handleBanRoom))
	mux.HandleFunc("POST /_admin/ban_user", s.requireAdmin(s.handleBanUser))
	mux.HandleFunc("POST /_admin/ban_users_bulk", s.requireAdmin(s.handleBanUsersBulk))

	mux.HandleFunc("GET /_admin/warrant_canary/{$}", s.requireAdmin(s.handleCanaryForm))
	mux.HandleFunc("POST /_admin/warrant_canary/preview", s.requireAdmin(s.handleCanaryPreview))
	mux.HandleFunc("POST /_admin/warrant_canary/sign", s.requireAdmin(s.handleCanarySign))
	mux.HandleFunc("POST /_admin/warrant_canary/post", s.requireAdmin(s.handleCanaryPost))

	return s.logRequests(mux)
}

// logRequests logs each request except the time poll, which the
// registration page hits every second.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "/api/time" || strings.HasSuffix(request.URL.Path, "favicon.ico") {
			next.ServeHTTP(writer, request)
			return
		}
		recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}
		next.ServeHTTP(recorder, request)
		s.logger.Info("request",
			"method", request.Method,
			"path", request.URL.Path,
			"status", recorder.status,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush passes through so the SSE stream works behind the recorder.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// requireAdmin rejects requests whose auth_token (query or form) does
// not match the admin token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		token := request.URL.Query().Get("auth_token")
		if token == "" {
			token = request.PostFormValue("auth_token")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			s.writeError(writer, http.StatusForbidden, "Invalid authentication token")
			return
		}
		next(writer, request)
	}
}

func (s *Server) writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(writer http.ResponseWriter, status int, message string) {
	s.writeJSON(writer, status, map[string]string{"detail": message})
}

// clientIP extracts the requester's address for ban checks and the
// journal.
func clientIP(request *http.Request) string {
	host, _, err := net.SplitHostPort(request.RemoteAddr)
	if err != nil {
		return request.RemoteAddr
	}
	return host
}
