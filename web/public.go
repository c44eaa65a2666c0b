// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"net/http"
	"time"

	"github.com/sw1tch/sw1tch/mailer"
	"github.com/sw1tch/sw1tch/registration"
)

func (s *Server) handleIndex(writer http.ResponseWriter, request *http.Request) {
	now := time.Now().UTC()
	window := s.registration.Window()
	closed, message := window.Status(now)
	s.render(writer, "index.html", map[string]any{
		"Homeserver":         s.config.Homeserver,
		"RegistrationClosed": closed,
		"Message":            message,
		"ResetHour":          window.ResetTime / 100,
		"ResetMinute":        window.ResetTime % 100,
		"DowntimeMinutes":    window.Downtime,
	})
}

// handleTime feeds the live clock on the registration page.
func (s *Server) handleTime(writer http.ResponseWriter, request *http.Request) {
	s.writeJSON(writer, http.StatusOK, map[string]string{
		"utc_time": time.Now().UTC().Format("15:04:05"),
	})
}

// handleRegister runs the gatekeeping checks in order and, when all
// pass, emails the current token and records the grant in the journal.
func (s *Server) handleRegister(writer http.ResponseWriter, request *http.Request) {
	username := request.PostFormValue("requested_username")
	email := request.PostFormValue("email")
	if username == "" || email == "" {
		s.render(writer, "error.html", map[string]any{"Message": "Both a username and an email address are required."})
		return
	}

	now := time.Now().UTC()
	ip := clientIP(request)
	s.logger.Info("registration attempt", "username", username, "email", email, "ip", ip)

	if closed, message := s.registration.Window().Status(now); closed {
		s.logger.Info("registration rejected: window closed", "username", username)
		s.render(writer, "error.html", map[string]any{"Message": message})
		return
	}
	if s.registration.Lists().IPBanned(ip) {
		s.logger.Info("registration rejected: banned ip", "ip", ip)
		s.render(writer, "error.html", map[string]any{"Message": "Registration not allowed from your IP address."})
		return
	}
	if s.registration.Lists().EmailBanned(email) {
		s.logger.Info("registration rejected: banned email", "email", email)
		s.render(writer, "error.html", map[string]any{"Message": "Registration not allowed for this email address."})
		return
	}
	if message := s.registration.EmailCooldownMessage(email, now); message != "" {
		s.logger.Info("registration rejected: email cooldown", "email", email)
		s.render(writer, "error.html", map[string]any{"Message": message})
		return
	}
	if !s.registration.UsernameAvailable(request.Context(), username) {
		s.logger.Info("registration rejected: username unavailable", "username", username)
		s.render(writer, "error.html", map[string]any{"Message": "The username '" + username + "' is not available."})
		return
	}

	token, err := s.registration.ReadToken()
	if err != nil {
		s.logger.Error("registration token unavailable", "error", err)
		s.writeError(writer, http.StatusInternalServerError, "Registration token file not found.")
		return
	}

	err = s.mailer.SendRegistrationToken(email, mailer.TemplateData{
		Homeserver:        s.config.Homeserver,
		RegistrationToken: token,
		RequestedUsername: username,
		UTCTime:           now.Format("15:04 UTC"),
		TimeUntilReset:    s.registration.Window().TimeUntilReset(now),
	})
	if err != nil {
		s.logger.Error("failed to send registration email", "email", email, "error", err)
		s.writeError(writer, http.StatusInternalServerError, "Failed to send the registration email.")
		return
	}

	if err := s.registration.Record(registration.Entry{
		RequestedName: username,
		Email:         email,
		Datetime:      now,
		IPAddress:     ip,
	}); err != nil {
		// The token is already in flight; log but do not fail the page.
		s.logger.Error("failed to record registration", "username", username, "error", err)
	}

	s.logger.Info("registration successful", "username", username, "email", email)
	s.render(writer, "success.html", map[string]any{"Homeserver": s.config.Homeserver})
}
