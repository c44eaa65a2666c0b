// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sw1tch/sw1tch/adminbus"
	"github.com/sw1tch/sw1tch/registration"
)

func (s *Server) handleAdminPanel(writer http.ResponseWriter, request *http.Request) {
	s.render(writer, "admin.html", map[string]any{
		"Authenticated": true,
		"AuthToken":     s.adminToken,
	})
}

func (s *Server) handleAdminLoginPage(writer http.ResponseWriter, request *http.Request) {
	s.render(writer, "admin.html", map[string]any{"Authenticated": false})
}

// handleAdminLogin hashes the submitted password and, on a match,
// redirects into the panel with the hash as the auth token. The token
// rides in the URL so the EventSource-based moderation stream can
// present it too.
func (s *Server) handleAdminLogin(writer http.ResponseWriter, request *http.Request) {
	password := request.PostFormValue("password")
	digest := sha256.Sum256([]byte(password))
	hashed := hex.EncodeToString(digest[:])
	if subtle.ConstantTimeCompare([]byte(hashed), []byte(s.adminToken)) != 1 {
		s.render(writer, "admin.html", map[string]any{
			"Authenticated": false,
			"Error":         "Invalid password",
		})
		return
	}
	http.Redirect(writer, request, "/_admin/?auth_token="+hashed, http.StatusSeeOther)
}

// unfulfilledEntry is a journal entry whose username is still free on
// the homeserver: a token was sent but never used.
type unfulfilledEntry struct {
	Username         string
	Email            string
	RegistrationDate string
	AgeHours         float64
}

func (s *Server) handleViewUnfulfilled(writer http.ResponseWriter, request *http.Request) {
	now := time.Now().UTC()
	var unfulfilled []unfulfilledEntry
	for _, entry := range s.registration.Journal().Load() {
		available, err := s.client.RegisterAvailable(request.Context(), entry.RequestedName)
		if err != nil {
			s.logger.Error("failed to check username", "username", entry.RequestedName, "error", err)
			continue
		}
		if available {
			unfulfilled = append(unfulfilled, unfulfilledEntry{
				Username:         entry.RequestedName,
				Email:            entry.Email,
				RegistrationDate: entry.Datetime.Format(time.RFC3339),
				AgeHours:         now.Sub(entry.Datetime).Hours(),
			})
		}
	}
	s.render(writer, "unfulfilled_registrations.html", map[string]any{"Registrations": unfulfilled})
}

// handlePurgeUnfulfilled drops journal entries whose username never
// became an account, once they are old enough that the token has long
// since reset. Entries for existing accounts and recent requests stay.
func (s *Server) handlePurgeUnfulfilled(writer http.ResponseWriter, request *http.Request) {
	minAgeHours := 24
	if value := request.PostFormValue("min_age_hours"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			s.writeError(writer, http.StatusBadRequest, "min_age_hours must be an integer")
			return
		}
		minAgeHours = parsed
	}

	entries := s.registration.Journal().Load()
	if len(entries) == 0 {
		s.writeJSON(writer, http.StatusOK, map[string]any{"message": "No registrations found to clean up"})
		return
	}
	s.logger.Info("purging unfulfilled registrations", "total", len(entries), "min_age_hours", minAgeHours)

	now := time.Now().UTC()
	minAge := time.Duration(minAgeHours) * time.Hour
	var keep []registration.Entry
	var keptExisting, keptRecent, removed int
	for _, entry := range entries {
		available, err := s.client.RegisterAvailable(request.Context(), entry.RequestedName)
		if err != nil {
			s.logger.Error("failed to check username", "username", entry.RequestedName, "error", err)
			available = true
		}
		if !available {
			// The account exists; its entry is documentation, not cruft.
			keep = append(keep, entry)
			keptExisting++
			continue
		}
		if now.Sub(entry.Datetime) < minAge {
			keep = append(keep, entry)
			keptRecent++
			continue
		}
		s.logger.Info("removing unfulfilled registration", "username", entry.RequestedName)
		removed++
	}

	if err := s.registration.Journal().Replace(keep); err != nil {
		s.logger.Error("failed to save journal", "error", err)
		s.writeError(writer, http.StatusInternalServerError, "Failed to save the registration journal.")
		return
	}
	s.writeJSON(writer, http.StatusOK, map[string]any{
		"message":         "Cleanup complete",
		"kept_existing":   keptExisting,
		"kept_recent":     keptRecent,
		"removed":         removed,
		"total_remaining": len(keep),
	})
}

// undocumentedUsers returns local homeserver accounts with no journal
// entry. Comparison is case-insensitive on the localpart since Matrix
// localparts are case-preserving but registrations are not.
func (s *Server) undocumentedUsers(users []string) []string {
	documented := make(map[string]bool)
	for _, entry := range s.registration.Journal().Load() {
		documented[strings.ToLower(entry.RequestedName)] = true
	}
	homeserver := strings.ToLower(s.config.Homeserver)

	var undocumented []string
	for _, user := range users {
		if !strings.HasPrefix(user, "@") {
			continue
		}
		localpart, server, found := strings.Cut(strings.ToLower(user[1:]), ":")
		if !found || server != homeserver {
			continue
		}
		if !documented[localpart] {
			undocumented = append(undocumented, user)
		}
	}
	return undocumented
}

func (s *Server) handleViewUndocumented(writer http.ResponseWriter, request *http.Request) {
	users, err := s.bus.ListUsers(request.Context())
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		s.writeError(writer, http.StatusBadGateway, "Failed to list homeserver users: "+err.Error())
		return
	}
	s.render(writer, "undocumented_users.html", map[string]any{"Users": s.undocumentedUsers(users)})
}

func (s *Server) handleDeactivateUndocumented(writer http.ResponseWriter, request *http.Request) {
	users, err := s.bus.ListUsers(request.Context())
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		s.writeError(writer, http.StatusBadGateway, "Failed to list homeserver users: "+err.Error())
		return
	}
	undocumented := s.undocumentedUsers(users)
	if len(undocumented) == 0 {
		s.writeJSON(writer, http.StatusOK, map[string]any{
			"message":           "No undocumented users found to deactivate",
			"deactivated_count": 0,
		})
		return
	}

	var deactivated int
	var failed []string
	for _, user := range undocumented {
		if _, err := s.bus.DeactivateUser(request.Context(), user); err != nil {
			s.logger.Error("failed to deactivate user", "user", user, "error", err)
			failed = append(failed, user)
			continue
		}
		deactivated++
	}
	s.logger.Info("deactivated undocumented users", "count", deactivated, "failed", len(failed))

	result := map[string]any{
		"message":           fmt.Sprintf("Deactivated %d undocumented user(s)", deactivated),
		"deactivated_count": deactivated,
	}
	if len(failed) > 0 {
		result["failed_deactivations"] = failed
	}
	s.writeJSON(writer, http.StatusOK, result)
}

// handleRetroDocumentation adds placeholder journal entries for
// accounts that predate the journal, so they stop showing up as
// undocumented.
func (s *Server) handleRetroDocumentation(writer http.ResponseWriter, request *http.Request) {
	users, err := s.bus.ListUsers(request.Context())
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		s.writeError(writer, http.StatusBadGateway, "Failed to list homeserver users: "+err.Error())
		return
	}

	now := time.Now().UTC()
	var added int
	for _, user := range s.undocumentedUsers(users) {
		localpart, _, _ := strings.Cut(strings.ToLower(user[1:]), ":")
		entry := registration.Entry{
			RequestedName: localpart,
			Email:         "null@nope.no",
			Datetime:      now,
			IPAddress:     "127.0.0.1",
		}
		if err := s.registration.Journal().Append(entry); err != nil {
			s.logger.Error("failed to add retroactive entry", "user", user, "error", err)
			continue
		}
		s.logger.Info("added retroactive journal entry", "user", user)
		added++
	}
	s.writeJSON(writer, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("Retroactively documented %d user(s)", added),
		"added_count": added,
	})
}

// handleModerationStream runs the room scan and streams each finding
// as a server-sent event.
func (s *Server) handleModerationStream(writer http.ResponseWriter, request *http.Request) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		s.writeError(writer, http.StatusInternalServerError, "Streaming is not supported.")
		return
	}

	banned, err := adminbus.LoadBanList(s.banListPath, s.logger)
	if err != nil {
		s.writeError(writer, http.StatusInternalServerError, "Failed to load the ban list: "+err.Error())
		return
	}

	writer.Header().Set("Content-Type", "text/event-stream")
	writer.Header().Set("Cache-Control", "no-cache")
	writer.Header().Set("Connection", "keep-alive")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range s.bus.StreamModerationScan(request.Context(), banned) {
		data, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("failed to encode scan event", "error", err)
			continue
		}
		fmt.Fprintf(writer, "data: %s\n\n", data)
		flusher.Flush()
	}
}

// commandResult is the JSON shape of the single-command ban endpoints.
func (s *Server) writeCommandResult(writer http.ResponseWriter, response string, err error) {
	if err != nil {
		s.writeJSON(writer, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	s.writeJSON(writer, http.StatusOK, map[string]any{"success": true, "response": response})
}

func (s *Server) handleBanRoom(writer http.ResponseWriter, request *http.Request) {
	roomID := request.PostFormValue("room_id")
	if roomID == "" {
		s.writeError(writer, http.StatusBadRequest, "room_id is required")
		return
	}
	response, err := s.bus.BanRoom(request.Context(), roomID)
	s.logger.Info("ban room", "room", roomID, "error", err)
	s.writeCommandResult(writer, response, err)
}

func (s *Server) handleBanUser(writer http.ResponseWriter, request *http.Request) {
	userID := request.PostFormValue("user_id")
	if userID == "" {
		s.writeError(writer, http.StatusBadRequest, "user_id is required")
		return
	}
	response, err := s.bus.DeactivateUser(request.Context(), userID)
	s.logger.Info("ban user", "user", userID, "error", err)
	s.writeCommandResult(writer, response, err)
}

func (s *Server) handleBanUsersBulk(writer http.ResponseWriter, request *http.Request) {
	var users []string
	if err := json.Unmarshal([]byte(request.PostFormValue("user_ids")), &users); err != nil {
		s.writeError(writer, http.StatusBadRequest, "user_ids must be a JSON array of user IDs")
		return
	}
	if len(users) == 0 {
		s.writeError(writer, http.StatusBadRequest, "user_ids is empty")
		return
	}
	response, err := s.bus.DeactivateAllUsers(request.Context(), users)
	s.logger.Info("bulk deactivation", "count", len(users), "error", err)
	s.writeCommandResult(writer, response, err)
}
