// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"net/http"

	"github.com/sw1tch/sw1tch/canary"
)

func (s *Server) handleCanaryForm(writer http.ResponseWriter, request *http.Request) {
	attestations, err := canary.LoadAttestations(s.attestationsPath)
	if err != nil {
		s.logger.Error("failed to load attestations", "error", err)
		s.writeError(writer, http.StatusInternalServerError, "Attestations file not found: "+s.attestationsPath)
		return
	}
	s.render(writer, "canary_form.html", map[string]any{
		"Attestations": attestations,
		"Organization": s.config.Canary.Organization,
		"AuthToken":    s.adminToken,
	})
}

// handleCanaryPreview gathers the freshness proofs and renders the
// unsigned statement for review.
func (s *Server) handleCanaryPreview(writer http.ResponseWriter, request *http.Request) {
	if err := request.ParseForm(); err != nil {
		s.writeError(writer, http.StatusBadRequest, "invalid form data")
		return
	}
	attestations := request.PostForm["attestations"]
	if len(attestations) == 0 {
		s.writeError(writer, http.StatusBadRequest, "at least one attestation is required")
		return
	}
	note := request.PostFormValue("note")

	message, err := s.canary.Generate(request.Context(), attestations, note)
	if err != nil {
		s.logger.Error("failed to generate canary", "error", err)
		s.writeError(writer, http.StatusInternalServerError, "Failed to generate the canary: "+err.Error())
		return
	}
	s.render(writer, "canary_preview.html", map[string]any{
		"Message":   message,
		"AuthToken": s.adminToken,
	})
}

func (s *Server) handleCanarySign(writer http.ResponseWriter, request *http.Request) {
	message := request.PostFormValue("message")
	if message == "" {
		s.writeError(writer, http.StatusBadRequest, "message is required")
		return
	}
	passphrase := request.PostFormValue("passphrase")

	signed, err := s.canary.Sign(request.Context(), message, passphrase)
	if err != nil {
		s.logger.Error("gpg signing failed", "error", err)
		s.writeError(writer, http.StatusInternalServerError, "GPG signing failed: "+err.Error())
		return
	}
	if err := s.canary.Save(signed); err != nil {
		s.logger.Error("failed to save canary", "error", err)
		s.writeError(writer, http.StatusInternalServerError, "Failed to save the signed canary: "+err.Error())
		return
	}
	s.render(writer, "canary_success.html", map[string]any{
		"SignedMessage": signed,
		"AuthToken":     s.adminToken,
	})
}

func (s *Server) handleCanaryPost(writer http.ResponseWriter, request *http.Request) {
	signed := request.PostFormValue("signed_message")
	if signed == "" {
		s.writeError(writer, http.StatusBadRequest, "signed_message is required")
		return
	}
	if err := s.canary.Post(request.Context(), signed); err != nil {
		s.logger.Error("failed to post canary", "error", err)
		s.writeJSON(writer, http.StatusOK, map[string]string{"message": "Failed to post to Matrix"})
		return
	}
	s.writeJSON(writer, http.StatusOK, map[string]string{"message": "Posted to Matrix"})
}
