// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// render writes one named template. Template failures after the header
// has been written can only be logged.
func (s *Server) render(writer http.ResponseWriter, name string, data any) {
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplates.ExecuteTemplate(writer, name, data); err != nil {
		s.logger.Error("template render failed", "template", name, "error", err)
	}
}
