// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"fmt"
	"strings"
	"time"
)

// Window describes the daily registration schedule: the shared
// registration token resets at a fixed UTC time, and registration
// closes for a configured stretch leading up to the reset so that
// emailed tokens do not die in flight.
type Window struct {
	// ResetTime is the daily token reset encoded as HHMM (e.g. 1400
	// for 14:00 UTC).
	ResetTime int
	// Downtime is how many minutes before the reset registration
	// closes.
	Downtime int
}

// NextReset returns the first reset strictly after now.
func (w Window) NextReset(now time.Time) time.Time {
	hour := w.ResetTime / 100
	minute := w.ResetTime % 100
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// DowntimeStart returns when registration closes ahead of a reset.
func (w Window) DowntimeStart(nextReset time.Time) time.Time {
	return nextReset.Add(-time.Duration(w.Downtime) * time.Minute)
}

// Status reports whether registration is closed at now, with an
// operator-facing message either way.
func (w Window) Status(now time.Time) (closed bool, message string) {
	nextReset := w.NextReset(now)
	downtimeStart := w.DowntimeStart(nextReset)

	if !now.Before(downtimeStart) && now.Before(nextReset) {
		return true, fmt.Sprintf("Registration is closed. It reopens in %s at %s.",
			FormatDuration(nextReset.Sub(now)), nextReset.Format("15:04 UTC"))
	}

	if now.After(downtimeStart) {
		nextReset = nextReset.AddDate(0, 0, 1)
		downtimeStart = w.DowntimeStart(nextReset)
	}
	return false, fmt.Sprintf("Registration is open. It will close in %s at %s.",
		FormatDuration(downtimeStart.Sub(now)), downtimeStart.Format("15:04 UTC"))
}

// TimeUntilReset renders how long until the next token reset, for the
// registration email.
func (w Window) TimeUntilReset(now time.Time) string {
	return FormatDuration(w.NextReset(now).Sub(now))
}

// FormatDuration renders a duration as "N hours and M minutes",
// dropping zero parts. Sub-minute durations come back as "0 minutes".
func FormatDuration(d time.Duration) string {
	totalMinutes := int(d.Minutes())
	hours := totalMinutes / 60
	minutes := totalMinutes % 60

	var parts []string
	switch {
	case hours == 1:
		parts = append(parts, "1 hour")
	case hours > 1:
		parts = append(parts, fmt.Sprintf("%d hours", hours))
	}
	switch {
	case minutes == 1:
		parts = append(parts, "1 minute")
	case minutes > 1:
		parts = append(parts, fmt.Sprintf("%d minutes", minutes))
	}
	if len(parts) == 0 {
		return "0 minutes"
	}
	return strings.Join(parts, " and ")
}
