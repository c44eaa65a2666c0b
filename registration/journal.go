// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package registration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one registration request recorded in the journal. The
// journal is the source of truth for which usernames were handed a
// token; accounts on the homeserver without a journal entry are
// undocumented and eligible for bulk deactivation.
type Entry struct {
	RequestedName string    `json:"requested_name"`
	Email         string    `json:"email"`
	Datetime      time.Time `json:"datetime"`
	IPAddress     string    `json:"ip_address"`
}

// Journal is an append-mostly JSON file of registration entries.
// Writes go through a temp file and rename so a crash mid-write cannot
// truncate the journal.
type Journal struct {
	path string

	mu sync.Mutex
}

// NewJournal creates a journal backed by the file at path. The file
// need not exist yet.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Load returns all entries. A missing or corrupt file reads as empty;
// the journal must never block registration on its own bad state.
func (j *Journal) Load() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.loadLocked()
}

func (j *Journal) loadLocked() []Entry {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

// Append records one entry.
func (j *Journal) Append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	entries := append(j.loadLocked(), entry)
	return j.saveLocked(entries)
}

// Replace overwrites the journal with the given entries. Used by the
// retroactive documentation flow.
func (j *Journal) Replace(entries []Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saveLocked(entries)
}

func (j *Journal) saveLocked(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("registration: failed to encode journal: %w", err)
	}

	directory := filepath.Dir(j.path)
	temp, err := os.CreateTemp(directory, ".registrations-*.json")
	if err != nil {
		return fmt.Errorf("registration: failed to create journal temp file: %w", err)
	}
	tempName := temp.Name()
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(tempName)
		return fmt.Errorf("registration: failed to write journal: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("registration: failed to close journal temp file: %w", err)
	}
	if err := os.Rename(tempName, j.path); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("registration: failed to replace journal: %w", err)
	}
	return nil
}

// HasUsername reports whether a username was already requested.
func (j *Journal) HasUsername(username string) bool {
	for _, entry := range j.Load() {
		if entry.RequestedName == username {
			return true
		}
	}
	return false
}

// LatestByEmail returns the most recent entry for an email address,
// or false if the address has never registered.
func (j *Journal) LatestByEmail(email string) (Entry, bool) {
	var latest Entry
	var found bool
	for _, entry := range j.Load() {
		if entry.Email != email {
			continue
		}
		if !found || entry.Datetime.After(latest.Datetime) {
			latest = entry
			found = true
		}
	}
	return latest, found
}
