// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sw1tch/sw1tch/adminbus"
	"github.com/sw1tch/sw1tch/lib/config"
	"github.com/sw1tch/sw1tch/mailer"
	"github.com/sw1tch/sw1tch/messaging"
	"github.com/sw1tch/sw1tch/registration"
)

const testAdminPassword = "hunter2"

func testToken() string {
	digest := sha256.Sum256([]byte(testAdminPassword))
	return hex.EncodeToString(digest[:])
}

type fakeBus struct {
	users       []string
	listErr     error
	deactivated []string
	bannedRooms []string
	commandErr  error
	scanEvents  []adminbus.ScanEvent
}

func (f *fakeBus) ListUsers(ctx context.Context) ([]string, error) {
	return f.users, f.listErr
}

func (f *fakeBus) DeactivateUser(ctx context.Context, userID string) (string, error) {
	if f.commandErr != nil {
		return "", f.commandErr
	}
	f.deactivated = append(f.deactivated, userID)
	return userID + " has been deactivated", nil
}

func (f *fakeBus) DeactivateAllUsers(ctx context.Context, userIDs []string) (string, error) {
	if f.commandErr != nil {
		return "", f.commandErr
	}
	f.deactivated = append(f.deactivated, userIDs...)
	return "deactivated", nil
}

func (f *fakeBus) BanRoom(ctx context.Context, roomID string) (string, error) {
	if f.commandErr != nil {
		return "", f.commandErr
	}
	f.bannedRooms = append(f.bannedRooms, roomID)
	return roomID + " banned successfully", nil
}

func (f *fakeBus) StreamModerationScan(ctx context.Context, banned *adminbus.BanList) <-chan adminbus.ScanEvent {
	events := make(chan adminbus.ScanEvent)
	go func() {
		defer close(events)
		for _, event := range f.scanEvents {
			events <- event
		}
	}()
	return events
}

type fakeCanary struct {
	message   string
	signed    string
	saved     string
	posted    string
	failError error
}

func (f *fakeCanary) Generate(ctx context.Context, attestations []string, note string) (string, error) {
	return f.message, f.failError
}

func (f *fakeCanary) Sign(ctx context.Context, message, passphrase string) (string, error) {
	return f.signed, f.failError
}

func (f *fakeCanary) Save(signed string) error {
	f.saved = signed
	return nil
}

func (f *fakeCanary) Post(ctx context.Context, signed string) error {
	f.posted = signed
	return f.failError
}

type fakeMailer struct {
	recipient string
	data      mailer.TemplateData
	err       error
}

func (f *fakeMailer) SendRegistrationToken(recipient string, data mailer.TemplateData) error {
	if f.err != nil {
		return f.err
	}
	f.recipient = recipient
	f.data = data
	return nil
}

// testEnv bundles a Server with its fakes and writable directories.
type testEnv struct {
	server *Server
	bus    *fakeBus
	canary *fakeCanary
	mailer *fakeMailer

	journal  *registration.Journal
	dataDir  string
	confDir  string
	taken    map[string]bool // usernames the fake homeserver reports as taken
	homesrvr *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		bus:    &fakeBus{},
		canary: &fakeCanary{},
		mailer: &fakeMailer{},
		taken:  make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_matrix/client/v3/register/available", func(writer http.ResponseWriter, request *http.Request) {
		username := request.URL.Query().Get("username")
		writer.Header().Set("Content-Type", "application/json")
		if env.taken[username] {
			writer.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(writer).Encode(map[string]string{"errcode": "M_USER_IN_USE", "error": "taken"})
			return
		}
		json.NewEncoder(writer).Encode(map[string]bool{"available": true})
	})
	env.homesrvr = httptest.NewServer(mux)
	t.Cleanup(env.homesrvr.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: env.homesrvr.URL,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	env.dataDir = t.TempDir()
	env.confDir = t.TempDir()
	env.journal = registration.NewJournal(filepath.Join(env.dataDir, "registrations.json"))
	if err := os.WriteFile(filepath.Join(env.dataDir, "token.txt"), []byte("tok3n\n"), 0o644); err != nil {
		t.Fatalf("write token: %v", err)
	}

	service, err := registration.NewService(registration.ServiceConfig{
		Journal:   env.journal,
		Lists:     registration.NewLists(env.confDir, logger),
		Window:    registration.Window{ResetTime: 1200, Downtime: 0},
		Client:    client,
		TokenPath: filepath.Join(env.dataDir, "token.txt"),
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	cfg := config.Default()
	cfg.Homeserver = "example.org"
	cfg.MatrixAdmin.Password = testAdminPassword
	cfg.Canary.Organization = "Example Collective"

	env.server = NewServer(ServerOptions{
		Config:           cfg,
		Logger:           logger,
		Registration:     service,
		Mailer:           env.mailer,
		Bus:              env.bus,
		Canary:           env.canary,
		Client:           client,
		BanListPath:      filepath.Join(env.confDir, "banned_rooms.txt"),
		AttestationsPath: filepath.Join(env.confDir, "attestations.txt"),
	})
	return env
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, path, nil)
	request.RemoteAddr = "203.0.113.9:51234"
	recorder := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(recorder, request)
	return recorder
}

func (env *testEnv) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.RemoteAddr = "203.0.113.9:51234"
	recorder := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(recorder, request)
	return recorder
}

func adminForm(values url.Values) url.Values {
	values.Set("auth_token", testToken())
	return values
}

func TestIndexShowsRegistrationForm(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.get(t, "/")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "example.org") {
		t.Errorf("page does not mention the homeserver: %q", body)
	}
	if !strings.Contains(body, `name="requested_username"`) {
		t.Errorf("page is missing the registration form")
	}
}

func TestTimeEndpoint(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.get(t, "/api/time")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(payload["utc_time"]) != len("15:04:05") {
		t.Errorf("utc_time = %q, want HH:MM:SS", payload["utc_time"])
	}
}

func TestRegisterSuccess(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.post(t, "/register", url.Values{
		"requested_username": {"alice"},
		"email":              {"alice@example.com"},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "Token sent") {
		t.Errorf("expected success page, got: %q", recorder.Body.String())
	}
	if env.mailer.recipient != "alice@example.com" {
		t.Errorf("mail recipient = %q, want alice@example.com", env.mailer.recipient)
	}
	if env.mailer.data.RegistrationToken != "tok3n" {
		t.Errorf("token = %q, want tok3n", env.mailer.data.RegistrationToken)
	}
	if !env.journal.HasUsername("alice") {
		t.Error("journal is missing the new entry")
	}
}

func TestRegisterClosedWindow(t *testing.T) {
	env := newTestEnv(t)
	// A downtime of a full day keeps the window closed at any time.
	service := env.server.registration
	reconfigured, err := registration.NewService(registration.ServiceConfig{
		Journal:   service.Journal(),
		Lists:     service.Lists(),
		Window:    registration.Window{ResetTime: 1200, Downtime: 1440},
		Client:    env.server.client,
		TokenPath: filepath.Join(env.dataDir, "token.txt"),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	env.server.registration = reconfigured

	recorder := env.post(t, "/register", url.Values{
		"requested_username": {"alice"},
		"email":              {"alice@example.com"},
	})
	if !strings.Contains(recorder.Body.String(), "Registration is closed") {
		t.Errorf("expected closed message, got: %q", recorder.Body.String())
	}
	if env.mailer.recipient != "" {
		t.Error("mail was sent despite the closed window")
	}
}

func TestRegisterBannedEmail(t *testing.T) {
	env := newTestEnv(t)
	banned := filepath.Join(env.confDir, "banned_emails.txt")
	if err := os.WriteFile(banned, []byte("*@spam.example\n"), 0o644); err != nil {
		t.Fatalf("write banned emails: %v", err)
	}

	recorder := env.post(t, "/register", url.Values{
		"requested_username": {"alice"},
		"email":              {"alice@spam.example"},
	})
	if !strings.Contains(recorder.Body.String(), "not allowed for this email") {
		t.Errorf("expected banned-email rejection, got: %q", recorder.Body.String())
	}
}

func TestRegisterUsernameTaken(t *testing.T) {
	env := newTestEnv(t)
	env.taken["alice"] = true

	recorder := env.post(t, "/register", url.Values{
		"requested_username": {"alice"},
		"email":              {"alice@example.com"},
	})
	if !strings.Contains(recorder.Body.String(), "is not available") {
		t.Errorf("expected unavailable rejection, got: %q", recorder.Body.String())
	}
	if env.mailer.recipient != "" {
		t.Error("mail was sent for a taken username")
	}
}

func TestAdminRoutesRejectMissingToken(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{
		"/_admin/",
		"/_admin/view_unfulfilled",
		"/_admin/view_undocumented",
		"/_admin/moderate_rooms_stream",
		"/_admin/warrant_canary/",
	}
	for _, path := range paths {
		recorder := env.get(t, path)
		if recorder.Code != http.StatusForbidden {
			t.Errorf("GET %s status = %d, want 403", path, recorder.Code)
		}
	}

	recorder := env.get(t, "/_admin/?auth_token=wrong")
	if recorder.Code != http.StatusForbidden {
		t.Errorf("bad token status = %d, want 403", recorder.Code)
	}
}

func TestAdminLoginRedirectsWithToken(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.post(t, "/_admin/login", url.Values{"password": {testAdminPassword}})
	if recorder.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", recorder.Code)
	}
	location := recorder.Header().Get("Location")
	if location != "/_admin/?auth_token="+testToken() {
		t.Errorf("redirect location = %q", location)
	}
}

func TestAdminLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.post(t, "/_admin/login", url.Values{"password": {"nope"}})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "Invalid password") {
		t.Errorf("expected login error, got: %q", recorder.Body.String())
	}
}

func TestViewUndocumented(t *testing.T) {
	env := newTestEnv(t)
	env.bus.users = []string{"@alice:example.org", "@bob:example.org", "@eve:elsewhere.net"}
	if err := env.journal.Append(registration.Entry{RequestedName: "Alice"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	recorder := env.get(t, "/_admin/view_undocumented?auth_token="+testToken())
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "@bob:example.org") {
		t.Errorf("bob should be listed as undocumented: %q", body)
	}
	if strings.Contains(body, "@alice:example.org") {
		t.Error("alice has a journal entry and should not be listed")
	}
	if strings.Contains(body, "@eve:elsewhere.net") {
		t.Error("remote users should not be listed")
	}
}

func TestDeactivateUndocumented(t *testing.T) {
	env := newTestEnv(t)
	env.bus.users = []string{"@bob:example.org", "@carol:example.org"}

	recorder := env.post(t, "/_admin/deactivate_undocumented_users", adminForm(url.Values{}))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result["deactivated_count"] != float64(2) {
		t.Errorf("deactivated_count = %v, want 2", result["deactivated_count"])
	}
	if len(env.bus.deactivated) != 2 {
		t.Errorf("bus deactivated %v, want both users", env.bus.deactivated)
	}
}

func TestRetroDocumentation(t *testing.T) {
	env := newTestEnv(t)
	env.bus.users = []string{"@bob:example.org"}

	recorder := env.post(t, "/_admin/retroactively_document_users", adminForm(url.Values{}))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if !env.journal.HasUsername("bob") {
		t.Error("journal is missing the retroactive entry")
	}
	entry, found := env.journal.LatestByEmail("null@nope.no")
	if !found || entry.IPAddress != "127.0.0.1" {
		t.Errorf("retroactive entry = %+v, found = %v", entry, found)
	}
}

func TestPurgeUnfulfilled(t *testing.T) {
	env := newTestEnv(t)
	env.taken["exists"] = true

	now := time.Now().UTC()
	entries := []registration.Entry{
		{RequestedName: "exists", Email: "a@example.com", Datetime: now.Add(-48 * time.Hour)},
		{RequestedName: "stale", Email: "b@example.com", Datetime: now.Add(-48 * time.Hour)},
		{RequestedName: "fresh", Email: "c@example.com", Datetime: now.Add(-time.Hour)},
	}
	if err := env.journal.Replace(entries); err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	recorder := env.post(t, "/_admin/purge_unfulfilled_registrations",
		adminForm(url.Values{"min_age_hours": {"24"}}))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", recorder.Code, recorder.Body.String())
	}
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result["removed"] != float64(1) || result["kept_existing"] != float64(1) || result["kept_recent"] != float64(1) {
		t.Errorf("unexpected counts: %v", result)
	}
	if env.journal.HasUsername("stale") {
		t.Error("stale entry survived the purge")
	}
	if !env.journal.HasUsername("exists") || !env.journal.HasUsername("fresh") {
		t.Error("kept entries are missing")
	}
}

func TestBanRoom(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.post(t, "/_admin/ban_room", adminForm(url.Values{"room_id": {"!evil:example.org"}}))
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result["success"] != true {
		t.Errorf("success = %v, want true: %v", result["success"], result)
	}
	if len(env.bus.bannedRooms) != 1 || env.bus.bannedRooms[0] != "!evil:example.org" {
		t.Errorf("banned rooms = %v", env.bus.bannedRooms)
	}
}

func TestBanUsersBulk(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.post(t, "/_admin/ban_users_bulk",
		adminForm(url.Values{"user_ids": {`["@x:example.org","@y:example.org"]`}}))
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result["success"] != true {
		t.Errorf("success = %v: %v", result["success"], result)
	}
	if len(env.bus.deactivated) != 2 {
		t.Errorf("deactivated = %v, want 2 users", env.bus.deactivated)
	}

	recorder = env.post(t, "/_admin/ban_users_bulk", adminForm(url.Values{"user_ids": {"not json"}}))
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("malformed user_ids status = %d, want 400", recorder.Code)
	}
}

func TestModerationStream(t *testing.T) {
	env := newTestEnv(t)
	env.bus.scanEvents = []adminbus.ScanEvent{
		{Kind: adminbus.ScanStarting, Message: "Connecting..."},
		{Kind: adminbus.ScanBannedRoom, Room: adminbus.RoomSummary{ID: "!spam:example.org", Name: "Spam Den", MemberCount: 12}, Pattern: ".*spam.*"},
		{Kind: adminbus.ScanComplete, RoomsScanned: 3, BansFound: 1, Message: "done"},
	}

	recorder := env.get(t, "/_admin/moderate_rooms_stream?auth_token="+testToken())
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", contentType)
	}
	body := recorder.Body.String()
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("got %d SSE frames, want 3: %q", len(frames), body)
	}
	for _, frame := range frames {
		if !strings.HasPrefix(frame, "data: ") {
			t.Errorf("frame missing data prefix: %q", frame)
		}
	}
	if !strings.Contains(frames[1], `"!spam:example.org"`) {
		t.Errorf("banned room frame = %q", frames[1])
	}
	if !strings.Contains(frames[2], `"rooms_scanned":3`) {
		t.Errorf("terminal frame = %q", frames[2])
	}
}

func TestCanaryFormRequiresAttestations(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.get(t, "/_admin/warrant_canary/?auth_token="+testToken())
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 with no attestations file", recorder.Code)
	}

	attestations := filepath.Join(env.confDir, "attestations.txt")
	if err := os.WriteFile(attestations, []byte("has not been raided\nhas not been gagged\n"), 0o644); err != nil {
		t.Fatalf("write attestations: %v", err)
	}
	recorder = env.get(t, "/_admin/warrant_canary/?auth_token="+testToken())
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "has not been raided") {
		t.Errorf("form is missing the attestations: %q", recorder.Body.String())
	}
}

func TestCanaryPreviewSignPost(t *testing.T) {
	env := newTestEnv(t)
	env.canary.message = "Example Collective Warrant Canary"
	env.canary.signed = "-----BEGIN PGP SIGNED MESSAGE-----\n..."

	recorder := env.post(t, "/_admin/warrant_canary/preview",
		adminForm(url.Values{"attestations": {"has not been raided"}, "note": {""}}))
	if recorder.Code != http.StatusOK {
		t.Fatalf("preview status = %d: %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), env.canary.message) {
		t.Errorf("preview is missing the message")
	}

	recorder = env.post(t, "/_admin/warrant_canary/sign",
		adminForm(url.Values{"message": {env.canary.message}, "passphrase": {"pw"}}))
	if recorder.Code != http.StatusOK {
		t.Fatalf("sign status = %d: %s", recorder.Code, recorder.Body.String())
	}
	if env.canary.saved != env.canary.signed {
		t.Errorf("saved = %q, want the signed message", env.canary.saved)
	}

	recorder = env.post(t, "/_admin/warrant_canary/post",
		adminForm(url.Values{"signed_message": {env.canary.signed}}))
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result["message"] != "Posted to Matrix" {
		t.Errorf("post result = %v", result)
	}
	if env.canary.posted != env.canary.signed {
		t.Errorf("posted = %q, want the signed message", env.canary.posted)
	}
}
