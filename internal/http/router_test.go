package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/Tirtha134/NoteApp-backend/internal/config"
	"github.com/Tirtha134/NoteApp-backend/internal/domain"
	"github.com/Tirtha134/NoteApp-backend/internal/repository"
	"github.com/Tirtha134/NoteApp-backend/internal/service/auth"
	"github.com/Tirtha134/NoteApp-backend/internal/service/note"
	"github.com/Tirtha134/NoteApp-backend/internal/token"
)

const testSecret = "router-test-secret"

// memoryRepo is an in-memory stand-in for the postgres repository. It
// enforces the same unique constraints and owner-scoped matching.
type memoryRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
	notes map[string]domain.Note
	seq   map[string]int
	next  int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users: make(map[string]*domain.User),
		notes: make(map[string]domain.Note),
		seq:   make(map[string]int),
	}
}

func (m *memoryRepo) CreateUser(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email || existing.Phone == user.Phone {
			return repository.ErrDuplicate
		}
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memoryRepo) GetUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == identifier || user.Phone == identifier {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) UpdatePasswordHash(ctx context.Context, id string, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	return nil
}

func (m *memoryRepo) deleteUser(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *memoryRepo) CreateNote(ctx context.Context, n *domain.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.seq[n.ID] = m.next
	m.notes[n.ID] = *n
	return nil
}

func (m *memoryRepo) ListNotesByUser(ctx context.Context, userID string) ([]domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	notes := make([]domain.Note, 0)
	for _, n := range m.notes {
		if n.UserID == userID {
			notes = append(notes, n)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		}
		return m.seq[notes[i].ID] > m.seq[notes[j].ID]
	})
	return notes, nil
}

func (m *memoryRepo) UpdateNote(ctx context.Context, n *domain.Note) (*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.notes[n.ID]
	if !ok || existing.UserID != n.UserID {
		return nil, repository.ErrNotFound
	}
	existing.Title = n.Title
	existing.Description = n.Description
	existing.UpdatedAt = n.UpdatedAt
	m.notes[n.ID] = existing
	copied := existing
	return &copied, nil
}

func (m *memoryRepo) DeleteNote(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.notes[id]
	if !ok || existing.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.notes, id)
	return nil
}

func setupRouter(t *testing.T) (*Router, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	cfg := config.Config{
		JWTSecret:      testSecret,
		TokenTTL:       time.Hour,
		CookieSameSite: http.SameSiteLaxMode,
		CORSOrigin:     "http://localhost:5173",
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(log, auth.New(repo, log, cfg), note.New(repo, log), cfg, nil)
	return router, repo
}

func doRequest(t *testing.T, router *Router, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func registerAndLogin(t *testing.T, router *Router, name, phone, email, password string) *http.Cookie {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"name": name, "phone": phone, "email": email, "password": password,
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	rec = doRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": email, "password": password,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			if !c.HttpOnly {
				t.Fatal("session cookie must be HTTP-only")
			}
			return c
		}
	}
	t.Fatal("login response carried no session cookie")
	return nil
}

func TestRegisterLoginNoteScenario(t *testing.T) {
	router, _ := setupRouter(t)

	cookie := registerAndLogin(t, router, "Ann", "555", "a@x.com", "secret1")

	rec := doRequest(t, router, http.MethodGet, "/api/note/", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	if notes, ok := body["notes"].([]any); !ok || len(notes) != 0 {
		t.Fatalf("expected empty notes, got %v", body["notes"])
	}

	rec = doRequest(t, router, http.MethodPost, "/api/note/add", map[string]string{
		"title": "Hi", "description": "World",
	}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/note/", nil, cookie)
	body = decodeEnvelope(t, rec)
	notes, ok := body["notes"].([]any)
	if !ok || len(notes) != 1 {
		t.Fatalf("expected one note, got %v", body["notes"])
	}
	first, _ := notes[0].(map[string]any)
	if first["title"] != "Hi" || first["description"] != "World" {
		t.Fatalf("unexpected note: %v", first)
	}
	if body["count"] != float64(1) {
		t.Fatalf("unexpected count: %v", body["count"])
	}
}

func TestListReturnsNewestFirst(t *testing.T) {
	router, _ := setupRouter(t)
	cookie := registerAndLogin(t, router, "Ann", "555", "a@x.com", "secret1")

	for _, title := range []string{"first", "second", "third"} {
		rec := doRequest(t, router, http.MethodPost, "/api/note/add", map[string]string{
			"title": title, "description": "d",
		}, cookie)
		if rec.Code != http.StatusCreated {
			t.Fatalf("add %s: status %d", title, rec.Code)
		}
		time.Sleep(2 * time.Millisecond)
	}

	rec := doRequest(t, router, http.MethodGet, "/api/note/", nil, cookie)
	body := decodeEnvelope(t, rec)
	notes := body["notes"].([]any)
	titles := make([]string, 0, len(notes))
	for _, n := range notes {
		titles = append(titles, n.(map[string]any)["title"].(string))
	}
	want := []string{"third", "second", "first"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, titles)
		}
	}
}

func TestRegisterDuplicateEmailOrPhoneConflicts(t *testing.T) {
	router, _ := setupRouter(t)
	registerAndLogin(t, router, "Ann", "555", "a@x.com", "secret1")

	// Same email with a different password and phone still conflicts.
	rec := doRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Bob", "phone": "777", "email": "a@x.com", "password": "other-password",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate email: status %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["message"] != "User already exists" {
		t.Fatalf("unexpected message: %v", body["message"])
	}

	rec = doRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Bob", "phone": "555", "email": "b@x.com", "password": "yet-another",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate phone: status %d", rec.Code)
	}
}

func TestRegisterMissingFields(t *testing.T) {
	router, _ := setupRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Ann", "phone": "  ", "email": "a@x.com", "password": "secret1",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["message"] != "All fields are required" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
}

func TestLoginFailuresAreByteIdentical(t *testing.T) {
	router, _ := setupRouter(t)
	registerAndLogin(t, router, "Ann", "555", "a@x.com", "secret1")

	unknown := doRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "nobody@x.com", "password": "secret1",
	}, nil)
	wrong := doRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "a@x.com", "password": "not-the-password",
	}, nil)

	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.Code, wrong.Code)
	}
	if !bytes.Equal(unknown.Body.Bytes(), wrong.Body.Bytes()) {
		t.Fatalf("bodies differ:\nunknown: %s\nwrong:   %s", unknown.Body.String(), wrong.Body.String())
	}
}

func TestAuthGateRejections(t *testing.T) {
	router, repo := setupRouter(t)
	cookie := registerAndLogin(t, router, "Ann", "555", "a@x.com", "secret1")

	rec := doRequest(t, router, http.MethodGet, "/api/note/", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing cookie: status %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["message"] != "No token, authorization denied" {
		t.Fatalf("missing cookie message: %v", body["message"])
	}

	rec = doRequest(t, router, http.MethodGet, "/api/note/", nil, &http.Cookie{Name: sessionCookieName, Value: "garbage"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["message"] != "Invalid or expired token" {
		t.Fatalf("garbage token message: %v", body["message"])
	}

	expired, err := token.Issue("whoever", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("issue expired token: %v", err)
	}
	rec = doRequest(t, router, http.MethodGet, "/api/note/", nil, &http.Cookie{Name: sessionCookieName, Value: expired})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token: status %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["message"] != "Invalid or expired token" {
		t.Fatalf("expired token message: %v", body["message"])
	}

	// Valid token whose user has since disappeared from the store.
	verify := doRequest(t, router, http.MethodGet, "/api/auth/verify", nil, cookie)
	userID := decodeEnvelope(t, verify)["user"].(map[string]any)["id"].(string)
	repo.deleteUser(userID)
	rec = doRequest(t, router, http.MethodGet, "/api/note/", nil, cookie)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("deleted user: status %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["message"] != "User not found" {
		t.Fatalf("deleted user message: %v", body["message"])
	}
}

func TestCrossUserNoteAccessIsNotFound(t *testing.T) {
	router, _ := setupRouter(t)
	cookieA := registerAndLogin(t, router, "Ann", "555", "a@x.com", "secret1")
	cookieB := registerAndLogin(t, router, "Bob", "777", "b@x.com", "secret2")

	rec := doRequest(t, router, http.MethodPost, "/api/note/add", map[string]string{
		"title": "private", "description": "ann only",
	}, cookieA)
	noteID := decodeEnvelope(t, rec)["note"].(map[string]any)["id"].(string)

	rec = doRequest(t, router, http.MethodGet, "/api/note/", nil, cookieB)
	if notes := decodeEnvelope(t, rec)["notes"].([]any); len(notes) != 0 {
		t.Fatalf("user B sees user A's notes: %v", notes)
	}

	rec = doRequest(t, router, http.MethodPut, "/api/note/"+noteID, map[string]string{
		"title": "stolen", "description": "x",
	}, cookieB)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user update: expected 404, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/note/"+noteID, nil, cookieB)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-user delete: expected 404, got %d", rec.Code)
	}

	// The owner still succeeds with the exact same id.
	rec = doRequest(t, router, http.MethodPut, "/api/note/"+noteID, map[string]string{
		"title": "renamed", "description": "still ann's",
	}, cookieA)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner update: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, router, http.MethodDelete, "/api/note/"+noteID, nil, cookieA)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete: status %d", rec.Code)
	}
}

func TestLogoutClearsCookieButNotOutstandingTokens(t *testing.T) {
	router, _ := setupRouter(t)
	cookie := registerAndLogin(t, router, "Ann", "555", "a@x.com", "secret1")

	rec := doRequest(t, router, http.MethodGet, "/api/auth/logout", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d", rec.Code)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("logout did not clear the session cookie")
	}

	// Known weakness of stateless tokens: a copy of the token held
	// elsewhere keeps working until its natural expiry.
	rec = doRequest(t, router, http.MethodGet, "/api/auth/verify", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retained token to stay valid after logout, got %d", rec.Code)
	}
}

func TestVerifyNeverLeaksPasswordHash(t *testing.T) {
	router, _ := setupRouter(t)
	cookie := registerAndLogin(t, router, "Ann", "555", "a@x.com", "secret1")

	rec := doRequest(t, router, http.MethodGet, "/api/auth/verify", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: status %d body %s", rec.Code, rec.Body.String())
	}
	lowered := strings.ToLower(rec.Body.String())
	if strings.Contains(lowered, "password") || strings.Contains(lowered, "$2a$") || strings.Contains(lowered, "hash") {
		t.Fatalf("verify response leaks credential material: %s", rec.Body.String())
	}
	user := decodeEnvelope(t, rec)["user"].(map[string]any)
	if user["email"] != "a@x.com" || user["name"] != "Ann" || user["phone"] != "555" {
		t.Fatalf("unexpected public user: %v", user)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	router, _ := setupRouter(t)
	registerAndLogin(t, router, "Ann", "555", "a@x.com", "secret1")

	rec := doRequest(t, router, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"identifier": "a@x.com", "newPassword": "short",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: status %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["message"] != "Password must be at least 6 characters" {
		t.Fatalf("short password message: %v", body["message"])
	}

	rec = doRequest(t, router, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"identifier": "nobody@x.com", "newPassword": "longenough",
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown identifier: status %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"identifier": "555", "newPassword": "fresh-secret",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "a@x.com", "password": "secret1",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old password still accepted: status %d", rec.Code)
	}
	rec = doRequest(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"identifier": "a@x.com", "password": "fresh-secret",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("new password rejected: status %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["success"] != true {
		t.Fatalf("unexpected health body: %v", body)
	}

	rec = doRequest(t, router, http.MethodGet, "/nowhere", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown path: status %d", rec.Code)
	}
}

func TestCORSPreflightAndOrigin(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("missing allow-origin header: %v", rec.Header())
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("credentials must be allowed for cookie auth")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("foreign origin must not be allowed")
	}
}
