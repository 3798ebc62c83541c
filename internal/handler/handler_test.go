package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/faceclient"
	"rollcall/internal/guard"
	"rollcall/internal/identity"
	"rollcall/internal/queue"
	"rollcall/internal/session"
)

// sessionStore is the in-memory session.Store behind handler tests.
type sessionStore struct {
	rows    map[string]*session.Row
	rosters map[string][]session.Record
	classes map[string][]session.Record
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		rows:    make(map[string]*session.Row),
		rosters: make(map[string][]session.Record),
		classes: make(map[string][]session.Record),
	}
}

func (s *sessionStore) Active(_ context.Context, classID, date string) (string, string, error) {
	for _, row := range s.rows {
		if row.ClassID == classID && row.Date == date && (row.Status == session.StatusOpen || row.Status == session.StatusSubmitted) {
			return row.Ref, row.Status, nil
		}
	}
	return "", "", nil
}

func (s *sessionStore) Insert(_ context.Context, row session.Row) error {
	s.rows[row.Ref] = &row
	return nil
}

func (s *sessionStore) SetMethod(_ context.Context, ref string, method session.Method) error {
	if row, ok := s.rows[ref]; ok {
		row.Method = string(method)
	}
	return nil
}

func (s *sessionStore) SetStatus(_ context.Context, ref, status string) error {
	if row, ok := s.rows[ref]; ok {
		row.Status = status
	}
	return nil
}

func (s *sessionStore) Status(_ context.Context, ref string) (string, error) {
	row, ok := s.rows[ref]
	if !ok {
		return "", session.ErrSessionNotFound
	}
	return row.Status, nil
}

func (s *sessionStore) Submit(_ context.Context, ref string, roster []session.Record, _ time.Time) error {
	s.rosters[ref] = append([]session.Record(nil), roster...)
	if row, ok := s.rows[ref]; ok {
		row.Status = session.StatusSubmitted
	}
	return nil
}

func (s *sessionStore) ClassRoster(_ context.Context, classID string) ([]session.Record, error) {
	return append([]session.Record(nil), s.classes[classID]...), nil
}

func (s *sessionStore) Find(_ context.Context, ref string) (session.Row, []session.Record, error) {
	row, ok := s.rows[ref]
	if !ok {
		return session.Row{}, nil, session.ErrSessionNotFound
	}
	return *row, append([]session.Record(nil), s.rosters[ref]...), nil
}

// userStore is the in-memory identity.Store behind handler tests.
type userStore struct {
	users  map[string]identity.User
	hashes map[string]string
	nextID int
}

func newUserStore() *userStore {
	return &userStore{users: make(map[string]identity.User), hashes: make(map[string]string)}
}

func (s *userStore) Insert(_ context.Context, user identity.User, hash string) error {
	if user.ID == "" {
		s.nextID++
		user.ID = "u-" + strconv.Itoa(s.nextID)
	}
	s.users[user.ID] = user
	s.hashes[user.Email] = hash
	return nil
}

func (s *userStore) ByEmail(_ context.Context, email string) (identity.User, string, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, s.hashes[email], nil
		}
	}
	return identity.User{}, "", identity.ErrUserNotFound
}

func (s *userStore) ByID(_ context.Context, id string) (identity.User, error) {
	u, ok := s.users[id]
	if !ok {
		return identity.User{}, identity.ErrUserNotFound
	}
	return u, nil
}

type testAPI struct {
	router *gin.Engine
	store  *sessionStore
	users  *identity.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newSessionStore()
	identitySvc := identity.NewService(newUserStore(), "rollcall", "test-key", time.Minute, time.Hour)

	h := &Handler{
		Sessions: session.NewManager(store, nil),
		Identity: identitySvc,
		Frames:   queue.NewInMemory(8),
		Face:     faceclient.New("http://localhost:0", true),
	}

	r := gin.New()
	h.Register(r, &guard.Rehydrator{Fetch: identitySvc})
	return &testAPI{router: r, store: store, users: identitySvc}
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	return w
}

func (api *testAPI) signUp(t *testing.T, email string, roles []string) string {
	t.Helper()
	_, pair, err := api.users.SignUp(context.Background(), "Test User", email, "long-enough-pw", roles)
	if err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
	return pair.AccessToken
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage)
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func sessionRef(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Session session.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session %q: %v", w.Body.String(), err)
	}
	return resp.Session.Ref
}

func TestGuardOnSessionRoutes(t *testing.T) {
	api := newTestAPI(t)
	body := gin.H{"subject_id": "sub-1", "class_id": "CS-A", "room_id": "room-12"}

	// No token: sign-in redirect.
	if w := api.do(t, http.MethodPost, "/v1/sessions", "", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous initiate = %d, want 401", w.Code)
	}

	// Student role: unauthorized notice, not sign-in.
	studentToken := api.signUp(t, "student@example.com", []string{"student"})
	if w := api.do(t, http.MethodPost, "/v1/sessions", studentToken, body); w.Code != http.StatusForbidden {
		t.Fatalf("student initiate = %d, want 403", w.Code)
	}

	// Garbage token behaves like no token.
	if w := api.do(t, http.MethodPost, "/v1/sessions", "garbage", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token initiate = %d, want 401", w.Code)
	}

	// Teacher passes.
	teacherToken := api.signUp(t, "teacher@example.com", []string{"teacher"})
	if w := api.do(t, http.MethodPost, "/v1/sessions", teacherToken, body); w.Code != http.StatusCreated {
		t.Fatalf("teacher initiate = %d, want 201: %s", w.Code, w.Body.String())
	}
}

func TestManualFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.store.classes["CS-A"] = []session.Record{
		{StudentID: "s1", RollNumber: "01", DisplayName: "Asha"},
		{StudentID: "s2", RollNumber: "02", DisplayName: "Bilal"},
	}
	token := api.signUp(t, "teacher@example.com", []string{"teacher"})

	w := api.do(t, http.MethodPost, "/v1/sessions", token, gin.H{
		"subject_id": "sub-1", "class_id": "CS-A", "room_id": "room-12",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("initiate = %d: %s", w.Code, w.Body.String())
	}
	ref := sessionRef(t, w)

	w = api.do(t, http.MethodPost, "/v1/sessions/"+ref+"/method", token, gin.H{"method": "manual"})
	if w.Code != http.StatusOK {
		t.Fatalf("method = %d: %s", w.Code, w.Body.String())
	}

	w = api.do(t, http.MethodPost, "/v1/sessions/"+ref+"/toggle", token, gin.H{"student_id": "s2"})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle = %d: %s", w.Code, w.Body.String())
	}
	var toggled struct {
		Session session.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &toggled); err != nil {
		t.Fatalf("decode toggle: %v", err)
	}
	if toggled.Session.PresentCount != 1 || toggled.Session.AbsentCount != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", toggled.Session.PresentCount, toggled.Session.AbsentCount)
	}

	// Method choice is one-shot.
	if w := api.do(t, http.MethodPost, "/v1/sessions/"+ref+"/method", token, gin.H{"method": "camera"}); w.Code != http.StatusConflict {
		t.Fatalf("second method choice = %d, want 409", w.Code)
	}

	if w := api.do(t, http.MethodPost, "/v1/sessions/"+ref+"/submit", token, nil); w.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", w.Code, w.Body.String())
	}
	if len(api.store.rosters[ref]) != 2 {
		t.Fatalf("stored roster = %d entries, want 2", len(api.store.rosters[ref]))
	}
}

func TestDuplicateInitiateSurfacesChoices(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp(t, "teacher@example.com", []string{"teacher"})
	body := gin.H{"subject_id": "sub-1", "class_id": "CS-A", "room_id": "room-12"}

	if w := api.do(t, http.MethodPost, "/v1/sessions", token, body); w.Code != http.StatusCreated {
		t.Fatalf("first initiate = %d", w.Code)
	}

	w := api.do(t, http.MethodPost, "/v1/sessions", token, body)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate initiate = %d, want 409", w.Code)
	}
	resp := decode(t, w)
	var choices []string
	if err := json.Unmarshal(resp["choices"], &choices); err != nil {
		t.Fatalf("choices missing: %s", w.Body.String())
	}
	if len(choices) != 2 || choices[0] != "inspect" || choices[1] != "override" {
		t.Fatalf("choices = %v, want [inspect override]", choices)
	}

	// Override supersedes and reopens.
	var rejected struct {
		Session session.Snapshot `json:"session"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rejected); err != nil {
		t.Fatalf("decode rejected: %v", err)
	}
	w = api.do(t, http.MethodPost, "/v1/sessions/"+rejected.Session.Ref+"/override", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("override = %d: %s", w.Code, w.Body.String())
	}
}

func TestMeReturnsRolesAndProfile(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp(t, "teacher@example.com", []string{"teacher", "hod"})

	w := api.do(t, http.MethodGet, "/v1/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me = %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	var roles []string
	if err := json.Unmarshal(resp["roles"], &roles); err != nil {
		t.Fatalf("roles missing: %s", w.Body.String())
	}
	if len(roles) != 2 {
		t.Fatalf("roles = %v, want two tags", roles)
	}
}

func TestCheckinRequiresStudentRole(t *testing.T) {
	api := newTestAPI(t)
	teacherToken := api.signUp(t, "teacher@example.com", []string{"teacher"})

	w := api.do(t, http.MethodPost, "/v1/checkins", teacherToken, gin.H{"code": "abc123"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("teacher check-in = %d, want 403", w.Code)
	}
}
