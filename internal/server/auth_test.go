package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string][2]string // email -> {id, hash}
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string][2]string{}}
}

func (f *fakeUserStore) Create(_ context.Context, email, hash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[email]; ok {
		return "", ErrEmailTaken
	}
	id := "id-" + email
	f.users[email] = [2]string{id, hash}
	return id, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return "", "", ErrUserNotFound
	}
	return u[0], u[1], nil
}

func doAuth(t *testing.T, h *AuthHandler, fn func(echo.Context) error, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	if err := fn(ctx); err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			rec.Code = he.Code
			return rec
		}
		t.Fatalf("handler: %v", err)
	}
	return rec
}

func TestSignupLoginRoundTrip(t *testing.T) {
	h := &AuthHandler{Users: newFakeUserStore(), Secret: []byte("test-secret")}

	rec := doAuth(t, h, h.signup, `{"email":"coach@example.com","password":"hunter2hunter2"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201 got %d", rec.Code)
	}

	rec = doAuth(t, h, h.signup, `{"email":"coach@example.com","password":"hunter2hunter2"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409 got %d", rec.Code)
	}

	rec = doAuth(t, h, h.login, `{"email":"coach@example.com","password":"wrongpassword"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401 got %d", rec.Code)
	}

	rec = doAuth(t, h, h.login, `{"email":"coach@example.com","password":"hunter2hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200 got %d", rec.Code)
	}
	var tok TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil || tok.Token == "" {
		t.Fatalf("expected a token, got %q err=%v", rec.Body.String(), err)
	}

	// the issued token passes the middleware and carries the user id
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec2 := httptest.NewRecorder()
	ctx := e.NewContext(req, rec2)
	called := false
	mw := AuthMiddleware(h.Secret)(func(c echo.Context) error {
		called = true
		if c.Get("user_id").(string) != "id-coach@example.com" {
			t.Fatalf("wrong subject: %v", c.Get("user_id"))
		}
		return nil
	})
	if err := mw(ctx); err != nil {
		t.Fatalf("middleware rejected a fresh token: %v", err)
	}
	if !called {
		t.Fatalf("middleware never invoked the handler")
	}
}

func TestSignupRejectsWeakInput(t *testing.T) {
	h := &AuthHandler{Users: newFakeUserStore(), Secret: []byte("test-secret")}
	rec := doAuth(t, h, h.signup, `{"email":"not-an-email","password":"hunter2hunter2"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad email: expected 400 got %d", rec.Code)
	}
	rec = doAuth(t, h, h.signup, `{"email":"a@b.com","password":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: expected 400 got %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsGarbage(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	err := AuthMiddleware([]byte("s"))(func(echo.Context) error { return nil })(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestPostgresUserStoreUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := &PostgresUserStore{db: db}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "dup@example.com", "hash", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	if _, err := s.Create(context.Background(), "dup@example.com", "hash"); err != ErrEmailTaken {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	mock.ExpectQuery(`SELECT id, password_hash FROM users WHERE email=\$1`).
		WithArgs("who@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}))

	if _, _, err := s.GetByEmail(context.Background(), "who@example.com"); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
