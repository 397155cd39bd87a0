package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/team-mirai/mirai-gikai-sub000/models"
)

type memoryUsers struct {
	mu        sync.Mutex
	users     map[string]*models.User
	refresh   map[string]*models.RefreshToken
	permanent map[string]*models.PermanentToken
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{
		users:     make(map[string]*models.User),
		refresh:   make(map[string]*models.RefreshToken),
		permanent: make(map[string]*models.PermanentToken),
	}
}

func (m *memoryUsers) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	m.users[user.ID] = user
	return nil
}

func (m *memoryUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

func (m *memoryUsers) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[token.Token] = token
	return nil
}

func (m *memoryUsers) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh[token], nil
}

func (m *memoryUsers) CreatePermanentToken(ctx context.Context, token *models.PermanentToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permanent[token.Token] = token
	return nil
}

func (m *memoryUsers) GetPermanentToken(ctx context.Context, token string) (*models.PermanentToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permanent[token], nil
}

func (m *memoryUsers) DeleteAllUserTokens(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.refresh {
		if t.UserID == userID {
			delete(m.refresh, k)
		}
	}
	for k, t := range m.permanent {
		if t.UserID == userID {
			delete(m.permanent, k)
		}
	}
	return nil
}

func TestSignupAndLogin(t *testing.T) {
	auth := NewAuthService(newMemoryUsers(), "test-secret", false)
	ctx := context.Background()

	signup, err := auth.Signup(ctx, "a@example.com", "password1", "A")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if signup.User.Role != respondentRole {
		t.Errorf("expected respondent role, got %q", signup.User.Role)
	}
	if _, err := auth.Signup(ctx, "a@example.com", "other", "B"); !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}

	if _, err := auth.Login(ctx, "a@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Login(ctx, "nobody@example.com", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	login, err := auth.Login(ctx, "a@example.com", "password1")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	user, err := auth.VerifyAccessToken(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if user.ID != signup.User.ID {
		t.Errorf("expected user %s, got %s", signup.User.ID, user.ID)
	}

	other := NewAuthService(newMemoryUsers(), "other-secret", false)
	if _, err := other.VerifyAccessToken(ctx, login.AccessToken); err == nil {
		t.Error("a token signed with another secret must be rejected")
	}
}

func TestRefreshTokenExpiry(t *testing.T) {
	auth := NewAuthService(newMemoryUsers(), "test-secret", false)
	ctx := context.Background()
	tokens, err := auth.Signup(ctx, "a@example.com", "password1", "A")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	if _, err := auth.RefreshToken(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("fresh refresh token rejected: %v", err)
	}
	if _, err := auth.RefreshToken(ctx, "unknown"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for unknown token, got %v", err)
	}

	auth.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	if _, err := auth.RefreshToken(ctx, tokens.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken after expiry, got %v", err)
	}
	if _, err := auth.VerifyAccessToken(ctx, tokens.AccessToken); err == nil {
		t.Error("expected expired access token to be rejected")
	}
	if _, err := auth.VerifyPermanentToken(ctx, tokens.PermanentToken); err != nil {
		t.Errorf("permanent token should outlive the refresh token: %v", err)
	}
}

func TestIdentify(t *testing.T) {
	auth := NewAuthService(newMemoryUsers(), "test-secret", false)
	tokens, err := auth.Signup(context.Background(), "a@example.com", "password1", "A")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	tests := []struct {
		name          string
		cookies       map[string]string
		wantUser      bool
		wantNewAccess bool
	}{
		{"no cookies", nil, false, false},
		{"access token", map[string]string{accessTokenCookie: tokens.AccessToken}, true, false},
		{"refresh token only", map[string]string{refreshTokenCookie: tokens.RefreshToken}, true, true},
		{"permanent token only", map[string]string{permanentTokenCookie: tokens.PermanentToken}, true, true},
		{"garbage access token", map[string]string{accessTokenCookie: "nope"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			handler := auth.Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = AuthFromContext(r.Context()).Authenticated()
			}))

			req := httptest.NewRequest("GET", "/", nil)
			for name, value := range tt.cookies {
				req.AddCookie(&http.Cookie{Name: name, Value: value})
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if got != tt.wantUser {
				t.Errorf("authenticated = %v, want %v", got, tt.wantUser)
			}
			setCookies := rec.Header().Values("Set-Cookie")
			var newAccess bool
			for _, c := range setCookies {
				if strings.HasPrefix(c, accessTokenCookie+"=") {
					newAccess = true
				}
				if strings.HasPrefix(c, refreshTokenCookie+"=") || strings.HasPrefix(c, permanentTokenCookie+"=") {
					t.Errorf("long-lived cookies must not be rewritten, got %q", c)
				}
			}
			if newAccess != tt.wantNewAccess {
				t.Errorf("new access cookie = %v, want %v", newAccess, tt.wantNewAccess)
			}
		})
	}
}

func TestAuthEndpoints(t *testing.T) {
	auth := NewAuthService(newMemoryUsers(), "test-secret", false)
	r := chi.NewRouter()
	NewAuthEndpoints(auth).RegisterRoutes(r)

	rec := doRequest(r, "GET", "/auth/me", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without cookies, got %d", rec.Code)
	}

	rec = doRequest(r, "POST", "/auth/signup", "", `{"email":"not-an-email","password":"password1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid email, got %d", rec.Code)
	}

	rec = doRequest(r, "POST", "/auth/signup", "", `{"email":"a@example.com","password":"password1","full_name":"A"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 3 {
		t.Fatalf("expected 3 auth cookies, got %d", len(cookies))
	}

	rec = doRequest(r, "POST", "/auth/signup", "", `{"email":"a@example.com","password":"password1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate signup, got %d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/auth/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "a@example.com") {
		t.Errorf("expected the signed-up user, got %d: %s", rec.Code, rec.Body.String())
	}
}
