package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/team-mirai/mirai-gikai-sub000/interview"
	"github.com/team-mirai/mirai-gikai-sub000/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenCookie    = "access_token"
	refreshTokenCookie   = "refresh_token"
	permanentTokenCookie = "permanent_token"

	respondentRole = "respondent"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type contextKey string

const (
	userContextKey contextKey = "user"
	authContextKey contextKey = "auth"
)

// UserStore is the identity persistence used by AuthService.
// *repository.GORMRepository implements it.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	CreatePermanentToken(ctx context.Context, token *models.PermanentToken) error
	GetPermanentToken(ctx context.Context, token string) (*models.PermanentToken, error)
	DeleteAllUserTokens(ctx context.Context, userID string) error
}

type AuthService struct {
	repo            UserStore
	jwtSecret       []byte
	secureCookies   bool
	accessExpiry    time.Duration
	refreshExpiry   time.Duration
	permanentExpiry time.Duration
	now             func() time.Time
}

type CookieClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type AuthResponse struct {
	User           *models.User `json:"user"`
	AccessToken    string       `json:"access_token,omitempty"`
	RefreshToken   string       `json:"refresh_token,omitempty"`
	PermanentToken string       `json:"permanent_token,omitempty"`
}

func NewAuthService(repo UserStore, jwtSecret string, secureCookies bool) *AuthService {
	return &AuthService{
		repo:            repo,
		jwtSecret:       []byte(jwtSecret),
		secureCookies:   secureCookies,
		accessExpiry:    5 * time.Minute,     // 5 minutes
		refreshExpiry:   7 * 24 * time.Hour,  // 7 days
		permanentExpiry: 30 * 24 * time.Hour, // 30 days
		now:             time.Now,
	}
}

// generateSecureToken generates a cryptographically secure random token
func (s *AuthService) generateSecureToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// hashToken creates a SHA256 hash of the token for secure storage
func (s *AuthService) hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Login authenticates a respondent and issues tokens
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	response, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("User logged in successfully", "user_id", user.ID)
	return response, nil
}

// Signup registers a respondent and issues tokens
func (s *AuthService) Signup(ctx context.Context, email, password, fullName string) (*AuthResponse, error) {
	existingUser, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existingUser != nil {
		return nil, ErrUserExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hashedPassword),
		FullName: fullName,
		Role:     respondentRole,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	response, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	slog.Info("User signed up successfully", "user_id", user.ID)
	return response, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*AuthResponse, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.generateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	permanentToken, err := s.generateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate permanent token: %w", err)
	}

	if err := s.storeTokens(ctx, user.ID, refreshToken, permanentToken); err != nil {
		return nil, fmt.Errorf("failed to store tokens: %w", err)
	}

	return &AuthResponse{
		User:           user,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		PermanentToken: permanentToken,
	}, nil
}

// RefreshToken generates a new access token using refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	tokenRecord, err := s.repo.GetRefreshToken(ctx, s.hashToken(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if tokenRecord == nil || !tokenRecord.ExpiresAt.After(s.now()) {
		return nil, fmt.Errorf("%w: refresh token", ErrInvalidToken)
	}
	return s.reissueAccess(ctx, tokenRecord.UserID)
}

// VerifyPermanentToken verifies permanent token and generates new access token
func (s *AuthService) VerifyPermanentToken(ctx context.Context, permanentToken string) (*AuthResponse, error) {
	tokenRecord, err := s.repo.GetPermanentToken(ctx, s.hashToken(permanentToken))
	if err != nil {
		return nil, fmt.Errorf("failed to get permanent token: %w", err)
	}
	if tokenRecord == nil {
		return nil, fmt.Errorf("%w: permanent token", ErrInvalidToken)
	}
	return s.reissueAccess(ctx, tokenRecord.UserID)
}

func (s *AuthService) reissueAccess(ctx context.Context, userID string) (*AuthResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s no longer exists", ErrInvalidToken, userID)
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	slog.Info("Access token reissued", "user_id", user.ID)
	return &AuthResponse{
		User:        user,
		AccessToken: accessToken,
	}, nil
}

// Logout invalidates all tokens for the user
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.DeleteAllUserTokens(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user tokens: %w", err)
	}

	slog.Info("User logged out", "user_id", userID)
	return nil
}

// VerifyAccessToken verifies and extracts user from access token
func (s *AuthService) VerifyAccessToken(ctx context.Context, token string) (*models.User, error) {
	claims := &CookieClaims{}

	parsedToken, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsedToken.Valid {
		return nil, ErrInvalidToken
	}

	// Get user from database to ensure they still exist
	user, err := s.repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s no longer exists", ErrInvalidToken, claims.UserID)
	}

	return user, nil
}

// generateAccessToken creates a short-lived access token
func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	now := s.now()
	claims := &CookieClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// storeTokens stores refresh and permanent tokens in database
func (s *AuthService) storeTokens(ctx context.Context, userID, refreshToken, permanentToken string) error {
	refreshTokenRecord := &models.RefreshToken{
		UserID:    userID,
		Token:     s.hashToken(refreshToken),
		ExpiresAt: s.now().Add(s.refreshExpiry),
	}
	if err := s.repo.CreateRefreshToken(ctx, refreshTokenRecord); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	permanentTokenRecord := &models.PermanentToken{
		UserID: userID,
		Token:  s.hashToken(permanentToken),
	}
	if err := s.repo.CreatePermanentToken(ctx, permanentTokenRecord); err != nil {
		return fmt.Errorf("failed to store permanent token: %w", err)
	}

	return nil
}

func (s *AuthService) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// SetAuthCookies sets HTTP-only cookies for every non-empty token
func (s *AuthService) SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken, permanentToken string) {
	if accessToken != "" {
		s.setCookie(w, accessTokenCookie, accessToken, int(s.accessExpiry.Seconds()))
	}
	if refreshToken != "" {
		s.setCookie(w, refreshTokenCookie, refreshToken, int(s.refreshExpiry.Seconds()))
	}
	if permanentToken != "" {
		s.setCookie(w, permanentTokenCookie, permanentToken, int(s.permanentExpiry.Seconds()))
	}
}

// ClearAuthCookies clears all authentication cookies
func (s *AuthService) ClearAuthCookies(w http.ResponseWriter) {
	for _, cookieName := range []string{accessTokenCookie, refreshTokenCookie, permanentTokenCookie} {
		s.setCookie(w, cookieName, "", -1)
	}
}

// GetTokenFromCookie extracts token from request cookies
func (s *AuthService) GetTokenFromCookie(r *http.Request, cookieName string) string {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// identify tries the access, refresh and permanent cookies in turn
func (s *AuthService) identify(w http.ResponseWriter, r *http.Request) (*models.User, error) {
	if accessToken := s.GetTokenFromCookie(r, accessTokenCookie); accessToken != "" {
		user, err := s.VerifyAccessToken(r.Context(), accessToken)
		if err == nil {
			return user, nil
		}
	}

	if refreshToken := s.GetTokenFromCookie(r, refreshTokenCookie); refreshToken != "" {
		authResponse, err := s.RefreshToken(r.Context(), refreshToken)
		if err == nil {
			s.SetAuthCookies(w, authResponse.AccessToken, "", "")
			return authResponse.User, nil
		}
	}

	if permanentToken := s.GetTokenFromCookie(r, permanentTokenCookie); permanentToken != "" {
		authResponse, err := s.VerifyPermanentToken(r.Context(), permanentToken)
		if err == nil {
			s.SetAuthCookies(w, authResponse.AccessToken, "", "")
			return authResponse.User, nil
		}
	}

	return nil, ErrAuthenticationRequired
}

// Identify records the caller's identity, or its absence, in the request
// context and always continues. Handlers decide what an anonymous caller
// may do.
func (s *AuthService) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.identify(w, r)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user, err)))
	})
}

// Middleware rejects requests without a valid identity
func (s *AuthService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.identify(w, r)
		if err != nil {
			writeError(w, ErrAuthenticationRequired)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user, nil)))
	})
}

// WithIdentity stores the outcome of identifying the caller in ctx
func WithIdentity(ctx context.Context, user *models.User, err error) context.Context {
	auth := interview.AuthResult{Err: err}
	if err == nil && user != nil {
		auth.UserID = user.ID
		ctx = context.WithValue(ctx, userContextKey, user)
	} else if auth.Err == nil {
		auth.Err = ErrAuthenticationRequired
	}
	return context.WithValue(ctx, authContextKey, auth)
}

// UserFromContext returns the identified user, if any
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok && user != nil
}

// AuthFromContext returns the identity outcome recorded by Identify or
// Middleware. A request that passed neither is unauthenticated.
func AuthFromContext(ctx context.Context) interview.AuthResult {
	if auth, ok := ctx.Value(authContextKey).(interview.AuthResult); ok {
		return auth
	}
	return interview.AuthResult{Err: ErrAuthenticationRequired}
}
